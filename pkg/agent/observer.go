package agent

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/coords"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// structuralSummaryLimit caps the elements listed in a structural-only
// description.
const structuralSummaryLimit = 12

// Observer captures the screen in both forms: the semantic description and
// the structural index.
type Observer struct {
	device    core.Actuator
	describer core.Describer
	log       *zap.Logger
}

// NewObserver creates an Observer. describer may be nil, in which case every
// snapshot is structural-only.
func NewObserver(device core.Actuator, describer core.Describer) *Observer {
	return &Observer{device: device, describer: describer, log: logger.Named("observer")}
}

// Observe dumps the UI tree, reads the screen geometry and describes a
// screenshot. Only a failing dump is an error; a failing screenshot or
// description service degrades the snapshot to structural-only.
func (o *Observer) Observe(ctx context.Context) (*ScreenSnapshot, []uitree.ClickableElement, error) {
	raw, err := o.device.DumpUITree(ctx)
	if err != nil {
		return nil, nil, core.ErrDeviceDisconnected.WithMessage("could not read the screen").WithCause(err)
	}
	elements, err := uitree.Parse(raw)
	if err != nil {
		o.log.Warn("unreadable UI dump, continuing without elements", zap.Error(err))
		elements = nil
	}

	metrics := o.metrics(ctx)
	snap := &ScreenSnapshot{
		Fingerprint: recovery.Hash([]byte(raw)),
		CapturedAt:  time.Now(),
		Frame: coords.Frame{
			VisionW:   metrics.Width,
			VisionH:   metrics.Height,
			DeviceW:   metrics.Width,
			DeviceH:   metrics.Height,
			StatusBar: metrics.StatusBar,
		},
	}

	desc, err := o.describe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		o.log.Warn("description unavailable, using the UI tree only", zap.Error(err))
		snap.Description = structuralDescription(elements)
		snap.Structural = true
		return snap, elements, nil
	}

	snap.Description = *desc
	if desc.ImageWidth > 0 && desc.ImageHeight > 0 {
		snap.Frame.VisionW, snap.Frame.VisionH = desc.ImageWidth, desc.ImageHeight
	}
	o.log.Debug("observed screen",
		zap.Int("elements", len(elements)),
		zap.Bool("login", desc.Flags.IsLoginScreen),
		zap.Bool("popup", desc.Flags.HasPopup),
		zap.Stringer("fingerprint", snap.Fingerprint))
	return snap, elements, nil
}

func (o *Observer) describe(ctx context.Context) (*core.Description, error) {
	if o.describer == nil {
		return nil, core.ErrActionExecutionFailed.WithMessage("no description service configured")
	}
	img, err := o.device.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return o.describer.Describe(ctx, img, "")
}

func (o *Observer) metrics(ctx context.Context) core.ScreenMetrics {
	if mp, ok := o.device.(core.MetricsProvider); ok {
		m, err := mp.Metrics(ctx)
		if err == nil {
			return m
		}
		o.log.Warn("screen metrics unavailable", zap.Error(err))
	}
	return core.ScreenMetrics{}
}

// structuralDescription stands in for the description service with what the
// UI tree shows.
func structuralDescription(elements []uitree.ClickableElement) core.Description {
	var labels []string
	for _, e := range elements {
		if l := e.Label(); l != "" {
			labels = append(labels, l)
		}
		if len(labels) == structuralSummaryLimit {
			break
		}
	}
	text := "No labelled controls."
	if len(labels) > 0 {
		text = strings.Join(labels, ", ") + "."
	}
	_, sheet := loginSheet(elements)
	return core.Description{
		Text: text,
		Flags: core.ScreenFlags{
			IsLoginScreen:    sheet,
			HasEmailField:    len(uitree.InputFields(elements)) > 0,
			HasPasswordField: len(uitree.InputFields(elements)) > 1,
		},
	}
}

// screenMetrics recovers the device geometry from a snapshot.
func screenMetrics(s *ScreenSnapshot) core.ScreenMetrics {
	if s == nil {
		return core.ScreenMetrics{}
	}
	return core.ScreenMetrics{Width: s.Frame.DeviceW, Height: s.Frame.DeviceH, StatusBar: s.Frame.StatusBar}
}
