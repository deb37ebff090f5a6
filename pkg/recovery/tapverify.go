package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/droidpilot/pkg/coords"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
)

// DefaultOffsets are tried, in order, when a tap leaves the screen unchanged.
var DefaultOffsets = []coords.Point{{X: 5, Y: 5}, {X: -5, Y: -5}}

// TapOptions configures TapAndVerify. Zero values select the defaults.
type TapOptions struct {
	Offsets []coords.Point
	Settle  time.Duration // Wait after each tap before re-capturing
	Sleeper Sleeper
	Capture CaptureFunc // Defaults to TreeCapture
}

// TapAndVerify taps (x, y) and checks that the screen changed. An unchanged
// screen is retried at each offset; a failing tap gets one offset retry.
func TapAndVerify(ctx context.Context, a core.Actuator, x, y int, opts TapOptions) error {
	if opts.Offsets == nil {
		opts.Offsets = DefaultOffsets
	}
	if opts.Sleeper == nil {
		opts.Sleeper = RealSleeper
	}
	if opts.Capture == nil {
		opts.Capture = TreeCapture(a)
	}

	before, err := Capture(ctx, opts.Capture)
	if err != nil {
		logger.Warn("tap (%d, %d): cannot capture screen, tapping unverified: %v", x, y, err)
		if err := a.Tap(ctx, x, y); err != nil {
			return core.ErrActionExecutionFailed.WithCause(err)
		}
		return nil
	}

	points := []coords.Point{{X: x, Y: y}}
	for _, o := range opts.Offsets {
		points = append(points, coords.Point{X: x + o.X, Y: y + o.Y})
	}

	tapFailures := 0
	for _, p := range points {
		if err := a.Tap(ctx, p.X, p.Y); err != nil {
			tapFailures++
			if tapFailures > 1 {
				return core.ErrActionExecutionFailed.WithCause(err)
			}
			logger.Warn("tap (%d, %d) failed, retrying with offset: %v", p.X, p.Y, err)
			continue
		}
		if err := opts.Sleeper.Sleep(ctx, opts.Settle); err != nil {
			return err
		}
		after, err := Capture(ctx, opts.Capture)
		if err != nil {
			return core.ErrActionExecutionFailed.WithCause(err)
		}
		if Changed(before, after) {
			return nil
		}
		logger.Debug("tap (%d, %d) left screen %s unchanged", p.X, p.Y, before)
	}

	return core.ErrActionExecutionFailed.WithMessage(
		fmt.Sprintf("screen unchanged after tapping (%d, %d)", x, y))
}
