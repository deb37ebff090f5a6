// Package mock provides scripted collaborators for testing without a device,
// a description service or a microphone.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// Device is a scripted core.Actuator. The current screen is Tree; hooks run
// after each successful primitive and may change it with SetTree.
type Device struct {
	mu sync.Mutex

	tree     string
	image    []byte
	Screen   core.ScreenMetrics
	Keyboard bool

	// TapErrors are returned by successive Tap calls; nil entries succeed.
	TapErrors []error
	LaunchErr error
	DumpErr   error

	OnTap    func(x, y int)
	OnType   func(text string)
	OnKey    func(code core.KeyCode)
	OnLaunch func(pkg string)

	calls []string
}

// NewDevice creates a device showing tree on a 1080x2400 screen.
func NewDevice(tree string) *Device {
	return &Device{
		tree:   tree,
		Screen: core.ScreenMetrics{Width: 1080, Height: 2400, StatusBar: 63},
	}
}

// SetTree replaces the current UI dump.
func (d *Device) SetTree(tree string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
}

// Tree returns the current UI dump.
func (d *Device) Tree() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree
}

// Calls returns the primitives executed so far, e.g. "tap 540 1200".
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Count returns how many recorded calls start with prefix.
func (d *Device) Count(prefix string) int {
	n := 0
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (d *Device) record(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Screenshot returns a blank PNG at half the screen resolution, the way a
// downscaled capture reaches the description service.
func (d *Device) Screenshot(ctx context.Context) ([]byte, error) {
	d.record("screenshot")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.image == nil {
		var buf bytes.Buffer
		img := image.NewGray(image.Rect(0, 0, d.Screen.Width/2, d.Screen.Height/2))
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		d.image = buf.Bytes()
	}
	return d.image, nil
}

func (d *Device) DumpUITree(ctx context.Context) (string, error) {
	d.record("dump")
	if d.DumpErr != nil {
		return "", d.DumpErr
	}
	return d.Tree(), nil
}

func (d *Device) Tap(ctx context.Context, x, y int) error {
	d.record("tap %d %d", x, y)
	d.mu.Lock()
	var err error
	if len(d.TapErrors) > 0 {
		err, d.TapErrors = d.TapErrors[0], d.TapErrors[1:]
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if d.OnTap != nil {
		d.OnTap(x, y)
	}
	return nil
}

func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	d.record("swipe %d %d %d %d", x1, y1, x2, y2)
	return nil
}

func (d *Device) TypeText(ctx context.Context, text string, clearFirst bool) error {
	d.record("type %s", text)
	if d.OnType != nil {
		d.OnType(text)
	}
	return nil
}

func (d *Device) PressKey(ctx context.Context, code core.KeyCode) error {
	d.record("key %d", code)
	if d.OnKey != nil {
		d.OnKey(code)
	}
	return nil
}

func (d *Device) Shell(ctx context.Context, cmd string) (string, error) {
	d.record("shell %s", cmd)
	return "", nil
}

func (d *Device) Metrics(ctx context.Context) (core.ScreenMetrics, error) {
	return d.Screen, nil
}

func (d *Device) KeyboardShown(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Keyboard, nil
}

func (d *Device) Launch(ctx context.Context, pkg string) error {
	d.record("launch %s", pkg)
	if d.LaunchErr != nil {
		return d.LaunchErr
	}
	if d.OnLaunch != nil {
		d.OnLaunch(pkg)
	}
	return nil
}

func (d *Device) ForceStop(ctx context.Context, pkg string) error {
	d.record("stop %s", pkg)
	return nil
}

// Describer returns scripted descriptions in order, then Default.
type Describer struct {
	mu        sync.Mutex
	Responses []*core.Description
	Default   *core.Description
	Err       error
	prompts   []string
}

func (v *Describer) Describe(ctx context.Context, img []byte, prompt string) (*core.Description, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prompts = append(v.prompts, prompt)
	if v.Err != nil {
		return nil, v.Err
	}
	if len(v.Responses) > 0 {
		d := v.Responses[0]
		v.Responses = v.Responses[1:]
		return d, nil
	}
	if v.Default != nil {
		return v.Default, nil
	}
	return &core.Description{Text: "mock screen", ImageWidth: 540, ImageHeight: 1200}, nil
}

// Prompts returns the prompts received so far.
func (v *Describer) Prompts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.prompts...)
}

// Speech replays Inputs to Listen and records what was spoken.
type Speech struct {
	mu     sync.Mutex
	Inputs []string
	spoken []string
}

func (s *Speech) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Inputs) == 0 {
		return "", nil
	}
	in := s.Inputs[0]
	s.Inputs = s.Inputs[1:]
	return in, nil
}

func (s *Speech) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

// Spoken returns everything passed to Speak.
func (s *Speech) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Sleeper records requested waits and returns immediately.
type Sleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Slept returns the recorded waits.
func (s *Sleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// Timer fires immediately and records each requested duration. It satisfies
// the backoff Timer interface.
type Timer struct {
	mu        sync.Mutex
	durations []time.Duration
	c         chan time.Time
}

func NewTimer() *Timer {
	return &Timer{c: make(chan time.Time, 1)}
}

func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	t.durations = append(t.durations, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *Timer) Stop() {}

func (t *Timer) C() <-chan time.Time { return t.c }

// Durations returns the recorded waits.
func (t *Timer) Durations() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.durations...)
}
