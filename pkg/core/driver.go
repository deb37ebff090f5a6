package core

import (
	"context"
	"time"
)

// Actuator executes device primitives. Implementations do not retry;
// retry policy belongs to the caller.
// Implementations: device.AndroidDevice (adb), mock.Device (tests).
type Actuator interface {
	// Screenshot captures the current screen as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	// DumpUITree returns the raw UI hierarchy XML
	DumpUITree(ctx context.Context) (string, error)

	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error

	// TypeText types into the focused field, optionally clearing it first
	TypeText(ctx context.Context, text string, clearFirst bool) error

	PressKey(ctx context.Context, code KeyCode) error
	Shell(ctx context.Context, cmd string) (string, error)
}

// MetricsProvider reports the physical screen geometry.
type MetricsProvider interface {
	Metrics(ctx context.Context) (ScreenMetrics, error)
}

// KeyboardProber reports whether the soft keyboard is currently shown.
type KeyboardProber interface {
	KeyboardShown(ctx context.Context) (bool, error)
}

// AppController launches and stops apps by package name.
type AppController interface {
	Launch(ctx context.Context, pkg string) error
	ForceStop(ctx context.Context, pkg string) error
}

// Describer produces a semantic description of a screenshot.
// Results are advisory: coordinates are approximate and in image space.
type Describer interface {
	Describe(ctx context.Context, image []byte, prompt string) (*Description, error)
}

// Speech is the user-facing input/output channel.
type Speech interface {
	// Listen waits up to timeout for the user to start speaking and returns
	// the recognized text, or "" if nothing was heard.
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error)
	Speak(ctx context.Context, text string) error
}

// KeyCode is an Android key event code
type KeyCode int

// Key codes used by the agent
const (
	KeyHome    KeyCode = 3
	KeyBack    KeyCode = 4
	KeyEnter   KeyCode = 66
	KeyDel     KeyCode = 67
	KeyMoveEnd KeyCode = 123
)

// ScreenMetrics describes the device screen in pixels
type ScreenMetrics struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	StatusBar int `json:"statusBar"` // Height of the status bar inset
}

// Description is the result of a description-service call
type Description struct {
	Text          string          `json:"description"`
	Elements      []VisionElement `json:"elements,omitempty"`
	Flags         ScreenFlags     `json:"flags"`
	LoginStage    string          `json:"loginStage,omitempty"`    // email, password, otp, sso
	PrimaryAction string          `json:"primaryAction,omitempty"` // Suggested next control
	Decision      *DecisionHint   `json:"decision,omitempty"`
	ImageWidth    int             `json:"imageWidth"`
	ImageHeight   int             `json:"imageHeight"`
	Structured    bool            `json:"structured"` // False when the reply was free text
}

// VisionElement is an element reported by the description service.
// X and Y are the element center in image space.
type VisionElement struct {
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Box         []int  `json:"box,omitempty"` // Optional [x1, y1, x2, y2]
}

// ScreenFlags are boolean observations about the screen
type ScreenFlags struct {
	IsLoginScreen    bool `json:"isLoginScreen"`
	HasEmailField    bool `json:"hasEmailField"`
	HasPasswordField bool `json:"hasPasswordField"`
	HasPopup         bool `json:"hasPopup"`
}

// DecisionHint is the service's suggestion for what to do next
type DecisionHint struct {
	Decision string `json:"decision"`
	Target   string `json:"target,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Area returns width*height, or 0 for degenerate bounds
func (b Bounds) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Overlaps reports whether two bounds share any area
func (b Bounds) Overlaps(o Bounds) bool {
	if b.Area() == 0 || o.Area() == 0 {
		return false
	}
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}
