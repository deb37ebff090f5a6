package recovery

import (
	"context"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// Fingerprint is a digest of a screen capture. Two captures of an unchanged
// screen have equal fingerprints.
type Fingerprint [32]byte

// Hash fingerprints a raw screenshot or UI dump.
func Hash(data []byte) Fingerprint {
	return blake3.Sum256(data)
}

// String returns a short hex prefix for logs.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:6])
}

// Changed reports whether two fingerprints differ.
func Changed(a, b Fingerprint) bool {
	return a != b
}

// CaptureFunc returns the raw bytes to fingerprint.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// TreeCapture fingerprints the UI dump. It ignores clock ticks and cursor
// blinks that would make every screenshot differ.
func TreeCapture(a core.Actuator) CaptureFunc {
	return func(ctx context.Context) ([]byte, error) {
		s, err := a.DumpUITree(ctx)
		return []byte(s), err
	}
}

// ScreenshotCapture fingerprints the screenshot.
func ScreenshotCapture(a core.Actuator) CaptureFunc {
	return a.Screenshot
}

// Capture runs fn and hashes its result.
func Capture(ctx context.Context, fn CaptureFunc) (Fingerprint, error) {
	data, err := fn(ctx)
	if err != nil {
		return Fingerprint{}, err
	}
	return Hash(data), nil
}

// WaitForChange captures repeatedly under p until the fingerprint differs
// from before, and returns the new fingerprint.
func WaitForChange(ctx context.Context, capture CaptureFunc, before Fingerprint, p RetryPolicy) (Fingerprint, error) {
	var after Fingerprint
	err := Retry(ctx, p, func(ctx context.Context) (bool, error) {
		fp, err := Capture(ctx, capture)
		if err != nil {
			return false, err
		}
		after = fp
		return Changed(before, fp), nil
	})
	return after, err
}
