// Package coords maps points between the description service's image space
// and device pixel space.
//
// The screenshot the description service sees is arbitrarily downscaled and
// excludes the status bar, so every vision-space point is scaled per axis and
// shifted down by the status bar height before it can be tapped.
package coords

import (
	"fmt"
	"math"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// StatusBarMargin is the minimum device Y accepted for a tap. Anything above
// it lands on the status bar or notification shade.
const StatusBarMargin = 100

// Frame describes both coordinate spaces for one observation.
type Frame struct {
	VisionW   int // Width of the image the description service saw
	VisionH   int
	DeviceW   int // Physical screen width in pixels
	DeviceH   int
	StatusBar int // Status bar height in device pixels
}

// Point is a device-space coordinate.
type Point struct {
	X int
	Y int
}

// Scale returns the per-axis vision-to-device factors.
func (f Frame) Scale() (float64, float64) {
	return float64(f.DeviceW) / float64(f.VisionW), float64(f.DeviceH) / float64(f.VisionH)
}

func (f Frame) valid() error {
	if f.VisionW <= 0 || f.VisionH <= 0 || f.DeviceW <= 0 || f.DeviceH <= 0 {
		return core.ErrCoordinateInvalid.WithMessage(
			fmt.Sprintf("invalid frame: vision %dx%d, device %dx%d", f.VisionW, f.VisionH, f.DeviceW, f.DeviceH))
	}
	return nil
}

// ToDeviceSpace maps a vision-space point to device space and validates it.
// Invalid points are rejected, never clamped; callers treat them as not found.
func ToDeviceSpace(vx, vy float64, f Frame) (Point, error) {
	if err := f.valid(); err != nil {
		return Point{}, err
	}
	sx, sy := f.Scale()
	p := Point{
		X: int(math.Round(vx * sx)),
		Y: int(math.Round(vy*sy)) + f.StatusBar,
	}
	if err := Validate(p, f.DeviceW, f.DeviceH); err != nil {
		return Point{}, err
	}
	return p, nil
}

// BoxToDeviceSpace maps a vision-space box given by its top-left corner and
// size. The center is taken in vision space before transforming; a box
// without a size degrades to the point form.
func BoxToDeviceSpace(left, top, w, h float64, f Frame) (Point, error) {
	if w <= 0 || h <= 0 {
		return ToDeviceSpace(left, top, f)
	}
	return ToDeviceSpace(left+w/2, top+h/2, f)
}

// BoxFromCorners maps a vision-space box given by its corners.
func BoxFromCorners(x1, y1, x2, y2 float64, f Frame) (Point, error) {
	return BoxToDeviceSpace(x1, y1, x2-x1, y2-y1, f)
}

// ElementToDeviceSpace maps a description-service element, preferring its
// bounding box over the single-point center estimate.
func ElementToDeviceSpace(e core.VisionElement, f Frame) (Point, error) {
	if len(e.Box) == 4 && e.Box[2] > e.Box[0] && e.Box[3] > e.Box[1] {
		return BoxFromCorners(float64(e.Box[0]), float64(e.Box[1]), float64(e.Box[2]), float64(e.Box[3]), f)
	}
	return ToDeviceSpace(float64(e.X), float64(e.Y), f)
}

// ToVisionSpace is the inverse of ToDeviceSpace. It does not validate.
func ToVisionSpace(p Point, f Frame) (float64, float64, error) {
	if err := f.valid(); err != nil {
		return 0, 0, err
	}
	sx, sy := f.Scale()
	return float64(p.X) / sx, float64(p.Y-f.StatusBar) / sy, nil
}

// RegionToDeviceSpace maps a vision-space region given by its center and
// size to a device-space rectangle. Used to seed proximity searches.
func RegionToDeviceSpace(cx, cy, w, h float64, f Frame) (core.Bounds, error) {
	center, err := ToDeviceSpace(cx, cy, f)
	if err != nil {
		return core.Bounds{}, err
	}
	sx, sy := f.Scale()
	dw := int(math.Round(w * sx))
	dh := int(math.Round(h * sy))
	return core.Bounds{X: center.X - dw/2, Y: center.Y - dh/2, Width: dw, Height: dh}, nil
}

// Validate rejects points inside the status bar margin or off screen.
func Validate(p Point, deviceW, deviceH int) error {
	if p.Y < StatusBarMargin {
		return core.ErrCoordinateInvalid.WithMessage(
			fmt.Sprintf("y=%d is inside the status bar margin (%d)", p.Y, StatusBarMargin))
	}
	if p.X < 0 || p.X > deviceW || p.Y > deviceH {
		return core.ErrCoordinateInvalid.WithMessage(
			fmt.Sprintf("(%d, %d) is outside the %dx%d screen", p.X, p.Y, deviceW, deviceH))
	}
	return nil
}
