package coords

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

var pixel7 = Frame{VisionW: 540, VisionH: 1200, DeviceW: 1080, DeviceH: 2400, StatusBar: 63}

func TestToDeviceSpace(t *testing.T) {
	tests := []struct {
		name   string
		vx, vy float64
		frame  Frame
		want   Point
	}{
		{"half scale", 270, 600, pixel7, Point{X: 540, Y: 1263}},
		{"identity", 500, 500, Frame{VisionW: 1080, VisionH: 2400, DeviceW: 1080, DeviceH: 2400}, Point{X: 500, Y: 500}},
		{"rounding", 101, 333, Frame{VisionW: 720, VisionH: 1600, DeviceW: 1080, DeviceH: 2340, StatusBar: 0}, Point{X: 152, Y: 487}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDeviceSpace(tt.vx, tt.vy, tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToDeviceSpace_RoundTrip(t *testing.T) {
	frames := []Frame{
		pixel7,
		{VisionW: 720, VisionH: 1600, DeviceW: 1080, DeviceH: 2340, StatusBar: 80},
		{VisionW: 1024, VisionH: 2276, DeviceW: 1440, DeviceH: 3200, StatusBar: 120},
	}

	for _, f := range frames {
		for vx := 0; vx <= f.VisionW; vx += 37 {
			for vy := 0; vy <= f.VisionH-1; vy += 41 {
				p, err := ToDeviceSpace(float64(vx), float64(vy), f)
				if err != nil {
					// Only the status bar margin or the bottom edge may reject an in-image point
					assert.ErrorIs(t, err, core.ErrCoordinateInvalid)
					continue
				}
				rx, ry, err := ToVisionSpace(p, f)
				require.NoError(t, err)
				assert.LessOrEqual(t, math.Abs(rx-float64(vx)), 1.0, "x round trip for %+v at (%d,%d)", f, vx, vy)
				assert.LessOrEqual(t, math.Abs(ry-float64(vy)), 1.0, "y round trip for %+v at (%d,%d)", f, vx, vy)
			}
		}
	}
}

func TestToDeviceSpace_RejectsStatusBarMargin(t *testing.T) {
	f := Frame{VisionW: 1080, VisionH: 2400, DeviceW: 1080, DeviceH: 2400}
	for x := 0; x <= 1080; x += 120 {
		for _, y := range []float64{0, 50, StatusBarMargin - 1} {
			_, err := ToDeviceSpace(float64(x), y, f)
			assert.ErrorIs(t, err, core.ErrCoordinateInvalid, "x=%d y=%v should be rejected", x, y)
		}
	}

	p, err := ToDeviceSpace(10, StatusBarMargin, f)
	require.NoError(t, err)
	assert.Equal(t, StatusBarMargin, p.Y)
}

func TestToDeviceSpace_RejectsOffScreen(t *testing.T) {
	tests := []struct {
		name   string
		vx, vy float64
	}{
		{"right", 600, 500},
		{"left", -1, 500},
		{"below", 100, 1300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToDeviceSpace(tt.vx, tt.vy, pixel7)
			assert.ErrorIs(t, err, core.ErrCoordinateInvalid)
		})
	}
}

func TestToDeviceSpace_InvalidFrame(t *testing.T) {
	_, err := ToDeviceSpace(10, 10, Frame{DeviceW: 1080, DeviceH: 2400})
	assert.ErrorIs(t, err, core.ErrCoordinateInvalid)

	_, _, err = ToVisionSpace(Point{X: 1, Y: 1}, Frame{})
	assert.ErrorIs(t, err, core.ErrCoordinateInvalid)
}

func TestBoxToDeviceSpace(t *testing.T) {
	f := Frame{VisionW: 540, VisionH: 1200, DeviceW: 1080, DeviceH: 2400, StatusBar: 50}

	p, err := BoxFromCorners(100, 200, 300, 400, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 400, Y: 650}, p)

	p, err = BoxToDeviceSpace(100, 200, 200, 200, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 400, Y: 650}, p)

	// No size: treated as a point
	p, err = BoxToDeviceSpace(100, 200, 0, 0, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 200, Y: 450}, p)
}

func TestElementToDeviceSpace(t *testing.T) {
	f := Frame{VisionW: 540, VisionH: 1200, DeviceW: 1080, DeviceH: 2400}

	withBox := core.VisionElement{X: 10, Y: 10, Box: []int{100, 200, 300, 400}}
	p, err := ElementToDeviceSpace(withBox, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 400, Y: 600}, p, "box center should win over the point estimate")

	pointOnly := core.VisionElement{X: 270, Y: 600}
	p, err = ElementToDeviceSpace(pointOnly, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 540, Y: 1200}, p)

	badBox := core.VisionElement{X: 270, Y: 600, Box: []int{300, 400, 100, 200}}
	p, err = ElementToDeviceSpace(badBox, f)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 540, Y: 1200}, p)
}

func TestRegionToDeviceSpace(t *testing.T) {
	b, err := RegionToDeviceSpace(270, 600, 100, 50, pixel7)
	require.NoError(t, err)
	assert.Equal(t, core.Bounds{X: 440, Y: 1213, Width: 200, Height: 100}, b)
}
