package locator

import (
	"math"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// DefaultRadius is the proximity search radius in device pixels.
const DefaultRadius = 100

// Proximity snaps a device-space region to a real element. Elements whose
// bounds overlap the region win; otherwise the nearest element center within
// radius. Ties go to the smaller distance, then document order.
// A region without size is treated as a point.
func Proximity(elements []uitree.ClickableElement, region core.Bounds, radius int) (Match, bool) {
	if radius <= 0 {
		radius = DefaultRadius
	}
	cx, cy := region.Center()

	overlaps := func(e uitree.ClickableElement) bool {
		if region.Area() == 0 {
			return e.Bounds.Contains(cx, cy)
		}
		return e.Bounds.Overlaps(region)
	}

	best, bestDist := -1, math.MaxFloat64
	for i, e := range elements {
		if !overlaps(e) {
			continue
		}
		if d := distance(e.CenterX, e.CenterY, cx, cy); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		return matchOf(elements[best], StrategyProximity), true
	}

	for i, e := range elements {
		d := distance(e.CenterX, e.CenterY, cx, cy)
		if d <= float64(radius) && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		return matchOf(elements[best], StrategyProximity), true
	}
	return Match{}, false
}

func distance(x1, y1, x2, y2 int) float64 {
	return math.Hypot(float64(x1-x2), float64(y1-y2))
}
