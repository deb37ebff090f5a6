package locator

import (
	"math"
	"sort"
	"strings"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// inputRegion is a fraction of the screen where chat inputs usually sit.
type inputRegion struct {
	yMin, yMax, yTarget float64
}

const (
	inputXMin = 0.28
	inputXMax = 0.74
)

var (
	regionKeyboardOpen   = inputRegion{yMin: 0.50, yMax: 0.75, yTarget: 0.625}
	regionKeyboardClosed = inputRegion{yMin: 0.83, yMax: 1.00, yTarget: 0.917}
)

// FindInputField returns the lowest input element, which on chat screens is
// the composer. Without any input in the tree it searches the region where
// the composer normally sits, trying the other keyboard state second, and
// finally returns the region's target point.
func FindInputField(elements []uitree.ClickableElement, screen core.ScreenMetrics, keyboardOpen bool) (Match, bool) {
	inputs := uitree.InputFields(elements)
	if len(inputs) > 0 {
		return matchOf(inputs[len(inputs)-1], StrategyLowestInput), true
	}
	if screen.Width <= 0 || screen.Height <= 0 {
		return Match{}, false
	}

	primary, alternate := regionKeyboardClosed, regionKeyboardOpen
	if keyboardOpen {
		primary, alternate = regionKeyboardOpen, regionKeyboardClosed
	}
	for _, r := range []inputRegion{primary, alternate} {
		if m, ok := nearestInRegion(elements, screen, r); ok {
			return m, true
		}
	}

	return Match{
		X:        int(math.Round(float64(screen.Width) * (inputXMin + inputXMax) / 2)),
		Y:        int(math.Round(float64(screen.Height) * primary.yTarget)),
		Strategy: StrategyRegionFallback,
	}, true
}

func nearestInRegion(elements []uitree.ClickableElement, screen core.ScreenMetrics, r inputRegion) (Match, bool) {
	w, h := float64(screen.Width), float64(screen.Height)
	tx, ty := int(w/2), int(h*r.yTarget)

	best, bestDist := -1, math.MaxFloat64
	for i, e := range elements {
		x, y := float64(e.CenterX), float64(e.CenterY)
		if x < w*inputXMin || x > w*inputXMax || y < h*r.yMin || y > h*r.yMax {
			continue
		}
		if d := distance(e.CenterX, e.CenterY, tx, ty); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Match{}, false
	}
	return matchOf(elements[best], StrategyProximity), true
}

// Send button geometry relative to the input center.
const (
	sendMinOffsetX = 20
	sendMaxOffsetX = 450
	sendMaxOffsetY = 120
	sendMinSize    = 20
	sendMaxSize    = 180
)

var (
	arrowGlyphs  = []string{"↑", "➤", "➔"}
	sendKeywords = []string{"send", "submit", "arrow", "up"}
)

// FindSendButton returns the button that submits the given input field:
// a small control to its right on the same row. Arrow glyphs are preferred,
// then send-like labels, then the nearest candidate.
func FindSendButton(elements []uitree.ClickableElement, input uitree.ClickableElement) (Match, bool) {
	type candidate struct {
		e        uitree.ClickableElement
		arrow    bool
		keyword  bool
		distance float64
	}

	var candidates []candidate
	for _, e := range elements {
		if e.IsInput() {
			continue
		}
		dx := e.CenterX - input.CenterX
		dy := e.CenterY - input.CenterY
		if dx <= sendMinOffsetX || dx > sendMaxOffsetX || abs(dy) > sendMaxOffsetY {
			continue
		}
		if e.Width() < sendMinSize || e.Width() > sendMaxSize || e.Height() < sendMinSize || e.Height() > sendMaxSize {
			continue
		}
		c := candidate{e: e, distance: distance(e.CenterX, e.CenterY, input.CenterX, input.CenterY)}
		for _, g := range arrowGlyphs {
			if strings.Contains(e.Text, g) || strings.Contains(e.ContentDesc, g) {
				c.arrow = true
			}
		}
		c.keyword = containsAny(e, sendKeywords)
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return Match{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.arrow != b.arrow {
			return a.arrow
		}
		if a.keyword != b.keyword {
			return a.keyword
		}
		return a.distance < b.distance
	})
	return matchOf(candidates[0].e, StrategySendButton), true
}

var continueKeywords = []string{"continue", "next", "proceed", "ok", "confirm", "done"}

// Fallback geometry for a continue button with no recognizable label.
const (
	continueMinY      = 350
	continueMinWidth  = 80
	continueMinHeight = 35
)

// FindContinueButton returns a button that advances a multi-step screen.
// Labelled matches are taken lowest first. Resource ids only count for
// Button widgets. Without a matching label it takes the lowest, right-most
// sizable button.
func FindContinueButton(elements []uitree.ClickableElement) (Match, bool) {
	folded := foldAll(continueKeywords)
	var labelled []uitree.ClickableElement
	for _, e := range elements {
		if e.IsInput() {
			continue
		}
		values := []string{e.Text, e.ContentDesc, e.ChildText}
		if isButtonClass(e.Class) {
			values = append(values, resourceName(e.ResourceID))
		}
		if fieldsContain(values, folded) {
			labelled = append(labelled, e)
		}
	}
	if len(labelled) > 0 {
		sort.SliceStable(labelled, func(i, j int) bool {
			return labelled[i].CenterY > labelled[j].CenterY
		})
		return matchOf(labelled[0], StrategyContinue), true
	}

	var candidates []uitree.ClickableElement
	for _, e := range elements {
		if e.IsInput() || !e.Clickable {
			continue
		}
		if e.CenterY > continueMinY && e.Width() > continueMinWidth && e.Height() > continueMinHeight {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Match{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CenterY != candidates[j].CenterY {
			return candidates[i].CenterY > candidates[j].CenterY
		}
		return candidates[i].CenterX > candidates[j].CenterX
	})
	return matchOf(candidates[0], StrategyContinue), true
}

var (
	dismissKeywords = []string{"close", "cancel", "dismiss", "not now", "skip", "no thanks", "later"}
	dismissGlyphs   = []string{"x", "×", "✕"}
)

// FindDismiss returns a control that closes a popup or dialog.
func FindDismiss(elements []uitree.ClickableElement) (Match, bool) {
	if m, ok := ByKeyword(elements, dismissKeywords...); ok {
		return m, true
	}
	glyphs := foldAll(dismissGlyphs)
	for _, e := range elements {
		if !e.IsInput() && equalsAny(e, glyphs) {
			return matchOf(e, StrategyKeyword), true
		}
	}
	return Match{}, false
}

// isButtonClass matches Button widgets and their subclasses, not ImageButton.
func isButtonClass(class string) bool {
	short := class
	if i := strings.LastIndex(class, "."); i >= 0 {
		short = class[i+1:]
	}
	return strings.HasSuffix(short, "Button") && short != "ImageButton"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
