package locator

import (
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// Size thresholds for a primary action button, such as the large buttons of
// a bottom sheet.
const (
	MinButtonWidth     = 300
	MinButtonHeight    = 80
	DefaultBelowMargin = 50
)

// largeButtons returns non-input elements above the size thresholds, sorted
// top to bottom.
func largeButtons(elements []uitree.ClickableElement) []uitree.ClickableElement {
	var result []uitree.ClickableElement
	for _, e := range elements {
		if e.IsInput() {
			continue
		}
		if e.Width() > MinButtonWidth && e.Height() > MinButtonHeight {
			result = append(result, e)
		}
	}
	uitree.SortByY(result)
	return result
}

// BottomSheet returns the topmost large button. On sign-in sheets that is the
// primary provider button, regardless of the label's language.
func BottomSheet(elements []uitree.ClickableElement) (Match, bool) {
	buttons := largeButtons(elements)
	if len(buttons) == 0 {
		return Match{}, false
	}
	return matchOf(buttons[0], StrategyBottomSheet), true
}

// FindBelow returns the first large button whose center is more than margin
// pixels below refY. It finds the submit button under a just-filled field.
func FindBelow(elements []uitree.ClickableElement, refY, margin int) (Match, bool) {
	for _, e := range largeButtons(elements) {
		if e.CenterY > refY+margin {
			return matchOf(e, StrategyBelow), true
		}
	}
	return Match{}, false
}
