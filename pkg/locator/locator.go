// Package locator finds tappable elements in the structural index without
// trusting vision coordinates directly.
//
// Strategies are tried in a fixed order: keyword, structural, proximity.
// Every returned point is the center of a real element, except for the
// documented input-region fallback of FindInputField.
package locator

import (
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// Strategy identifies how a match was found.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyKeyword
	StrategyBottomSheet
	StrategyBelow
	StrategyProximity
	StrategyLowestInput
	StrategyRegionFallback
	StrategySendButton
	StrategyContinue
)

func (s Strategy) String() string {
	switch s {
	case StrategyKeyword:
		return "keyword"
	case StrategyBottomSheet:
		return "bottom_sheet"
	case StrategyBelow:
		return "below"
	case StrategyProximity:
		return "proximity"
	case StrategyLowestInput:
		return "lowest_input"
	case StrategyRegionFallback:
		return "region_fallback"
	case StrategySendButton:
		return "send_button"
	case StrategyContinue:
		return "continue"
	default:
		return "none"
	}
}

// Match is a located tap target in device space.
type Match struct {
	X        int
	Y        int
	Element  uitree.ClickableElement // Zero for StrategyRegionFallback
	Strategy Strategy
}

func matchOf(e uitree.ClickableElement, s Strategy) Match {
	return Match{X: e.CenterX, Y: e.CenterY, Element: e, Strategy: s}
}

// Query describes what Locate should look for.
type Query struct {
	Keywords []string

	// Structural search. BelowY > 0 selects FindBelow, otherwise BottomSheet.
	// NoStructural skips the step for targets that must match by name.
	BelowY       int
	BelowMargin  int
	NoStructural bool

	// Region is a device-space hint for proximity matching, usually mapped
	// from a vision estimate. Nil skips the step.
	Region *core.Bounds
	Radius int
}

// Locate runs keyword, structural and proximity matching in order and
// returns the first hit.
func Locate(elements []uitree.ClickableElement, q Query) (Match, bool) {
	if len(q.Keywords) > 0 {
		if m, ok := ByKeyword(elements, q.Keywords...); ok {
			return m, true
		}
	}

	if !q.NoStructural {
		if q.BelowY > 0 {
			margin := q.BelowMargin
			if margin <= 0 {
				margin = DefaultBelowMargin
			}
			if m, ok := FindBelow(elements, q.BelowY, margin); ok {
				return m, true
			}
		} else if m, ok := BottomSheet(elements); ok {
			return m, true
		}
	}

	if q.Region != nil {
		if m, ok := Proximity(elements, *q.Region, q.Radius); ok {
			return m, true
		}
	}

	return Match{}, false
}
