package uitree

import (
	"fmt"
	"sort"
	"strings"
)

// InputFields returns the editable fields sorted top to bottom, then left to right.
func InputFields(elements []ClickableElement) []ClickableElement {
	var result []ClickableElement
	for _, e := range elements {
		if e.IsInput() {
			result = append(result, e)
		}
	}
	SortByY(result)
	return result
}

// NonInputs returns the elements that are not editable fields.
func NonInputs(elements []ClickableElement) []ClickableElement {
	var result []ClickableElement
	for _, e := range elements {
		if !e.IsInput() {
			result = append(result, e)
		}
	}
	return result
}

// SortByY sorts in place by vertical center, keeping document order for ties.
func SortByY(elements []ClickableElement) {
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].CenterY != elements[j].CenterY {
			return elements[i].CenterY < elements[j].CenterY
		}
		return elements[i].CenterX < elements[j].CenterX
	})
}

// Texts returns the non-empty labels of the nodes in document order.
func Texts(nodes []ClickableElement) []string {
	var result []string
	for _, n := range nodes {
		if n.Text != "" {
			result = append(result, n.Text)
		} else if n.ContentDesc != "" {
			result = append(result, n.ContentDesc)
		}
	}
	return result
}

// Summary renders a compact one-line-per-element listing, used in prompts and
// diagnostics. At most limit elements are listed; limit <= 0 lists all.
func Summary(elements []ClickableElement, limit int) string {
	var sb strings.Builder
	for i, e := range elements {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&sb, "... %d more\n", len(elements)-limit)
			break
		}
		kind := "button"
		if e.IsInput() {
			kind = "input"
		}
		fmt.Fprintf(&sb, "%s %q at (%d,%d) size %dx%d\n",
			kind, e.Label(), e.CenterX, e.CenterY, e.Bounds.Width, e.Bounds.Height)
	}
	return sb.String()
}
