// Package uitree builds the structural element index from an Android
// uiautomator hierarchy dump.
package uitree

import (
	"strings"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// ClickableElement is one tappable node of the UI tree.
// Elements are produced fresh on every dump; bounds go stale after any tap.
type ClickableElement struct {
	Bounds      core.Bounds
	CenterX     int
	CenterY     int
	Class       string
	Text        string
	ContentDesc string
	ResourceID  string
	Hint        string
	ChildText   string // Text of descendants, for containers whose label is a child node
	Clickable   bool
	Focusable   bool
	Enabled     bool
	Focused     bool
	Scrollable  bool
	Depth       int
	Index       int // Document order
}

// inputMarkers identify editable fields by class or resource-id.
var inputMarkers = []string{
	"edittext", "textfield", "textinput", "edit", "input",
	"autocomplete", "searchview", "editabletext",
}

// IsInput reports whether the element is an editable text field.
func (e ClickableElement) IsInput() bool {
	class := strings.ToLower(e.Class)
	for _, m := range inputMarkers {
		if strings.Contains(class, m) {
			return true
		}
	}
	// Compose and React Native fields often use a generic View class
	id := strings.ToLower(e.ResourceID)
	if id == "" {
		return false
	}
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	for _, m := range []string{"edittext", "edit_text", "input", "textfield", "text_field"} {
		if strings.Contains(id, m) {
			return true
		}
	}
	return false
}

// Label returns the most descriptive text available for the element.
func (e ClickableElement) Label() string {
	switch {
	case e.Text != "":
		return e.Text
	case e.ContentDesc != "":
		return e.ContentDesc
	case e.ChildText != "":
		return e.ChildText
	case e.Hint != "":
		return e.Hint
	}
	if i := strings.LastIndex(e.ResourceID, "/"); i >= 0 {
		return e.ResourceID[i+1:]
	}
	return e.ResourceID
}

// Width and Height are shorthands for the bounds size.
func (e ClickableElement) Width() int  { return e.Bounds.Width }
func (e ClickableElement) Height() int { return e.Bounds.Height }

func newElement(b core.Bounds) ClickableElement {
	cx, cy := b.Center()
	return ClickableElement{Bounds: b, CenterX: cx, CenterY: cy}
}
