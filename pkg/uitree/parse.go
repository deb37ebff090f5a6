package uitree

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// maxChildTexts bounds how many descendant labels a container inherits.
const maxChildTexts = 3

// Parse parses a uiautomator dump into the clickable elements of the screen,
// in document order. Nodes with malformed attributes or zero area are
// skipped; only an empty or unreadable document is an error.
func Parse(raw string) ([]ClickableElement, error) {
	nodes, err := ParseNodes(raw)
	if err != nil {
		return nil, err
	}

	result := make([]ClickableElement, 0, len(nodes))
	for _, n := range nodes {
		if n.Clickable || (n.Focusable && n.IsInput()) {
			result = append(result, n)
		}
	}
	return result, nil
}

// ParseNodes returns every node with a non-empty rectangle, clickable or not.
// Text-only fallbacks (reading a chat reply, describing a screen without the
// description service) use it.
func ParseNodes(raw string) ([]ClickableElement, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.ErrParse.WithMessage("UI tree dump is empty")
	}
	// adb prints "UI hierchary dumped to: ..." ahead of the XML on some builds
	if i := strings.Index(raw, "<"); i > 0 {
		raw = raw[i:]
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	readErr := doc.ReadFromString(raw)

	root := doc.Root()
	if root == nil || root.Tag != "hierarchy" {
		err := core.ErrParse.WithMessage("invalid UI tree dump: no hierarchy element found")
		if readErr != nil {
			err = err.WithCause(readErr)
		}
		return nil, err
	}
	// A truncated dump still yields the nodes read before the cut.

	p := &parser{}
	for _, child := range root.ChildElements() {
		p.walk(child, 0)
	}
	return p.out, nil
}

type parser struct {
	out []ClickableElement
}

// walk appends el and its subtree in pre-order and returns the labels found
// in the subtree, so containers can inherit the text of their children.
func (p *parser) walk(el *etree.Element, depth int) []string {
	pos := -1
	if elem, ok := elementFrom(el, depth); ok {
		elem.Index = len(p.out)
		p.out = append(p.out, elem)
		pos = len(p.out) - 1
	}

	var texts []string
	for _, child := range el.ChildElements() {
		texts = append(texts, p.walk(child, depth+1)...)
	}
	if len(texts) > maxChildTexts {
		texts = texts[:maxChildTexts]
	}

	if pos >= 0 && p.out[pos].Text == "" && p.out[pos].ContentDesc == "" {
		p.out[pos].ChildText = strings.Join(texts, " ")
	}

	own := el.SelectAttrValue("text", "")
	if own == "" {
		own = el.SelectAttrValue("content-desc", "")
	}
	if own != "" {
		return append([]string{own}, texts...)
	}
	return texts
}

// elementFrom converts one node. Missing attributes default to empty values;
// nodes without a usable rectangle are rejected.
func elementFrom(el *etree.Element, depth int) (ClickableElement, bool) {
	b, ok := parseBounds(el.SelectAttrValue("bounds", ""))
	if !ok || b.Area() == 0 {
		return ClickableElement{}, false
	}

	elem := newElement(b)
	elem.Depth = depth
	elem.Class = el.Tag // uiautomator class-named tags
	for _, attr := range el.Attr {
		switch attr.Key {
		case "class":
			elem.Class = attr.Value
		case "text":
			elem.Text = attr.Value
		case "content-desc":
			elem.ContentDesc = attr.Value
		case "resource-id":
			elem.ResourceID = attr.Value
		case "hint":
			elem.Hint = attr.Value
		case "clickable":
			elem.Clickable = attr.Value == "true"
		case "focusable":
			elem.Focusable = attr.Value == "true"
		case "enabled":
			elem.Enabled = attr.Value == "true"
		case "focused":
			elem.Focused = attr.Value == "true"
		case "scrollable":
			elem.Scrollable = attr.Value == "true"
		}
	}
	return elem, true
}

// parseBounds parses Android bounds string "[x1,y1][x2,y2]" to Bounds.
func parseBounds(s string) (core.Bounds, bool) {
	// Format: [x1,y1][x2,y2]
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}, false
	}

	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return core.Bounds{}, false
		}
		v[i] = n
	}

	return core.Bounds{
		X:      v[0],
		Y:      v[1],
		Width:  v[2] - v[0],
		Height: v[3] - v[1],
	}, true
}
