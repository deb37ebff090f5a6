package uitree

import (
	"errors"
	"strings"
	"testing"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

const sampleHierarchy = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" bounds="[0,0][1080,2400]" clickable="false" enabled="true">
    <node index="0" text="Log in" resource-id="com.app:id/login_btn" class="android.widget.Button" bounds="[100,1800][980,1920]" clickable="true" enabled="true"/>
    <node index="1" text="" resource-id="com.app:id/google" class="android.view.ViewGroup" bounds="[100,1600][980,1720]" clickable="true" enabled="true">
      <node index="0" text="Continue with Google" class="android.widget.TextView" bounds="[300,1630][780,1690]" clickable="false"/>
    </node>
    <node index="2" text="" resource-id="com.app:id/email" class="android.widget.EditText" bounds="[50,470][1030,590]" clickable="true" focusable="true" focused="true"/>
    <node index="3" text="Ghost" class="android.widget.Button" bounds="[0,0][0,0]" clickable="true"/>
    <node index="4" text="Broken" class="android.widget.Button" bounds="garbage" clickable="true"/>
    <node index="5" text="" content-desc="Close" class="android.widget.ImageView" bounds="[980,120][1060,200]" clickable="true"/>
  </node>
</hierarchy>`

func TestParse(t *testing.T) {
	elements, err := Parse(sampleHierarchy)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Log in, Google row, email field, Close. Ghost and Broken are skipped.
	if len(elements) != 4 {
		t.Fatalf("expected 4 clickable elements, got %d", len(elements))
	}

	login := elements[0]
	if login.Text != "Log in" {
		t.Errorf("first element text = %q, want 'Log in'", login.Text)
	}
	if login.ResourceID != "com.app:id/login_btn" {
		t.Errorf("expected resource-id com.app:id/login_btn, got %s", login.ResourceID)
	}
	if login.CenterX != 540 || login.CenterY != 1860 {
		t.Errorf("center = (%d, %d), want (540, 1860)", login.CenterX, login.CenterY)
	}
	if login.Class != "android.widget.Button" {
		t.Errorf("class = %q, want android.widget.Button", login.Class)
	}

	google := elements[1]
	if google.ChildText != "Continue with Google" {
		t.Errorf("container ChildText = %q, want 'Continue with Google'", google.ChildText)
	}
	if google.Label() != "Continue with Google" {
		t.Errorf("container Label() = %q", google.Label())
	}

	email := elements[2]
	if !email.IsInput() {
		t.Error("expected EditText to be an input")
	}
	if !email.Focused {
		t.Error("expected email field to be focused")
	}

	closeBtn := elements[3]
	if closeBtn.ContentDesc != "Close" || closeBtn.Label() != "Close" {
		t.Errorf("close button = %+v", closeBtn)
	}

	for i := 1; i < len(elements); i++ {
		if elements[i].Index <= elements[i-1].Index {
			t.Errorf("elements not in document order at %d", i)
		}
	}
}

func TestParseNodes(t *testing.T) {
	nodes, err := ParseNodes(sampleHierarchy)
	if err != nil {
		t.Fatalf("ParseNodes failed: %v", err)
	}

	// Root, Log in, Google row, its label, email, Close
	if len(nodes) != 6 {
		t.Errorf("expected 6 nodes, got %d", len(nodes))
	}
	if nodes[0].Depth != 0 || nodes[3].Depth != 2 {
		t.Errorf("unexpected depths: root=%d label=%d", nodes[0].Depth, nodes[3].Depth)
	}

	texts := Texts(nodes)
	want := []string{"Log in", "Continue with Google", "Close"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("Texts() = %v, want %v", texts, want)
	}
}

func TestParse_EmptyDump(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		_, err := Parse(raw)
		if err == nil {
			t.Fatalf("Parse(%q) expected error", raw)
		}
		if !errors.Is(err, core.ErrParse) {
			t.Errorf("Parse(%q) error = %v, want ErrParse", raw, err)
		}
	}
}

func TestParse_InvalidXML(t *testing.T) {
	_, err := Parse("not xml")
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected ErrParse for invalid XML, got %v", err)
	}
}

func TestParse_NoHierarchy(t *testing.T) {
	_, err := Parse(`<root><node bounds="[0,0][10,10]" clickable="true"/></root>`)
	if !errors.Is(err, core.ErrParse) {
		t.Errorf("expected ErrParse without hierarchy root, got %v", err)
	}
}

func TestParse_DumpPrefix(t *testing.T) {
	raw := "UI hierchary dumped to: /dev/tty\n" + sampleHierarchy
	elements, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(elements) != 4 {
		t.Errorf("expected 4 elements, got %d", len(elements))
	}
}

func TestParse_MissingAttributes(t *testing.T) {
	raw := `<hierarchy><node clickable="true" bounds="[0,200][400,300]"/></hierarchy>`
	elements, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	e := elements[0]
	if e.Text != "" || e.ContentDesc != "" || e.ResourceID != "" {
		t.Errorf("expected empty defaults, got %+v", e)
	}
	if e.Class != "node" {
		t.Errorf("class should default to the tag name, got %q", e.Class)
	}
}

func TestParseBounds(t *testing.T) {
	tests := []struct {
		input    string
		expected core.Bounds
		ok       bool
	}{
		{"[0,0][100,200]", core.Bounds{X: 0, Y: 0, Width: 100, Height: 200}, true},
		{"[50,100][150,300]", core.Bounds{X: 50, Y: 100, Width: 100, Height: 200}, true},
		{"invalid", core.Bounds{}, false},
		{"[0,0]", core.Bounds{}, false},
		{"[0,0][10,x]", core.Bounds{}, false},
		{"", core.Bounds{}, false},
	}

	for _, tt := range tests {
		got, ok := parseBounds(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("parseBounds(%q) = %+v, %v, want %+v, %v", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}
