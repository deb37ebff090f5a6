package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for DecodeConfig
	_ "image/png"  // register decoder for DecodeConfig
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// analysis is the wire shape the prompts ask for. Every field is optional.
type analysis struct {
	Description      string              `json:"description"`
	ResponseText     string              `json:"response_text"`
	IsLoginScreen    bool                `json:"is_login_screen"`
	LoginStage       string              `json:"login_stage"`
	HasEmailField    bool                `json:"has_email_field"`
	HasPasswordField bool                `json:"has_password_field"`
	HasPopup         bool                `json:"has_popup"`
	PrimaryAction    string              `json:"primary_action"`
	Elements         []element           `json:"elements"`
	Decision         jsoniter.RawMessage `json:"decision"`
	Target           string              `json:"target"`
	Reason           string              `json:"reason"`
}

type element struct {
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Box         []int   `json:"box"`
}

// Parse turns a description-service reply into a Description. JSON replies,
// fenced or bare, are decoded; anything else is kept as free text with
// keyword-derived flags. Only an empty reply is an error.
func Parse(text string, imgW, imgH int) (*core.Description, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.ErrParse.WithMessage("empty reply from description service")
	}

	if obj, ok := jsonObject(text); ok {
		var a analysis
		if err := json.Unmarshal([]byte(obj), &a); err == nil {
			d := a.toDescription()
			d.ImageWidth, d.ImageHeight = imgW, imgH
			return d, nil
		}
	}

	d := fromText(text)
	d.ImageWidth, d.ImageHeight = imgW, imgH
	return d, nil
}

func (a *analysis) toDescription() *core.Description {
	d := &core.Description{
		Text:          a.Description,
		LoginStage:    a.LoginStage,
		PrimaryAction: a.PrimaryAction,
		Structured:    true,
		Flags: core.ScreenFlags{
			IsLoginScreen:    a.IsLoginScreen,
			HasEmailField:    a.HasEmailField,
			HasPasswordField: a.HasPasswordField,
			HasPopup:         a.HasPopup,
		},
	}
	if a.ResponseText != "" {
		d.Text = a.ResponseText
	}
	for _, e := range a.Elements {
		ve := core.VisionElement{
			Description: e.Description,
			Type:        e.Type,
			Text:        e.Text,
			X:           int(e.X + 0.5),
			Y:           int(e.Y + 0.5),
			Width:       int(e.Width + 0.5),
			Height:      int(e.Height + 0.5),
		}
		if len(e.Box) == 4 {
			ve.Box = e.Box
		}
		d.Elements = append(d.Elements, ve)
	}
	d.Decision = a.decision()
	return d
}

// decision accepts either {"decision": {"decision": ..., "target": ...}} or
// a flat {"decision": "...", "target": "..."}.
func (a *analysis) decision() *core.DecisionHint {
	if len(a.Decision) == 0 || string(a.Decision) == "null" {
		return nil
	}
	var flat string
	if err := json.Unmarshal(a.Decision, &flat); err == nil {
		if flat == "" {
			return nil
		}
		return &core.DecisionHint{Decision: strings.ToLower(flat), Target: a.Target, Reason: a.Reason}
	}
	var nested core.DecisionHint
	if err := json.Unmarshal(a.Decision, &nested); err != nil || nested.Decision == "" {
		return nil
	}
	nested.Decision = strings.ToLower(nested.Decision)
	return &nested
}

// jsonObject strips markdown fences and returns the outermost {...} span.
func jsonObject(text string) (string, bool) {
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		text = rest
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func fromText(text string) *core.Description {
	lower := strings.ToLower(text)
	isLogin := strings.Contains(lower, "login") || strings.Contains(lower, "log in") || strings.Contains(lower, "sign in")
	mentionsField := strings.Contains(lower, "field") || strings.Contains(lower, "enter")
	hasEmail := strings.Contains(lower, "email") && mentionsField
	hasPassword := strings.Contains(lower, "password") && mentionsField

	stage := "none"
	if isLogin {
		switch {
		case hasEmail && hasPassword:
			stage = "initial"
		case hasEmail:
			stage = "email_only"
		case hasPassword:
			stage = "password_only"
		default:
			stage = "other"
		}
	}

	return &core.Description{
		Text:       text,
		LoginStage: stage,
		Flags: core.ScreenFlags{
			IsLoginScreen:    isLogin,
			HasEmailField:    hasEmail,
			HasPasswordField: hasPassword,
			HasPopup:         strings.Contains(lower, "popup") || strings.Contains(lower, "dialog") || strings.Contains(lower, "alert"),
		},
	}
}

// ImageSize reads the pixel dimensions of a PNG or JPEG without decoding it.
func ImageSize(img []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0, core.ErrParse.WithMessage(fmt.Sprintf("unreadable screenshot (%d bytes)", len(img))).WithCause(err)
	}
	return cfg.Width, cfg.Height, nil
}
