package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/locator"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
	"github.com/devicelab-dev/droidpilot/pkg/vision"
)

// DecisionKind is what to do after an app has opened.
type DecisionKind int

const (
	DecisionDone DecisionKind = iota
	DecisionAutoProceed
	DecisionAskConfirmation
	DecisionExecuteQuery
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAutoProceed:
		return vision.DecisionAutoProceed
	case DecisionAskConfirmation:
		return vision.DecisionAskConfirmation
	case DecisionExecuteQuery:
		return vision.DecisionExecuteQuery
	default:
		return vision.DecisionDone
	}
}

// Decision is a DecisionProvider's answer.
type Decision struct {
	Kind   DecisionKind
	Target *locator.Match // Control to tap, for AutoProceed and AskConfirmation
	Prompt string         // Question for AskConfirmation
	Login  bool           // AskConfirmation is about signing in
	Reason string
}

// DecisionInput is what a DecisionProvider sees.
type DecisionInput struct {
	Intent       string
	Action       ParsedAction
	Snapshot     *ScreenSnapshot
	Elements     []uitree.ClickableElement
	PendingQuery string
	KeyboardOpen bool
	Proceeded    []string // Onboarding labels already tapped in this task
}

// DecisionProvider decides the next step after an app has opened.
type DecisionProvider interface {
	Decide(ctx context.Context, in DecisionInput) (Decision, error)
}

const loginPrompt = "I see a login screen. Do you want me to sign in?"

var (
	// Labels of harmless onboarding controls that may be tapped without
	// asking. A control's whole label must be one of these.
	proceedLabels = []string{
		"continue", "next", "get started", "let's go", "got it", "ok, got it",
		"accept", "accept all", "accept & continue", "agree", "i agree", "agree and continue",
		"skip", "skip for now", "not now",
	}
	loginKeywords = []string{"log in", "login", "sign in", "sign up", "continue with"}
)

// proceedLabel normalizes a control label for comparison with proceedLabels.
func proceedLabel(label string) string {
	return strings.Trim(normalizeText(label), " .!›>→")
}

// Longest label still taken for a button rather than content.
const (
	maxButtonWords = 3
	maxButtonRunes = 24
)

func buttonLike(label string) bool {
	n := len(strings.Fields(label))
	return n > 0 && n <= maxButtonWords && utf8.RuneCountInString(label) <= maxButtonRunes
}

// onboardingControl returns the first enabled button whose label is a
// proceed label not yet tapped in this task.
func onboardingControl(elements []uitree.ClickableElement, proceeded []string) (locator.Match, bool) {
	for _, e := range elements {
		if e.IsInput() || !e.Clickable || !e.Enabled {
			continue
		}
		label := proceedLabel(e.Label())
		if !slices.Contains(proceedLabels, label) || slices.Contains(proceeded, label) {
			continue
		}
		return locator.Match{X: e.CenterX, Y: e.CenterY, Element: e, Strategy: locator.StrategyKeyword}, true
	}
	return locator.Match{}, false
}

// loginSheet finds a bottom-sheet button that offers to sign in.
func loginSheet(elements []uitree.ClickableElement) (locator.Match, bool) {
	m, ok := locator.BottomSheet(elements)
	if !ok {
		return locator.Match{}, false
	}
	label := strings.ToLower(m.Element.Label())
	for _, k := range loginKeywords {
		if strings.Contains(label, k) {
			return m, true
		}
	}
	return locator.Match{}, false
}

func wantsLogin(a ParsedAction) bool {
	switch a := a.(type) {
	case Login:
		return true
	case OpenApp:
		return a.WantsLogin
	default:
		return false
	}
}

// RuleBased decides from the structural index and description flags alone.
type RuleBased struct{}

var _ DecisionProvider = RuleBased{}

func (RuleBased) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	if in.PendingQuery != "" {
		if _, ok := locator.FindInputField(in.Elements, screenMetrics(in.Snapshot), in.KeyboardOpen); ok {
			return Decision{Kind: DecisionExecuteQuery, Reason: "input field ready"}, nil
		}
	}

	if !wantsLogin(in.Action) {
		flagged := in.Snapshot != nil && in.Snapshot.Description.Flags.IsLoginScreen
		sheet, sheetOK := loginSheet(in.Elements)
		if flagged || sheetOK {
			d := Decision{Kind: DecisionAskConfirmation, Prompt: loginPrompt, Login: true, Reason: "login screen"}
			if sheetOK {
				d.Target = &sheet
			}
			return d, nil
		}
	}

	if m, ok := onboardingControl(in.Elements, in.Proceeded); ok {
		return Decision{Kind: DecisionAutoProceed, Target: &m, Reason: fmt.Sprintf("onboarding control %q", m.Element.Label())}, nil
	}
	return Decision{Kind: DecisionDone}, nil
}

// VisionDecider asks the description service and resolves any control it
// names through the locator. Any failure falls back to Fallback.
type VisionDecider struct {
	Device    core.Actuator
	Describer core.Describer
	Fallback  DecisionProvider
}

var _ DecisionProvider = (*VisionDecider)(nil)

func (v *VisionDecider) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	fallback := v.Fallback
	if fallback == nil {
		fallback = RuleBased{}
	}
	log := logger.Named("decision")

	d, err := v.decide(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		log.Info("falling back to rule-based decision", zap.Error(err))
		return fallback.Decide(ctx, in)
	}
	log.Debug("vision decision", zap.Stringer("kind", d.Kind), zap.String("reason", d.Reason))
	return d, nil
}

func (v *VisionDecider) decide(ctx context.Context, in DecisionInput) (Decision, error) {
	if v.Device == nil || v.Describer == nil {
		return Decision{}, core.ErrInvalidConfig.WithMessage("vision decider needs a device and a description service")
	}
	img, err := v.Device.Screenshot(ctx)
	if err != nil {
		return Decision{}, err
	}
	desc, err := v.Describer.Describe(ctx, img, vision.DecisionPrompt(in.Intent, in.PendingQuery))
	if err != nil {
		return Decision{}, err
	}
	hint := desc.Decision
	if hint == nil {
		return Decision{}, core.ErrParse.WithMessage("no decision in the reply")
	}

	target, found := v.resolve(in.Elements, hint.Target)
	switch hint.Decision {
	case vision.DecisionAutoProceed:
		if !found {
			return Decision{}, core.ErrElementNotFound.WithMessage(fmt.Sprintf("no control matches %q", hint.Target))
		}
		return Decision{Kind: DecisionAutoProceed, Target: target, Reason: hint.Reason}, nil

	case vision.DecisionAskConfirmation:
		login := desc.Flags.IsLoginScreen || (tokens{text: normalizeText(hint.Target)}).has(loginPhrases...)
		if login && wantsLogin(in.Action) {
			return Decision{Kind: DecisionDone, Reason: hint.Reason}, nil
		}
		d := Decision{Kind: DecisionAskConfirmation, Login: login, Reason: hint.Reason}
		if found {
			d.Target = target
		}
		switch {
		case login:
			d.Prompt = loginPrompt
		case hint.Reason != "":
			d.Prompt = fmt.Sprintf("%s. Should I go ahead?", strings.TrimSuffix(hint.Reason, "."))
		default:
			d.Prompt = "Should I go ahead?"
		}
		if !login && d.Target == nil {
			return Decision{}, core.ErrElementNotFound.WithMessage("confirmation without a control to tap")
		}
		return d, nil

	case vision.DecisionExecuteQuery:
		if in.PendingQuery == "" {
			return Decision{}, core.ErrParse.WithMessage("execute_query without a pending query")
		}
		return Decision{Kind: DecisionExecuteQuery, Reason: hint.Reason}, nil

	case vision.DecisionDone:
		return Decision{Kind: DecisionDone, Reason: hint.Reason}, nil

	default:
		return Decision{}, core.ErrParse.WithMessage(fmt.Sprintf("unknown decision %q", hint.Decision))
	}
}

// resolve finds the element named by a vision target by keyword only.
func (v *VisionDecider) resolve(elements []uitree.ClickableElement, target string) (*locator.Match, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, false
	}
	m, ok := locator.Locate(elements, locator.Query{Keywords: []string{target}, NoStructural: true})
	if !ok {
		return nil, false
	}
	return &m, true
}
