package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/auth"
	"github.com/devicelab-dev/droidpilot/pkg/coords"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/locator"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
	"github.com/devicelab-dev/droidpilot/pkg/vision"
)

func (r *run) observe(ctx context.Context, ws *WorkflowState) State {
	ws.Iteration++
	if ws.Iteration > ws.MaxIterations {
		ws.fail(core.ErrIterationLimitExceeded.WithMessage(
			fmt.Sprintf("gave up after %d looks at the screen", ws.MaxIterations)))
		return StateHandleError
	}

	snap, elements, err := r.observer.Observe(ctx)
	if err != nil {
		ws.fail(err)
		return StateHandleError
	}
	ws.Snapshot, ws.Elements, ws.fresh = snap, elements, true
	ws.LastGoodScreen = snap.Fingerprint

	if !ws.analyzed {
		return StateAnalyze
	}
	return StateVerify
}

func (r *run) analyze(ctx context.Context, ws *WorkflowState) State {
	ws.analyzed = true
	if ws.Action == nil {
		ws.Action = ParseIntent(ws.Intent)
	}
	r.log.Info("parsed command", zap.String("kind", ws.Action.Kind().String()), zap.String("action", describe(ws.Action)))

	if _, ok := ws.Action.(Login); ok {
		ws.NeedsAuth = true
		return StateAuthenticate
	}
	return StateAct
}

func (r *run) authenticate(ctx context.Context, ws *WorkflowState) State {
	creds := r.sess.credentials()
	var res auth.Result
	if awaiting, ok := r.sess.awaiting(); ok {
		res = r.deps.Auth.Resume(ctx, creds, awaiting)
	} else {
		res = r.deps.Auth.Run(ctx, creds)
	}
	ws.fresh = false
	ws.task.step("sign in: " + res.Outcome.String())

	prompt := r.sess.applyAuth(res)
	switch res.Outcome {
	case auth.OutcomeSuccess:
		ws.NeedsAuth = false
		_, loginOnly := ws.Action.(Login)
		if loginOnly || ws.actionDone {
			ws.ActionSuccess = true
			ws.TaskComplete = true
			return StateVerify
		}
		return StateAct

	case auth.OutcomeAwaitingEmail, auth.OutcomeAwaitingPassword:
		ws.NeedsAuth = false
		ws.Response = prompt
		ws.ActionSuccess = ws.actionDone
		ws.TaskComplete = true
		return StateRespond

	default:
		ws.NeedsAuth = false
		err := res.Err
		if err == nil {
			err = core.ErrAuthenticationFailed.WithMessage(res.Reason)
		}
		ws.fail(err)
		return StateHandleError
	}
}

func (r *run) act(ctx context.Context, ws *WorkflowState) State {
	ws.actionDone = true

	var err error
	switch a := ws.Action.(type) {
	case OpenApp:
		err = r.openApp(ctx, ws, a)
	case CloseApp:
		err = r.closeApp(ctx, ws, a)
	case Login:
		ws.ActionSuccess, ws.TaskComplete = true, true
	case TapElement:
		err = r.tapElement(ctx, ws, a)
	case SendMessage:
		err = r.sendMessage(ctx, ws, a)
	case SendPayment:
		err = r.sendPayment(ctx, ws, a)
	case Search:
		err = r.search(ctx, ws, a)
	case Extract:
		err = r.extract(ctx, ws, a)
	case Query:
		err = r.query(ctx, ws, a)
	default:
		err = core.ErrParse.WithMessage("no action to perform")
	}
	if err != nil {
		r.log.Info("action failed", zap.String("action", describe(ws.Action)), zap.Error(err))
		ws.fail(err)
	}
	return StateVerify
}

func (r *run) verify(ctx context.Context, ws *WorkflowState) State {
	if ws.Err != nil {
		return StateHandleError
	}
	if _, ok := ws.Action.(OpenApp); ok && ws.ActionSuccess && !ws.TaskComplete &&
		!ws.NeedsAuth && !ws.NeedsConfirmation && !ws.NeedsQuery {
		return r.verifyOpened(ctx, ws)
	}
	return nextAfterVerify(ws)
}

// verifyOpened looks at a freshly opened app: clears popups, then lets the
// decision provider choose the next step.
func (r *run) verifyOpened(ctx context.Context, ws *WorkflowState) State {
	if !ws.fresh {
		return StateObserve
	}

	dismissed, err := recovery.DismissPopup(ctx, r.deps.Device, ws.Elements, ws.Snapshot.Description.Flags.HasPopup)
	if err != nil {
		r.log.Warn("could not dismiss popup", zap.Error(err))
	}
	if dismissed {
		ws.fresh = false
		ws.task.step("dismissed a popup")
		return StateObserve
	}

	d, err := r.deps.Decider.Decide(ctx, DecisionInput{
		Intent:       ws.Intent,
		Action:       ws.Action,
		Snapshot:     ws.Snapshot,
		Elements:     ws.Elements,
		PendingQuery: ws.PendingQuery,
		KeyboardOpen: r.keyboardShown(ctx),
		Proceeded:    ws.proceeded,
	})
	if err != nil {
		if ctx.Err() != nil {
			ws.fail(ctx.Err())
			return StateHandleError
		}
		r.log.Warn("no decision, finishing", zap.Error(err))
		d = Decision{Kind: DecisionDone}
	}
	r.log.Info("decided", zap.Stringer("decision", d.Kind), zap.String("reason", d.Reason))

	if d.Kind == DecisionAutoProceed {
		label := proceedLabel(d.Target.Element.Label())
		switch {
		case !buttonLike(label):
			r.log.Info("not an onboarding button, finishing", zap.String("label", label))
			d = Decision{Kind: DecisionDone}
		case slices.Contains(ws.proceeded, label):
			r.log.Info("onboarding control already tapped, finishing", zap.String("label", label))
			d = Decision{Kind: DecisionDone}
		default:
			ws.proceeded = append(ws.proceeded, label)
		}
	}

	switch d.Kind {
	case DecisionAutoProceed:
		ws.fresh = false
		if err := recovery.TapAndVerify(ctx, r.deps.Device, d.Target.X, d.Target.Y, r.tapOptions()); err != nil {
			r.log.Info("onboarding control did not respond", zap.String("label", d.Target.Element.Label()), zap.Error(err))
			return r.opened(ws)
		}
		ws.task.step(fmt.Sprintf("tapped %q", d.Target.Element.Label()))
		return StateObserve

	case DecisionAskConfirmation:
		ws.NeedsConfirmation = true
		ws.PendingTap = d.Target
		ws.ConfirmPrompt = d.Prompt
		ws.confirmAuth = d.Login
		if d.Login {
			r.sess.Login.PopupDetected = true
		}
		return StateConfirm

	case DecisionExecuteQuery:
		ws.NeedsQuery = true
		return StateExecuteQuery

	default:
		return r.opened(ws)
	}
}

// opened finishes an OpenApp once nothing on screen needs handling.
func (r *run) opened(ws *WorkflowState) State {
	if ws.PendingQuery != "" {
		ws.NeedsQuery = true
		return StateExecuteQuery
	}
	ws.TaskComplete = true
	return StateRespond
}

func (r *run) confirm(ctx context.Context, ws *WorkflowState) State {
	prompt := ws.ConfirmPrompt
	if prompt == "" {
		prompt = "Should I go ahead?"
	}

	answer := ""
	if r.deps.Speech != nil {
		if err := r.deps.Speech.Speak(ctx, prompt); err != nil {
			r.log.Warn("could not ask for confirmation", zap.Error(err))
		}
		var err error
		answer, err = r.deps.Speech.Listen(ctx, r.cfg.ListenTimeout, r.cfg.PhraseLimit)
		if err != nil {
			if ctx.Err() != nil {
				ws.fail(ctx.Err())
				ws.Cancelled = true
				return StateRespond
			}
			r.log.Warn("no confirmation heard", zap.Error(err))
			answer = ""
		}
	}
	ws.NeedsConfirmation = false

	if !isAffirmative(answer) {
		r.log.Info("not confirmed", zap.String("answer", answer))
		ws.task.step("user declined")
		if ws.confirmAuth {
			ws.confirmAuth = false
			r.sess.Login.PopupDetected = false
		}
		ws.PendingTap = nil
		ws.TaskComplete = true
		ws.Cancelled = true
		ws.Response = "Cancelled."
		return StateRespond
	}
	ws.task.step("user confirmed")

	if ws.confirmAuth {
		ws.confirmAuth = false
		r.sess.Login.PopupDetected = false
		ws.NeedsAuth = true
		return StateVerify
	}

	if tap := ws.PendingTap; tap != nil {
		ws.PendingTap = nil
		ws.fresh = false
		if err := recovery.TapAndVerify(ctx, r.deps.Device, tap.X, tap.Y, r.tapOptions()); err != nil {
			ws.fail(err)
			return StateVerify
		}
		ws.task.step(fmt.Sprintf("tapped %q", tap.Element.Label()))
	}
	if _, ok := ws.Action.(OpenApp); !ok {
		ws.ActionSuccess = true
		ws.TaskComplete = true
	}
	return StateVerify
}

// executeQuery types the pending query into the app's input, submits it and
// reads back the answer.
func (r *run) executeQuery(ctx context.Context, ws *WorkflowState) State {
	ws.NeedsQuery = false
	query := ws.PendingQuery
	if query == "" {
		ws.fail(core.ErrParse.WithMessage("there is nothing to ask"))
		return StateHandleError
	}
	ws.fresh = false

	elements, err := r.dump(ctx)
	if err != nil {
		ws.fail(err)
		return StateHandleError
	}
	screen := r.metrics(ctx, ws)
	input, ok := locator.FindInputField(elements, screen, r.keyboardShown(ctx))
	if !ok {
		ws.fail(core.ErrElementNotFound.WithMessage("no text input on screen"))
		return StateHandleError
	}
	if err := r.typeInto(ctx, input, query); err != nil {
		ws.fail(err)
		return StateHandleError
	}
	ws.task.step(fmt.Sprintf("typed %q", query))

	before, err := recovery.Capture(ctx, recovery.TreeCapture(r.deps.Device))
	if err != nil {
		ws.fail(core.ErrActionExecutionFailed.WithCause(err))
		return StateHandleError
	}
	if err := r.submit(ctx, ws, input, screen); err != nil {
		ws.fail(err)
		return StateHandleError
	}

	if err := r.deps.Sleeper.Sleep(ctx, r.cfg.ResponseWait); err != nil {
		ws.fail(err)
		return StateHandleError
	}
	if _, err := recovery.WaitForChange(ctx, recovery.TreeCapture(r.deps.Device), before, r.cfg.Retry); err != nil {
		if ctx.Err() != nil {
			ws.fail(ctx.Err())
			return StateHandleError
		}
		if !errors.Is(err, recovery.ErrExhausted) {
			r.log.Warn("could not watch for the answer", zap.Error(err))
		}
	}

	reply := r.readReply(ctx, ws, query)
	if reply == "" {
		reply = "I sent your question, but I couldn't read the answer yet."
	}
	ws.Response = reply
	ws.PendingQuery = ""
	ws.ActionSuccess = true
	ws.TaskComplete = true
	return StateRespond
}

// readReply asks the description service for the app's answer, falling back
// to the longest text below the top bar that is not the query itself.
func (r *run) readReply(ctx context.Context, ws *WorkflowState, query string) string {
	if r.deps.Describer != nil {
		img, err := r.deps.Device.Screenshot(ctx)
		if err == nil {
			d, derr := r.deps.Describer.Describe(ctx, img, vision.ExtractionPrompt(query))
			err = derr
			if err == nil && d.Structured && strings.TrimSpace(d.Text) != "" {
				return strings.TrimSpace(d.Text)
			}
		}
		if err != nil {
			r.log.Info("reading the answer from the UI tree", zap.Error(err))
		}
	}

	raw, err := r.deps.Device.DumpUITree(ctx)
	if err != nil {
		return ""
	}
	nodes, err := uitree.ParseNodes(raw)
	if err != nil {
		return ""
	}
	return longestReply(nodes, query, topBarLimit(r.metrics(ctx, ws)))
}

// topBarLimit is the Y above which text belongs to the app bar.
func topBarLimit(screen core.ScreenMetrics) int {
	if screen.Height > 0 {
		return screen.Height / 10
	}
	return 2 * coords.StatusBarMargin
}

func longestReply(nodes []uitree.ClickableElement, query string, minY int) string {
	q := normalizeText(query)
	best := ""
	for _, n := range nodes {
		text := strings.TrimSpace(n.Text)
		if text == "" || n.IsInput() || n.CenterY <= minY {
			continue
		}
		if normalizeText(text) == q {
			continue
		}
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best = text
		}
	}
	return best
}

func (r *run) handleError(ctx context.Context, ws *WorkflowState) State {
	ws.Issue = r.escalate(ws)
	ws.Response = ws.Issue.Summary()
	r.log.Info("escalating to the user",
		zap.String("category", ws.Issue.Category().String()), zap.Strings("attempted", ws.Issue.Attempted))
	return StateRespond
}

// launch resolves and opens an app, then updates the session for it.
func (r *run) launch(ctx context.Context, ws *WorkflowState, app string) error {
	pkg, err := r.deps.Apps.Resolve(app)
	if err != nil {
		return err
	}
	name := r.deps.Apps.NameOf(pkg)

	if ac, ok := r.deps.Device.(core.AppController); ok {
		err = ac.Launch(ctx, pkg)
	} else {
		_, err = r.deps.Device.Shell(ctx, "monkey -p "+pkg+" -c android.intent.category.LAUNCHER 1")
	}
	if err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			return err
		}
		return core.ErrActionExecutionFailed.WithMessage(fmt.Sprintf("could not open %s", app)).WithCause(err)
	}
	ws.task.step("opened " + name)
	ws.app = name
	ws.fresh = false

	if conversableApps[name] {
		r.sess.StartSticky(name)
		ws.SessionActive = true
	} else {
		if r.sess.LastApp != name {
			r.sess.Login = LoginState{}
		}
		r.sess.EndSticky()
		r.sess.LastApp = name
		ws.SessionActive = false
	}
	return r.deps.Sleeper.Sleep(ctx, r.cfg.ScreenshotDelay)
}

func (r *run) openApp(ctx context.Context, ws *WorkflowState, a OpenApp) error {
	if err := r.launch(ctx, ws, a.App); err != nil {
		return err
	}
	if a.Query != "" {
		ws.PendingQuery = a.Query
		ws.PendingApp = ws.app
	}
	if a.WantsLogin {
		ws.NeedsAuth = true
	}
	ws.ActionSuccess = true
	return nil
}

func (r *run) closeApp(ctx context.Context, ws *WorkflowState, a CloseApp) error {
	name := a.App
	if name == "" {
		name = r.sess.LastApp
	}
	if err := r.deps.Device.PressKey(ctx, core.KeyHome); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	if name != "" {
		pkg, err := r.deps.Apps.Resolve(name)
		if err == nil {
			if ac, ok := r.deps.Device.(core.AppController); ok {
				if err := ac.ForceStop(ctx, pkg); err != nil {
					r.log.Warn("could not stop app", zap.String("package", pkg), zap.Error(err))
				}
			}
			name = r.deps.Apps.NameOf(pkg)
		} else {
			r.log.Info("closing without stopping an app", zap.Error(err))
		}
	}
	ws.task.step("pressed home")
	ws.app = name
	r.sess.Reset()
	ws.SessionActive = false
	ws.ActionSuccess = true
	ws.TaskComplete = true
	return nil
}

var consequentialWords = []string{
	"pay", "send", "delete", "buy", "confirm", "submit", "transfer", "remove", "purchase", "order",
}

func consequential(target string) bool {
	return tokenize(target).has(consequentialWords...)
}

func (r *run) tapElement(ctx context.Context, ws *WorkflowState, a TapElement) error {
	m, ok := locator.Locate(ws.Elements, locator.Query{Keywords: []string{a.Target}, NoStructural: true})
	if !ok {
		m, ok = r.nearVisionElement(ws, a.Target)
	}
	if !ok {
		return core.ErrElementNotFound.WithMessage(fmt.Sprintf("there is no %q on the screen", a.Target))
	}

	if consequential(a.Target) || m.Strategy == locator.StrategyProximity {
		label := m.Element.Label()
		if label == "" {
			label = a.Target
		}
		ws.PendingTap = &m
		ws.NeedsConfirmation = true
		ws.ConfirmPrompt = fmt.Sprintf("Should I tap %s?", label)
		return nil
	}

	ws.fresh = false
	if err := recovery.TapAndVerify(ctx, r.deps.Device, m.X, m.Y, r.tapOptions()); err != nil {
		return err
	}
	ws.task.step(fmt.Sprintf("tapped %q", m.Element.Label()))
	ws.ActionSuccess = true
	ws.TaskComplete = true
	return nil
}

// nearVisionElement snaps the description service's estimate for target to
// the nearest real element.
func (r *run) nearVisionElement(ws *WorkflowState, target string) (locator.Match, bool) {
	if ws.Snapshot == nil || ws.Snapshot.Structural {
		return locator.Match{}, false
	}
	want := normalizeText(target)
	for _, ve := range ws.Snapshot.Description.Elements {
		text := normalizeText(ve.Text + " " + ve.Description)
		if !strings.Contains(text, want) {
			continue
		}
		cx, cy, w, h := float64(ve.X), float64(ve.Y), float64(ve.Width), float64(ve.Height)
		if b := ve.Box; len(b) == 4 && b[2] > b[0] && b[3] > b[1] {
			cx, cy = float64(b[0]+b[2])/2, float64(b[1]+b[3])/2
			w, h = float64(b[2]-b[0]), float64(b[3]-b[1])
		}
		region, err := coords.RegionToDeviceSpace(cx, cy, w, h, ws.Snapshot.Frame)
		if err != nil {
			r.log.Debug("vision estimate rejected", zap.String("target", target), zap.Error(err))
			continue
		}
		if m, ok := locator.Proximity(ws.Elements, region, locator.DefaultRadius); ok {
			return m, true
		}
	}
	return locator.Match{}, false
}

func (r *run) sendMessage(ctx context.Context, ws *WorkflowState, a SendMessage) error {
	app := a.App
	if app == "" {
		app = "whatsapp"
	}
	if !a.CurrentChat || r.sess.StickyApp != "whatsapp" {
		if err := r.launch(ctx, ws, app); err != nil {
			return err
		}
	} else {
		ws.app = r.sess.StickyApp
		ws.SessionActive = true
	}

	if a.Recipient != "" {
		if err := r.openChat(ctx, ws, a.Recipient); err != nil {
			return err
		}
	}
	if a.Message == "" {
		if a.Recipient != "" {
			ws.Response = fmt.Sprintf("The chat with %s is open. What should I send?", a.Recipient)
		} else {
			ws.Response = fmt.Sprintf("%s is open. What should I send?", ws.app)
		}
		ws.ActionSuccess = true
		ws.TaskComplete = true
		return nil
	}

	elements, err := r.dump(ctx)
	if err != nil {
		return err
	}
	screen := r.metrics(ctx, ws)
	input, ok := locator.FindInputField(elements, screen, r.keyboardShown(ctx))
	if !ok {
		return core.ErrElementNotFound.WithMessage("no message box on screen")
	}
	if err := r.typeInto(ctx, input, a.Message); err != nil {
		return err
	}
	ws.task.step(fmt.Sprintf("typed %q", a.Message))
	if err := r.submit(ctx, ws, input, screen); err != nil {
		return err
	}
	ws.ActionSuccess = true
	ws.TaskComplete = true
	return nil
}

// openChat searches for recipient and opens the first result.
func (r *run) openChat(ctx context.Context, ws *WorkflowState, recipient string) error {
	elements, err := r.dump(ctx)
	if err != nil {
		return err
	}
	search, ok := locator.ByKeyword(elements, "search")
	if !ok {
		return core.ErrElementNotFound.WithMessage("no search control to find " + recipient)
	}
	if err := r.typeInto(ctx, search, recipient); err != nil {
		return err
	}
	ws.task.step(fmt.Sprintf("searched for %q", recipient))

	elements, err = r.dump(ctx)
	if err != nil {
		return err
	}
	refY := search.Y
	if fields := uitree.InputFields(elements); len(fields) > 0 {
		refY = fields[0].CenterY
	}
	result, ok := locator.FindBelow(elements, refY, locator.DefaultBelowMargin)
	if !ok {
		return core.ErrElementNotFound.WithMessage(fmt.Sprintf("no chat named %s", recipient))
	}
	if err := r.tap(ctx, result.X, result.Y); err != nil {
		return err
	}
	ws.task.step(fmt.Sprintf("opened the chat with %s", recipient))
	return nil
}

var payKeywords = []string{"pay", "send", "transfer", "proceed"}

func (r *run) sendPayment(ctx context.Context, ws *WorkflowState, a SendPayment) error {
	if a.Amount == "" || a.Recipient == "" {
		return core.ErrParse.WithMessage("a payment needs both an amount and a recipient")
	}
	if err := r.launch(ctx, ws, a.App); err != nil {
		return err
	}

	elements, err := r.dump(ctx)
	if err != nil {
		return err
	}
	fields := uitree.InputFields(elements)
	if len(fields) < 2 {
		return core.ErrElementNotFound.WithMessage("could not find the recipient and amount fields")
	}
	if err := r.typeInto(ctx, locator.Match{X: fields[0].CenterX, Y: fields[0].CenterY, Element: fields[0]}, a.Recipient); err != nil {
		return err
	}
	if err := r.typeInto(ctx, locator.Match{X: fields[1].CenterX, Y: fields[1].CenterY, Element: fields[1]}, a.Amount); err != nil {
		return err
	}
	ws.task.step(fmt.Sprintf("entered %s rupees for %s", a.Amount, a.Recipient))

	elements, err = r.dump(ctx)
	if err != nil {
		return err
	}
	pay, ok := locator.Locate(elements, locator.Query{Keywords: payKeywords, BelowY: fields[1].CenterY})
	if !ok {
		return core.ErrElementNotFound.WithMessage("no pay button on screen")
	}
	ws.PendingTap = &pay
	ws.NeedsConfirmation = true
	ws.ConfirmPrompt = fmt.Sprintf("Should I pay %s rupees to %s?", a.Amount, a.Recipient)
	return nil
}

func (r *run) search(ctx context.Context, ws *WorkflowState, a Search) error {
	if a.Query == "" {
		return core.ErrParse.WithMessage("there is nothing to search for")
	}
	elements, err := r.dump(ctx)
	if err != nil {
		return err
	}
	m, ok := locator.ByKeyword(elements, "search")
	if !ok {
		fields := uitree.InputFields(elements)
		if len(fields) == 0 {
			return core.ErrElementNotFound.WithMessage("no search box on screen")
		}
		m = locator.Match{X: fields[0].CenterX, Y: fields[0].CenterY, Element: fields[0], Strategy: locator.StrategyLowestInput}
	}
	if err := r.typeInto(ctx, m, a.Query); err != nil {
		return err
	}
	if err := r.deps.Device.PressKey(ctx, core.KeyEnter); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	ws.task.step(fmt.Sprintf("searched for %q", a.Query))
	ws.fresh = false
	ws.ActionSuccess = true
	ws.TaskComplete = true
	return nil
}

func (r *run) extract(ctx context.Context, ws *WorkflowState, a Extract) error {
	if r.deps.Describer != nil {
		img, err := r.deps.Device.Screenshot(ctx)
		if err == nil {
			var d *core.Description
			d, err = r.deps.Describer.Describe(ctx, img, vision.ReadPrompt(a.Target))
			if err == nil && strings.TrimSpace(d.Text) != "" {
				ws.Response = strings.TrimSpace(d.Text)
				ws.ActionSuccess, ws.TaskComplete = true, true
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Info("reading the screen from the UI tree", zap.Error(err))
	}

	raw, err := r.deps.Device.DumpUITree(ctx)
	if err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	nodes, err := uitree.ParseNodes(raw)
	if err != nil {
		return err
	}
	texts := uitree.Texts(nodes)
	if a.Target != "" {
		want := normalizeText(a.Target)
		var matched []string
		for _, t := range texts {
			if strings.Contains(normalizeText(t), want) {
				matched = append(matched, t)
			}
		}
		texts = matched
	}
	if len(texts) == 0 {
		return core.ErrElementNotFound.WithMessage("there is no readable text on the screen")
	}
	ws.Response = "The screen says: " + strings.Join(texts, ". ")
	ws.ActionSuccess, ws.TaskComplete = true, true
	return nil
}

func (r *run) query(ctx context.Context, ws *WorkflowState, a Query) error {
	if strings.TrimSpace(a.Text) == "" {
		return core.ErrParse.WithMessage("there is nothing to ask")
	}
	app := a.App
	if app != "" && app != r.sess.LastApp {
		if err := r.launch(ctx, ws, app); err != nil {
			return err
		}
	} else {
		app = r.sess.LastApp
		ws.app = app
		ws.SessionActive = r.sess.StickyApp != ""
	}
	ws.PendingQuery = a.Text
	ws.PendingApp = app
	ws.NeedsQuery = true
	ws.ActionSuccess = true
	return nil
}

// dump reads and indexes the current screen.
func (r *run) dump(ctx context.Context) ([]uitree.ClickableElement, error) {
	raw, err := r.deps.Device.DumpUITree(ctx)
	if err != nil {
		return nil, core.ErrActionExecutionFailed.WithMessage("could not read the screen").WithCause(err)
	}
	return uitree.Parse(raw)
}

func (r *run) tap(ctx context.Context, x, y int) error {
	if err := r.deps.Device.Tap(ctx, x, y); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	return r.deps.Sleeper.Sleep(ctx, r.cfg.Settle)
}

// typeInto focuses the field at m and replaces its text.
func (r *run) typeInto(ctx context.Context, m locator.Match, text string) error {
	if err := r.tap(ctx, m.X, m.Y); err != nil {
		return err
	}
	if err := r.deps.Device.TypeText(ctx, text, true); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	return nil
}

// submit sends what was typed into input: the send button beside it, else
// the Enter key.
func (r *run) submit(ctx context.Context, ws *WorkflowState, input locator.Match, screen core.ScreenMetrics) error {
	elements, err := r.dump(ctx)
	if err != nil {
		return err
	}
	field := input.Element
	if again, ok := locator.FindInputField(elements, screen, true); ok && again.Strategy != locator.StrategyRegionFallback {
		field = again.Element
	} else if input.Strategy == locator.StrategyRegionFallback {
		field = uitree.ClickableElement{CenterX: input.X, CenterY: input.Y}
	}

	if send, ok := locator.FindSendButton(elements, field); ok {
		if err := r.tap(ctx, send.X, send.Y); err != nil {
			return err
		}
		ws.task.step("tapped send")
		return nil
	}
	if err := r.deps.Device.PressKey(ctx, core.KeyEnter); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	ws.task.step("pressed enter")
	return nil
}

func (r *run) keyboardShown(ctx context.Context) bool {
	kp, ok := r.deps.Device.(core.KeyboardProber)
	if !ok {
		return false
	}
	shown, err := kp.KeyboardShown(ctx)
	if err != nil {
		r.log.Debug("keyboard state unknown", zap.Error(err))
		return false
	}
	return shown
}

func (r *run) metrics(ctx context.Context, ws *WorkflowState) core.ScreenMetrics {
	if mp, ok := r.deps.Device.(core.MetricsProvider); ok {
		if m, err := mp.Metrics(ctx); err == nil {
			return m
		}
	}
	return screenMetrics(ws.Snapshot)
}

func (r *run) tapOptions() recovery.TapOptions {
	return recovery.TapOptions{Settle: r.cfg.Settle, Sleeper: r.deps.Sleeper}
}
