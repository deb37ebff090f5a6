package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/locator"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

func (r *run) detect(ctx context.Context) (State, *Result) {
	els, err := r.dump(ctx)
	if err != nil {
		return StateFailed, failed("could not read the login screen", err)
	}
	inputs := uitree.InputFields(els)
	_, sheet := locator.BottomSheet(els)

	switch {
	case sheet && len(inputs) <= 1 && !r.ssoTried:
		return StateSSOLogin, nil
	case len(inputs) > 0:
		return StateCredentialLogin, nil
	default:
		return StateFailed, failed("no login surface", nil)
	}
}

func (r *run) sso(ctx context.Context) (State, *Result) {
	r.ssoTried = true
	button, ok := locator.BottomSheet(r.elements)
	if !ok {
		return StateCredentialLogin, nil
	}
	r.log.Info("trying single sign-on", zap.String("button", button.Element.Label()))
	if err := r.tap(ctx, button.X+ssoTapOffset, button.Y+ssoTapOffset); err != nil {
		return StateFailed, failed("could not tap the sign-in button", err)
	}

	for attempt := 1; attempt <= maxContinueSearches; attempt++ {
		els, err := r.dump(ctx)
		if err != nil {
			return StateFailed, failed("could not read the account picker", err)
		}
		if m, ok := locator.FindContinueButton(els); ok {
			r.log.Info("continuing single sign-on", zap.String("button", m.Element.Label()), zap.Int("attempt", attempt))
			if err := r.tap(ctx, m.X, m.Y); err != nil {
				return StateFailed, failed("could not tap continue", err)
			}
			return StateSuccess, succeeded(MethodSSO)
		}
		if err := r.sleeper.Sleep(ctx, r.settle*time.Duration(attempt)); err != nil {
			return StateFailed, failed("cancelled", err)
		}
	}

	r.log.Info("no continue button after single sign-on, falling back to credentials")
	return StateCredentialLogin, nil
}

func (r *run) credentials(ctx context.Context) (State, *Result) {
	els, err := r.dump(ctx)
	if err != nil {
		return StateFailed, failed("could not read the login screen", err)
	}
	if len(uitree.InputFields(els)) == 0 {
		r.retryTo = StateDetecting
		return StateRetry, nil
	}
	return StateEmailEntry, nil
}

func (r *run) email(ctx context.Context) (State, *Result) {
	if r.creds.Email == "" {
		return StateEmailEntry, &Result{Outcome: OutcomeAwaitingEmail, Reason: "email needed"}
	}
	inputs := uitree.InputFields(r.elements)
	if len(inputs) == 0 {
		return StatePasswordEntry, nil
	}
	field := inputs[0]
	r.log.Info("entering email", zap.String("email", MaskEmail(r.creds.Email)))
	if err := r.fill(ctx, field, r.creds.Email); err != nil {
		return StateFailed, failed("could not enter the email", err)
	}
	r.usedCredentials = true

	// Both fields on one screen: fill the password before submitting
	if len(inputs) >= 2 {
		return StatePasswordEntry, nil
	}
	if err := r.submitBelow(ctx, field); err != nil {
		return StateFailed, failed("could not submit the email", err)
	}
	return StatePasswordEntry, nil
}

func (r *run) password(ctx context.Context) (State, *Result) {
	if r.creds.Password == "" {
		return StatePasswordEntry, &Result{Outcome: OutcomeAwaitingPassword, Reason: "password needed"}
	}
	els := r.elements
	if !r.fresh {
		if err := r.sleeper.Sleep(ctx, r.settle); err != nil {
			return StateFailed, failed("cancelled", err)
		}
		var err error
		if els, err = r.dump(ctx); err != nil {
			return StateFailed, failed("could not read the password screen", err)
		}
	}
	inputs := uitree.InputFields(els)
	if len(inputs) == 0 {
		return StateSubmitting, nil
	}
	field := inputs[len(inputs)-1]
	r.log.Info("entering password")
	if err := r.fill(ctx, field, r.creds.Password); err != nil {
		return StateFailed, failed("could not enter the password", err)
	}
	r.usedCredentials = true
	if err := r.submitBelow(ctx, field); err != nil {
		return StateFailed, failed("could not submit the password", err)
	}
	return StateSubmitting, nil
}

func (r *run) submitted(ctx context.Context) (State, *Result) {
	if err := r.sleeper.Sleep(ctx, r.settle); err != nil {
		return StateFailed, failed("cancelled", err)
	}
	els, err := r.dump(ctx)
	if err != nil {
		return StateFailed, failed("could not read the screen after login", err)
	}
	if len(uitree.InputFields(els)) == 0 {
		method := MethodSSO
		if r.usedCredentials {
			method = MethodCredentials
		}
		return StateSuccess, succeeded(method)
	}
	r.retryTo = StatePasswordEntry
	return StateRetry, nil
}

func (r *run) retry() (State, *Result) {
	limit := maxDetectRetries
	if r.retryTo == StatePasswordEntry {
		limit = maxPasswordRetries
	}
	if r.retries[r.retryTo] >= limit {
		reason := "login screen did not accept the credentials"
		if r.retryTo == StateDetecting {
			reason = "no login fields appeared"
		}
		return StateFailed, failed(reason, nil)
	}
	r.retries[r.retryTo]++
	r.fresh = false
	return r.retryTo, nil
}

// fill taps a field and replaces its content.
func (r *run) fill(ctx context.Context, field uitree.ClickableElement, text string) error {
	if err := r.tap(ctx, field.CenterX, field.CenterY); err != nil {
		return err
	}
	if err := r.device.TypeText(ctx, text, true); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	return nil
}

// submitBelow taps the button under a just-filled field, falling back to a
// continue button and finally the Enter key.
func (r *run) submitBelow(ctx context.Context, field uitree.ClickableElement) error {
	for attempt := 1; attempt <= maxSubmitSearches; attempt++ {
		els, err := r.dump(ctx)
		if err != nil {
			return err
		}
		m, ok := locator.FindBelow(els, field.CenterY, locator.DefaultBelowMargin)
		if !ok {
			m, ok = locator.FindContinueButton(els)
		}
		if ok {
			r.log.Debug("submitting via button", zap.String("button", m.Element.Label()), zap.Stringer("strategy", m.Strategy))
			return r.tap(ctx, m.X, m.Y)
		}
		if err := r.sleeper.Sleep(ctx, r.settle); err != nil {
			return err
		}
	}
	r.log.Debug("no submit button, pressing enter")
	r.fresh = false
	if err := r.device.PressKey(ctx, core.KeyEnter); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	return nil
}
