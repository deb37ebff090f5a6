// Package auth drives an app's login screens: single sign-on first, then
// email and password entry, within a bounded step budget.
package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// State is a step of the login flow.
type State int

const (
	StateDetecting State = iota
	StateSSOLogin
	StateCredentialLogin
	StateEmailEntry
	StatePasswordEntry
	StateSubmitting
	StateRetry
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDetecting:
		return "detecting"
	case StateSSOLogin:
		return "sso_login"
	case StateCredentialLogin:
		return "credential_login"
	case StateEmailEntry:
		return "email_entry"
	case StatePasswordEntry:
		return "password_entry"
	case StateSubmitting:
		return "submitting"
	case StateRetry:
		return "retry"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is how a Run ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeAwaitingEmail    // Email field found but no email known
	OutcomeAwaitingPassword // Password field found but no password known
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeAwaitingEmail:
		return "awaiting_email"
	case OutcomeAwaitingPassword:
		return "awaiting_password"
	default:
		return "unknown"
	}
}

// Login methods reported in Result.Method.
const (
	MethodSSO         = "sso"
	MethodCredentials = "credentials"
)

// Credentials are the user's login details. Either may be empty.
type Credentials struct {
	Email    string
	Password string
}

// String masks the credentials so they can be passed to a logger safely.
func (c Credentials) String() string {
	pw := ""
	if c.Password != "" {
		pw = "****"
	}
	return fmt.Sprintf("{email:%s password:%s}", MaskEmail(c.Email), pw)
}

// Result is the outcome of a Run.
type Result struct {
	Outcome Outcome
	Method  string
	Reason  string
	Err     error
	Trace   []State // States visited, in order
}

// Defaults for Config.
const (
	DefaultMaxSteps     = 10
	DefaultSettle       = 1500 * time.Millisecond
	maxContinueSearches = 5
	maxSubmitSearches   = 5
	ssoTapOffset        = 5
	maxDetectRetries    = 1
	maxPasswordRetries  = 1
)

// Config tunes a Flow. Zero values select the defaults.
type Config struct {
	MaxSteps int
	Settle   time.Duration // Wait for the screen after each tap
	Sleeper  recovery.Sleeper
}

// Flow runs the login subflow against a device.
type Flow struct {
	device   core.Actuator
	maxSteps int
	settle   time.Duration
	sleeper  recovery.Sleeper
	log      *zap.Logger
}

// New creates a Flow.
func New(device core.Actuator, cfg Config) *Flow {
	f := &Flow{
		device:   device,
		maxSteps: cfg.MaxSteps,
		settle:   cfg.Settle,
		sleeper:  cfg.Sleeper,
		log:      logger.Named("auth"),
	}
	if f.maxSteps <= 0 {
		f.maxSteps = DefaultMaxSteps
	}
	if f.settle <= 0 {
		f.settle = DefaultSettle
	}
	if f.sleeper == nil {
		f.sleeper = recovery.RealSleeper
	}
	return f
}

// run is the per-call state of one Run.
type run struct {
	*Flow
	creds Credentials

	elements []uitree.ClickableElement
	fresh    bool // elements reflect the current screen
	ssoTried bool
	retryTo  State
	retries  map[State]int

	usedCredentials bool
}

// Run walks the login states until success, failure, a missing credential,
// or the step budget runs out.
func (f *Flow) Run(ctx context.Context, creds Credentials) Result {
	return f.RunFrom(ctx, creds, StateDetecting)
}

// Resume continues a run that stopped for a missing credential, starting at
// the entry state for that credential.
func (f *Flow) Resume(ctx context.Context, creds Credentials, awaiting Outcome) Result {
	switch awaiting {
	case OutcomeAwaitingEmail:
		return f.RunFrom(ctx, creds, StateCredentialLogin)
	case OutcomeAwaitingPassword:
		return f.RunFrom(ctx, creds, StatePasswordEntry)
	default:
		return f.Run(ctx, creds)
	}
}

// RunFrom is Run starting at an arbitrary state.
func (f *Flow) RunFrom(ctx context.Context, creds Credentials, start State) Result {
	r := &run{Flow: f, creds: creds, retries: make(map[State]int)}
	f.log.Info("login started", zap.Stringer("credentials", creds), zap.Stringer("state", start))

	var trace []State
	state := start
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return Result{Outcome: OutcomeFailed, Reason: "cancelled", Err: err, Trace: trace}
		}
		if step >= f.maxSteps {
			return Result{
				Outcome: OutcomeFailed,
				Reason:  "login did not finish within its step budget",
				Err:     core.ErrAuthenticationFailed.WithMessage(fmt.Sprintf("login exceeded %d steps", f.maxSteps)),
				Trace:   trace,
			}
		}

		trace = append(trace, state)
		next, res := r.step(ctx, state)
		if res != nil {
			res.Trace = trace
			f.log.Info("login finished",
				zap.Stringer("outcome", res.Outcome), zap.String("method", res.Method), zap.String("reason", res.Reason))
			return *res
		}
		f.log.Debug("login transition", zap.Stringer("from", state), zap.Stringer("to", next))
		state = next
	}
}

func (r *run) step(ctx context.Context, s State) (State, *Result) {
	switch s {
	case StateDetecting:
		return r.detect(ctx)
	case StateSSOLogin:
		return r.sso(ctx)
	case StateCredentialLogin:
		return r.credentials(ctx)
	case StateEmailEntry:
		return r.email(ctx)
	case StatePasswordEntry:
		return r.password(ctx)
	case StateSubmitting:
		return r.submitted(ctx)
	case StateRetry:
		return r.retry()
	default:
		return StateFailed, failed(fmt.Sprintf("unexpected state %s", s), nil)
	}
}

func failed(reason string, cause error) *Result {
	err := core.ErrAuthenticationFailed.WithMessage(reason)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return &Result{Outcome: OutcomeFailed, Reason: reason, Err: err}
}

func succeeded(method string) *Result {
	return &Result{Outcome: OutcomeSuccess, Method: method}
}

// dump refreshes the element list.
func (r *run) dump(ctx context.Context) ([]uitree.ClickableElement, error) {
	raw, err := r.device.DumpUITree(ctx)
	if err != nil {
		return nil, err
	}
	els, err := uitree.Parse(raw)
	if err != nil {
		return nil, err
	}
	r.elements, r.fresh = els, true
	return els, nil
}

func (r *run) tap(ctx context.Context, x, y int) error {
	r.fresh = false
	if err := r.device.Tap(ctx, x, y); err != nil {
		return core.ErrActionExecutionFailed.WithCause(err)
	}
	return r.sleeper.Sleep(ctx, r.settle)
}

// MaskEmail hides the local part of an email address for logs.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			if i == 0 {
				return "***" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}
