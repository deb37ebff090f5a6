// Package agent turns user utterances into device actions. A Machine runs
// one task through a bounded state machine; an Agent owns the session that
// persists between tasks and routes each utterance.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/droidpilot/pkg/auth"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/device"
	"github.com/devicelab-dev/droidpilot/pkg/history"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
)

// Config tunes the machine. Zero values select the defaults.
type Config struct {
	MaxIterations   int
	ScreenshotDelay time.Duration // Wait after launching an app
	Settle          time.Duration // Wait after a tap
	ListenTimeout   time.Duration
	PhraseLimit     time.Duration
	ResponseWait    time.Duration // Time a conversational app gets to answer
	Retry           recovery.RetryPolicy
}

// DefaultConfig returns the defaults used when a Config field is zero.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   5,
		ScreenshotDelay: 1500 * time.Millisecond,
		Settle:          time.Second,
		ListenTimeout:   10 * time.Second,
		PhraseLimit:     25 * time.Second,
		ResponseWait:    6 * time.Second,
		Retry:           recovery.DefaultRetryPolicy,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ScreenshotDelay <= 0 {
		c.ScreenshotDelay = d.ScreenshotDelay
	}
	if c.Settle <= 0 {
		c.Settle = d.Settle
	}
	if c.ListenTimeout <= 0 {
		c.ListenTimeout = d.ListenTimeout
	}
	if c.PhraseLimit <= 0 {
		c.PhraseLimit = d.PhraseLimit
	}
	if c.ResponseWait <= 0 {
		c.ResponseWait = d.ResponseWait
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry = d.Retry
	}
	return c
}

// Deps are the machine's collaborators. Device is required; Describer,
// Speech and History are optional.
type Deps struct {
	Device    core.Actuator
	Apps      *device.Apps
	Describer core.Describer
	Speech    core.Speech
	Decider   DecisionProvider
	Auth      *auth.Flow
	History   *history.Store
	Sleeper   recovery.Sleeper
}

// Machine runs tasks. It holds no per-task state and may be reused.
type Machine struct {
	cfg      Config
	deps     Deps
	observer *Observer
	log      *zap.Logger
}

// NewMachine creates a Machine.
func NewMachine(cfg Config, deps Deps) *Machine {
	cfg = cfg.withDefaults()
	if deps.Sleeper == nil {
		deps.Sleeper = recovery.RealSleeper
	}
	if deps.Apps == nil {
		deps.Apps = device.NewApps(nil)
	}
	if deps.Decider == nil {
		deps.Decider = RuleBased{}
	}
	if deps.Auth == nil {
		deps.Auth = auth.New(deps.Device, auth.Config{Settle: cfg.Settle, Sleeper: deps.Sleeper})
	}
	return &Machine{
		cfg:      cfg,
		deps:     deps,
		observer: NewObserver(deps.Device, deps.Describer),
		log:      logger.Named("agent"),
	}
}

// NewState prepares the workflow state for a task.
func (m *Machine) NewState(task *Task, action ParsedAction) *WorkflowState {
	return &WorkflowState{
		Intent:        task.OriginalIntent,
		Action:        action,
		MaxIterations: m.cfg.MaxIterations,
		task:          task,
	}
}

type stepFunc func(ctx context.Context, ws *WorkflowState) State

// run is the per-task view of a Machine.
type run struct {
	*Machine
	sess  *Session
	steps map[State]stepFunc
}

func (m *Machine) newRun(sess *Session) *run {
	r := &run{Machine: m, sess: sess}
	r.steps = map[State]stepFunc{
		StateObserve:      r.observe,
		StateAnalyze:      r.analyze,
		StateAuthenticate: r.authenticate,
		StateAct:          r.act,
		StateVerify:       r.verify,
		StateConfirm:      r.confirm,
		StateExecuteQuery: r.executeQuery,
		StateHandleError:  r.handleError,
	}
	return r
}

// transitionLimit bounds the number of state transitions of one task, so a
// routing mistake cannot loop forever.
func transitionLimit(maxIterations int) int {
	return maxIterations*8 + 16
}

// Run drives ws to Respond, then speaks the answer and archives the task.
// sess is read and updated in place.
func (m *Machine) Run(ctx context.Context, ws *WorkflowState, sess *Session) {
	if sess == nil {
		sess = &Session{}
	}
	if ws.task == nil {
		ws.task = NewTask(ws.Intent)
	}
	r := m.newRun(sess)
	limit := transitionLimit(ws.MaxIterations)

	state := StateObserve
	if ws.NeedsQuery && ws.PendingQuery != "" {
		state = StateExecuteQuery
	}
	m.log.Info("task started",
		zap.String("task", ws.task.ID), zap.String("intent", ws.Intent), zap.String("action", describe(ws.Action)))

	for transitions := 0; state != StateRespond; transitions++ {
		if err := ctx.Err(); err != nil {
			ws.fail(err)
			ws.Cancelled = true
			break
		}
		if transitions >= limit {
			ws.fail(core.ErrIterationLimitExceeded.WithMessage(fmt.Sprintf("task made %d transitions", transitions)))
			break
		}
		ws.task.Phase = state.phase()
		ws.Trace = append(ws.Trace, state)
		next := r.steps[state](ctx, ws)
		m.log.Debug("transition", zap.Stringer("from", state), zap.Stringer("to", next), zap.Int("iteration", ws.Iteration))
		state = next
	}
	ws.Trace = append(ws.Trace, StateRespond)
	r.respond(ctx, ws)
}

// nextAfterVerify routes a task once an action's effect has been checked.
func nextAfterVerify(ws *WorkflowState) State {
	switch {
	case ws.NeedsAuth:
		return StateAuthenticate
	case ws.TaskComplete && !ws.SessionActive:
		return StateRespond
	case ws.NeedsConfirmation:
		return StateConfirm
	case ws.NeedsQuery:
		return StateExecuteQuery
	case ws.Err != nil && !ws.SessionActive:
		return StateHandleError
	case ws.SessionActive:
		return StateRespond
	default:
		return StateObserve
	}
}

func (r *run) respond(ctx context.Context, ws *WorkflowState) {
	ws.Response = r.compose(ws)

	switch {
	case ws.Cancelled:
		ws.task.Phase = core.PhaseCancelled
	case ws.Err != nil:
		ws.task.Phase = core.PhaseFailed
	default:
		ws.task.Phase = core.PhaseCompleted
	}

	// The answer is spoken even when the task was cancelled.
	ctx = context.WithoutCancel(ctx)
	if r.deps.Speech != nil {
		if err := r.deps.Speech.Speak(ctx, ws.Response); err != nil {
			r.log.Warn("could not speak response", zap.Error(err))
		}
	}
	r.log.Info("task finished",
		zap.String("task", ws.task.ID),
		zap.Stringer("phase", ws.task.Phase),
		zap.Int("iterations", ws.Iteration),
		zap.Error(ws.Err))
	r.archive(ws)
}

// compose picks the final answer: an explicit response, then the action's
// success text, then an explanation of the failure.
func (r *run) compose(ws *WorkflowState) string {
	if ws.Cancelled && ws.Response == "" {
		return "Stopped."
	}
	if ws.Response != "" {
		return ws.Response
	}
	if ws.Err == nil && ws.ActionSuccess {
		return successText(ws)
	}
	if ws.Err != nil {
		if ws.Issue == nil {
			ws.Issue = r.escalate(ws)
		}
		return ws.Issue.Summary()
	}
	return "Done."
}

func (r *run) escalate(ws *WorkflowState) *recovery.Issue {
	screen := ""
	if ws.Snapshot != nil {
		screen = ws.Snapshot.Description.Text
	}
	goal := ws.Intent
	if ws.Action != nil {
		goal = describe(ws.Action)
	}
	return recovery.Escalate(goal, screen, ws.task.StepsCompleted, ws.Err)
}

func successText(ws *WorkflowState) string {
	switch a := ws.Action.(type) {
	case OpenApp:
		if a.WantsLogin {
			return fmt.Sprintf("Opened %s and signed in.", a.App)
		}
		return fmt.Sprintf("Opened %s.", a.App)
	case CloseApp:
		if ws.app == "" {
			return "Closed the app."
		}
		return fmt.Sprintf("Closed %s.", ws.app)
	case Login:
		return "You're signed in."
	case TapElement:
		return fmt.Sprintf("Tapped %s.", a.Target)
	case SendMessage:
		if a.Recipient == "" {
			return "Sent your message."
		}
		return fmt.Sprintf("Sent your message to %s.", a.Recipient)
	case SendPayment:
		return fmt.Sprintf("Paid %s rupees to %s.", a.Amount, a.Recipient)
	case Search:
		return fmt.Sprintf("Searched for %s.", a.Query)
	default:
		return "Done."
	}
}

func (r *run) archive(ws *WorkflowState) {
	if r.deps.History == nil {
		return
	}
	rec := &history.Record{
		ID:         ws.task.ID,
		Intent:     ws.task.OriginalIntent,
		StartedAt:  ws.task.StartedAt,
		FinishedAt: time.Now(),
		Phase:      ws.task.Phase,
		Steps:      ws.task.StepsCompleted,
		Iterations: ws.Iteration,
		ErrorCount: ws.task.ErrorCount,
		RetryCount: ws.task.RetryCount,
		Response:   ws.Response,
	}
	if ws.Action != nil {
		rec.Action = ws.Action.Kind().String()
		rec.App = appOf(ws.Action)
	}
	if ws.Err != nil {
		rec.Error = ws.Err.Error()
		rec.Category = core.CategoryOf(ws.Err).String()
	}
	if err := r.deps.History.Save(rec); err != nil {
		r.log.Warn("could not archive task", zap.String("task", ws.task.ID), zap.Error(err))
	}
}
