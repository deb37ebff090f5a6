package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/droidpilot/pkg/coords"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/locator"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
	"github.com/devicelab-dev/droidpilot/pkg/uitree"
)

// State is a node of the task state machine.
type State int

const (
	StateObserve State = iota
	StateAnalyze
	StateAuthenticate
	StateAct
	StateVerify
	StateConfirm
	StateExecuteQuery
	StateHandleError
	StateRespond
)

func (s State) String() string {
	switch s {
	case StateObserve:
		return "observe"
	case StateAnalyze:
		return "analyze"
	case StateAuthenticate:
		return "authenticate"
	case StateAct:
		return "act"
	case StateVerify:
		return "verify"
	case StateConfirm:
		return "confirm"
	case StateExecuteQuery:
		return "execute_query"
	case StateHandleError:
		return "handle_error"
	case StateRespond:
		return "respond"
	default:
		return "unknown"
	}
}

// phase maps a state to the task phase reported while it runs.
func (s State) phase() core.TaskPhase {
	switch s {
	case StateObserve:
		return core.PhaseObserving
	case StateAnalyze:
		return core.PhaseAnalyzing
	case StateAuthenticate:
		return core.PhaseAuthenticating
	case StateAct:
		return core.PhaseActing
	case StateVerify, StateHandleError:
		return core.PhaseVerifying
	case StateConfirm:
		return core.PhaseConfirming
	case StateExecuteQuery:
		return core.PhaseQuerying
	default:
		return core.PhasePending
	}
}

// Task is one command from the user, from parsing to the spoken answer.
type Task struct {
	ID             string
	OriginalIntent string
	StartedAt      time.Time
	StepsCompleted []string
	ErrorCount     int
	RetryCount     int
	Phase          core.TaskPhase
}

// NewTask starts a task for intent.
func NewTask(intent string) *Task {
	return &Task{
		ID:             uuid.NewString(),
		OriginalIntent: intent,
		StartedAt:      time.Now(),
		Phase:          core.PhasePending,
	}
}

func (t *Task) step(s string) {
	t.StepsCompleted = append(t.StepsCompleted, s)
}

// ScreenSnapshot is one observation of the screen. It is not modified after
// capture.
type ScreenSnapshot struct {
	Description core.Description
	Frame       coords.Frame
	Fingerprint recovery.Fingerprint
	CapturedAt  time.Time
	Structural  bool // Description was built from the UI tree alone
}

// WorkflowState is the mutable state of one task run.
type WorkflowState struct {
	Intent string
	Action ParsedAction

	Snapshot *ScreenSnapshot
	Elements []uitree.ClickableElement
	fresh    bool // Snapshot and Elements reflect the current screen

	Iteration     int
	MaxIterations int

	NeedsAuth         bool
	ActionSuccess     bool
	TaskComplete      bool
	SessionActive     bool
	NeedsConfirmation bool
	NeedsQuery        bool

	PendingQuery  string
	PendingApp    string
	PendingTap    *locator.Match
	ConfirmPrompt string
	confirmAuth   bool // Confirming a sign-in rather than a tap

	proceeded []string // Onboarding labels tapped by AutoProceed

	analyzed   bool
	actionDone bool   // Act has run for Action
	app        string // Friendly name of the app the action resolved to

	Err            error
	LastGoodScreen recovery.Fingerprint
	Response       string
	Issue          *recovery.Issue // Set when the task ended in, or was guided by, an issue
	Cancelled      bool
	Trace          []State // States visited, in order

	task *Task
}

// Task returns the task being run.
func (ws *WorkflowState) Task() *Task {
	return ws.task
}

// fail records err and ends the task.
func (ws *WorkflowState) fail(err error) {
	ws.Err = err
	ws.ActionSuccess = false
	ws.TaskComplete = true
	if ws.task != nil {
		ws.task.ErrorCount++
	}
}
