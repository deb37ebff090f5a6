package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/devicelab-dev/droidpilot/pkg/auth"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
)

// OutcomeKind says how an utterance was handled.
type OutcomeKind int

const (
	OutcomeIgnored        OutcomeKind = iota // Empty input
	OutcomeReply                             // Conversational input, canned reply
	OutcomeLogin                             // Part of a multi-utterance sign-in
	OutcomeSessionEnded                      // A sticky session was closed
	OutcomeTask                              // A command ran through the machine
	OutcomeCancelled                         // ctx ended before the utterance was handled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeReply:
		return "reply"
	case OutcomeLogin:
		return "login"
	case OutcomeSessionEnded:
		return "session_ended"
	case OutcomeTask:
		return "task"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of Process.
type Outcome struct {
	Kind     OutcomeKind
	Response string // What was said to the user
	Task     *Task  // Nil unless Kind is OutcomeTask
	Workflow *WorkflowState
	Err      error
}

// Phase is the final task phase, or PhasePending when no task ran.
func (o Outcome) Phase() core.TaskPhase {
	if o.Task == nil {
		return core.PhasePending
	}
	return o.Task.Phase
}

// Agent handles utterances one at a time and keeps the session between them.
type Agent struct {
	machine *Machine
	sem     *semaphore.Weighted
	session Session
	log     *zap.Logger
}

// New creates an Agent.
func New(cfg Config, deps Deps) *Agent {
	return &Agent{
		machine: NewMachine(cfg, deps),
		sem:     semaphore.NewWeighted(1),
		log:     logger.Named("agent"),
	}
}

// Session returns a copy of the current session. It waits for any utterance
// in progress.
func (a *Agent) Session(ctx context.Context) (Session, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Session{}, err
	}
	defer a.sem.Release(1)
	return a.session, nil
}

// Process handles one utterance. Calls are serialized; a call waiting for
// another returns OutcomeCancelled if ctx ends first.
func (a *Agent) Process(ctx context.Context, utterance string) Outcome {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Kind: OutcomeCancelled, Err: err}
	}
	defer a.sem.Release(1)

	text := strings.TrimSpace(utterance)
	if text == "" {
		return Outcome{Kind: OutcomeIgnored}
	}
	s := &a.session

	if s.Login.PopupDetected {
		if IsLoginConfirmation(text) {
			a.log.Info("login confirmed")
			s.Login.PopupDetected = false
			s.Login.Active = true
			return a.afterAuth(ctx, a.machine.deps.Auth.Run(ctx, s.credentials()))
		}
		// Only the next utterance may answer the prompt
		s.Login.PopupDetected = false
	}
	if (s.Login.AwaitingEmail || s.Login.AwaitingPassword) && isCancel(text) {
		a.log.Info("sign-in cancelled")
		s.Login = LoginState{}
		return a.reply(ctx, OutcomeLogin, "Cancelled.")
	}
	if s.Login.AwaitingEmail {
		return a.provideEmail(ctx, text)
	}
	if s.Login.AwaitingPassword {
		return a.providePassword(ctx, text)
	}

	var (
		action ParsedAction
		guided *recovery.Issue
	)
	if s.PendingIssue != nil {
		guided, text = a.guidance(text)
		if guided == nil {
			return a.reply(ctx, OutcomeReply, "Okay, I've stopped.")
		}
	}

	if s.Sticky() {
		end, closeApp := sessionClose(text, s.StickyApp)
		switch {
		case end && closeApp:
			action = CloseApp{App: s.StickyApp}
			s.EndSticky()
		case end:
			s.EndSticky()
			return a.reply(ctx, OutcomeSessionEnded, "Session ended.")
		default:
			action = a.followUp(text)
		}
	}

	if action == nil && guided == nil && IsConversational(text) {
		return a.reply(ctx, OutcomeReply, ConversationReply(text))
	}
	if action == nil {
		action = ParseIntent(text)
	}
	return a.runTask(ctx, text, action, guided)
}

// guidance treats an utterance as the user's answer to a pending issue.
// "try again" repeats the failed command; "cancel" drops the issue and
// returns nil.
func (a *Agent) guidance(text string) (*recovery.Issue, string) {
	s := &a.session
	issue, intent := s.PendingIssue, s.issueIntent
	s.PendingIssue, s.issueIntent = nil, ""

	t := tokenize(text)
	switch {
	case t.has(cancelPhrases...):
		return nil, text
	case t.has("try again", "retry") && intent != "":
		a.log.Info("retrying after issue", zap.String("intent", intent))
		return issue, intent
	default:
		return issue, text
	}
}

// followUp turns an utterance made during a sticky session into an action
// for the sticky app.
func (a *Agent) followUp(text string) ParsedAction {
	app := a.session.StickyApp
	if app == "whatsapp" {
		if msg, ok := parseWhatsAppFollowUp(text); ok {
			return msg
		}
		return SendMessage{App: app, Message: trimEnd(text), CurrentChat: true}
	}
	return Query{App: app, Text: trimEnd(text)}
}

func (a *Agent) runTask(ctx context.Context, text string, action ParsedAction, guided *recovery.Issue) Outcome {
	task := NewTask(text)
	ws := a.machine.NewState(task, action)
	ws.Issue = guided

	// Follow-ups for a conversational app skip straight to typing.
	if q, ok := action.(Query); ok && q.App != "" && q.App == a.session.StickyApp {
		ws.PendingQuery = q.Text
		ws.PendingApp = q.App
		ws.NeedsQuery = true
		ws.SessionActive = true
		ws.analyzed = true
		ws.actionDone = true
		ws.ActionSuccess = true
	}

	a.machine.Run(ctx, ws, &a.session)

	if ws.Err != nil && !ws.Cancelled && ws.Issue != nil && ws.Issue != guided {
		a.session.PendingIssue = ws.Issue
		a.session.issueIntent = text
	}
	return Outcome{Kind: OutcomeTask, Response: ws.Response, Task: task, Workflow: ws, Err: ws.Err}
}

func (a *Agent) provideEmail(ctx context.Context, text string) Outcome {
	email, ok := auth.ExtractEmail(text)
	if !ok {
		return a.reply(ctx, OutcomeLogin,
			"I didn't catch your email address. Please say it again, for example: my email is user at gmail dot com.")
	}
	a.log.Info("email received", zap.String("email", auth.MaskEmail(email)))
	s := &a.session
	s.Login.Email = email
	s.Login.AwaitingEmail = false
	return a.afterAuth(ctx, a.machine.deps.Auth.Resume(ctx, auth.Credentials{Email: email}, auth.OutcomeAwaitingEmail))
}

func (a *Agent) providePassword(ctx context.Context, text string) Outcome {
	password, ok := auth.ExtractPassword(text)
	if !ok {
		return a.reply(ctx, OutcomeLogin, "I didn't catch your password. Please say it again.")
	}
	s := &a.session
	s.Login.AwaitingPassword = false
	creds := auth.Credentials{Email: s.Login.Email, Password: password}
	return a.afterAuth(ctx, a.machine.deps.Auth.Resume(ctx, creds, auth.OutcomeAwaitingPassword))
}

// afterAuth reports a login step to the user.
func (a *Agent) afterAuth(ctx context.Context, res auth.Result) Outcome {
	text := a.session.applyAuth(res)
	if res.Outcome == auth.OutcomeFailed {
		err := res.Err
		if err == nil {
			err = core.ErrAuthenticationFailed.WithMessage(res.Reason)
		}
		attempted := make([]string, 0, len(res.Trace))
		for _, st := range res.Trace {
			attempted = append(attempted, strings.ReplaceAll(st.String(), "_", " "))
		}
		issue := recovery.Escalate("sign in", "", attempted, err)
		a.session.PendingIssue = issue
		a.session.issueIntent = "log in"
		out := a.reply(ctx, OutcomeLogin, issue.Summary())
		out.Err = err
		return out
	}
	return a.reply(ctx, OutcomeLogin, text)
}

func (a *Agent) reply(ctx context.Context, kind OutcomeKind, text string) Outcome {
	a.log.Info("reply", zap.Stringer("kind", kind), zap.String("text", text))
	if sp := a.machine.deps.Speech; sp != nil {
		if err := sp.Speak(context.WithoutCancel(ctx), text); err != nil {
			a.log.Warn("could not speak reply", zap.Error(err))
		}
	}
	return Outcome{Kind: kind, Response: text}
}

// String summarizes an outcome for logs and the command line.
func (o Outcome) String() string {
	if o.Task == nil {
		return fmt.Sprintf("%s: %s", o.Kind, o.Response)
	}
	return fmt.Sprintf("%s %s (%s): %s", o.Kind, o.Task.ID, o.Task.Phase, o.Response)
}
