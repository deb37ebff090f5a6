package agent

import (
	"github.com/devicelab-dev/droidpilot/pkg/auth"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
)

// conversableApps keep a sticky session after a task: follow-up utterances go
// to the app instead of being parsed as new commands.
var conversableApps = map[string]bool{
	"chatgpt":    true,
	"whatsapp":   true,
	"gemini":     true,
	"claude":     true,
	"perplexity": true,
}

// LoginState tracks a sign-in that spans several utterances.
type LoginState struct {
	Active           bool
	AwaitingEmail    bool
	AwaitingPassword bool
	PopupDetected    bool // A login prompt was seen and the user was asked to confirm
	Email            string
}

// Session is what the agent remembers between commands.
type Session struct {
	StickyApp    string
	Login        LoginState
	PendingIssue *recovery.Issue
	LastApp      string

	issueIntent string // Command that produced PendingIssue
}

// Reset forgets everything.
func (s *Session) Reset() {
	*s = Session{}
}

// StartSticky routes later utterances to app. Opening a different app drops
// any login in progress.
func (s *Session) StartSticky(app string) {
	if s.LastApp != "" && s.LastApp != app {
		s.Login = LoginState{}
	}
	s.StickyApp = app
	s.LastApp = app
}

// EndSticky stops routing utterances to the sticky app.
func (s *Session) EndSticky() {
	s.StickyApp = ""
}

// Sticky reports whether a sticky session is active.
func (s *Session) Sticky() bool {
	return s.StickyApp != ""
}

// credentials returns what is known of the user's login.
func (s *Session) credentials() auth.Credentials {
	return auth.Credentials{Email: s.Login.Email}
}

// awaiting returns the credential the login is blocked on.
func (s *Session) awaiting() (auth.Outcome, bool) {
	switch {
	case s.Login.AwaitingEmail:
		return auth.OutcomeAwaitingEmail, true
	case s.Login.AwaitingPassword:
		return auth.OutcomeAwaitingPassword, true
	default:
		return auth.OutcomeFailed, false
	}
}

// applyAuth records how a login attempt ended and returns what to tell the
// user. Failures return "" and are explained by the caller.
func (s *Session) applyAuth(res auth.Result) string {
	email := s.Login.Email
	switch res.Outcome {
	case auth.OutcomeSuccess:
		s.Login = LoginState{Email: email}
		return "You're signed in."
	case auth.OutcomeAwaitingEmail:
		s.Login = LoginState{Active: true, AwaitingEmail: true, Email: email}
		return "I see a login screen. Please say your email address."
	case auth.OutcomeAwaitingPassword:
		s.Login = LoginState{Active: true, AwaitingPassword: true, Email: email}
		return "Please say your password."
	default:
		s.Login = LoginState{Email: email}
		return ""
	}
}
