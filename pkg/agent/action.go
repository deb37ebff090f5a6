package agent

import "fmt"

// ActionKind identifies a ParsedAction variant.
type ActionKind int

const (
	KindOpenApp ActionKind = iota + 1
	KindCloseApp
	KindLogin
	KindTapElement
	KindSendMessage
	KindSendPayment
	KindSearch
	KindExtract
	KindQuery
)

func (k ActionKind) String() string {
	switch k {
	case KindOpenApp:
		return "open_app"
	case KindCloseApp:
		return "close_app"
	case KindLogin:
		return "login"
	case KindTapElement:
		return "tap_element"
	case KindSendMessage:
		return "send_message"
	case KindSendPayment:
		return "send_payment"
	case KindSearch:
		return "search"
	case KindExtract:
		return "extract"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// ParsedAction is what a command asks for. The set of variants is closed.
type ParsedAction interface {
	isAction()
	Kind() ActionKind
}

// OpenApp launches App, then optionally types Query into it or signs in.
type OpenApp struct {
	App        string
	Query      string
	WantsLogin bool
}

// CloseApp leaves App, or the current app when App is empty.
type CloseApp struct {
	App string
}

// Login runs the sign-in subflow on the current screen.
type Login struct{}

// TapElement taps the control labelled Target.
type TapElement struct {
	Target string
}

// SendMessage sends Message to Recipient, or to the open chat when
// CurrentChat is set.
type SendMessage struct {
	App         string
	Recipient   string
	Message     string
	CurrentChat bool
}

// SendPayment pays Amount to Recipient. It always asks before paying.
type SendPayment struct {
	App       string
	Amount    string
	Recipient string
}

// Search types Query into the app's search control.
type Search struct {
	Query string
}

// Extract reads the screen, or the part of it about Target.
type Extract struct {
	Target string
}

// Query types Text into the current (or given) app's input and reads the
// reply.
type Query struct {
	App  string
	Text string
}

func (OpenApp) isAction()     {}
func (CloseApp) isAction()    {}
func (Login) isAction()       {}
func (TapElement) isAction()  {}
func (SendMessage) isAction() {}
func (SendPayment) isAction() {}
func (Search) isAction()      {}
func (Extract) isAction()     {}
func (Query) isAction()       {}

func (OpenApp) Kind() ActionKind     { return KindOpenApp }
func (CloseApp) Kind() ActionKind    { return KindCloseApp }
func (Login) Kind() ActionKind       { return KindLogin }
func (TapElement) Kind() ActionKind  { return KindTapElement }
func (SendMessage) Kind() ActionKind { return KindSendMessage }
func (SendPayment) Kind() ActionKind { return KindSendPayment }
func (Search) Kind() ActionKind      { return KindSearch }
func (Extract) Kind() ActionKind     { return KindExtract }
func (Query) Kind() ActionKind       { return KindQuery }

// describe is a short phrase for logs and history.
func describe(a ParsedAction) string {
	switch a := a.(type) {
	case OpenApp:
		s := "open " + a.App
		if a.Query != "" {
			s += fmt.Sprintf(" and ask %q", a.Query)
		}
		if a.WantsLogin {
			s += " and sign in"
		}
		return s
	case CloseApp:
		if a.App == "" {
			return "close the app"
		}
		return "close " + a.App
	case Login:
		return "sign in"
	case TapElement:
		return "tap " + a.Target
	case SendMessage:
		if a.CurrentChat || a.Recipient == "" {
			return "send a message in the open chat"
		}
		return "send a message to " + a.Recipient
	case SendPayment:
		return fmt.Sprintf("pay %s to %s", a.Amount, a.Recipient)
	case Search:
		return "search for " + a.Query
	case Extract:
		if a.Target == "" {
			return "read the screen"
		}
		return "read " + a.Target
	case Query:
		return fmt.Sprintf("ask %q", a.Text)
	case nil:
		return "nothing"
	default:
		return a.Kind().String()
	}
}

// appOf returns the app an action names, if any.
func appOf(a ParsedAction) string {
	switch a := a.(type) {
	case OpenApp:
		return a.App
	case CloseApp:
		return a.App
	case SendMessage:
		return a.App
	case SendPayment:
		return a.App
	case Query:
		return a.App
	default:
		return ""
	}
}
