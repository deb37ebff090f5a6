package recovery

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// maxScreenSummary caps how much of the screen description is read back.
const maxScreenSummary = 240

// Issue is a problem handed back to the user once automatic recovery has run
// out. While an issue is pending the agent makes no further progress on its own.
type Issue struct {
	Goal      string
	Screen    string   // What the screen shows
	Attempted []string // What was tried, in order
	Cause     error
}

// Escalate builds an Issue for goal.
func Escalate(goal, screen string, attempted []string, cause error) *Issue {
	return &Issue{
		Goal:      goal,
		Screen:    screen,
		Attempted: append([]string(nil), attempted...),
		Cause:     cause,
	}
}

// Category returns the error category of the cause.
func (i *Issue) Category() core.ErrorCategory {
	return core.CategoryOf(i.Cause)
}

// Summary is the text spoken to the user.
func (i *Issue) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "I couldn't %s.", strings.TrimSuffix(i.Goal, "."))
	if len(i.Attempted) > 0 {
		fmt.Fprintf(&sb, " I tried %s.", strings.Join(i.Attempted, ", then "))
	}
	if i.Cause != nil {
		fmt.Fprintf(&sb, " The problem was: %v.", i.Cause)
	}
	if screen := strings.TrimSpace(i.Screen); screen != "" {
		if r := []rune(screen); len(r) > maxScreenSummary {
			screen = strings.TrimSpace(string(r[:maxScreenSummary])) + "..."
		}
		fmt.Fprintf(&sb, " The screen shows: %s", screen)
		if !strings.HasSuffix(screen, ".") {
			sb.WriteString(".")
		}
	}
	sb.WriteString(" Tell me what to tap or type next, or say cancel.")
	return sb.String()
}
