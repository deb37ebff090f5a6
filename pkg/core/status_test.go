package core

import "testing"

func TestTaskPhase_String(t *testing.T) {
	tests := []struct {
		phase    TaskPhase
		expected string
	}{
		{PhasePending, "pending"},
		{PhaseObserving, "observing"},
		{PhaseAnalyzing, "analyzing"},
		{PhaseAuthenticating, "authenticating"},
		{PhaseActing, "acting"},
		{PhaseVerifying, "verifying"},
		{PhaseConfirming, "confirming"},
		{PhaseQuerying, "querying"},
		{PhaseCompleted, "completed"},
		{PhaseFailed, "failed"},
		{PhaseCancelled, "cancelled"},
		{TaskPhase(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.expected {
			t.Errorf("TaskPhase(%d).String() = %q, want %q", tt.phase, got, tt.expected)
		}
	}
}

func TestTaskPhase_IsTerminal(t *testing.T) {
	terminal := []TaskPhase{PhaseCompleted, PhaseFailed, PhaseCancelled}
	nonTerminal := []TaskPhase{PhasePending, PhaseObserving, PhaseActing, PhaseVerifying, PhaseConfirming}

	for _, p := range terminal {
		if !p.IsTerminal() {
			t.Errorf("TaskPhase(%s).IsTerminal() = false, want true", p)
		}
	}

	for _, p := range nonTerminal {
		if p.IsTerminal() {
			t.Errorf("TaskPhase(%s).IsTerminal() = true, want false", p)
		}
	}
}

func TestTaskPhase_TextRoundTrip(t *testing.T) {
	for p := PhasePending; p <= PhaseCancelled; p++ {
		b, err := p.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", p, err)
		}
		var got TaskPhase
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != p {
			t.Errorf("round trip of %s = %s", p, got)
		}
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryTransientUI, "transient_ui"},
		{ErrCategoryElement, "element_not_found"},
		{ErrCategoryCoordinate, "coordinate"},
		{ErrCategoryAuth, "auth"},
		{ErrCategoryIterationLimit, "iteration_limit"},
		{ErrCategoryAction, "action"},
		{ErrCategoryParse, "parse"},
		{ErrCategoryConnection, "connection"},
		{ErrCategoryConfig, "config"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}

func TestErrorCategory_IsRecoverable(t *testing.T) {
	if !ErrCategoryTransientUI.IsRecoverable() {
		t.Error("transient UI errors should be recoverable")
	}
	if ErrCategoryIterationLimit.IsRecoverable() {
		t.Error("iteration limit should not be recoverable")
	}
}
