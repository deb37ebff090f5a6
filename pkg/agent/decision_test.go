package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/driver/mock"
	"github.com/devicelab-dev/droidpilot/pkg/vision"
)

func snapshot(flags core.ScreenFlags) *ScreenSnapshot {
	s := &ScreenSnapshot{Description: core.Description{Text: "a screen", Flags: flags}}
	s.Frame.DeviceW, s.Frame.DeviceH = 1080, 2400
	return s
}

func TestRuleBased(t *testing.T) {
	ctx := context.Background()
	rb := RuleBased{}

	t.Run("pending query with an input", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "chatgpt", Query: "hi"}, Snapshot: snapshot(core.ScreenFlags{}),
			Elements: parseTree(t, chatTree), PendingQuery: "hi",
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionExecuteQuery, d.Kind)
	})

	t.Run("login sheet asks first", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "gmail"}, Snapshot: snapshot(core.ScreenFlags{}), Elements: parseTree(t, loginSheetTree),
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAskConfirmation, d.Kind)
		assert.True(t, d.Login)
		assert.Equal(t, loginPrompt, d.Prompt)
		require.NotNil(t, d.Target)
		assert.Equal(t, "Continue with Google", d.Target.Element.Label())
	})

	t.Run("login flag without a sheet", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "gmail"}, Snapshot: snapshot(core.ScreenFlags{IsLoginScreen: true}), Elements: parseTree(t, inboxTree),
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAskConfirmation, d.Kind)
		assert.Nil(t, d.Target)
	})

	t.Run("requested login is not asked about", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "gmail", WantsLogin: true}, Snapshot: snapshot(core.ScreenFlags{IsLoginScreen: true}),
			Elements: parseTree(t, inboxTree),
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionDone, d.Kind)
	})

	t.Run("onboarding proceeds", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "settings"}, Snapshot: snapshot(core.ScreenFlags{}), Elements: parseTree(t, onboardingTree(1)),
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAutoProceed, d.Kind)
		require.NotNil(t, d.Target)
		assert.Equal(t, "Continue", d.Target.Element.Label())
	})

	t.Run("nothing to do", func(t *testing.T) {
		d, err := rb.Decide(ctx, DecisionInput{
			Action: OpenApp{App: "shop"}, Snapshot: snapshot(core.ScreenFlags{}), Elements: parseTree(t, payTree),
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionDone, d.Kind)
	})
}

func hint(decision, target, reason string) *core.Description {
	return &core.Description{Decision: &core.DecisionHint{Decision: decision, Target: target, Reason: reason}}
}

func TestVisionDecider(t *testing.T) {
	ctx := context.Background()
	dev := mock.NewDevice(payTree)

	tests := []struct {
		name      string
		reply     *core.Description
		err       error
		action    ParsedAction
		elements  string
		pending   string
		want      DecisionKind
		wantLabel string
	}{
		{
			name: "proceed resolves its target", reply: hint(vision.DecisionAutoProceed, "continue", "welcome screen"),
			action: OpenApp{App: "settings"}, elements: onboardingTree(1), want: DecisionAutoProceed, wantLabel: "Continue",
		},
		{
			name: "unresolvable target falls back", reply: hint(vision.DecisionAutoProceed, "get started", ""),
			action: OpenApp{App: "shop"}, elements: payTree, want: DecisionDone,
		},
		{
			name: "service error falls back", err: errors.New("quota exceeded"),
			action: OpenApp{App: "settings"}, elements: onboardingTree(1), want: DecisionAutoProceed, wantLabel: "Continue",
		},
		{
			name: "missing hint falls back", reply: &core.Description{Text: "a shop"},
			action: OpenApp{App: "shop"}, elements: payTree, want: DecisionDone,
		},
		{
			name: "requested login is not confirmed again", reply: hint(vision.DecisionAskConfirmation, "sign in", ""),
			action: OpenApp{App: "gmail", WantsLogin: true}, elements: loginSheetTree, want: DecisionDone,
		},
		{
			name: "confirmation carries the reason", reply: hint(vision.DecisionAskConfirmation, "pay", "This charges your card."),
			action: OpenApp{App: "shop"}, elements: payTree, want: DecisionAskConfirmation, wantLabel: "Pay",
		},
		{
			name: "query without a pending query falls back", reply: hint(vision.DecisionExecuteQuery, "", ""),
			action: OpenApp{App: "shop"}, elements: payTree, want: DecisionDone,
		},
		{
			name: "query with a pending query", reply: hint(vision.DecisionExecuteQuery, "", ""),
			action: OpenApp{App: "chatgpt", Query: "hi"}, elements: chatTree, pending: "hi", want: DecisionExecuteQuery,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			describer := &mock.Describer{Err: tt.err}
			if tt.reply != nil {
				describer.Responses = []*core.Description{tt.reply}
			}
			v := &VisionDecider{Device: dev, Describer: describer}

			d, err := v.Decide(ctx, DecisionInput{
				Intent: "open it", Action: tt.action, Snapshot: snapshot(core.ScreenFlags{}),
				Elements: parseTree(t, tt.elements), PendingQuery: tt.pending,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Kind)
			if tt.wantLabel != "" {
				require.NotNil(t, d.Target)
				assert.Equal(t, tt.wantLabel, d.Target.Element.Label())
			}
			if d.Kind == DecisionAskConfirmation && !d.Login {
				assert.Equal(t, "This charges your card. Should I go ahead?", d.Prompt)
			}
		})
	}
}

func TestVisionDeciderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := &VisionDecider{
		Device:    mock.NewDevice(payTree),
		Describer: &mock.Describer{Err: context.Canceled},
	}
	_, err := v.Decide(ctx, DecisionInput{Action: OpenApp{App: "shop"}})
	assert.ErrorIs(t, err, context.Canceled)
}
