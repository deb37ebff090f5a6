package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/driver/mock"
)

const (
	loginWall = `<hierarchy>
  <node class="android.widget.TextView" text="Welcome back" bounds="[100,400][980,500]" clickable="false"/>
  <node class="android.widget.Button" text="Continue with Google" bounds="[100,1600][980,1720]" clickable="true"/>
</hierarchy>`

	accountPicker = `<hierarchy>
  <node class="android.widget.TextView" text="Choose an account" bounds="[100,300][980,380]" clickable="false"/>
  <node class="android.widget.Button" text="Continue" bounds="[600,2000][980,2100]" clickable="true"/>
</hierarchy>`

	emailScreen = `<hierarchy>
  <node class="android.widget.EditText" text="" hint="Email" bounds="[50,300][1030,400]" clickable="true"/>
</hierarchy>`

	passwordScreen = `<hierarchy>
  <node class="android.widget.EditText" text="" hint="Password" bounds="[50,300][1030,400]" clickable="true"/>
</hierarchy>`

	bothFields = `<hierarchy>
  <node class="android.widget.EditText" text="" hint="Email" bounds="[50,300][1030,400]" clickable="true"/>
  <node class="android.widget.EditText" text="" hint="Password" bounds="[50,500][1030,600]" clickable="true"/>
  <node class="android.widget.Button" text="Log in" bounds="[50,800][1030,920]" clickable="true"/>
</hierarchy>`

	homeScreen = `<hierarchy>
  <node class="android.widget.TextView" text="Inbox" bounds="[0,100][300,150]" clickable="false"/>
</hierarchy>`
)

func newFlow(dev *mock.Device) *Flow {
	return New(dev, Config{Sleeper: &mock.Sleeper{}})
}

func TestRun_SSO(t *testing.T) {
	dev := mock.NewDevice(loginWall)
	dev.OnTap = func(x, y int) {
		switch dev.Tree() {
		case loginWall:
			dev.SetTree(accountPicker)
		case accountPicker:
			dev.SetTree(homeScreen)
		}
	}

	res := newFlow(dev).Run(context.Background(), Credentials{})
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
	assert.Equal(t, MethodSSO, res.Method)
	assert.Equal(t, []State{StateDetecting, StateSSOLogin}, res.Trace)

	// Bottom-sheet center (540,1660) plus the tap offset, then Continue
	assert.Equal(t, []string{"tap 545 1665", "tap 790 2050"}, tapsOf(dev))
}

func TestRun_SSOSkipsBackButton(t *testing.T) {
	const picker = `<hierarchy>
  <node class="android.widget.ImageButton" resource-id="com.facebook.katana:id/back" content-desc="Back" bounds="[20,100][120,200]" clickable="true"/>
  <node class="android.widget.TextView" text="Choose an account" bounds="[100,300][980,380]" clickable="false"/>
  <node class="android.widget.Button" text="Continue" bounds="[600,1900][1000,2020]" clickable="true"/>
</hierarchy>`
	dev := mock.NewDevice(loginWall)
	dev.OnTap = func(x, y int) {
		switch dev.Tree() {
		case loginWall:
			dev.SetTree(picker)
		case picker:
			if x == 800 && y == 1960 {
				dev.SetTree(homeScreen)
			}
		}
	}

	res := newFlow(dev).Run(context.Background(), Credentials{})
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
	assert.Equal(t, []string{"tap 545 1665", "tap 800 1960"}, tapsOf(dev))
}

func TestRun_SSOFallsBackToCredentials(t *testing.T) {
	dev := mock.NewDevice(loginWall)
	dev.OnTap = func(x, y int) {
		if dev.Tree() == loginWall {
			dev.SetTree(emailScreen)
		}
	}
	dev.OnKey = func(code core.KeyCode) {
		if code != core.KeyEnter {
			return
		}
		switch dev.Tree() {
		case emailScreen:
			dev.SetTree(passwordScreen)
		case passwordScreen:
			dev.SetTree(homeScreen)
		}
	}

	res := newFlow(dev).Run(context.Background(), Credentials{Email: "jane@gmail.com", Password: "hunter2"})
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
	assert.Equal(t, MethodCredentials, res.Method)
	assert.Equal(t, []State{
		StateDetecting, StateSSOLogin, StateCredentialLogin, StateEmailEntry, StatePasswordEntry, StateSubmitting,
	}, res.Trace)
	assert.Equal(t, 1, dev.Count("type jane@gmail.com"))
	assert.Equal(t, 1, dev.Count("type hunter2"))
	assert.Equal(t, 2, dev.Count("key 66"))
}

func TestRun_BothFieldsOnOneScreen(t *testing.T) {
	dev := mock.NewDevice(bothFields)
	dev.OnTap = func(x, y int) {
		if y == 860 { // Log in
			dev.SetTree(homeScreen)
		}
	}

	res := newFlow(dev).Run(context.Background(), Credentials{Email: "jane@gmail.com", Password: "hunter2"})
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
	assert.Equal(t, []string{"tap 540 350", "tap 540 550", "tap 540 860"}, tapsOf(dev))
	assert.Equal(t, []string{"type jane@gmail.com", "type hunter2"}, typesOf(dev))
}

func TestRun_AwaitingCredentials(t *testing.T) {
	dev := mock.NewDevice(emailScreen)
	flow := newFlow(dev)

	res := flow.Run(context.Background(), Credentials{})
	assert.Equal(t, OutcomeAwaitingEmail, res.Outcome)
	assert.Empty(t, typesOf(dev))

	dev.OnKey = func(code core.KeyCode) { dev.SetTree(passwordScreen) }
	res = flow.Resume(context.Background(), Credentials{Email: "jane@gmail.com"}, res.Outcome)
	assert.Equal(t, OutcomeAwaitingPassword, res.Outcome)
	assert.Equal(t, []string{"type jane@gmail.com"}, typesOf(dev))

	dev.OnKey = func(code core.KeyCode) { dev.SetTree(homeScreen) }
	res = flow.Resume(context.Background(), Credentials{Email: "jane@gmail.com", Password: "hunter2"}, res.Outcome)
	require.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
	assert.Equal(t, StatePasswordEntry, res.Trace[0])
	assert.Equal(t, []string{"type jane@gmail.com", "type hunter2"}, typesOf(dev))
}

func TestRun_WrongPasswordFails(t *testing.T) {
	dev := mock.NewDevice(passwordScreen)

	res := newFlow(dev).RunFrom(context.Background(), Credentials{Password: "wrong"}, StatePasswordEntry)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrAuthenticationFailed)
	assert.Equal(t, 2, dev.Count("type wrong"), "one retry, then give up")
}

func TestRun_NoLoginSurface(t *testing.T) {
	dev := mock.NewDevice(homeScreen)
	res := newFlow(dev).Run(context.Background(), Credentials{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "no login surface", res.Reason)
}

func TestRun_StepBudget(t *testing.T) {
	dev := mock.NewDevice(passwordScreen)
	flow := New(dev, Config{Sleeper: &mock.Sleeper{}, MaxSteps: 2})

	res := flow.RunFrom(context.Background(), Credentials{Password: "wrong"}, StatePasswordEntry)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrAuthenticationFailed)
	assert.Len(t, res.Trace, 2)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newFlow(mock.NewDevice(loginWall)).Run(ctx, Credentials{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func tapsOf(dev *mock.Device) []string {
	return callsWithPrefix(dev, "tap ")
}

func typesOf(dev *mock.Device) []string {
	return callsWithPrefix(dev, "type ")
}

func callsWithPrefix(dev *mock.Device, prefix string) []string {
	var out []string
	for _, c := range dev.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}
