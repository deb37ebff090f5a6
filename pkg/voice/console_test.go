package voice

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

func TestConsole_Listen(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("open chatgpt\n  yes  \n"), &out, Options{NoColor: true})
	ctx := context.Background()

	got, err := c.Listen(ctx, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "open chatgpt", got)

	got, err = c.Listen(ctx, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "yes", got)

	_, err = c.Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, out.String(), "> ")
}

func TestConsole_ListenTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := NewConsole(pr, io.Discard, Options{})
	got, err := c.Listen(context.Background(), 20*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)

	// A line typed after the timeout is delivered to the next Listen
	go func() { _, _ = io.WriteString(pw, "late reply\n") }()
	got, err = c.Listen(context.Background(), time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late reply", got)
}

func TestConsole_ListenCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConsole(pr, io.Discard, Options{}).Listen(ctx, time.Second, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsole_Speak(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader(""), &out, Options{Name: "agent", NoColor: true})

	require.NoError(t, c.Speak(context.Background(), "Opened ChatGPT."))
	assert.Equal(t, "agent: Opened ChatGPT.\n", out.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Speak(ctx, "ignored"))
}

func TestNew(t *testing.T) {
	s, err := New(strings.NewReader(""), io.Discard, Options{Backend: "Console"})
	require.NoError(t, err)
	assert.IsType(t, &Console{}, s)

	_, err = New(nil, nil, Options{Backend: "whisper"})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "whisper")
}
