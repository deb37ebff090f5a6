// Package voice provides the user-facing speech channel.
package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// Backend names accepted by New.
const (
	BackendConsole = "console"
)

// Options configures a speech channel.
type Options struct {
	Backend    string
	SpeechRate int // Words per minute, for speech backends
	NoColor    bool
	Name       string // Speaker label, "droidpilot" if empty
}

// New returns the speech channel for opts.Backend. Only the console backend
// is built in.
func New(in io.Reader, out io.Writer, opts Options) (core.Speech, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendConsole:
		return NewConsole(in, out, opts), nil
	default:
		return nil, core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("unsupported speech backend %q (supported: %s)", opts.Backend, BackendConsole))
	}
}

// Console reads typed utterances and prints replies.
type Console struct {
	in  io.Reader
	out io.Writer

	startOnce sync.Once
	lines     chan string
	readErr   error

	mu      sync.Mutex // serializes writes
	name    string
	prompt  lipgloss.Style
	speaker lipgloss.Style
	body    lipgloss.Style
}

var _ core.Speech = (*Console)(nil)

// NewConsole creates a console channel.
func NewConsole(in io.Reader, out io.Writer, opts Options) *Console {
	r := lipgloss.NewRenderer(out)
	c := &Console{
		in:      in,
		out:     out,
		lines:   make(chan string),
		name:    opts.Name,
		prompt:  r.NewStyle().Foreground(lipgloss.Color("8")),
		speaker: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		body:    r.NewStyle(),
	}
	if c.name == "" {
		c.name = "droidpilot"
	}
	if opts.NoColor {
		c.prompt, c.speaker, c.body = r.NewStyle(), r.NewStyle(), r.NewStyle()
	}
	return c
}

// start launches the reader goroutine. It exits when the input ends.
func (c *Console) start() {
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		c.readErr = scanner.Err()
	}()
}

// Listen waits up to timeout for a line. It returns "" with a nil error on
// timeout and io.EOF once the input is exhausted. A typed line arrives
// whole, so phraseLimit does not apply.
func (c *Console) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error) {
	c.startOnce.Do(c.start)
	c.write(c.prompt.Render("> "))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	case <-timer.C:
		c.write("\n")
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Speak prints text attributed to the agent.
func (c *Console) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.write(c.speaker.Render(c.name+":") + " " + c.body.Render(text) + "\n")
	return nil
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}
