package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droidpilot/pkg/agent"
	"github.com/devicelab-dev/droidpilot/pkg/core"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Listen for commands and carry them out",
	Description: `Start the interactive loop. Each utterance is handled in turn; say
"exit", "quit", "stop" or "goodbye" to leave. During an app session or a
sign-in, "stop" and "cancel" end that first.

When agent.wakeWord is set, a command must start with the wake word, or
follow an utterance that was only the wake word.

Examples:
  droidpilot run
  droidpilot --device emulator-5554 run`,
	Action: runInteractive,
}

var execCommand = &cli.Command{
	Name:      "exec",
	Usage:     "Carry out a single command",
	ArgsUsage: "<command...>",
	Description: `Run one command and exit. Confirmations are read from stdin.

Examples:
  droidpilot exec open settings
  droidpilot exec "open whatsapp and send message to mom saying I'm late"`,
	Action: runExec,
}

const (
	welcomeMessage = "Voice command mode activated. Say your command."
	goodbyeMessage = "Goodbye! Have a great day!"
)

func runInteractive(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}
	if err := initLogging(c, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	printHeader("Setup")
	a, speech, err := newAgent(ctx, cfg, !colorsEnabled)
	if err != nil {
		return err
	}
	if cfg.Agent.WakeWord != "" {
		printSetupSuccess(fmt.Sprintf("Wake word: %q", cfg.Agent.WakeWord))
	}
	printHeader("Listening")

	l := &loop{
		proc:          a,
		speech:        speech,
		wakeWord:      cfg.Agent.WakeWord,
		listenTimeout: cfg.Agent.ListenTimeout.Std(),
		phraseLimit:   cfg.Agent.PhraseLimit.Std(),
		out:           os.Stdout,
	}
	return l.run(ctx)
}

func runExec(c *cli.Context) error {
	text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if text == "" {
		return fmt.Errorf("a command is required\n\nUsage: droidpilot exec <command...>")
	}

	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}
	if err := initLogging(c, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	a, _, err := newAgent(ctx, cfg, !colorsEnabled)
	if err != nil {
		return err
	}
	out := a.Process(ctx, text)
	logger.Info("%s", out)
	if out.Err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", out.Phase(), out.Err), 1)
	}
	return nil
}

// processor handles utterances. *agent.Agent implements it.
type processor interface {
	Process(ctx context.Context, utterance string) agent.Outcome
	Session(ctx context.Context) (agent.Session, error)
}

// loop is the interactive listen-and-act cycle.
type loop struct {
	proc          processor
	speech        core.Speech
	wakeWord      string
	listenTimeout time.Duration
	phraseLimit   time.Duration
	out           io.Writer
}

func (l *loop) run(ctx context.Context) error {
	l.say(ctx, welcomeMessage)
	awake := false

	for {
		text, err := l.speech.Listen(ctx, l.listenTimeout, l.phraseLimit)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		sess, err := l.proc.Session(ctx)
		if err != nil {
			return nil
		}

		if l.wakeWord != "" && !awake && !sess.Login.Active {
			cmd, ok := afterWakeWord(text, l.wakeWord)
			if !ok {
				logger.Debug("ignoring %q: no wake word", text)
				continue
			}
			if cmd == "" {
				awake = true
				continue
			}
			text = cmd
		}
		awake = false

		switch exitKind(text) {
		case exitRejected:
			l.printf("%s[Info]%s Say 'exit', 'quit', or 'goodbye' to stop the agent\n", color(colorGray), color(colorReset))
			continue
		case exitWhenIdle:
			if idle(sess) {
				l.say(ctx, goodbyeMessage)
				return nil
			}
		case exitNow:
			l.say(ctx, goodbyeMessage)
			return nil
		}

		out := l.proc.Process(ctx, text)
		logger.Info("%s", out)
		if out.Kind == agent.OutcomeTask && out.Err != nil {
			l.printf("%s✗%s %s\n", color(colorRed), color(colorReset), out.Err)
		}
		if out.Kind == agent.OutcomeCancelled && ctx.Err() != nil {
			return nil
		}
	}
}

func (l *loop) say(ctx context.Context, text string) {
	if err := l.speech.Speak(ctx, text); err != nil {
		logger.Warn("speak: %v", err)
	}
}

func (l *loop) printf(format string, args ...interface{}) {
	if l.out != nil {
		fmt.Fprintf(l.out, format, args...)
	}
}

type exitClass int

const (
	exitNone exitClass = iota
	exitNow
	exitWhenIdle // "stop", "end session": ends a sticky session or sign-in first
	exitRejected // a bare "bye" is too easily misheard
)

// idle reports whether nothing in sess would take a stop word for itself.
func idle(sess agent.Session) bool {
	return sess.StickyApp == "" && !sess.Login.AwaitingEmail && !sess.Login.AwaitingPassword
}

var (
	exitWords     = regexp.MustCompile(`^(exit|quit|stop|shutdown|shut down)[.!]?$`)
	exitAnywhere  = regexp.MustCompile(`\b(goodbye|good bye|bye-bye|farewell)\b`)
	endSession    = regexp.MustCompile(`\bend (the )?session\b`)
	bareBye       = regexp.MustCompile(`^bye( bye)?[.!]?$`)
	wakeSeparator = regexp.MustCompile(`^[\s,.!?]+`)
)

func exitKind(text string) exitClass {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case exitAnywhere.MatchString(t):
		return exitNow
	case exitWords.MatchString(t), endSession.MatchString(t):
		return exitWhenIdle
	case bareBye.MatchString(t):
		return exitRejected
	}
	return exitNone
}

// afterWakeWord reports whether text contains the wake word and returns what
// follows it, lowercased.
func afterWakeWord(text, wakeWord string) (string, bool) {
	lower := strings.ToLower(text)
	word := strings.ToLower(strings.TrimSpace(wakeWord))
	i := strings.Index(lower, word)
	if i < 0 {
		return "", false
	}
	rest := lower[i+len(word):]
	return strings.TrimSpace(wakeSeparator.ReplaceAllString(rest, "")), true
}
