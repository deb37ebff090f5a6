// Package cli provides the command-line interface for droidpilot.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droidpilot/pkg/agent"
	"github.com/devicelab-dev/droidpilot/pkg/config"
	"github.com/devicelab-dev/droidpilot/pkg/logger"
	"github.com/devicelab-dev/droidpilot/pkg/recovery"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (default: ~/.droidpilot/config.yaml, or $DROIDPILOT_HOME/config.yaml)",
		EnvVars: []string{"DROIDPILOT_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s"},
		Usage:   "ADB serial of the device to control",
		EnvVars: []string{"DROIDPILOT_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "api-key",
		Usage:   "Gemini API key for the screen description service",
		EnvVars: []string{"GEMINI_API_KEY"},
	},
	&cli.StringFlag{
		Name:  "model",
		Usage: "Gemini model used for screen descriptions",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
		EnvVars: []string{"DROIDPILOT_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Log file path (default: <home>/logs/droidpilot.log)",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "droidpilot",
		Usage:   "Voice-driven agent for Android touchscreens",
		Version: Version,
		Description: `droidpilot listens for spoken (or typed) commands and carries them out
on a connected Android device: opening apps, asking questions, sending
messages and payments, and signing in.

Examples:
  droidpilot run
  droidpilot exec "open chatgpt and ask what is the capital of france"
  droidpilot elements --json
  droidpilot --api-key $KEY describe`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		After: func(c *cli.Context) error {
			logger.Close()
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			execCommand,
			elementsCommand,
			describeCommand,
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context, fs afero.Fs) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(fs, path)
	} else {
		cfg, err = config.LoadFromDir(fs, config.HomeDir())
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v := c.String("device"); v != "" {
		cfg.Device.Serial = v
	}
	if v := c.String("api-key"); v != "" {
		cfg.Vision.APIKey = v
	}
	if v := c.String("model"); v != "" {
		cfg.Vision.Model = v
	}
	if v := c.String("log-file"); v != "" {
		cfg.Log.File = v
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging starts the file logger. Verbose runs also log to stderr.
func initLogging(c *cli.Context, cfg *config.Config) error {
	opts := logger.Options{
		File:      cfg.Log.File,
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}
	if c.Bool("verbose") {
		opts.Console = os.Stderr
	}
	if err := logger.InitWithOptions(opts); err != nil {
		return err
	}
	logger.Info("droidpilot %s starting", Version)
	return nil
}

// agentConfig maps the config file onto the orchestrator settings.
func agentConfig(cfg *config.Config) agent.Config {
	a := cfg.Agent
	return agent.Config{
		MaxIterations:   a.MaxIterations,
		ScreenshotDelay: a.ScreenshotDelay.Std(),
		ListenTimeout:   a.ListenTimeout.Std(),
		PhraseLimit:     a.PhraseLimit.Std(),
		ResponseWait:    a.ResponseWait.Std(),
		Retry: recovery.RetryPolicy{
			MaxRetries:   a.RetryAttempts,
			InitialDelay: a.RetryDelay.Std(),
		},
	}
}
