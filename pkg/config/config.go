// Package config handles configuration for droidpilot.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// Config represents the agent configuration (config.yaml).
type Config struct {
	Agent   AgentConfig       `yaml:"agent"`
	Voice   VoiceConfig       `yaml:"voice"`
	Device  DeviceConfig      `yaml:"device"`
	Vision  VisionConfig      `yaml:"vision"`
	Log     LogConfig         `yaml:"log"`
	History HistoryConfig     `yaml:"history"`
	Apps    map[string]string `yaml:"apps"` // Friendly name -> package overrides
}

// AgentConfig holds task orchestration settings.
type AgentConfig struct {
	WakeWord        string   `yaml:"wakeWord"`
	RetryAttempts   int      `yaml:"retryAttempts"`
	RetryDelay      Duration `yaml:"retryDelay"`
	ScreenshotDelay Duration `yaml:"screenshotDelay"` // Settle time after launching an app
	MaxIterations   int      `yaml:"maxIterations"`
	ListenTimeout   Duration `yaml:"listenTimeout"`
	PhraseLimit     Duration `yaml:"phraseLimit"`
	ResponseWait    Duration `yaml:"responseWait"` // How long a conversational app gets to answer
}

// VoiceConfig selects the speech backend.
type VoiceConfig struct {
	STTBackend string `yaml:"sttBackend"`
	SpeechRate int    `yaml:"speechRate"`
}

// DeviceConfig selects the target device.
type DeviceConfig struct {
	Serial string `yaml:"serial"`
}

// VisionConfig configures the description service.
type VisionConfig struct {
	Model             string `yaml:"model"`
	APIKey            string `yaml:"apiKey"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// LogConfig configures the log file.
type LogConfig struct {
	File      string `yaml:"file"`
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"maxSizeMB"`
}

// HistoryConfig configures the task archive.
type HistoryConfig struct {
	Dir string `yaml:"dir"`
}

// Duration is a time.Duration that unmarshals from "1.5s" style strings.
// Bare numbers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Supported speech backends.
const (
	BackendConsole = "console"
)

// Default returns the built-in configuration.
func Default() *Config {
	layout := DefaultLayout()
	return &Config{
		Agent: AgentConfig{
			RetryAttempts:   3,
			RetryDelay:      Duration(time.Second),
			ScreenshotDelay: Duration(1500 * time.Millisecond),
			MaxIterations:   5,
			ListenTimeout:   Duration(10 * time.Second),
			PhraseLimit:     Duration(25 * time.Second),
			ResponseWait:    Duration(6 * time.Second),
		},
		Voice: VoiceConfig{
			STTBackend: BackendConsole,
			SpeechRate: 150,
		},
		Vision: VisionConfig{
			Model:             "gemini-2.5-flash",
			RequestsPerMinute: 30,
		},
		Log: LogConfig{
			File:      layout.LogFile(),
			Level:     "info",
			MaxSizeMB: 10,
		},
		History: HistoryConfig{
			Dir: layout.HistoryDir(),
		},
		Apps: map[string]string{},
	}
}

// Load loads configuration from a file. Keys absent from the file keep
// their defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("cannot parse " + path).WithCause(err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(fs afero.Fs, dir string) (*Config, error) {
	yamlPath := Layout{Home: dir}.ConfigFile()
	for _, p := range []string{yamlPath, strings.TrimSuffix(yamlPath, ".yaml") + ".yml"} {
		if ok, _ := afero.Exists(fs, p); ok {
			return Load(fs, p)
		}
	}
	return Default(), nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Log.File, &c.History.Dir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("cannot expand %q", *p)).WithCause(err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks value ranges and the speech backend.
func (c *Config) Validate() error {
	problems := map[string]interface{}{}

	if c.Agent.RetryAttempts < 1 {
		problems["agent.retryAttempts"] = c.Agent.RetryAttempts
	}
	if c.Agent.MaxIterations < 1 {
		problems["agent.maxIterations"] = c.Agent.MaxIterations
	}
	for key, d := range map[string]Duration{
		"agent.retryDelay":      c.Agent.RetryDelay,
		"agent.screenshotDelay": c.Agent.ScreenshotDelay,
		"agent.responseWait":    c.Agent.ResponseWait,
	} {
		if d < 0 {
			problems[key] = d.Std().String()
		}
	}
	if c.Agent.ListenTimeout <= 0 {
		problems["agent.listenTimeout"] = c.Agent.ListenTimeout.Std().String()
	}
	if c.Agent.PhraseLimit <= 0 {
		problems["agent.phraseLimit"] = c.Agent.PhraseLimit.Std().String()
	}
	if c.Voice.SpeechRate <= 0 {
		problems["voice.speechRate"] = c.Voice.SpeechRate
	}
	if c.Vision.RequestsPerMinute <= 0 {
		problems["vision.requestsPerMinute"] = c.Vision.RequestsPerMinute
	}

	if len(problems) > 0 {
		return core.ErrInvalidConfig.
			WithMessage("invalid configuration values: " + sortedKeys(problems)).
			WithDetails(problems)
	}

	if c.Voice.STTBackend != "" && c.Voice.STTBackend != BackendConsole {
		return core.ErrInvalidConfig.
			WithMessage(fmt.Sprintf("unsupported speech backend %q (supported: %s)", c.Voice.STTBackend, BackendConsole)).
			WithDetails(map[string]interface{}{"voice.sttBackend": c.Voice.STTBackend})
	}

	return nil
}

func sortedKeys(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
