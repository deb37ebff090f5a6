package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `
agent:
  wakeWord: jarvis
  retryAttempts: 4
  retryDelay: 1.5s
  screenshotDelay: 2
  maxIterations: 8
voice:
  sttBackend: console
device:
  serial: emulator-5554
vision:
  model: gemini-2.5-pro
  requestsPerMinute: 10
history:
  dir: /var/droidpilot/history
apps:
  paytm: net.one97.paytm
`
	writeFile(t, fs, "/work/config.yaml", content)

	cfg, err := Load(fs, "/work/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Agent.WakeWord != "jarvis" {
		t.Errorf("expected wakeWord jarvis, got %s", cfg.Agent.WakeWord)
	}
	if cfg.Agent.RetryAttempts != 4 {
		t.Errorf("expected retryAttempts 4, got %d", cfg.Agent.RetryAttempts)
	}
	if cfg.Agent.RetryDelay.Std() != 1500*time.Millisecond {
		t.Errorf("expected retryDelay 1.5s, got %v", cfg.Agent.RetryDelay.Std())
	}
	if cfg.Agent.ScreenshotDelay.Std() != 2*time.Second {
		t.Errorf("bare number should be seconds, got %v", cfg.Agent.ScreenshotDelay.Std())
	}
	if cfg.Device.Serial != "emulator-5554" {
		t.Errorf("expected serial emulator-5554, got %s", cfg.Device.Serial)
	}
	if cfg.Vision.Model != "gemini-2.5-pro" || cfg.Vision.RequestsPerMinute != 10 {
		t.Errorf("unexpected vision config: %+v", cfg.Vision)
	}
	if cfg.History.Dir != "/var/droidpilot/history" {
		t.Errorf("expected history dir, got %s", cfg.History.Dir)
	}
	if cfg.Apps["paytm"] != "net.one97.paytm" {
		t.Errorf("expected apps override, got %v", cfg.Apps)
	}

	// Unset keys keep their defaults
	if cfg.Agent.ListenTimeout.Std() != 10*time.Second {
		t.Errorf("expected default listenTimeout, got %v", cfg.Agent.ListenTimeout.Std())
	}
	if cfg.Agent.ResponseWait.Std() != 6*time.Second {
		t.Errorf("expected default responseWait, got %v", cfg.Agent.ResponseWait.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent.RetryAttempts != 3 || cfg.Agent.RetryDelay.Std() != time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Agent)
	}
	if cfg.Agent.ScreenshotDelay.Std() != 1500*time.Millisecond {
		t.Errorf("expected screenshotDelay 1.5s, got %v", cfg.Agent.ScreenshotDelay.Std())
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected maxIterations 5, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.PhraseLimit.Std() != 25*time.Second {
		t.Errorf("expected phraseLimit 25s, got %v", cfg.Agent.PhraseLimit.Std())
	}
	if cfg.Voice.STTBackend != BackendConsole || cfg.Voice.SpeechRate != 150 {
		t.Errorf("unexpected voice defaults: %+v", cfg.Voice)
	}
	if cfg.Vision.Model != "gemini-2.5-flash" || cfg.Vision.RequestsPerMinute != 30 {
		t.Errorf("unexpected vision defaults: %+v", cfg.Vision)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.yaml", `agent: [invalid yaml`)

	_, err := Load(fs, "/config.yaml")
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for invalid YAML, got %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.yaml", "agent:\n  retryDelay: soon\n")

	_, err := Load(fs, "/config.yaml")
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for bad duration, got %v", err)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.yaml", ``)

	cfg, err := Load(fs, "/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected defaults for empty file, got %+v", cfg.Agent)
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/config.yaml", "log:\n  file: ~/logs/agent.log\n")

	cfg, err := Load(fs, "/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(cfg.Log.File, "~") {
		t.Errorf("log file not expanded: %s", cfg.Log.File)
	}
	if !strings.HasSuffix(cfg.Log.File, "logs/agent.log") {
		t.Errorf("unexpected log file: %s", cfg.Log.File)
	}
}

func TestLoadFromDir_ConfigYaml(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/config.yaml", "device:\n  serial: abc\n")

	cfg, err := LoadFromDir(fs, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Serial != "abc" {
		t.Errorf("expected serial abc, got %s", cfg.Device.Serial)
	}
}

func TestLoadFromDir_ConfigYml(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/config.yml", "device:\n  serial: xyz\n")

	cfg, err := LoadFromDir(fs, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Serial != "xyz" {
		t.Errorf("expected serial xyz, got %s", cfg.Device.Serial)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	cfg, err := LoadFromDir(afero.NewMemMapFs(), "/empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should return defaults
	if cfg.Device.Serial != "" {
		t.Errorf("expected empty serial, got %s", cfg.Device.Serial)
	}
	if cfg.Agent.RetryAttempts != 3 {
		t.Errorf("expected default retryAttempts, got %d", cfg.Agent.RetryAttempts)
	}
}

func TestLoadFromDir_PrefersYamlOverYml(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/work/config.yaml", "device:\n  serial: from-yaml\n")
	writeFile(t, fs, "/work/config.yml", "device:\n  serial: from-yml\n")

	cfg, err := LoadFromDir(fs, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Should prefer config.yaml
	if cfg.Device.Serial != "from-yaml" {
		t.Errorf("expected serial from config.yaml, got %s", cfg.Device.Serial)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"retry attempts", func(c *Config) { c.Agent.RetryAttempts = 0 }, "agent.retryAttempts"},
		{"max iterations", func(c *Config) { c.Agent.MaxIterations = -1 }, "agent.maxIterations"},
		{"listen timeout", func(c *Config) { c.Agent.ListenTimeout = 0 }, "agent.listenTimeout"},
		{"negative delay", func(c *Config) { c.Agent.RetryDelay = Duration(-time.Second) }, "agent.retryDelay"},
		{"rate", func(c *Config) { c.Vision.RequestsPerMinute = 0 }, "vision.requestsPerMinute"},
		{"backend", func(c *Config) { c.Voice.STTBackend = "whisper" }, "voice.sttBackend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var execErr *core.ExecutionError
			if !errors.As(err, &execErr) {
				t.Fatalf("expected *core.ExecutionError, got %T", err)
			}
			if _, ok := execErr.Details[tt.key]; !ok {
				t.Errorf("details %v missing %s", execErr.Details, tt.key)
			}
		})
	}
}

func TestValidate_UnsupportedBackendMessage(t *testing.T) {
	cfg := Default()
	cfg.Voice.STTBackend = "vosk"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `unsupported speech backend "vosk"`) {
		t.Errorf("unexpected error: %v", err)
	}
}
