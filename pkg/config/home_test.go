package config

import (
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestHomeDir_Env(t *testing.T) {
	t.Setenv("DROIDPILOT_HOME", "/srv/droidpilot")

	if got := HomeDir(); got != "/srv/droidpilot" {
		t.Errorf("HomeDir() = %q, want /srv/droidpilot", got)
	}
}

func TestHomeDir_UserHome(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	user := t.TempDir()
	t.Setenv("DROIDPILOT_HOME", "")
	t.Setenv("HOME", user)

	want := filepath.Join(user, ".droidpilot")
	if got := HomeDir(); got != want {
		t.Errorf("HomeDir() = %q, want %q", got, want)
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Home: "/data/dp"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", l.ConfigFile(), "/data/dp/config.yaml"},
		{"history", l.HistoryDir(), "/data/dp/history"},
		{"log", l.LogFile(), "/data/dp/logs/droidpilot.log"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDefault_UsesLayout(t *testing.T) {
	t.Setenv("DROIDPILOT_HOME", "/data/dp")

	cfg := Default()
	if cfg.History.Dir != filepath.FromSlash("/data/dp/history") {
		t.Errorf("History.Dir = %q", cfg.History.Dir)
	}
	if cfg.Log.File != filepath.FromSlash("/data/dp/logs/droidpilot.log") {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
}
