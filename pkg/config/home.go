package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

const (
	envHome     = "DROIDPILOT_HOME"
	homeDirName = ".droidpilot"
)

// HomeDir returns the directory droidpilot keeps its files in:
// $DROIDPILOT_HOME when set, otherwise ~/.droidpilot. If the user's home
// cannot be found it falls back to .droidpilot under the working directory.
func HomeDir() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}
	if home, err := homedir.Dir(); err == nil && home != "" {
		return filepath.Join(home, homeDirName)
	}
	return homeDirName
}

// Layout names the files under a droidpilot home directory:
//
//	<home>/config.yaml
//	<home>/history/<task id>.json
//	<home>/logs/droidpilot.log
type Layout struct {
	Home string
}

// DefaultLayout is the layout rooted at HomeDir.
func DefaultLayout() Layout {
	return Layout{Home: HomeDir()}
}

// ConfigFile is the settings file LoadFromDir looks for first.
func (l Layout) ConfigFile() string {
	return filepath.Join(l.Home, "config.yaml")
}

// HistoryDir holds one archived record per finished task.
func (l Layout) HistoryDir() string {
	return filepath.Join(l.Home, "history")
}

// LogFile is the rotating agent log.
func (l Layout) LogFile() string {
	return filepath.Join(l.Home, "logs", "droidpilot.log")
}
