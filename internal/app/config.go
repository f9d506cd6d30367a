package app

import (
	"errors"
	"fmt"
)

// Run modes.
const (
	ModeShell = "shell"
	ModeExec  = "exec"
	ModeServe = "serve"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Mode       string
	ConfigPath string   // hcl settings file, optional
	Command    []string // exec mode: verb and arguments

	LogFormat string
	LogLevel  string
	NoColor   bool

	// Overrides of the settings file; zero values keep the file's value.
	Workers   int
	ModelsDir string
	Listen    string
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeShell
	case ModeShell, ModeServe:
	case ModeExec:
		if len(cfg.Command) == 0 {
			return nil, errors.New("exec mode requires a command, e.g. 'twinctl exec GetModels'")
		}
	default:
		return nil, fmt.Errorf("unknown mode '%s': must be 'shell', 'exec' or 'serve'", cfg.Mode)
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	return &cfg, nil
}
