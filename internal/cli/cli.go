package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/twinctl/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("twinctl", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
twinctl - Console and event-processing host for a digital twins instance.

Usage:
  twinctl [options] [shell]                  interactive command loop (default)
  twinctl [options] exec <command> [args]    run one console command and exit
  twinctl [options] serve                    host the event processing functions

Environment:
  TWINCTL_INSTANCE_URL, TWINCTL_TOKEN, TWINCTL_MODELS_DIR override the settings file.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the HCL settings file.")
	cFlag := flagSet.String("c", "", "Path to the HCL settings file (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Concurrent model deletions per pass. 0 keeps the settings value.")
	modelsDirFlag := flagSet.String("models-dir", "", "Directory the model files are read from.")
	listenFlag := flagSet.String("listen", "", "Listen address of the functions host in serve mode.")
	noColorFlag := flagSet.Bool("no-color", false, "Disable colored console output.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *configFlag
	if path == "" {
		path = *cFlag
	}

	mode := app.ModeShell
	var command []string
	if flagSet.NArg() > 0 {
		mode = strings.ToLower(flagSet.Arg(0))
		command = flagSet.Args()[1:]
	}
	if mode == "help" {
		flagSet.Usage()
		return nil, true, nil
	}
	slog.Debug("Mode determined.", "mode", mode, "config", path)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Mode:       mode,
		ConfigPath: path,
		Command:    command,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
		NoColor:    *noColorFlag,
		Workers:    *workersFlag,
		ModelsDir:  *modelsDirFlag,
		Listen:     *listenFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
