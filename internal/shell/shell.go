// Package shell runs the interactive command interpreter on top of the
// command registry.
package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/registry"
)

// ErrUnknownCommand is returned by Exec for a verb that is not registered.
var ErrUnknownCommand = errors.New("unknown command")

const prompt = "Please enter a command or 'help'. Commands are not case sensitive"

// Shell reads command lines from env.Input and dispatches them.
type Shell struct {
	env *registry.Env
}

// New creates a shell. env.Registry and env.Out must be set.
func New(env *registry.Env) *Shell {
	return &Shell{env: env}
}

// Run prints the banner and executes lines until the input ends, Exit is
// entered or ctx is done. Command failures are printed and never end the
// loop.
func (s *Shell) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	out := s.env.Out

	out.Out("")
	s.env.Registry.PrintHelp(out, false)
	for {
		out.Alert("\n%s", prompt)
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-s.env.Input:
		}
		if !ok {
			logger.Debug("Input closed, leaving shell.")
			return nil
		}

		err := s.Exec(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrExit):
			return nil
		case errors.Is(err, ErrUnknownCommand):
			out.Error("Invalid command. Please type 'help' for more information.")
		default:
			s.report(err)
		}
	}
}

// Exec runs a single command line. A blank line is a no-op.
func (s *Shell) Exec(ctx context.Context, line string) (err error) {
	args, uneven := console.SplitArgs(line)
	if uneven {
		s.env.Out.Alert("Your command contains an uneven number of quotes. Was that intended?")
	}
	if len(args) == 0 {
		return nil
	}

	cmd, ok := s.env.Registry.Lookup(args[0])
	if !ok {
		return fmt.Errorf("%w '%s'", ErrUnknownCommand, args[0])
	}

	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Command panicked.", "command", cmd.Name, "panic", r)
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, r)
		}
	}()

	ctx = ctxlog.With(ctx, "command", cmd.Name)
	return cmd.Fn(ctx, s.env, args[1:])
}

// report prints a command failure the way the user expects to see it.
func (s *Shell) report(err error) {
	var usage *registry.UsageError
	if errors.As(err, &usage) {
		s.env.Out.Error("%s", usage.Msg)
		return
	}
	s.env.Out.Failure(err)
}

// Report prints err like Run does. The exec mode uses it for its single
// command.
func (s *Shell) Report(err error) {
	if errors.Is(err, ErrUnknownCommand) {
		s.env.Out.Error("Invalid command. Please type 'help' for more information.")
		return
	}
	s.report(err)
}
