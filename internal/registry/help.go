package registry

import (
	"errors"
	"fmt"

	"github.com/vk/twinctl/internal/console"
)

// UsageError reports wrong arguments to a command. The shell prints the
// message as is, without the "Error:" prefix used for other failures.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// IsUsage reports whether err is a UsageError.
func IsUsage(err error) bool {
	var u *UsageError
	return errors.As(err, &u)
}

var helpOrder = []Category{Scenario, Models, Twins, Query, Routes, Tools}

// PrintHelp writes the banner and, when full is set, every command grouped
// by category.
func (r *Registry) PrintHelp(p *console.Printer, full bool) {
	p.Ok("This tool lets you construct a simple digital twins graph")
	p.Ok("and issue commands against the digital twins instance")
	p.Out("Run 'twinctl serve' to host the event processing functions")
	p.Out("for an end-to-end demo")
	p.Out("")
	if !full {
		return
	}
	for _, c := range helpOrder {
		cmds := r.ByCategory(c)
		if len(cmds) == 0 {
			continue
		}
		p.Alert("%s:", c.Heading())
		for _, cmd := range cmds {
			p.Out("  %s %s", cmd.Name, cmd.Usage)
			p.Muted("      %s", cmd.Help)
		}
	}
}
