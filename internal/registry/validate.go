package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/vk/twinctl/internal/ctxlog"
)

// Validate checks that every command is reachable and documented: the name
// is CamelCase so kebab and snake spellings resolve to it, a handler is
// set, the category is known and help text is present.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	known := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
	}

	for _, cmd := range r.commands {
		if cmd.Fn == nil {
			errs = append(errs, fmt.Sprintf("command '%s': no handler", cmd.Name))
		}
		if strcase.ToCamel(cmd.Name) != cmd.Name {
			errs = append(errs, fmt.Sprintf("command '%s': name must be CamelCase, e.g. '%s'", cmd.Name, strcase.ToCamel(cmd.Name)))
		}
		if !known[cmd.Category] {
			errs = append(errs, fmt.Sprintf("command '%s': unknown category %d", cmd.Name, int(cmd.Category)))
		}
		if strings.TrimSpace(cmd.Help) == "" {
			errs = append(errs, fmt.Sprintf("command '%s': missing help text", cmd.Name))
		}
		if strings.TrimSpace(cmd.Usage) == "" {
			logger.Warn("Command has no usage line.", "command", cmd.Name)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
