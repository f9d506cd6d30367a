package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/iancoleman/strcase"
)

// Module is the interface that all command modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the commands of a single application instance.
type Registry struct {
	commands []*RegisteredCommand
	byName   map[string]*RegisteredCommand
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{byName: make(map[string]*RegisteredCommand)}
}

// RegisterCommand adds a command. Registering the same name twice, in any
// spelling, is a programmer error and panics.
func (r *Registry) RegisterCommand(cmd *RegisteredCommand) {
	key := normalize(cmd.Name)
	if _, exists := r.byName[key]; exists {
		panic(fmt.Sprintf("command with name '%s' already registered", cmd.Name))
	}
	slog.Debug("Registering command.", "name", cmd.Name, "category", cmd.Category.Heading())
	r.byName[key] = cmd
	r.commands = append(r.commands, cmd)
}

// Lookup resolves a command name typed by the user.
func (r *Registry) Lookup(verb string) (*RegisteredCommand, bool) {
	verb = strings.TrimSpace(verb)
	if verb == "" {
		return nil, false
	}
	if cmd, ok := r.byName[normalize(verb)]; ok {
		return cmd, true
	}
	cmd, ok := r.byName[normalize(strcase.ToCamel(verb))]
	return cmd, ok
}

// Commands returns the commands in registration order.
func (r *Registry) Commands() []*RegisteredCommand {
	return append([]*RegisteredCommand(nil), r.commands...)
}

// ByCategory returns the commands of one category in registration order.
func (r *Registry) ByCategory(c Category) []*RegisteredCommand {
	var out []*RegisteredCommand
	for _, cmd := range r.commands {
		if cmd.Category == c {
			out = append(out, cmd)
		}
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(name)
}
