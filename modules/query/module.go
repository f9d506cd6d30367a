// Package query registers the twin graph query command.
package query

import (
	"context"
	"strings"

	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "Query",
		Usage:    "[query-string]",
		Help:     "Runs a query, 'SELECT * FROM DIGITALTWINS' by default",
		Category: registry.Query,
		Fn:       Query,
	})
}

// Query runs the words of args as one query and prints every result.
func Query(ctx context.Context, env *registry.Env, args []string) error {
	q := twins.DefaultQuery
	if len(args) > 0 {
		q = strings.Join(args, " ")
	}
	env.Out.Alert("Submitting query: %s...", q)
	items, err := env.Twins.Query(ctx, q)
	if err != nil {
		return err
	}
	for _, item := range items {
		env.Out.Response("", item)
	}
	env.Out.Out("End Query")
	return nil
}
