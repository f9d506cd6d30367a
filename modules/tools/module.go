// Package tools registers the housekeeping commands: help, exit, bulk
// deletion of twins and models, restoring archived models and uploading a
// directory of model files.
package tools

import (
	"context"

	"github.com/vk/twinctl/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	for _, cmd := range []*registry.RegisteredCommand{
		{Name: "Help", Usage: "", Help: "Lists all commands", Fn: Help},
		{Name: "DeleteAllTwins", Usage: "", Help: "Deletes all the twins in your instance together with their relationships", Fn: DeleteAllTwinsCommand},
		{Name: "DeleteAllModels", Usage: "", Help: "Deletes all models in your instance, leaves first; archives them first when an archive is configured", Fn: DeleteAllModels},
		{Name: "RestoreModels", Usage: "<snapshot>", Help: "Uploads the models of an archive snapshot again", Fn: RestoreModels},
		{Name: "LoadModelsFromDirectory", Usage: "<directory-path> <extension(json by default)> [nosub]", Help: "Validates and uploads every model file of a directory", Fn: LoadModelsFromDirectory},
		{Name: "Exit", Usage: "", Help: "Exits the program", Fn: Exit},
	} {
		cmd.Category = registry.Tools
		r.RegisterCommand(cmd)
	}
}

func Help(ctx context.Context, env *registry.Env, args []string) error {
	env.Registry.PrintHelp(env.Out, true)
	return nil
}

func Exit(ctx context.Context, env *registry.Env, args []string) error {
	return registry.ErrExit
}
