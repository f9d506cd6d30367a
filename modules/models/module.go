// Package models registers the model management commands.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/dtdl"
	"github.com/vk/twinctl/internal/fsutil"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "CreateModels",
		Usage:    "<model-filename-0> <model-filename-1> ...",
		Help:     "Uploads model files from the models directory",
		Category: registry.Models,
		Fn:       CreateModels,
	})
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "GetModels",
		Usage:    "[true] [model-id]...",
		Help:     "Lists models; 'true' includes definitions, model ids restrict the list to their dependencies",
		Category: registry.Models,
		Fn:       GetModels,
	})
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "GetModel",
		Usage:    "<model-id>",
		Help:     "Shows one model with its definition",
		Category: registry.Models,
		Fn:       GetModel,
	})
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "DecommissionModel",
		Usage:    "<model-id>",
		Help:     "Prevents new twins from being created from a model",
		Category: registry.Models,
		Fn:       DecommissionModel,
	})
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "DeleteModel",
		Usage:    "<model-id>",
		Help:     "Deletes one model",
		Category: registry.Models,
		Fn:       DeleteModel,
	})
}

// ReadModelFiles reads model files by name from dir. A file may hold one
// interface or an array of them; the result is flat.
func ReadModelFiles(dir string, names []string) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	for _, name := range names {
		path := fsutil.ResolveModelFile(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model file: %w", err)
		}
		fileDocs, err := dtdl.Documents(data)
		if err != nil {
			return nil, fmt.Errorf("invalid model file %s: %w", path, err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// CreateModels uploads the named files from the models directory.
func CreateModels(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) == 0 {
		return registry.Usagef("Please supply at least one model file name to upload to the service")
	}
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = fsutil.ResolveModelFile("", a)
	}
	env.Out.Alert("Reading from %s", env.Settings.ModelsDir)
	env.Out.Alert("Submitting models: %s...", strings.Join(names, ", "))

	docs, err := ReadModelFiles(env.Settings.ModelsDir, args)
	if err != nil {
		return err
	}
	created, err := env.Twins.CreateModels(ctx, docs)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Models created.", "count", len(created))
	env.Out.Ok("Model(s) created successfully!")
	for _, m := range created {
		env.Out.Muted("  %s", m.ID)
	}
	return nil
}

func GetModels(ctx context.Context, env *registry.Env, args []string) error {
	var opts twins.ListModelsOptions
	if len(args) > 0 {
		include, err := strconv.ParseBool(args[0])
		if err != nil {
			env.Out.Error("If you specify more than one parameter, your second parameter needs to be a boolean (return full model yes/no)")
		}
		opts.IncludeDefinitions = include
	}
	if len(args) > 1 {
		opts.DependenciesFor = args[1:]
	}

	env.Out.Alert("Submitting...")
	models, err := env.Twins.ListModels(ctx, opts)
	if err != nil {
		return err
	}
	for _, m := range models {
		env.Out.Out("%s", m.ID)
		if len(m.Model) > 0 {
			env.Out.Response("", m.Model)
		}
	}
	env.Out.Out("")
	env.Out.Alert("Found %d model(s)", len(models))
	return nil
}

func GetModel(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please supply a single model id to retrieve")
	}
	env.Out.Alert("Submitting...")
	m, err := env.Twins.GetModel(ctx, args[0])
	if err != nil {
		return err
	}
	env.Out.JSON("Model", m)
	return nil
}

func DecommissionModel(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please supply a single model id for the model to decommission")
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.DecommissionModel(ctx, args[0]); err != nil {
		return err
	}
	env.Out.Ok("Model decommissioned successfully!")
	return nil
}

func DeleteModel(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please supply a single model id to delete")
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.DeleteModel(ctx, args[0]); err != nil {
		return err
	}
	env.Out.Ok("Model deleted successfully")
	return nil
}
