package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	settings *config.Settings
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Invalid settings and an inconsistent registry are startup errors and panic.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	settings, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	if cfg.Workers > 0 {
		settings.Workers = cfg.Workers
	}
	if cfg.ModelsDir != "" {
		settings.ModelsDir = cfg.ModelsDir
	}
	if cfg.Listen != "" {
		settings.Functions.Listen = cfg.Listen
	}
	if err := settings.Validate(); err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded.", "instance", settings.InstanceURL, "mode", cfg.Mode)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.Validate(ctx); err != nil {
		// A mismatch between command definitions is a programmer error.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
		settings: settings,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Settings returns the loaded settings.
func (a *App) Settings() *config.Settings {
	return a.settings
}
