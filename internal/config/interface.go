package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the settings file at path on top of Default, applies
	// environment overrides and validates the result. An empty path loads
	// defaults and environment only.
	Load(ctx context.Context, path string) (*Settings, error)
}
