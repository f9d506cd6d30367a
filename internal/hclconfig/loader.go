// Package hclconfig loads config.Settings from an HCL file.
//
// Expressions in the file can read the environment through the `env` object
// (env.HOME) or the getenv("NAME", "default") function. Variables from a
// .env file next to the settings file are merged under the process
// environment, which always wins.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	// Environ returns the process environment; os.Environ when nil.
	Environ func() []string
	// EnvFiles are extra dotenv files read in order after the one next to
	// the settings file. Missing files are skipped.
	EnvFiles []string
}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads path on top of config.Default, applies environment overrides
// and validates the result.
func (l *Loader) Load(ctx context.Context, path string) (*config.Settings, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	env, err := l.environment(path)
	if err != nil {
		return nil, err
	}

	settings := config.Default()
	if path != "" {
		root, err := decodeFile(path, newEvalContext(env))
		if err != nil {
			return nil, err
		}
		if err := apply(settings, root); err != nil {
			return nil, fmt.Errorf("invalid settings file %s: %w", path, err)
		}
	}

	settings.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "instance", settings.InstanceURL, "archive", settings.Archive.Kind)
	return settings, nil
}

// environment merges dotenv files under the process environment.
func (l *Loader) environment(path string) (map[string]string, error) {
	env := make(map[string]string)

	files := l.EnvFiles
	if path != "" {
		files = append([]string{filepath.Join(filepath.Dir(path), ".env")}, files...)
	}
	for _, f := range files {
		vars, err := godotenv.Read(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read env file %s: %w", f, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}

	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

func decodeFile(path string, evalCtx *hcl.EvalContext) (*fileRoot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("error accessing settings file %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return &root, nil
}

// apply copies every attribute present in the file onto s.
func apply(s *config.Settings, root *fileRoot) error {
	setString(&s.InstanceURL, root.InstanceURL)
	setString(&s.Token, root.Token)
	setString(&s.APIVersion, root.APIVersion)
	setString(&s.ModelsDir, root.ModelsDir)
	setInt(&s.Workers, root.Workers)
	setInt(&s.RetryLimit, root.RetryLimit)
	setInt(&s.ModelCacheSize, root.ModelCacheSize)
	if err := setDuration(&s.Timeout, root.Timeout, "timeout"); err != nil {
		return err
	}
	if err := setDuration(&s.RetryDelay, root.RetryDelay, "retry_delay"); err != nil {
		return err
	}
	if err := setDuration(&s.ObserveInterval, root.ObserveInterval, "observe_interval"); err != nil {
		return err
	}

	if a := root.Archive; a != nil {
		s.Archive.Kind = a.Kind
		setString(&s.Archive.Path, a.Path)
		setString(&s.Archive.Endpoint, a.Endpoint)
		setString(&s.Archive.Region, a.Region)
		setString(&s.Archive.Bucket, a.Bucket)
		setString(&s.Archive.Prefix, a.Prefix)
		setString(&s.Archive.AccessKey, a.AccessKey)
		setString(&s.Archive.SecretKey, a.SecretKey)
		if a.UseSSL != nil {
			s.Archive.UseSSL = *a.UseSSL
		}
	}

	if f := root.Functions; f != nil {
		setString(&s.Functions.Listen, f.Listen)
		setString(&s.Functions.Relationship, f.Relationship)
		setInt(&s.Functions.ParentCacheSize, f.ParentCacheSize)
		if sio := f.SocketIO; sio != nil {
			s.Functions.SocketIO.URL = sio.URL
			setString(&s.Functions.SocketIO.Namespace, sio.Namespace)
			setString(&s.Functions.SocketIO.Event, sio.Event)
			if err := setDuration(&s.Functions.SocketIO.Timeout, sio.Timeout, "socketio.timeout"); err != nil {
				return err
			}
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	*dst = d
	return nil
}
