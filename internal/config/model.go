package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/go-playground/validator.v9"
)

// Environment variables that override the settings file.
const (
	EnvInstanceURL = "TWINCTL_INSTANCE_URL"
	EnvToken       = "TWINCTL_TOKEN"
	EnvModelsDir   = "TWINCTL_MODELS_DIR"
)

// Archive kinds.
const (
	ArchiveNone = "none"
	ArchiveDir  = "dir"
	ArchiveS3   = "s3"
)

// Settings is the complete application configuration.
type Settings struct {
	InstanceURL     string        `validate:"required"`
	Token           string
	APIVersion      string        `validate:"required"`
	Timeout         time.Duration `validate:"gt=0"`
	ModelsDir       string        `validate:"required"`
	Workers         int           `validate:"min=1,max=64"`
	RetryLimit      int           `validate:"min=0"`
	RetryDelay      time.Duration `validate:"min=0"`
	ModelCacheSize  int           `validate:"min=1"`
	ObserveInterval time.Duration `validate:"gt=0"`

	Archive   ArchiveSettings
	Functions FunctionsSettings
}

// ArchiveSettings configures the snapshot of model definitions taken before
// all models are deleted.
type ArchiveSettings struct {
	Kind      string `validate:"omitempty,oneof=none dir s3"`
	Path      string
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether an archive is configured.
func (a ArchiveSettings) Enabled() bool {
	return a.Kind != "" && a.Kind != ArchiveNone
}

// FunctionsSettings configures the event-processing host.
type FunctionsSettings struct {
	Listen          string `validate:"required"`
	ParentCacheSize int    `validate:"min=1"`
	Relationship    string `validate:"required"`
	SocketIO        SocketIOSettings
}

// SocketIOSettings configures the optional socket.io broadcaster. An empty
// URL disables it.
type SocketIOSettings struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// Default returns the settings used for everything the file leaves out.
func Default() *Settings {
	return &Settings{
		APIVersion:      "2023-10-31",
		Timeout:         30 * time.Second,
		ModelsDir:       "Models",
		Workers:         4,
		RetryLimit:      2,
		ModelCacheSize:  256,
		ObserveInterval: 2 * time.Second,
		Archive: ArchiveSettings{
			Kind:   ArchiveNone,
			Prefix: "models",
		},
		Functions: FunctionsSettings{
			Listen:          ":7071",
			ParentCacheSize: 1024,
			Relationship:    "contains",
			SocketIO: SocketIOSettings{
				Namespace: "/",
				Event:     "twin-update",
				Timeout:   5 * time.Second,
			},
		},
	}
}

// ApplyEnv overrides settings from environment variables found by lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvInstanceURL); ok && strings.TrimSpace(v) != "" {
		s.InstanceURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		s.Token = v
	}
	if v, ok := lookup(EnvModelsDir); ok && strings.TrimSpace(v) != "" {
		s.ModelsDir = strings.TrimSpace(v)
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules of the
// archive block.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid settings: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, verr := range verrs {
			if verr.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", verr.Namespace(), verr.Tag(), verr.Param()))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", verr.Namespace(), verr.Tag()))
		}
		return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
	}

	switch s.Archive.Kind {
	case ArchiveDir:
		if s.Archive.Path == "" {
			return errors.New("invalid settings: archive of kind 'dir' requires a path")
		}
	case ArchiveS3:
		if s.Archive.Endpoint == "" || s.Archive.Bucket == "" {
			return errors.New("invalid settings: archive of kind 's3' requires endpoint and bucket")
		}
	}
	return nil
}
