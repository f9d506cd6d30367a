package hclconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loaderWithEnv(env ...string) *Loader {
	return &Loader{Environ: func() []string { return env }}
}

func TestLoad_FullFile(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, ".env", "ADT_HOST=dotenv.api.digitaltwins.azure.net\nADT_TOKEN=from-dotenv\n")
	path := writeFile(t, dir, "twinctl.hcl", `
instance_url     = "https://${env.ADT_HOST}"
token            = getenv("ADT_TOKEN", "none")
api_version      = "2022-05-31"
timeout          = "10s"
models_dir       = "./models"
workers          = 8
retry_limit      = 1
retry_delay      = "250ms"
observe_interval = "500ms"

archive "s3" {
  endpoint   = "localhost:9000"
  bucket     = upper("twins")
  prefix     = "backup"
  access_key = "minio"
  secret_key = "minio123"
  use_ssl    = false
}

functions {
  listen            = ":8080"
  parent_cache_size = 16

  socketio {
    url   = "http://localhost:3000"
    event = "temperature"
  }
}
`)

	// --- Act ---
	s, err := loaderWithEnv("ADT_HOST=process.api.digitaltwins.azure.net").Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "https://process.api.digitaltwins.azure.net", s.InstanceURL, "process env wins over .env")
	assert.Equal(t, "from-dotenv", s.Token)
	assert.Equal(t, "2022-05-31", s.APIVersion)
	assert.Equal(t, 10*time.Second, s.Timeout)
	assert.Equal(t, "./models", s.ModelsDir)
	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, 1, s.RetryLimit)
	assert.Equal(t, 250*time.Millisecond, s.RetryDelay)
	assert.Equal(t, 500*time.Millisecond, s.ObserveInterval)

	assert.Equal(t, config.ArchiveSettings{
		Kind:      config.ArchiveS3,
		Endpoint:  "localhost:9000",
		Bucket:    "TWINS",
		Prefix:    "backup",
		AccessKey: "minio",
		SecretKey: "minio123",
	}, s.Archive)

	assert.Equal(t, ":8080", s.Functions.Listen)
	assert.Equal(t, 16, s.Functions.ParentCacheSize)
	assert.Equal(t, "contains", s.Functions.Relationship)
	assert.Equal(t, config.SocketIOSettings{
		URL:       "http://localhost:3000",
		Namespace: "/",
		Event:     "temperature",
		Timeout:   5 * time.Second,
	}, s.Functions.SocketIO)
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "twinctl.hcl", `instance_url = "https://file.net"`)

	s, err := loaderWithEnv(config.EnvInstanceURL+"=https://env.net", config.EnvToken+"=t0k").Load(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "https://env.net", s.InstanceURL)
	assert.Equal(t, "t0k", s.Token)
	assert.Equal(t, config.Default().Workers, s.Workers)
	assert.Equal(t, config.Default().Functions, s.Functions)
}

func TestLoad_NoFile(t *testing.T) {
	s, err := loaderWithEnv(config.EnvInstanceURL + "=https://env.net").Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://env.net", s.InstanceURL)

	_, err = loaderWithEnv().Load(context.Background(), "")
	assert.ErrorContains(t, err, "InstanceURL failed 'required'")
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		contains string
	}{
		{name: "syntax", content: `instance_url = `, contains: "failed to parse HCL file"},
		{name: "unknown attribute", content: "instance_url = \"https://x\"\ncolour = \"red\"", contains: "failed to decode HCL file"},
		{name: "wrong type", content: "instance_url = \"https://x\"\nworkers = \"many\"", contains: "failed to decode HCL file"},
		{name: "bad duration", content: "instance_url = \"https://x\"\ntimeout = \"soon\"", contains: "invalid timeout 'soon'"},
		{name: "validation", content: "instance_url = \"https://x\"\nworkers = 0", contains: "Settings.Workers failed 'min=1'"},
		{name: "dir archive", content: "instance_url = \"https://x\"\narchive \"dir\" {}", contains: "requires a path"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "twinctl.hcl", tc.content)

			_, err := loaderWithEnv().Load(context.Background(), path)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}

	_, err := loaderWithEnv().Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "error accessing settings file")
}

func TestLoad_ExtraEnvFiles(t *testing.T) {
	dir := t.TempDir()
	extra := writeFile(t, dir, "extra.env", config.EnvInstanceURL+"=https://extra.net\n")

	l := loaderWithEnv()
	l.EnvFiles = []string{filepath.Join(dir, "absent.env"), extra}
	s, err := l.Load(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, "https://extra.net", s.InstanceURL)
}
