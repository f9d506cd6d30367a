package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/twins/twinstest"
)

// safeBuffer is a thread-safe buffer for capturing output in tests.
type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

type stubLoader struct {
	settings *config.Settings
	err      error
}

func (l stubLoader) Load(context.Context, string) (*config.Settings, error) {
	return l.settings, l.err
}

func settingsFor(url string) *config.Settings {
	s := config.Default()
	s.InstanceURL = url
	return s
}

func setupApp(t *testing.T, cfg Config, settings *config.Settings) (*App, *safeBuffer) {
	t.Helper()
	out := &safeBuffer{}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "error"
	}
	cfg.NoColor = true
	c, err := NewConfig(cfg)
	require.NoError(t, err)
	return NewApp(out, c, stubLoader{settings: settings}), out
}

func TestNewApp_RegistersCoreModules(t *testing.T) {
	a, _ := setupApp(t, Config{}, settingsFor("https://example.api"))

	for _, name := range []string{"CreateModels", "DeleteAllModels", "Query", "CreateEventRoute", "SetupBuildingScenario", "CreateDigitalTwin"} {
		_, ok := a.Registry().Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestNewApp_AppliesOverrides(t *testing.T) {
	a, _ := setupApp(t, Config{Workers: 9, ModelsDir: "elsewhere", Listen: ":9999"}, settingsFor("https://example.api"))

	assert.Equal(t, 9, a.Settings().Workers)
	assert.Equal(t, "elsewhere", a.Settings().ModelsDir)
	assert.Equal(t, ":9999", a.Settings().Functions.Listen)
}

func TestNewApp_PanicsOnConfigError(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)

	assert.PanicsWithError(t, "failed to load configuration: boom", func() {
		NewApp(&safeBuffer{}, cfg, stubLoader{err: errors.New("boom")})
	})
	assert.Panics(t, func() {
		NewApp(&safeBuffer{}, &Config{Workers: 100}, stubLoader{settings: settingsFor("https://example.api")})
	})
}

func TestRun_Exec(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PutTwin("room21", "dtmi:example:Space;1", map[string]any{"DisplayName": "Room 21"})
	a, out := setupApp(t, Config{Mode: ModeExec, Command: []string{"GetDigitalTwin", "room21"}}, settingsFor(srv.URL))

	// --- Act ---
	err := a.Run(context.Background(), nil)

	// --- Assert ---
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), `"DisplayName": "Room 21"`)
}

func TestRun_ExecFailure(t *testing.T) {
	srv := twinstest.NewServer(t)
	a, out := setupApp(t, Config{Mode: ModeExec, Command: []string{"Bogus"}}, settingsFor(srv.URL))

	err := a.Run(context.Background(), nil)

	assert.EqualError(t, err, "command Bogus failed")
	assert.Contains(t, out.String(), "Invalid command. Please type 'help' for more information.")
}

func TestRun_Shell(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	a, out := setupApp(t, Config{Mode: ModeShell}, settingsFor(srv.URL))
	in := strings.NewReader("help\nGetModels\nexit\nGetModels\n")

	// --- Act ---
	err := a.Run(context.Background(), in)

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Managing DigitalTwins Models:")
	assert.Equal(t, 1, strings.Count(out.String(), "Found 0 model(s)"), "commands after Exit are not run")
}

func TestRun_Serve(t *testing.T) {
	// --- Arrange ---
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := twinstest.NewServer(t)
	a, _ := setupApp(t, Config{Mode: ModeServe, Listen: addr}, settingsFor(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// --- Act ---
	go func() { done <- a.Run(ctx, nil) }()

	// --- Assert ---
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeShell, cfg.Mode)

	_, err = NewConfig(Config{Mode: ModeExec})
	assert.ErrorContains(t, err, "requires a command")

	_, err = NewConfig(Config{Mode: "launch"})
	assert.ErrorContains(t, err, "unknown mode 'launch'")
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, `CreateEventRoute r1 ep "type = 'x'"`, joinArgs([]string{"CreateEventRoute", "r1", "ep", "type = 'x'"}))
	assert.Equal(t, `a ""`, joinArgs([]string{"a", ""}))
}
