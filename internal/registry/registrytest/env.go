// Package registrytest builds command environments for handler tests.
package registrytest

import (
	"bytes"
	"sync"
	"testing"

	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins/twinstest"
)

// Output is a thread-safe buffer for captured console output.
type Output struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.Write(p)
}

func (o *Output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

// NewEnv returns an environment talking to srv with default settings, no
// input and uncolored output. The registry holds the given modules.
func NewEnv(t testing.TB, srv *twinstest.Server, modules ...registry.Module) (*registry.Env, *Output) {
	t.Helper()
	out := &Output{}
	reg := registry.New()
	for _, m := range modules {
		m.Register(reg)
	}
	settings := config.Default()
	settings.InstanceURL = srv.URL
	settings.Workers = 2
	input := make(chan string)
	close(input)
	return &registry.Env{
		Twins:    srv.Client(t),
		Out:      console.NewPrinter(out, false),
		Settings: settings,
		Input:    input,
		Registry: reg,
	}, out
}
