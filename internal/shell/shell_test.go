package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/registry"
)

type recorder struct {
	calls [][]string
}

func newTestShell(t *testing.T, lines ...string) (*Shell, *recorder, *bytes.Buffer) {
	t.Helper()
	rec := &recorder{}
	reg := registry.New()
	reg.RegisterCommand(&registry.RegisteredCommand{
		Name: "Echo", Usage: "<words>", Help: "Echoes", Category: registry.Tools,
		Fn: func(_ context.Context, env *registry.Env, args []string) error {
			rec.calls = append(rec.calls, args)
			return nil
		},
	})
	reg.RegisterCommand(&registry.RegisteredCommand{
		Name: "Fail", Help: "Fails", Category: registry.Tools,
		Fn: func(context.Context, *registry.Env, []string) error { return errors.New("boom") },
	})
	reg.RegisterCommand(&registry.RegisteredCommand{
		Name: "Usage", Help: "Usage error", Category: registry.Tools,
		Fn: func(context.Context, *registry.Env, []string) error {
			return registry.Usagef("Please specify the id of the twin")
		},
	})
	reg.RegisterCommand(&registry.RegisteredCommand{
		Name: "Panic", Help: "Panics", Category: registry.Tools,
		Fn: func(context.Context, *registry.Env, []string) error { panic("kaboom") },
	})
	reg.RegisterCommand(&registry.RegisteredCommand{
		Name: "Exit", Help: "Exits", Category: registry.Tools,
		Fn: func(context.Context, *registry.Env, []string) error { return registry.ErrExit },
	})

	input := make(chan string, len(lines))
	for _, l := range lines {
		input <- l
	}
	close(input)

	var buf bytes.Buffer
	env := &registry.Env{Out: console.NewPrinter(&buf, false), Input: input, Registry: reg}
	return New(env), rec, &buf
}

func TestRun_DispatchesUntilExit(t *testing.T) {
	// --- Arrange ---
	sh, rec, buf := newTestShell(t,
		`echo one "two three"`,
		"",
		"nope",
		"fail",
		"usage",
		"panic",
		`echo "odd`,
		"exit",
		"echo after-exit",
	)

	// --- Act ---
	err := sh.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"one", "two three"}, {"odd"}}, rec.calls)

	out := buf.String()
	assert.Contains(t, out, "Invalid command. Please type 'help' for more information.")
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, "Please specify the id of the twin\n")
	assert.Contains(t, out, "Error: command Panic panicked: kaboom")
	assert.Contains(t, out, "uneven number of quotes")
	assert.NotContains(t, out, "after-exit")
}

func TestRun_EndsWhenInputCloses(t *testing.T) {
	sh, rec, buf := newTestShell(t, "echo a")

	require.NoError(t, sh.Run(context.Background()))

	assert.Len(t, rec.calls, 1)
	assert.Equal(t, 2, strings.Count(buf.String(), prompt))
}

func TestExec(t *testing.T) {
	sh, rec, _ := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, "ECHO x"))
	require.NoError(t, sh.Exec(ctx, "   "))
	assert.ErrorIs(t, sh.Exec(ctx, "missing"), ErrUnknownCommand)
	assert.ErrorIs(t, sh.Exec(ctx, "exit"), registry.ErrExit)
	assert.Equal(t, [][]string{{"x"}}, rec.calls)
}
