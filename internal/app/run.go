package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"

	"github.com/vk/twinctl/internal/archive"
	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/functions"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/shell"
	"github.com/vk/twinctl/internal/twins"
)

// Run executes the selected mode until it finishes or ctx is done. The
// shell reads its command lines from in.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", a.config.Mode)

	client, err := twins.New(twins.Options{
		InstanceURL:    a.settings.InstanceURL,
		Token:          a.settings.Token,
		APIVersion:     a.settings.APIVersion,
		Timeout:        a.settings.Timeout,
		ModelCacheSize: a.settings.ModelCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create twins client: %w", err)
	}
	defer client.Close()

	if a.config.Mode == ModeServe {
		return a.serve(ctx, client)
	}

	arch, err := archive.FromSettings(a.settings.Archive)
	if err != nil {
		return fmt.Errorf("failed to configure archive: %w", err)
	}

	env := &registry.Env{
		Twins:    client,
		Out:      console.NewPrinter(a.outW, !a.config.NoColor && color.SupportColor()),
		Settings: a.settings,
		Input:    input(ctx, in),
		Archive:  arch,
		Registry: a.registry,
	}
	sh := shell.New(env)

	if a.config.Mode == ModeExec {
		line := joinArgs(a.config.Command)
		a.logger.Debug("Executing single command.", "line", line)
		if err := sh.Exec(ctx, line); err != nil && !errors.Is(err, registry.ErrExit) {
			sh.Report(err)
			return fmt.Errorf("command %s failed", a.config.Command[0])
		}
		return nil
	}

	a.logger.Info("🚀 Shell started.", "instance", client.Endpoint())
	err = sh.Run(ctx)
	a.logger.Info("🏁 Shell finished.")
	return err
}

func (a *App) serve(ctx context.Context, client *twins.Client) error {
	fs := a.settings.Functions
	var extra []functions.Broadcaster
	if fs.SocketIO.URL != "" {
		sio, err := functions.DialSocketIO(ctx, functions.SocketIOOptions{
			URL:       fs.SocketIO.URL,
			Namespace: fs.SocketIO.Namespace,
			Event:     fs.SocketIO.Event,
			Timeout:   fs.SocketIO.Timeout,
		})
		if err != nil {
			return err
		}
		defer sio.Close()
		extra = append(extra, sio)
	}

	host, err := functions.NewHost(client, functions.Options{
		Relationship:    fs.Relationship,
		ParentCacheSize: fs.ParentCacheSize,
		Broadcasters:    extra,
	})
	if err != nil {
		return err
	}
	server := functions.NewServer(host, fs.Listen)
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("🏁 Stop requested.")
	return server.Shutdown(ctx)
}

// input streams the lines of in. A nil reader is an input that has already
// ended.
func input(ctx context.Context, in io.Reader) <-chan string {
	if in == nil {
		closed := make(chan string)
		close(closed)
		return closed
	}
	return console.ReadLines(ctx, in)
}

// joinArgs rebuilds a command line, quoting arguments that contain spaces
// so the shell splits them back the same way.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t") {
			quoted[i] = `"` + arg + `"`
			continue
		}
		quoted[i] = arg
	}
	return strings.Join(quoted, " ")
}
