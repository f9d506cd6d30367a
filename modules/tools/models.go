package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/purge"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

// progress prints purge passes as they complete.
type progress struct {
	out *console.Printer
}

func (p progress) PassStarted(pass int, deletable []string, kept int) {
	p.out.Out("Model deletion pass %d", pass)
	for _, id := range deletable {
		p.out.Alert("Can delete %s", id)
	}
	if kept > 0 {
		p.out.Muted("%d model(s) still referenced", kept)
	}
}

func (p progress) ModelDeleted(pass int, id string) {
	p.out.Ok("Model %s deleted successfully", id)
}

func (p progress) ModelFailed(pass int, id string, err error) {
	var apiErr *twins.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		p.out.Error("Error deleting model %s %d: %s", id, apiErr.Status, apiErr.Message)
		return
	}
	p.out.Error("Error deleting model %s: %v", id, err)
}

// DeleteAllModels deletes every model leaves first. With an archive
// configured the definitions are saved before anything is deleted, and a
// failing archive stops the command.
func DeleteAllModels(ctx context.Context, env *registry.Env, args []string) error {
	out := env.Out
	s := env.Settings

	out.Alert("Submitting...")
	store := twins.NewModelStore(env.Twins)
	models, err := store.ListModels(ctx)
	if err != nil {
		return err
	}
	out.Out("")
	out.Alert("Found %d model(s)", len(models))
	if len(models) == 0 {
		return nil
	}

	if env.Archive != nil {
		snapshot, err := env.Archive.Save(ctx, store.Snapshot)
		if err != nil {
			return fmt.Errorf("no model was deleted: %w", err)
		}
		out.Ok("Model definitions archived to %s", env.Archive.Location(snapshot))
		out.Muted("Run 'RestoreModels %s' to upload them again", snapshot)
	}

	out.Ok("Models parsed successfully. Deleting models...")
	p := purge.New(store,
		purge.WithWorkers(s.Workers),
		purge.WithRetryLimit(s.RetryLimit),
		purge.WithRetryDelay(s.RetryDelay),
		purge.WithObserver(progress{out: out}),
	)
	report, err := p.Run(ctx, models)
	if report != nil {
		PrintReport(out, report)
	}
	if err != nil {
		return err
	}
	if report.State != purge.Done {
		return fmt.Errorf("%d model(s) could not be deleted", len(report.Stuck))
	}
	return nil
}

// PrintReport renders the outcome of a purge.
func PrintReport(out *console.Printer, r *purge.Report) {
	out.Out("")
	if r.State == purge.Done {
		out.Ok("%s", r.Summary())
		return
	}
	out.Error("%s", r.Summary())
	for _, s := range r.Stuck {
		line := fmt.Sprintf("  %s: %s", s.ID, s.Reason)
		if len(s.ReferencedBy) > 0 {
			line += " (referenced by " + strings.Join(s.ReferencedBy, ", ") + ")"
		}
		if s.LastError != nil {
			line += ": " + s.LastError.Error()
		}
		out.Error("%s", line)
	}
	for _, cycle := range purge.Cycles(r.Stuck) {
		out.Alert("Reference cycle: %s -> %s", strings.Join(cycle, " -> "), cycle[0])
	}
	for _, id := range r.Remaining {
		out.Muted("  %s: not deleted", id)
	}
}

// RestoreModels uploads the definitions of an archive snapshot.
func RestoreModels(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please supply the snapshot printed by DeleteAllModels")
	}
	if env.Archive == nil {
		return registry.Usagef("No archive is configured. Add an archive block to the settings file")
	}
	docs, err := env.Archive.Load(ctx, args[0])
	if err != nil {
		return err
	}
	env.Out.Alert("Submitting %d model(s) from %s...", len(docs), env.Archive.Location(args[0]))
	created, err := env.Twins.CreateModels(ctx, docs)
	if err != nil {
		return err
	}
	env.Out.Ok("Restored %d model(s)", len(created))
	return nil
}
