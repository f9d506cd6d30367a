package tools

import (
	"context"
	"fmt"

	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

func DeleteAllTwinsCommand(ctx context.Context, env *registry.Env, args []string) error {
	return DeleteAllTwins(ctx, env)
}

// DeleteAllTwins removes every relationship of every twin, then the twins.
// Failures on single twins are printed and do not stop the run; only a
// failing query is returned.
func DeleteAllTwins(ctx context.Context, env *registry.Env) error {
	logger := ctxlog.FromContext(ctx)
	out := env.Out

	out.Alert("\nDeleting all twins")
	out.Muted("Step 1: Find all twins")
	ids, skipped, err := env.Twins.TwinIDs(ctx, twins.DefaultQuery)
	if err != nil {
		return fmt.Errorf("error in query execution: %w", err)
	}
	for _, item := range skipped {
		out.Error("Error: Can't find twin id in query result:\n %s", item)
	}

	out.Muted("Step 2: Find and remove relationships for each twin...")
	for _, id := range ids {
		deleteOutgoing(ctx, env, id)
		deleteIncoming(ctx, env, id)
	}

	out.Muted("Step 3: Delete all twins")
	deleted := 0
	for _, id := range ids {
		if err := env.Twins.DeleteTwin(ctx, id); err != nil {
			out.Error("*** Error deleting twin %s: %v", id, err)
			continue
		}
		deleted++
		out.Out("Deleted twin %s", id)
	}
	logger.Info("Twins deleted.", "found", len(ids), "deleted", deleted)
	return nil
}

func deleteOutgoing(ctx context.Context, env *registry.Env, id string) {
	rels, err := env.Twins.ListRelationships(ctx, id, "")
	if err != nil {
		env.Out.Error("*** Error retrieving relationships for %s: %v", id, err)
		return
	}
	for _, rel := range rels {
		if err := env.Twins.DeleteRelationship(ctx, id, rel.ID); err != nil && !twins.IsNotFound(err) {
			env.Out.Error("*** Error deleting relationship %s of %s: %v", rel.ID, id, err)
			continue
		}
		env.Out.Ok("Deleted relationship %s from %s", rel.ID, id)
	}
}

func deleteIncoming(ctx context.Context, env *registry.Env, id string) {
	incoming, err := env.Twins.ListIncomingRelationships(ctx, id)
	if err != nil {
		env.Out.Error("*** Error retrieving incoming relationships for %s: %v", id, err)
		return
	}
	for _, rel := range incoming {
		if err := env.Twins.DeleteRelationship(ctx, rel.SourceID, rel.RelationshipID); err != nil && !twins.IsNotFound(err) {
			env.Out.Error("*** Error deleting incoming relationship %s of %s: %v", rel.RelationshipID, id, err)
			continue
		}
		env.Out.Ok("Deleted incoming relationship %s from %s", rel.RelationshipID, id)
	}
}
