package purge

import "context"

// Model is the part of a model definition the purge needs: its id and the
// ids it references.
type Model struct {
	ID         string
	Extends    []string
	Components []string
}

// References returns the ids this model extends or uses as component
// schemas, without duplicates, extends first.
func (m Model) References() []string {
	seen := make(map[string]struct{}, len(m.Extends)+len(m.Components))
	refs := make([]string, 0, len(m.Extends)+len(m.Components))
	for _, list := range [][]string{m.Extends, m.Components} {
		for _, id := range list {
			if id == "" || id == m.ID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			refs = append(refs, id)
		}
	}
	return refs
}

// Deleter removes one model from the remote store.
type Deleter interface {
	DeleteModel(ctx context.Context, id string) error
}

// DeleterFunc adapts a plain function to the Deleter interface.
type DeleterFunc func(ctx context.Context, id string) error

// DeleteModel calls f(ctx, id).
func (f DeleterFunc) DeleteModel(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Lister returns a snapshot of every model in the remote store.
type Lister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// ReferenceSet maps a referenced model id to the ids of the remaining
// models that reference it.
type ReferenceSet map[string][]string

// BuildReferenceSet scans the extends and component lists of every model.
func BuildReferenceSet(models []Model) ReferenceSet {
	refs := make(ReferenceSet)
	for _, m := range models {
		for _, id := range m.References() {
			refs[id] = append(refs[id], m.ID)
		}
	}
	return refs
}

// Partition splits models into those nobody references (deletable) and the
// rest (kept). Both keep the input order.
func Partition(models []Model) (deletable, kept []Model) {
	refs := BuildReferenceSet(models)
	for _, m := range models {
		if _, referenced := refs[m.ID]; referenced {
			kept = append(kept, m)
		} else {
			deletable = append(deletable, m)
		}
	}
	return deletable, kept
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(models []Model) []Model {
	seen := make(map[string]struct{}, len(models))
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
