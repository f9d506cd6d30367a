package purge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/twinctl/internal/modelgraph"
)

// State is the terminal state of a purge run.
type State int

const (
	// Running is never returned by a finished run; it is the state between passes.
	Running State = iota
	// Done means every model was deleted.
	Done
	// Stuck means a pass made no progress while models remained.
	Stuck
	// Aborted means the context was cancelled between passes.
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Stuck:
		return "stuck"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason tells why a model could not be deleted.
type Reason string

const (
	// ReasonCycle marks a model that sits on a reference cycle.
	ReasonCycle Reason = "cycle"
	// ReasonReferenced marks a model that is referenced by a stuck model
	// without being on a cycle itself.
	ReasonReferenced Reason = "referenced"
	// ReasonDeleteFailed marks a model nobody references whose delete calls
	// kept failing.
	ReasonDeleteFailed Reason = "delete-failed"
)

// StuckModel is one model left over by a stuck run.
type StuckModel struct {
	ID           string
	ReferencedBy []string
	Reason       Reason
	LastError    error
}

// Failure records one failed delete call.
type Failure struct {
	Pass int
	ID   string
	Err  error
}

// Report is the outcome of a purge run.
type Report struct {
	State    State
	Passes   int
	Deleted  []string
	Stuck    []StuckModel
	Failures []Failure
	// Remaining lists the models left undeleted by an aborted run.
	Remaining []string
}

// StuckIDs returns the ids of the stuck models in report order.
func (r *Report) StuckIDs() []string {
	ids := make([]string, 0, len(r.Stuck))
	for _, s := range r.Stuck {
		ids = append(ids, s.ID)
	}
	return ids
}

// Summary renders the report as one line.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s after %d pass(es): %d deleted", r.State, r.Passes, len(r.Deleted))
	if len(r.Stuck) > 0 {
		fmt.Fprintf(&sb, ", %d stuck", len(r.Stuck))
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&sb, ", %d failed delete call(s)", len(r.Failures))
	}
	if len(r.Remaining) > 0 {
		fmt.Fprintf(&sb, ", %d remaining", len(r.Remaining))
	}
	return sb.String()
}

// Explain classifies the models of a stuck set. Models on a reference cycle
// get ReasonCycle, models only referenced by stuck models get
// ReasonReferenced, and unreferenced models get ReasonDeleteFailed.
// lastErrors carries the most recent delete error per id, if any.
func Explain(remaining []Model, lastErrors map[string]error) []StuckModel {
	g := modelgraph.New()
	for _, m := range remaining {
		g.AddNode(m.ID)
	}
	for _, m := range remaining {
		for _, ref := range m.References() {
			if !g.Has(ref) {
				// Outside the snapshot; cannot hold anything back.
				continue
			}
			// Self references are filtered by References, so this cannot fail.
			_ = g.AddReference(m.ID, ref)
		}
	}

	onCycle := make(map[string]bool)
	for _, component := range g.Components() {
		for _, id := range component {
			onCycle[id] = true
		}
	}

	stuck := make([]StuckModel, 0, len(remaining))
	for _, m := range remaining {
		referrers, _ := g.Referrers(m.ID)
		s := StuckModel{
			ID:           m.ID,
			ReferencedBy: referrers,
			LastError:    lastErrors[m.ID],
		}
		switch {
		case onCycle[m.ID]:
			s.Reason = ReasonCycle
		case len(referrers) > 0:
			s.Reason = ReasonReferenced
		default:
			s.Reason = ReasonDeleteFailed
		}
		stuck = append(stuck, s)
	}
	return stuck
}

// Cycles returns one reference cycle per strongly connected group of a
// stuck set. Each cycle
// lists ids in reference order: every id references the next one and the
// last references the first.
func Cycles(stuck []StuckModel) [][]string {
	g := modelgraph.New()
	for _, s := range stuck {
		g.AddNode(s.ID)
	}
	for _, s := range stuck {
		for _, referrer := range s.ReferencedBy {
			if g.Has(referrer) {
				_ = g.AddReference(referrer, s.ID)
			}
		}
	}
	cycles := g.Cycles()
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
