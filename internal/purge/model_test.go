package purge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModel_References(t *testing.T) {
	m := Model{
		ID:         "Room",
		Extends:    []string{"Space", "Room", ""},
		Components: []string{"Thermostat", "Space"},
	}
	assert.Equal(t, []string{"Space", "Thermostat"}, m.References())
}

func TestBuildReferenceSet(t *testing.T) {
	refs := BuildReferenceSet([]Model{
		{ID: "A", Extends: []string{"C"}},
		{ID: "B", Components: []string{"C"}},
		{ID: "C"},
	})
	assert.Equal(t, ReferenceSet{"C": {"A", "B"}}, refs)
}

func TestPartition(t *testing.T) {
	deletable, kept := Partition([]Model{
		{ID: "A", Extends: []string{"B"}},
		{ID: "B"},
		{ID: "D"},
	})
	assert.Equal(t, []string{"A", "D"}, ids(deletable))
	assert.Equal(t, []string{"B"}, ids(kept))
}

func TestReport_Summary(t *testing.T) {
	r := &Report{State: Stuck, Passes: 2, Deleted: []string{"A"}, Stuck: []StuckModel{{ID: "B"}}}
	assert.Equal(t, "stuck after 2 pass(es): 1 deleted, 1 stuck", r.Summary())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "state(9)", State(9).String())
}
