package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_OptimisticWrite(t *testing.T) {
	RunFileWithGolden(t, filepath.Join("testdata", "optimistic-write.yaml"))
}

func TestScenario_LimitTruncation(t *testing.T) {
	RunFileWithGolden(t, filepath.Join("testdata", "limit-truncation.yaml"))
}

func TestRun_RejectedWriteRollsBack(t *testing.T) {
	s := &Scenario{
		Name:      "rejected-write",
		Listeners: []ListenerDef{{Name: "main", Query: QueryDef{Collection: "rooms"}}},
		Steps: []Step{
			{ServerBatch: &ServerBatchStep{Listener: "main", Changes: []ChangeDef{
				{Kind: "added", Document: "rooms/a", Version: 1, Fields: map[string]any{"x": 1}},
			}}},
			{LocalWrite: &LocalWriteStep{Document: "rooms/a", Set: map[string]any{"x": 9}}},
			{Outcome: &OutcomeStep{Write: 1, Committed: false, Error: "denied"}},
		},
	}
	require.NoError(t, s.validate())

	result, err := Run(s)
	require.NoError(t, err)
	require.Len(t, result.Traces, 1)

	events := result.Traces[0].Events
	require.Len(t, events, 4) // initial, server add, local write, rollback
	assert.True(t, events[2].HasPendingWrites)
	assert.Equal(t, []string{`rooms/a {"x":9}`}, events[2].Docs)
	assert.False(t, events[3].HasPendingWrites)
	assert.Equal(t, []string{`rooms/a {"x":1}`}, events[3].Docs)
}

func TestLoadScenario_Validation(t *testing.T) {
	cases := []struct {
		name     string
		scenario Scenario
	}{
		{"no listeners", Scenario{Name: "x"}},
		{"duplicate listener", Scenario{Name: "x", Listeners: []ListenerDef{
			{Name: "a", Query: QueryDef{Collection: "c"}},
			{Name: "a", Query: QueryDef{Collection: "c"}},
		}}},
		{"unknown batch listener", Scenario{Name: "x",
			Listeners: []ListenerDef{{Name: "a", Query: QueryDef{Collection: "c"}}},
			Steps:     []Step{{ServerBatch: &ServerBatchStep{Listener: "nope"}}},
		}},
		{"outcome before write", Scenario{Name: "x",
			Listeners: []ListenerDef{{Name: "a", Query: QueryDef{Collection: "c"}}},
			Steps:     []Step{{Outcome: &OutcomeStep{Write: 1, Committed: true}}},
		}},
		{"empty step", Scenario{Name: "x",
			Listeners: []ListenerDef{{Name: "a", Query: QueryDef{Collection: "c"}}},
			Steps:     []Step{{}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.scenario.validate())
		})
	}
}
