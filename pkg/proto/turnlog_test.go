package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnLogAppendOnly(t *testing.T) {
	log := NewTurnLog()

	i0 := log.Append(NewUserTurn("do the thing"))
	i1 := log.Append(NewAssistantTurn("on it", nil))

	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	assert.Equal(t, 2, log.Len())

	visible := log.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, RoleUser, visible[0].Role)
	assert.Equal(t, RoleAssistant, visible[1].Role)
}

func TestTurnLogSupersedeKeepsAudit(t *testing.T) {
	log := NewTurnLog()

	req := NewActionRequest("shell", map[string]any{"cmd": "rm -rf /"})
	idx := log.Append(NewAssistantTurn("running", []ActionRequest{req}))

	rewritten := NewAssistantTurn("running", nil)
	ri := log.Supersede(idx, rewritten)
	require.NotEqual(t, -1, ri)

	// Audit retains both versions.
	audit := log.Audit()
	require.Len(t, audit, 2)
	assert.Len(t, audit[0].Actions, 1)

	// Visible view shows only the rewrite, at the original position.
	visible := log.Visible()
	require.Len(t, visible, 1)
	assert.Empty(t, visible[0].Actions)
	assert.Equal(t, rewritten.ID, visible[0].ID)
}

func TestTurnLogSupersedeChain(t *testing.T) {
	log := NewTurnLog()
	idx := log.Append(NewUserTurn("v1"))
	mid := log.Supersede(idx, NewUserTurn("v2"))
	log.Supersede(mid, NewUserTurn("v3"))

	visible := log.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "v3", visible[0].Content)
	assert.Equal(t, 3, log.Len())
}

func TestTurnLogSupersedeOutOfRange(t *testing.T) {
	log := NewTurnLog()
	assert.Equal(t, -1, log.Supersede(5, NewUserTurn("nope")))
}

func TestTurnLogCollapse(t *testing.T) {
	log := NewTurnLog()
	for i := 0; i < 5; i++ {
		log.Append(NewUserTurn("turn"))
	}

	marker := NewSummaryTurn("summary of the first three")
	log.Collapse(0, 3, marker)

	assert.Equal(t, 3, log.SummaryBoundary())

	visible := log.Visible()
	// The marker stands where the collapsed turns were, then the two
	// surviving turns.
	require.Len(t, visible, 3)
	assert.Equal(t, RoleSummary, visible[0].Role)
	assert.Equal(t, RoleUser, visible[1].Role)

	// Raw log still has everything.
	assert.Equal(t, 6, log.Len())
}

func TestTurnLogZeroValueSafe(t *testing.T) {
	var log TurnLog

	idx := log.Append(NewUserTurn("v1"))
	ri := log.Supersede(idx, NewUserTurn("v2"))
	require.NotEqual(t, -1, ri)

	log.Append(NewUserTurn("tail"))
	log.Collapse(0, 2, NewSummaryTurn("compacted"))

	visible := log.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, RoleSummary, visible[0].Role)
	assert.Equal(t, "tail", visible[1].Content)
}

func TestTurnLogLiveIndices(t *testing.T) {
	log := NewTurnLog()
	for i := 0; i < 4; i++ {
		log.Append(NewUserTurn("turn"))
	}
	log.Supersede(1, NewUserTurn("rewritten")) // index 4
	log.Collapse(0, 2, NewSummaryTurn("first stretch"))

	// Collapsed turns, the marker and the superseded original are all
	// excluded; the replacement counts at its own index.
	assert.Equal(t, []int{2, 3, 4}, log.LiveIndices())
}

func TestTurnLogSecondCollapseKeepsEarlierMarker(t *testing.T) {
	log := NewTurnLog()
	for i := 0; i < 4; i++ {
		log.Append(NewUserTurn("old"))
	}
	log.Collapse(0, 2, NewSummaryTurn("first"))
	log.Append(NewUserTurn("new"))
	log.Collapse(2, 5, NewSummaryTurn("second"))

	visible := log.Visible()
	require.Len(t, visible, 3)
	assert.Equal(t, "first", visible[0].Content)
	assert.Equal(t, "second", visible[1].Content)
	assert.Equal(t, "new", visible[2].Content)
}

func TestTurnJSONRoundTrip(t *testing.T) {
	req := NewActionRequest("read_file", map[string]any{"path": "main.go"})
	turn := NewResultTurn(req, StatusError, "no such file")

	data, err := turn.ToJSON()
	require.NoError(t, err)

	parsed, err := TurnFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, turn.ID, parsed.ID)
	assert.Equal(t, StatusError, parsed.Status)
	assert.Equal(t, req.ID, parsed.ActionID)
	assert.True(t, parsed.IsError())
}

func TestActionRequestArgumentBytes(t *testing.T) {
	empty := NewActionRequest("done", nil)
	assert.Equal(t, 0, empty.ArgumentBytes())

	withArgs := NewActionRequest("shell", map[string]any{"cmd": "ls"})
	assert.Greater(t, withArgs.ArgumentBytes(), 0)
}
