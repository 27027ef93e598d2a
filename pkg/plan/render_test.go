package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p TaskPlan) TaskPlan {
	t.Helper()
	rendered, err := Render(p)
	require.NoError(t, err)
	parsed, err := Parse(rendered)
	require.NoError(t, err)
	return parsed
}

func TestRoundTripEmptyPlan(t *testing.T) {
	p := NewTaskPlan()
	assert.Equal(t, p, roundTrip(t, p))
}

func TestRoundTripSingleTask(t *testing.T) {
	p, _ := CreateTask(NewTaskPlan(), "do the thing", "Thing", []string{"step 1", "step 2"}, nil)
	assert.Equal(t, p, roundTrip(t, p))
}

func TestRoundTripMultiTaskWithRevisions(t *testing.T) {
	p, firstID := CreateTask(NewTaskPlan(), "first", "", []string{"a", "b"}, nil)
	p, _ = CreateTask(p, "second", "", []string{"c"}, &firstID)

	var err error
	p, err = CompleteItem(p, firstID, 0, "done a")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		p, err = ReviseTask(p, firstID, []string{"rework"}, CreatedByUser)
		require.NoError(t, err)
	}
	require.Len(t, p.Tasks[0].Revisions, 3)

	assert.Equal(t, p, roundTrip(t, p))
}

func TestParseRejectsMalformedBlock(t *testing.T) {
	_, err := Parse(BeginMarker + "\n{}\n")
	assert.Error(t, err)

	_, err = Parse("not json at all")
	assert.Error(t, err)
}

func TestEmbedPreservesSurroundingContent(t *testing.T) {
	p, taskID := CreateTask(NewTaskPlan(), "req", "", []string{"a"}, nil)

	doc := "# Tracking issue\n\nHuman-written context up top.\n"
	embedded, err := Embed(doc, p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(embedded, "# Tracking issue"))
	assert.Contains(t, embedded, BeginMarker)

	// Rewrite with an updated plan; unrelated content must survive verbatim.
	updated, err := CompleteItem(p, taskID, 0, "")
	require.NoError(t, err)
	rewritten, err := Embed(embedded+"\nTrailing notes.\n", updated)
	require.NoError(t, err)

	assert.Contains(t, rewritten, "Human-written context up top.")
	assert.Contains(t, rewritten, "Trailing notes.")
	assert.Equal(t, 1, strings.Count(rewritten, BeginMarker))

	got, found, err := Extract(rewritten)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, updated, got)
}

func TestExtractNoBlock(t *testing.T) {
	_, found, err := Extract("plain issue body, no plan here")
	require.NoError(t, err)
	assert.False(t, found)
}
