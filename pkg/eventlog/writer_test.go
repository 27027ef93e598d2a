package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

func TestWriteAndReadRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "issue-9")
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	turn := proto.NewUserTurn("please fix the build")
	require.NoError(t, w.WriteTurn(turn))

	event := sandbox.Event{
		Action:    "create_session",
		Status:    proto.StatusSuccess,
		Detail:    "codepilot-abc",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, w.WriteSandboxEvent(event))

	records, err := ReadRecords(w.CurrentLogFile())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, KindTurn, records[0].Kind)
	assert.Equal(t, "issue-9", records[0].PlanRef)
	require.NotNil(t, records[0].Turn)
	assert.Equal(t, turn.ID, records[0].Turn.ID)
	assert.Equal(t, "please fix the build", records[0].Turn.Content)

	assert.Equal(t, KindSandbox, records[1].Kind)
	require.NotNil(t, records[1].Sandbox)
	assert.Equal(t, "create_session", records[1].Sandbox.Action)
}

func TestWriterAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, "ref")
	require.NoError(t, err)
	require.NoError(t, w.WriteTurn(proto.NewUserTurn("first")))
	path := w.CurrentLogFile()
	require.NoError(t, w.Close())

	w, err = NewWriter(dir, "ref")
	require.NoError(t, err)
	require.NoError(t, w.WriteTurn(proto.NewUserTurn("second")))
	require.NoError(t, w.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Turn.Content)
	assert.Equal(t, "second", records[1].Turn.Content)
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "ref")
	require.NoError(t, err)
	require.NoError(t, w.WriteTurn(proto.NewUserTurn("hi")))
	path := w.CurrentLogFile()
	require.NoError(t, w.Close())

	files, err := ListLogFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0])
}

func TestReadRecordsMissingFile(t *testing.T) {
	_, err := ReadRecords(t.TempDir() + "/nope.jsonl")
	assert.Error(t, err)
}
