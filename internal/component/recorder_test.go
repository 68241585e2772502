package component

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
)

func TestRecorderJournalsBroadcasts(t *testing.T) {
	writer := NewMemoryRecordWriter()
	r := NewRecorder(writer, "game-1", testLogger())
	h := r.Start()

	h.in <- &frame.Broadcast{Event: api.NewGameStartEvent(), Timestamp: 10}
	h.in <- &frame.Broadcast{Event: api.NewCustomEvent(1, []byte{9}), Timestamp: 11}
	h.in <- &frame.TxState{} // not journaled
	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())

	records := writer.Records()
	require.Len(t, records, 2)
	require.Equal(t, api.EventGameStart, records[0].Event.Kind)
	require.Equal(t, uint64(11), records[1].Timestamp)
}

func TestFileRecordWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileRecordWriter(dir, "game-1")
	require.NoError(t, err)

	want := Record{Event: api.NewCustomEvent(3, []byte{1, 2}), Timestamp: 99}
	require.NoError(t, w.Write(want))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "game-1.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	got, err := DecodeRecord(lines[0])
	require.NoError(t, err)
	require.Equal(t, want.Timestamp, got.Timestamp)
	require.Equal(t, want.Event, got.Event)
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	_, err := DecodeRecord("not-base64!!!")
	require.Error(t, err)
}
