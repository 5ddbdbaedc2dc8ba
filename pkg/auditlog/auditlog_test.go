package auditlog

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestWriterEmitsHeaderOnce(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWriter(nopCloser{buf})
	ts := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, w.Write(Entry{Timestamp: ts, Group: "MB | Geral", Member: "5511987654321", Action: "queued", Reason: "Inactive"}))
	require.NoError(t, w.Write(Entry{Timestamp: ts, Group: "MB | Geral", Member: "5599999999999", Action: "removed", Reason: "Not found in DB, sent"}))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"2025-04-02T09:30:00Z", "MB | Geral", "5511987654321", "queued", "Inactive"}, rows[1])
	assert.Equal(t, "Not found in DB, sent", rows[2][4])
}

func TestOpenAppendsWithoutRepeatingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "actions.csv")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Entry{Group: "g", Member: "1", Action: "queued"}))
	require.NoError(t, w.Close())

	w, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(Entry{Group: "g", Member: "2", Action: "queued"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2", rows[2][2])
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	assert.NoError(t, w.Write(Entry{}))
	assert.NoError(t, w.Close())
}
