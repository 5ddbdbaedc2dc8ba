// Package auditlog appends one CSV line per engine action to a rotated file.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is one audit line: timestamp, group, member, action, reason.
type Entry struct {
	Timestamp time.Time
	Group     string
	Member    string
	Action    string
	Reason    string
}

func (e Entry) columns() []string {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{ts.UTC().Format(time.RFC3339), e.Group, e.Member, e.Action, e.Reason}
}

var header = []string{"timestamp", "group", "member", "action", "reason"}

// Writer serializes entries; it is safe for concurrent use by the add and remove loops.
type Writer struct {
	mu     sync.Mutex
	out    io.WriteCloser
	csv    *csv.Writer
	header bool
}

// Open appends to path, rotating at 50MB and keeping 10 compressed backups.
func Open(path string) (*Writer, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(clean), err)
	}
	needHeader := true
	if info, err := os.Stat(clean); err == nil && info.Size() > 0 {
		needHeader = false
	}
	lj := &lumberjack.Logger{
		Filename:   clean,
		MaxSize:    50,
		MaxBackups: 10,
		Compress:   true,
	}
	return newWriter(lj, needHeader), nil
}

// NewWriter wraps an arbitrary sink, mostly for tests.
func NewWriter(out io.WriteCloser) *Writer {
	return newWriter(out, true)
}

func newWriter(out io.WriteCloser, needHeader bool) *Writer {
	return &Writer{out: out, csv: csv.NewWriter(out), header: !needHeader}
}

func (w *Writer) Write(e Entry) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.header {
		if err := w.csv.Write(header); err != nil {
			return err
		}
		w.header = true
	}
	if err := w.csv.Write(e.columns()); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.out.Close()
}
