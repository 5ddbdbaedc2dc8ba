// Package report persists producer reports as YAML, with an optional XLSX copy and object-storage upload.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/storage"
	"github.com/xuri/excelize/v2"
	waLog "go.mau.fi/whatsmeow/util/log"
	yaml "gopkg.in/yaml.v3"
)

var invalidSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Document maps phone -> category -> affected groups, plus per-category phone counts.
type Document struct {
	GeneratedAt time.Time                      `yaml:"generated_at"`
	RunID       string                         `yaml:"run_id"`
	Counts      map[string]int                 `yaml:"counts"`
	Phones      map[string]map[string][]string `yaml:"phones"`
}

func NewDocument(runID string, at time.Time) *Document {
	return &Document{
		GeneratedAt: at.UTC(),
		RunID:       runID,
		Counts:      make(map[string]int),
		Phones:      make(map[string]map[string][]string),
	}
}

// Add records that phone falls in category within group. Repeats are ignored.
func (d *Document) Add(phoneKey, category, group string) {
	byCategory, ok := d.Phones[phoneKey]
	if !ok {
		byCategory = make(map[string][]string)
		d.Phones[phoneKey] = byCategory
	}
	groups, seen := byCategory[category]
	if !seen {
		d.Counts[category]++
	}
	for _, g := range groups {
		if g == group {
			return
		}
	}
	byCategory[category] = append(groups, group)
}

// Categories returns the categories present, sorted.
func (d *Document) Categories() []string {
	out := make([]string, 0, len(d.Counts))
	for c := range d.Counts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (d *Document) sortedPhones() []string {
	out := make([]string, 0, len(d.Phones))
	for p := range d.Phones {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Result lists what a Write produced.
type Result struct {
	YAMLPath string
	XLSXPath string
	URLs     []string
}

type Writer struct {
	dir      string
	xlsx     bool
	uploader storage.Service
	log      waLog.Logger
}

// NewWriter returns a writer rooted at dir. uploader may be nil.
func NewWriter(dir string, xlsx bool, uploader storage.Service, log waLog.Logger) *Writer {
	base := strings.TrimSpace(dir)
	if base == "" {
		base = "reports"
	}
	if log == nil {
		log = waLog.Noop
	}
	return &Writer{dir: filepath.Clean(base), xlsx: xlsx, uploader: uploader, log: log}
}

func (w *Writer) Write(ctx context.Context, doc *Document) (*Result, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", w.dir, err)
	}
	base := fmt.Sprintf("report-%s-%s", doc.GeneratedAt.UTC().Format("20060102T150405Z"), sanitizeSegment(doc.RunID))

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	res := &Result{YAMLPath: filepath.Join(w.dir, base+".yaml")}
	if err := os.WriteFile(res.YAMLPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", res.YAMLPath, err)
	}
	w.upload(ctx, res, base+".yaml", "application/yaml", data)

	if !w.xlsx {
		return res, nil
	}
	sheet, err := buildWorkbook(doc)
	if err != nil {
		return res, fmt.Errorf("build xlsx: %w", err)
	}
	res.XLSXPath = filepath.Join(w.dir, base+".xlsx")
	if err := os.WriteFile(res.XLSXPath, sheet, 0o644); err != nil {
		return res, fmt.Errorf("write %s: %w", res.XLSXPath, err)
	}
	w.upload(ctx, res, base+".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", sheet)
	return res, nil
}

func (w *Writer) upload(ctx context.Context, res *Result, name, contentType string, data []byte) {
	if w.uploader == nil {
		return
	}
	url, err := w.uploader.PutObject(ctx, storage.UploadInput{
		Key:         "reports/" + name,
		ContentType: contentType,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		w.log.Warnf("report upload %s failed: %v", name, err)
		return
	}
	w.log.Infof("report uploaded to %s", url)
	res.URLs = append(res.URLs, url)
}

func buildWorkbook(doc *Document) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const summary, detail = "Summary", "Phones"
	if err := xl.SetSheetName(xl.GetSheetName(0), summary); err != nil {
		return nil, err
	}
	if _, err := xl.NewSheet(detail); err != nil {
		return nil, err
	}

	head := []string{"category", "phones"}
	_ = xl.SetSheetRow(summary, "A1", &head)
	for i, c := range doc.Categories() {
		row := []any{c, doc.Counts[c]}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(summary, cell, &row)
	}

	head = []string{"phone", "formatted", "category", "groups"}
	_ = xl.SetSheetRow(detail, "A1", &head)
	r := 2
	for _, p := range doc.sortedPhones() {
		byCategory := doc.Phones[p]
		cats := make([]string, 0, len(byCategory))
		for c := range byCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			row := []string{p, phone.Display(p), c, strings.Join(byCategory[c], "; ")}
			cell, _ := excelize.CoordinatesToCellName(1, r)
			_ = xl.SetSheetRow(detail, cell, &row)
			r++
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sanitizeSegment(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "unknown"
	}
	sanitized := invalidSegment.ReplaceAllString(candidate, "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		return "unknown"
	}
	return sanitized
}
