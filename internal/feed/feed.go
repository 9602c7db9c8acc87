// Package feed loads CSV or JSON files whose rows parameterize templated
// actions, e.g. a fleet of real sensor identifiers.
package feed

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Mode defines how rows are picked.
type Mode string

const (
	// ModeSequential walks the rows in order across all users, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom draws a row from the calling user's random source.
	ModeRandom Mode = "random"
)

// ParseMode accepts "", "sequential" or "random".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeRandom:
		return ModeRandom, nil
	}
	return "", fmt.Errorf("unknown feed mode %q (use sequential or random)", s)
}

// Feed is a loaded file shared by every user of a class.
type Feed struct {
	name    string
	rows    []map[string]any
	mode    Mode
	counter atomic.Uint64
}

// New creates a feed from rows.
func New(name string, rows []map[string]any, mode Mode) *Feed {
	if mode == "" {
		mode = ModeSequential
	}
	return &Feed{name: name, rows: rows, mode: mode}
}

func (f *Feed) Name() string { return f.name }
func (f *Feed) Len() int     { return len(f.rows) }

// Next returns a copy of the next row. rng is only used in random mode
// and must belong to the caller. Safe for concurrent use.
func (f *Feed) Next(rng *rand.Rand) map[string]any {
	if len(f.rows) == 0 {
		return nil
	}

	var idx int
	if f.mode == ModeRandom && rng != nil {
		idx = rng.Intn(len(f.rows))
	} else {
		n := f.counter.Add(1) - 1
		idx = int(n % uint64(len(f.rows)))
	}

	row := make(map[string]any, len(f.rows[idx]))
	for k, v := range f.rows[idx] {
		row[k] = v
	}
	return row
}

// Load reads a .csv or .json file. Relative paths resolve against dir.
func Load(name, path string, mode Mode, dir string) (*Feed, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	var rows []map[string]any
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("feed file %s is empty", path)
	}
	return New(name, rows, mode), nil
}

// loadCSV reads a header row followed by data rows.
func loadCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON reads an array of objects.
func loadJSON(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}

// Feeds is the set of feeds attached to one class.
type Feeds map[string]*Feed

// Inject draws one row from every feed and sets its fields as
// "data.<feed>.<field>".
func (fs Feeds) Inject(vars interface{ Set(key string, value any) }, rng *rand.Rand) {
	for name, f := range fs {
		for field, value := range f.Next(rng) {
			vars.Set(fmt.Sprintf("data.%s.%s", name, field), value)
		}
	}
}
