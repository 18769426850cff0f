package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/andresmejia3/biogate/internal/types"
)

// ErrNotFound is returned when neither a feature row nor a raw file exists for a sample.
var ErrNotFound = errors.New("file not found")

// mediaExts are stripped from sample names when building lookup keys.
var mediaExts = []string{".jpg", ".jpeg", ".png", ".wav", ".mp3", ".flac", ".ogg", ".m4a"}

// NormalizeKey maps a sample filename to its lookup key:
// "loic normal.jpg" -> "loic_normal", "loic.dat.wav" -> "loic.dat".
func NormalizeKey(name string) string {
	k := strings.ToLower(strings.TrimSpace(filepath.Base(name)))
	for _, ext := range mediaExts {
		if strings.HasSuffix(k, ext) {
			k = strings.TrimSuffix(k, ext)
			break
		}
	}
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return k
}

// TableOptions describes how to read a feature CSV.
type TableOptions struct {
	KeyColumn   string   // defaults to the first column
	DropColumns []string // non-feature columns (labels, augmentation tags, ...)
}

// Table holds precomputed feature rows keyed by normalized sample name.
type Table struct {
	Columns []string
	rows    map[string]types.FeatureVector
	names   map[string]string // key -> original sample name
}

// LoadTable reads a feature CSV from disk.
func LoadTable(path string, opts TableOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadTable(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable parses a feature CSV. Every column that is neither the key nor dropped
// must hold numbers; anything else is a configuration error.
func ReadTable(r io.Reader, opts TableOptions) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	keyIdx := 0
	if opts.KeyColumn != "" {
		keyIdx = indexOf(header, opts.KeyColumn)
		if keyIdx == -1 {
			return nil, fmt.Errorf("key column %q not in header", opts.KeyColumn)
		}
	}
	drop := make(map[string]bool, len(opts.DropColumns))
	for _, c := range opts.DropColumns {
		drop[strings.TrimSpace(c)] = true
	}

	var featIdx []int
	var columns []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == keyIdx || drop[h] {
			continue
		}
		featIdx = append(featIdx, i)
		columns = append(columns, h)
	}

	t := &Table{
		Columns: columns,
		rows:    make(map[string]types.FeatureVector),
		names:   make(map[string]string),
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		name := strings.TrimSpace(rec[keyIdx])
		if name == "" {
			continue
		}
		key := NormalizeKey(name)
		if _, dup := t.rows[key]; dup {
			continue
		}

		vec := make(types.FeatureVector, len(featIdx))
		for j, idx := range featIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: not numeric: %w", line, header[idx], err)
			}
			vec[j] = v
		}
		t.rows[key] = vec
		t.names[key] = name
	}
	return t, nil
}

// Lookup returns a copy of the feature row for the given sample name.
func (t *Table) Lookup(name string) (types.FeatureVector, bool) {
	if t == nil {
		return nil, false
	}
	vec, ok := t.rows[NormalizeKey(name)]
	if !ok {
		return nil, false
	}
	return vec.Clone(), true
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Names returns the original sample names, sorted.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func indexOf(header []string, col string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), col) {
			return i
		}
	}
	return -1
}
