package features

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/sirupsen/logrus"
)

// Loader resolves a sample name to a FeatureVector, preferring the precomputed
// CSV row and falling back to on-the-fly extraction from the raw file.
type Loader struct {
	Kind    string // "face" or "voice", for logs
	Table   *Table
	RawDir  string
	Exts    []string // extensions tried when the name has none
	Extract Extractor
}

// NewImageLoader returns a Loader for face images.
func NewImageLoader(table *Table, rawDir string) *Loader {
	return &Loader{Kind: "face", Table: table, RawDir: rawDir, Exts: []string{".jpg", ".jpeg", ".png"}, Extract: ExtractImage}
}

// NewAudioLoader returns a Loader for voice samples.
func NewAudioLoader(table *Table, rawDir string) *Loader {
	return &Loader{Kind: "voice", Table: table, RawDir: rawDir, Exts: []string{".wav"}, Extract: ExtractAudio}
}

// Load returns the features for name. It reports ErrNotFound when no row
// and no raw file exist, or when the raw file cannot be opened.
func (l *Loader) Load(name string) (types.FeatureVector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s sample: %w", l.Kind, ErrNotFound)
	}

	if vec, ok := l.Table.Lookup(name); ok {
		logrus.WithFields(logrus.Fields{"kind": l.Kind, "sample": name, "source": "csv"}).Debug("features loaded")
		return vec, nil
	}

	path, ok := l.resolve(name)
	if !ok {
		return nil, fmt.Errorf("%s sample %q: %w", l.Kind, name, ErrNotFound)
	}
	if l.Extract == nil {
		return nil, fmt.Errorf("%s sample %q: no extractor configured", l.Kind, name)
	}

	vec, err := l.Extract(path)
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s sample %q: %w: %w", l.Kind, name, ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s sample %q: %w", l.Kind, name, err)
	}
	logrus.WithFields(logrus.Fields{"kind": l.Kind, "sample": name, "source": path, "dim": len(vec)}).Debug("features extracted")
	return vec, nil
}

func (l *Loader) resolve(name string) (string, bool) {
	candidates := []string{name}
	if l.RawDir != "" && !filepath.IsAbs(name) {
		candidates = append(candidates, filepath.Join(l.RawDir, name))
		if filepath.Ext(name) == "" || !l.knownExt(name) {
			for _, ext := range l.Exts {
				candidates = append(candidates, filepath.Join(l.RawDir, name+ext))
			}
		}
		// "loic_normal" should still find "loic normal.jpg".
		if entries, err := os.ReadDir(l.RawDir); err == nil {
			key := NormalizeKey(name)
			for _, e := range entries {
				if !e.IsDir() && NormalizeKey(e.Name()) == key {
					candidates = append(candidates, filepath.Join(l.RawDir, e.Name()))
				}
			}
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func (l *Loader) knownExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range l.Exts {
		if e == ext {
			return true
		}
	}
	return false
}

// Samples lists the sample names this loader can resolve, from the CSV and the raw directory.
func (l *Loader) Samples() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range l.Table.Names() {
		k := NormalizeKey(n)
		if !seen[k] {
			seen[k] = true
			out = append(out, n)
		}
	}
	if l.RawDir != "" {
		if entries, err := os.ReadDir(l.RawDir); err == nil {
			for _, e := range entries {
				if e.IsDir() || !l.knownExt(e.Name()) {
					continue
				}
				k := NormalizeKey(e.Name())
				if !seen[k] {
					seen[k] = true
					out = append(out, e.Name())
				}
			}
		}
	}
	sort.Strings(out)
	return out
}
