// Package profile provides the merged customer records the recommender consumes.
package profile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/andresmejia3/biogate/internal/types"
)

// ErrProfileNotFound is returned when no record exists for a customer id.
var ErrProfileNotFound = errors.New("customer profile not found")

// DefaultKeyColumn is the id column of the merged customer dataset.
const DefaultKeyColumn = "customer_id"

// Source looks up customer profiles.
type Source interface {
	Profile(ctx context.Context, customerID string) (types.CustomerProfile, error)
}

// CSVSource serves profiles from the merged customer CSV, held in memory.
type CSVSource struct {
	profiles map[string]types.CustomerProfile
}

// LoadCSV reads a merged customer CSV from disk.
func LoadCSV(path, keyColumn string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadCSV(f, keyColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadCSV parses merged customer rows. Numeric cells become Attributes, other
// non-empty cells become Labels. When a customer appears on several rows
// (one per transaction) the first row wins.
func ReadCSV(r io.Reader, keyColumn string) (*CSVSource, error) {
	if keyColumn == "" {
		keyColumn = DefaultKeyColumn
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	keyIdx := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if strings.EqualFold(header[i], keyColumn) {
			keyIdx = i
		}
	}
	if keyIdx == -1 {
		return nil, fmt.Errorf("key column %q not in header", keyColumn)
	}

	s := &CSVSource{profiles: make(map[string]types.CustomerProfile)}
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

		id := strings.TrimSpace(rec[keyIdx])
		if id == "" {
			continue
		}
		if _, dup := s.profiles[id]; dup {
			continue
		}
		s.profiles[id] = parseRow(id, header, rec, keyIdx)
	}
	return s, nil
}

func parseRow(id string, header, rec []string, keyIdx int) types.CustomerProfile {
	p := types.CustomerProfile{
		CustomerID: id,
		Attributes: make(map[string]float64),
		Labels:     make(map[string]string),
	}
	for i, cell := range rec {
		if i == keyIdx {
			continue
		}
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if v, err := strconv.ParseFloat(cell, 64); err == nil {
			p.Attributes[header[i]] = v
		} else {
			p.Labels[header[i]] = cell
		}
	}
	return p
}

func (s *CSVSource) Profile(_ context.Context, customerID string) (types.CustomerProfile, error) {
	p, ok := s.profiles[strings.TrimSpace(customerID)]
	if !ok {
		return types.CustomerProfile{}, fmt.Errorf("customer %q: %w", customerID, ErrProfileNotFound)
	}
	return p, nil
}

// All returns every profile ordered by customer id.
func (s *CSVSource) All() []types.CustomerProfile {
	out := make([]types.CustomerProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// Len returns the number of distinct customers.
func (s *CSVSource) Len() int { return len(s.profiles) }

// Chain asks each source in turn. A source that does not know the customer
// passes to the next; any other error stops the lookup.
type Chain []Source

func (c Chain) Profile(ctx context.Context, customerID string) (types.CustomerProfile, error) {
	for _, s := range c {
		p, err := s.Profile(ctx, customerID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrProfileNotFound) {
			return types.CustomerProfile{}, err
		}
	}
	return types.CustomerProfile{}, fmt.Errorf("customer %q: %w", customerID, ErrProfileNotFound)
}
