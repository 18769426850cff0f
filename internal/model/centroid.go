package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/andresmejia3/biogate/internal/utils"
)

// CentroidClassifier is a Go-native nearest-centroid model. Confidence is the
// cosine similarity to the winning centroid, clamped to [0, 1].
type CentroidClassifier struct {
	Name      string
	Dim       int
	Centroids [][]float64
	Encoder   *Encoder
}

type centroidArtifact struct {
	Dim       int         `json:"dim"`
	Centroids [][]float64 `json:"centroids"`
	Classes   []string    `json:"classes,omitempty"`
}

// LoadCentroid reads a centroid artifact. Classes come from the encoder file when
// given, otherwise from the artifact itself.
func LoadCentroid(name, modelPath, encoderPath string) (*CentroidClassifier, error) {
	raw, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, err
	}
	var art centroidArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("parse centroid model %s: %w", modelPath, err)
	}

	enc := &Encoder{Classes: art.Classes}
	if encoderPath != "" {
		if enc, err = LoadEncoder(encoderPath); err != nil {
			return nil, err
		}
	}
	c, err := NewCentroidClassifier(name, art.Centroids, enc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}
	if art.Dim > 0 && art.Dim != c.Dim {
		return nil, fmt.Errorf("%s: declared dim %d but centroids have %d", modelPath, art.Dim, c.Dim)
	}
	return c, nil
}

// NewCentroidClassifier validates that every centroid has the same length and
// that the encoder names each of them.
func NewCentroidClassifier(name string, centroids [][]float64, enc *Encoder) (*CentroidClassifier, error) {
	if len(centroids) == 0 {
		return nil, fmt.Errorf("centroid model has no centroids")
	}
	if enc == nil || len(enc.Classes) != len(centroids) {
		return nil, fmt.Errorf("encoder must name all %d centroids", len(centroids))
	}
	dim := len(centroids[0])
	for i, c := range centroids {
		if len(c) != dim || dim == 0 {
			return nil, fmt.Errorf("centroid %d has %d values, expected %d", i, len(c), dim)
		}
	}
	return &CentroidClassifier{Name: name, Dim: dim, Centroids: centroids, Encoder: enc}, nil
}

func (c *CentroidClassifier) Classify(v types.FeatureVector) (types.ClassificationResult, error) {
	if err := checkShape(c.Name, c.Dim, v.Len()); err != nil {
		return types.ClassificationResult{}, err
	}

	best, bestDist := -1, 0.0
	for i, centroid := range c.Centroids {
		d := utils.CosineDist(v, centroid)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}

	label, err := c.Encoder.Label(best)
	if err != nil {
		return types.ClassificationResult{}, err
	}
	return types.ClassificationResult{
		Label:      types.NormalizeLabel(label),
		Confidence: utils.Clamp01(1 - bestDist),
	}, nil
}

func (c *CentroidClassifier) Close() error { return nil }
