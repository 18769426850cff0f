// Package model holds the pre-trained collaborators of the authentication
// pipeline: the face and voice classifiers and the product recommender.
// They are loaded once at startup and queried synchronously.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/biogate/internal/types"
)

// ErrShapeMismatch means a feature vector does not have the length a model expects.
var ErrShapeMismatch = errors.New("feature vector shape mismatch")

// ErrNoRecommendation is returned when no rule matched and no default is configured.
var ErrNoRecommendation = errors.New("no recommendation")

// Classifier maps a feature vector to an identity and a confidence.
type Classifier interface {
	Classify(types.FeatureVector) (types.ClassificationResult, error)
	Close() error
}

// Recommender predicts a product category from a customer profile.
type Recommender interface {
	Recommend(types.CustomerProfile) (types.Recommendation, error)
	Close() error
}

func checkShape(model string, want, got int) error {
	if want > 0 && want != got {
		return fmt.Errorf("%s model expects %d features, got %d: %w", model, want, got, ErrShapeMismatch)
	}
	return nil
}

// Encoder maps class indices back to labels.
type Encoder struct {
	Classes []string `json:"classes"`
}

// LoadEncoder reads a JSON encoder ({"classes": [...]}).
func LoadEncoder(path string) (*Encoder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var enc Encoder
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("parse encoder %s: %w", path, err)
	}
	if len(enc.Classes) == 0 {
		return nil, fmt.Errorf("encoder %s has no classes", path)
	}
	return &enc, nil
}

// Label returns the class name at index i.
func (e *Encoder) Label(i int) (string, error) {
	if e == nil || i < 0 || i >= len(e.Classes) {
		return "", fmt.Errorf("class index %d out of range", i)
	}
	return e.Classes[i], nil
}
