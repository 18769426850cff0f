package model

import (
	"fmt"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/andresmejia3/biogate/internal/utils"
	"github.com/andresmejia3/biogate/internal/worker"
)

// predictor is the part of worker.PythonWorker the models rely on.
type predictor interface {
	Predict(features []float64) (worker.Prediction, error)
	Close() error
}

// PythonClassifier serves a pickled classifier through a Python worker.
type PythonClassifier struct {
	Name      string
	NFeatures int
	w         predictor
}

// NewPythonClassifier starts the worker and reads the expected feature count from its handshake.
func NewPythonClassifier(cfg worker.Config) (*PythonClassifier, error) {
	w, err := worker.NewPythonWorker(cfg)
	if err != nil {
		return nil, err
	}
	return &PythonClassifier{Name: cfg.Name, NFeatures: w.Info.NFeatures, w: w}, nil
}

func (p *PythonClassifier) Classify(v types.FeatureVector) (types.ClassificationResult, error) {
	if err := checkShape(p.Name, p.NFeatures, v.Len()); err != nil {
		return types.ClassificationResult{}, err
	}
	pred, err := p.w.Predict(v)
	if err != nil {
		return types.ClassificationResult{}, fmt.Errorf("%s model: %w", p.Name, err)
	}
	return types.ClassificationResult{
		Label:      types.NormalizeLabel(pred.Label),
		Confidence: utils.Clamp01(pred.Confidence),
	}, nil
}

// Worker exposes the underlying process so callers can dump its stderr on failure.
func (p *PythonClassifier) Worker() *worker.PythonWorker {
	w, _ := p.w.(*worker.PythonWorker)
	return w
}

func (p *PythonClassifier) Close() error { return p.w.Close() }

// PythonRecommender serves a pickled product model. Inputs fixes the order in
// which profile attributes are fed to it.
type PythonRecommender struct {
	Inputs    []string
	NFeatures int
	w         predictor
}

// NewPythonRecommender starts the worker for the product model.
func NewPythonRecommender(cfg worker.Config, inputs []string) (*PythonRecommender, error) {
	w, err := worker.NewPythonWorker(cfg)
	if err != nil {
		return nil, err
	}
	r := &PythonRecommender{Inputs: inputs, NFeatures: w.Info.NFeatures, w: w}
	if err := checkShape("recommender", r.NFeatures, len(inputs)); err != nil {
		w.Close()
		return nil, err
	}
	return r, nil
}

func (p *PythonRecommender) Recommend(profile types.CustomerProfile) (types.Recommendation, error) {
	vec := make([]float64, len(p.Inputs))
	for i, name := range p.Inputs {
		v, ok := profile.Attributes[name]
		if !ok {
			return types.Recommendation{}, fmt.Errorf("customer %s has no %q attribute: %w", profile.CustomerID, name, ErrShapeMismatch)
		}
		vec[i] = v
	}

	pred, err := p.w.Predict(vec)
	if err != nil {
		return types.Recommendation{}, fmt.Errorf("recommender model: %w", err)
	}
	return types.Recommendation{Category: pred.Label, Source: "model"}, nil
}

func (p *PythonRecommender) Close() error { return p.w.Close() }
