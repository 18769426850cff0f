package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/biogate/internal/worker"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Model kinds a manifest entry may declare.
const (
	KindPython   = "python"
	KindCentroid = "centroid"
	KindRules    = "rules"
)

// DefaultWorkerScript is used when the manifest does not name one. Like every
// other manifest path it is relative to the manifest's directory.
const DefaultWorkerScript = "../python/predict_worker.py"

// FeatureSource tells the loader where a biometric's features live.
type FeatureSource struct {
	CSV         string   `yaml:"csv"`
	KeyColumn   string   `yaml:"key_column"`
	DropColumns []string `yaml:"drop_columns"`
	RawDir      string   `yaml:"raw_dir"`
}

// ModelSpec is one (classifier, encoder) pair.
type ModelSpec struct {
	Kind     string         `yaml:"kind"`
	Model    string         `yaml:"model"`
	Encoder  string         `yaml:"encoder"`
	Features *FeatureSource `yaml:"features"` // face and voice only
	Inputs   []string       `yaml:"inputs"`   // recommender only: ordered profile attributes
}

// ProfileSpec points at the merged customer CSV.
type ProfileSpec struct {
	CSV       string `yaml:"csv"`
	KeyColumn string `yaml:"key_column"`
}

// GateSpec holds gate parameters; nil thresholds fall back to the gate default.
type GateSpec struct {
	FaceThreshold  *float64 `yaml:"face_threshold"`
	VoiceThreshold *float64 `yaml:"voice_threshold"`
	Authorized     []string `yaml:"authorized"`
}

// IdentityLink ties a biometric identity to a customer record.
type IdentityLink struct {
	Label      string `yaml:"label"`
	CustomerID string `yaml:"customer_id"`
}

// Manifest describes every artifact the system loads at startup.
type Manifest struct {
	Face         ModelSpec      `yaml:"face"`
	Voice        ModelSpec      `yaml:"voice"`
	Recommender  ModelSpec      `yaml:"recommender"`
	Profiles     ProfileSpec    `yaml:"profiles"`
	Gate         GateSpec       `yaml:"gate"`
	Identities   []IdentityLink `yaml:"identities"`
	Python       string         `yaml:"python"`
	WorkerScript string         `yaml:"worker_script"`

	dir string
}

// LoadManifest reads the YAML manifest. Relative paths inside it are resolved
// against the manifest's own directory.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	for name, spec := range map[string]ModelSpec{"face": m.Face, "voice": m.Voice} {
		switch spec.Kind {
		case KindPython, KindCentroid:
		default:
			return fmt.Errorf("%s: unsupported classifier kind %q", name, spec.Kind)
		}
		if spec.Model == "" {
			return fmt.Errorf("%s: model path is required", name)
		}
		if spec.Features == nil || (spec.Features.CSV == "" && spec.Features.RawDir == "") {
			return fmt.Errorf("%s: a feature csv or raw_dir is required", name)
		}
	}
	switch m.Recommender.Kind {
	case KindRules:
	case KindPython:
		if len(m.Recommender.Inputs) == 0 {
			return fmt.Errorf("recommender: python models need an inputs list")
		}
	default:
		return fmt.Errorf("recommender: unsupported kind %q", m.Recommender.Kind)
	}
	if m.Recommender.Model == "" {
		return fmt.Errorf("recommender: model path is required")
	}
	for _, id := range m.Identities {
		if id.Label == "" || id.CustomerID == "" {
			return fmt.Errorf("identities: label and customer_id are both required")
		}
	}
	return nil
}

// Path resolves p relative to the manifest directory. Empty stays empty.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

func (m *Manifest) workerConfig(name string, spec ModelSpec) worker.Config {
	script := m.WorkerScript
	if script == "" {
		script = DefaultWorkerScript
	}
	return worker.Config{
		Name:    name,
		Python:  m.Python,
		Script:  m.Path(script),
		Model:   m.Path(spec.Model),
		Encoder: m.Path(spec.Encoder),
	}
}

// Models are the three loaded collaborators.
type Models struct {
	Face        Classifier
	Voice       Classifier
	Recommender Recommender
}

// Open loads all three models. The caller treats any error as fatal.
func Open(m *Manifest) (*Models, error) {
	ms := &Models{}
	var err error

	if ms.Face, err = m.openClassifier("face", m.Face); err != nil {
		return nil, err
	}
	if ms.Voice, err = m.openClassifier("voice", m.Voice); err != nil {
		ms.Close()
		return nil, err
	}
	if ms.Recommender, err = m.openRecommender(); err != nil {
		ms.Close()
		return nil, err
	}
	return ms, nil
}

func (m *Manifest) openClassifier(name string, spec ModelSpec) (Classifier, error) {
	logrus.WithFields(logrus.Fields{"model": name, "kind": spec.Kind, "path": m.Path(spec.Model)}).Info("loading model")
	switch spec.Kind {
	case KindCentroid:
		c, err := LoadCentroid(name, m.Path(spec.Model), m.Path(spec.Encoder))
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", name, err)
		}
		return c, nil
	case KindPython:
		c, err := NewPythonClassifier(m.workerConfig(name, spec))
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", name, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%s: unsupported classifier kind %q", name, spec.Kind)
}

func (m *Manifest) openRecommender() (Recommender, error) {
	spec := m.Recommender
	logrus.WithFields(logrus.Fields{"model": "recommender", "kind": spec.Kind, "path": m.Path(spec.Model)}).Info("loading model")
	switch spec.Kind {
	case KindRules:
		r, err := LoadRules(m.Path(spec.Model))
		if err != nil {
			return nil, fmt.Errorf("load recommender: %w", err)
		}
		return r, nil
	case KindPython:
		r, err := NewPythonRecommender(m.workerConfig("recommender", spec), spec.Inputs)
		if err != nil {
			return nil, fmt.Errorf("load recommender: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("recommender: unsupported kind %q", spec.Kind)
}

// Close releases every loaded model (stopping Python workers).
func (ms *Models) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{ms.Face, ms.Voice, ms.Recommender} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
