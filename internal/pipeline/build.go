package pipeline

import (
	"fmt"

	"github.com/andresmejia3/biogate/internal/features"
	"github.com/andresmejia3/biogate/internal/gate"
	"github.com/andresmejia3/biogate/internal/model"
	"github.com/andresmejia3/biogate/internal/profile"
	"github.com/andresmejia3/biogate/internal/types"
)

// Options override what the manifest says.
type Options struct {
	FaceThreshold  *float64
	VoiceThreshold *float64
	Profiles       profile.Source // consulted before the manifest's profile CSV (e.g. the database)
	Recorder       Recorder
}

// Build assembles a System from a manifest and its already opened models.
func Build(m *model.Manifest, ms *model.Models, opts Options) (*System, error) {
	faceLoader, err := newLoader(m, m.Face.Features, features.NewImageLoader)
	if err != nil {
		return nil, fmt.Errorf("face features: %w", err)
	}
	voiceLoader, err := newLoader(m, m.Voice.Features, features.NewAudioLoader)
	if err != nil {
		return nil, fmt.Errorf("voice features: %w", err)
	}

	policy, err := BuildPolicy(m.Gate, opts.FaceThreshold, opts.VoiceThreshold)
	if err != nil {
		return nil, err
	}

	links := make(map[types.IdentityLabel]string, len(m.Identities))
	for _, l := range m.Identities {
		links[types.NormalizeLabel(l.Label)] = l.CustomerID
	}

	var chain profile.Chain
	if opts.Profiles != nil {
		chain = append(chain, opts.Profiles)
	}
	if m.Profiles.CSV != "" {
		src, err := profile.LoadCSV(m.Path(m.Profiles.CSV), m.Profiles.KeyColumn)
		if err != nil {
			return nil, fmt.Errorf("customer profiles: %w", err)
		}
		chain = append(chain, src)
	}
	var profiles profile.Source
	switch len(chain) {
	case 0:
	case 1:
		profiles = chain[0]
	default:
		profiles = chain
	}

	return &System{
		FaceLoader:  faceLoader,
		VoiceLoader: voiceLoader,
		Face:        ms.Face,
		Voice:       ms.Voice,
		Recommender: ms.Recommender,
		Policy:      policy,
		Links:       links,
		Profiles:    profiles,
		Recorder:    opts.Recorder,
	}, nil
}

// BuildPolicy layers the gate default, the manifest values and any explicit overrides.
func BuildPolicy(spec model.GateSpec, faceOverride, voiceOverride *float64) (gate.Policy, error) {
	p := gate.DefaultPolicy()
	if spec.FaceThreshold != nil {
		p.FaceThreshold = *spec.FaceThreshold
	}
	if spec.VoiceThreshold != nil {
		p.VoiceThreshold = *spec.VoiceThreshold
	}
	if faceOverride != nil {
		p.FaceThreshold = *faceOverride
	}
	if voiceOverride != nil {
		p.VoiceThreshold = *voiceOverride
	}
	for _, l := range spec.Authorized {
		p.Authorize(types.NormalizeLabel(l))
	}
	if err := p.Validate(); err != nil {
		return gate.Policy{}, err
	}
	return p, nil
}

func newLoader(m *model.Manifest, src *model.FeatureSource, mk func(*features.Table, string) *features.Loader) (*features.Loader, error) {
	if src == nil {
		return mk(nil, ""), nil
	}
	var table *features.Table
	if src.CSV != "" {
		t, err := features.LoadTable(m.Path(src.CSV), features.TableOptions{
			KeyColumn:   src.KeyColumn,
			DropColumns: src.DropColumns,
		})
		if err != nil {
			return nil, err
		}
		table = t
	}
	return mk(table, m.Path(src.RawDir)), nil
}
