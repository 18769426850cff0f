package types

import (
	"strings"
	"time"
)

// FeatureVector is the engineered numeric encoding of one face image or voice sample.
// Treat it as immutable once extracted.
type FeatureVector []float64

func (v FeatureVector) Len() int { return len(v) }

// Clone returns a copy so callers can never mutate the loader's cached rows.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// IdentityLabel names one of the known persons (e.g. "loic", "christine").
type IdentityLabel string

// Unknown is what classifiers report when they cannot place a sample.
const Unknown IdentityLabel = "unknown"

// NormalizeLabel lower-cases and trims a raw model label.
func NormalizeLabel(raw string) IdentityLabel {
	l := strings.ToLower(strings.TrimSpace(raw))
	if l == "" {
		return Unknown
	}
	return IdentityLabel(l)
}

// ClassificationResult is the output of a single classifier call.
type ClassificationResult struct {
	Label      IdentityLabel `json:"label"`
	Confidence float64       `json:"confidence"`
}

// CustomerProfile is the merged social-media + transaction record of one customer.
type CustomerProfile struct {
	CustomerID string             `json:"customer_id"`
	Attributes map[string]float64 `json:"attributes"`
	Labels     map[string]string  `json:"labels"`
}

// Facts flattens the profile into a single map for rule evaluation.
// Numeric attributes win over labels sharing a name.
func (p CustomerProfile) Facts() map[string]any {
	facts := make(map[string]any, len(p.Attributes)+len(p.Labels)+1)
	for k, v := range p.Labels {
		facts[k] = v
	}
	for k, v := range p.Attributes {
		facts[k] = v
	}
	facts["customer_id"] = p.CustomerID
	return facts
}

// Reason explains an AuthDecision.
type Reason string

const (
	ReasonFaceRejected     Reason = "face_rejected"
	ReasonVoiceRejected    Reason = "voice_rejected"
	ReasonIdentityMismatch Reason = "identity_mismatch"
	ReasonApproved         Reason = "approved"
)

// AuthDecision is the terminal value of the gate.
type AuthDecision struct {
	Authorized bool          `json:"authorized"`
	Reason     Reason        `json:"reason"`
	Identity   IdentityLabel `json:"identity,omitempty"` // set only when approved
}

// Recommendation is a predicted product category for an authenticated customer.
type Recommendation struct {
	Category string `json:"category"`
	Source   string `json:"source"` // rule name or model kind that produced it
}

// Attempt is the audit record of one authentication transaction.
type Attempt struct {
	ID             string               `json:"id"`
	Scenario       string               `json:"scenario"`
	FaceSample     string               `json:"face_sample"`
	VoiceSample    string               `json:"voice_sample"`
	Face           ClassificationResult `json:"face"`
	Voice          ClassificationResult `json:"voice"`
	Decision       AuthDecision         `json:"decision"`
	Recommendation string               `json:"recommendation,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}
