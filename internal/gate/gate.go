// Package gate combines the face and voice classifier outputs into one
// authorization outcome.
package gate

import (
	"fmt"

	"github.com/andresmejia3/biogate/internal/types"
	"github.com/sirupsen/logrus"
)

// DefaultThreshold applies to both biometrics unless configured otherwise.
const DefaultThreshold = 0.5

// Policy holds the gate parameters. An empty Authorized set accepts every
// known label; the Unknown label is never accepted. The Authorized set is only
// consulted once face and voice agree on an identity.
type Policy struct {
	FaceThreshold  float64
	VoiceThreshold float64
	Authorized     map[types.IdentityLabel]bool
}

// DefaultPolicy returns a policy with both thresholds at DefaultThreshold.
func DefaultPolicy() Policy {
	return Policy{FaceThreshold: DefaultThreshold, VoiceThreshold: DefaultThreshold}
}

// Validate checks that both thresholds are within [0, 1].
func (p Policy) Validate() error {
	if !(p.FaceThreshold >= 0 && p.FaceThreshold <= 1) {
		return fmt.Errorf("face threshold must be between 0.0 and 1.0, got %f", p.FaceThreshold)
	}
	if !(p.VoiceThreshold >= 0 && p.VoiceThreshold <= 1) {
		return fmt.Errorf("voice threshold must be between 0.0 and 1.0, got %f", p.VoiceThreshold)
	}
	return nil
}

// Authorize adds labels to the authorized set.
func (p *Policy) Authorize(labels ...types.IdentityLabel) {
	if p.Authorized == nil {
		p.Authorized = make(map[types.IdentityLabel]bool, len(labels))
	}
	for _, l := range labels {
		p.Authorized[l] = true
	}
}

func (p Policy) accepts(r types.ClassificationResult, threshold float64) bool {
	// Written as !(>=) so a NaN confidence is rejected.
	if !(r.Confidence >= threshold) {
		return false
	}
	return r.Label != types.Unknown && r.Label != ""
}

// Permits reports whether an agreed identity is in the authorized set.
func (p Policy) Permits(l types.IdentityLabel) bool {
	return len(p.Authorized) == 0 || p.Authorized[l]
}

// FacePasses reports whether a face result clears the face threshold.
func (p Policy) FacePasses(r types.ClassificationResult) bool { return p.accepts(r, p.FaceThreshold) }

// VoicePasses reports whether a voice result clears the voice threshold.
func (p Policy) VoicePasses(r types.ClassificationResult) bool { return p.accepts(r, p.VoiceThreshold) }

// Decide applies the rules in order: face, voice, identity agreement, then the
// authorized set. An agreed identity outside the set is a face rejection.
// Rejections are ordinary results; Decide never fails.
func Decide(p Policy, face, voice types.ClassificationResult) types.AuthDecision {
	var d types.AuthDecision
	switch {
	case !p.FacePasses(face):
		d = types.AuthDecision{Reason: types.ReasonFaceRejected}
	case !p.VoicePasses(voice):
		d = types.AuthDecision{Reason: types.ReasonVoiceRejected}
	case face.Label != voice.Label:
		d = types.AuthDecision{Reason: types.ReasonIdentityMismatch}
	case !p.Permits(face.Label):
		d = types.AuthDecision{Reason: types.ReasonFaceRejected}
	default:
		d = types.AuthDecision{Authorized: true, Reason: types.ReasonApproved, Identity: face.Label}
	}

	logrus.WithFields(logrus.Fields{
		"face_label":       face.Label,
		"face_confidence":  face.Confidence,
		"voice_label":      voice.Label,
		"voice_confidence": voice.Confidence,
		"reason":           d.Reason,
	}).Debug("gate decision")
	return d
}
