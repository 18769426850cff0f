// Package pipeline runs one authentication transaction end to end:
// features -> face -> voice -> gate -> recommendation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/biogate/internal/gate"
	"github.com/andresmejia3/biogate/internal/model"
	"github.com/andresmejia3/biogate/internal/profile"
	"github.com/andresmejia3/biogate/internal/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FeatureLoader resolves a sample name to its features.
type FeatureLoader interface {
	Load(name string) (types.FeatureVector, error)
	Samples() []string
}

// Recorder persists attempts. It is optional.
type Recorder interface {
	RecordAttempt(ctx context.Context, a types.Attempt) error
}

// System wires the loaders, models and gate together.
type System struct {
	FaceLoader  FeatureLoader
	VoiceLoader FeatureLoader
	Face        model.Classifier
	Voice       model.Classifier
	Recommender model.Recommender
	Policy      gate.Policy
	Links       map[types.IdentityLabel]string // identity -> customer id
	Profiles    profile.Source
	Recorder    Recorder

	now func() time.Time
}

// Request names the two samples of one attempt.
type Request struct {
	Scenario string `json:"scenario,omitempty"`
	Face     string `json:"face"`
	Voice    string `json:"voice"`
}

// Transaction is everything one attempt produced.
type Transaction struct {
	ID                string                     `json:"id"`
	Request           Request                    `json:"request"`
	Face              types.ClassificationResult `json:"face"`
	Voice             types.ClassificationResult `json:"voice"`
	FacePassed        bool                       `json:"face_passed"`
	VoicePassed       bool                       `json:"voice_passed"`
	Decision          types.AuthDecision         `json:"decision"`
	CustomerID        string                     `json:"customer_id,omitempty"`
	Recommendation    *types.Recommendation      `json:"recommendation,omitempty"`
	RecommendationErr string                     `json:"recommendation_error,omitempty"`
}

// Run executes one attempt. Authentication rejections are reported through
// Transaction.Decision; the returned error covers missing inputs
// (features.ErrNotFound) and model configuration problems (model.ErrShapeMismatch).
func (s *System) Run(ctx context.Context, req Request) (Transaction, error) {
	tx := Transaction{ID: uuid.NewString(), Request: req}
	log := logrus.WithFields(logrus.Fields{"tx": tx.ID, "scenario": req.Scenario})

	faceVec, err := s.FaceLoader.Load(req.Face)
	if err != nil {
		return tx, err
	}
	if tx.Face, err = s.Face.Classify(faceVec); err != nil {
		return tx, err
	}
	log.WithFields(logrus.Fields{"label": tx.Face.Label, "confidence": tx.Face.Confidence}).Info("face classified")

	voiceVec, err := s.VoiceLoader.Load(req.Voice)
	if err != nil {
		return tx, err
	}
	if tx.Voice, err = s.Voice.Classify(voiceVec); err != nil {
		return tx, err
	}
	log.WithFields(logrus.Fields{"label": tx.Voice.Label, "confidence": tx.Voice.Confidence}).Info("voice classified")

	tx.Decision = gate.Decide(s.Policy, tx.Face, tx.Voice)
	tx.FacePassed = s.Policy.FacePasses(tx.Face) && tx.Decision.Reason != types.ReasonFaceRejected
	tx.VoicePassed = s.Policy.VoicePasses(tx.Voice)
	log.WithField("reason", tx.Decision.Reason).Info("authentication decided")

	if tx.Decision.Authorized {
		s.recommend(ctx, &tx, log)
	}

	s.record(ctx, tx, log)
	return tx, nil
}

func (s *System) recommend(ctx context.Context, tx *Transaction, log *logrus.Entry) {
	id := tx.Decision.Identity
	customerID, ok := s.Links[id]
	if !ok {
		tx.RecommendationErr = fmt.Sprintf("no customer record linked to %s", id)
		log.Warn(tx.RecommendationErr)
		return
	}
	tx.CustomerID = customerID

	if s.Profiles == nil {
		tx.RecommendationErr = "no customer profile source configured"
		log.Warn(tx.RecommendationErr)
		return
	}
	prof, err := s.Profiles.Profile(ctx, customerID)
	if err != nil {
		tx.RecommendationErr = err.Error()
		log.WithError(err).Warn("profile lookup failed")
		return
	}

	rec, err := s.Recommender.Recommend(prof)
	if err != nil {
		tx.RecommendationErr = err.Error()
		log.WithError(err).Warn("recommendation failed")
		return
	}
	tx.Recommendation = &rec
	log.WithFields(logrus.Fields{"category": rec.Category, "source": rec.Source}).Info("recommendation produced")
}

func (s *System) record(ctx context.Context, tx Transaction, log *logrus.Entry) {
	if s.Recorder == nil {
		return
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	a := types.Attempt{
		ID:          tx.ID,
		Scenario:    tx.Request.Scenario,
		FaceSample:  tx.Request.Face,
		VoiceSample: tx.Request.Voice,
		Face:        tx.Face,
		Voice:       tx.Voice,
		Decision:    tx.Decision,
		CreatedAt:   now(),
	}
	if tx.Recommendation != nil {
		a.Recommendation = tx.Recommendation.Category
	}
	if err := s.Recorder.RecordAttempt(ctx, a); err != nil {
		log.WithError(err).Error("failed to record attempt")
	}
}

// SampleNames lists the face and voice samples the loaders know about.
func (s *System) SampleNames() (faces, voices []string) {
	return s.FaceLoader.Samples(), s.VoiceLoader.Samples()
}

// Close releases the models.
func (s *System) Close() error {
	return errors.Join(closeQuiet(s.Face), closeQuiet(s.Voice), closeQuiet(s.Recommender))
}

func closeQuiet(c interface{ Close() error }) error {
	if c == nil {
		return nil
	}
	return c.Close()
}
