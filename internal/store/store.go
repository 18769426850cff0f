package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/biogate/internal/profile"
	"github.com/andresmejia3/biogate/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding customer profiles and the
// authentication audit trail.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS customer_profiles (
			customer_id TEXT PRIMARY KEY,
			attributes JSONB NOT NULL DEFAULT '{}',
			labels JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS auth_attempts (
			id UUID PRIMARY KEY,
			scenario TEXT NOT NULL DEFAULT '',
			face_sample TEXT NOT NULL,
			voice_sample TEXT NOT NULL,
			face_label TEXT NOT NULL,
			face_confidence DOUBLE PRECISION NOT NULL,
			voice_label TEXT NOT NULL,
			voice_confidence DOUBLE PRECISION NOT NULL,
			authorized BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			identity TEXT NOT NULL DEFAULT '',
			recommendation TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS auth_attempts_created_at_idx ON auth_attempts (created_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// UpsertProfile inserts a customer profile or replaces the stored one.
func (s *Store) UpsertProfile(ctx context.Context, p types.CustomerProfile) error {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]float64{}
	}
	labels := p.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO customer_profiles (customer_id, attributes, labels, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (customer_id) DO UPDATE
		SET attributes = EXCLUDED.attributes, labels = EXCLUDED.labels, updated_at = NOW()
	`, p.CustomerID, attrs, labels)
	return err
}

// Profile fetches one customer. It satisfies profile.Source.
func (s *Store) Profile(ctx context.Context, customerID string) (types.CustomerProfile, error) {
	p := types.CustomerProfile{CustomerID: customerID}
	err := s.conn.QueryRow(ctx,
		"SELECT attributes, labels FROM customer_profiles WHERE customer_id = $1", customerID,
	).Scan(&p.Attributes, &p.Labels)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.CustomerProfile{}, fmt.Errorf("customer %q: %w", customerID, profile.ErrProfileNotFound)
	}
	if err != nil {
		return types.CustomerProfile{}, err
	}
	return p, nil
}

// ProfileSummary is a listing row.
type ProfileSummary struct {
	CustomerID string
	Attributes int
	Labels     int
	UpdatedAt  time.Time
}

// ListProfiles returns all stored customers.
func (s *Store) ListProfiles(ctx context.Context) ([]ProfileSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT customer_id,
		       (SELECT COUNT(*) FROM jsonb_object_keys(attributes)),
		       (SELECT COUNT(*) FROM jsonb_object_keys(labels)),
		       updated_at
		FROM customer_profiles
		ORDER BY customer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProfileSummary
	for rows.Next() {
		var p ProfileSummary
		if err := rows.Scan(&p.CustomerID, &p.Attributes, &p.Labels, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordAttempt appends one transaction to the audit trail. The attempt ID
// must be a UUID.
func (s *Store) RecordAttempt(ctx context.Context, a types.Attempt) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return fmt.Errorf("attempt id %q: %w", a.ID, err)
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO auth_attempts (id, scenario, face_sample, voice_sample,
			face_label, face_confidence, voice_label, voice_confidence,
			authorized, reason, identity, recommendation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, id, a.Scenario, a.FaceSample, a.VoiceSample,
		string(a.Face.Label), a.Face.Confidence, string(a.Voice.Label), a.Voice.Confidence,
		a.Decision.Authorized, string(a.Decision.Reason), string(a.Decision.Identity), a.Recommendation, created)
	return err
}

// ListAttempts returns the most recent attempts first. limit <= 0 means no limit.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]types.Attempt, error) {
	query := `
		SELECT id::text, scenario, face_sample, voice_sample,
			face_label, face_confidence, voice_label, voice_confidence,
			authorized, reason, identity, recommendation, created_at
		FROM auth_attempts
		ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Attempt
	for rows.Next() {
		var a types.Attempt
		var faceLabel, voiceLabel, reason, identity string
		if err := rows.Scan(&a.ID, &a.Scenario, &a.FaceSample, &a.VoiceSample,
			&faceLabel, &a.Face.Confidence, &voiceLabel, &a.Voice.Confidence,
			&a.Decision.Authorized, &reason, &identity, &a.Recommendation, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Face.Label = types.IdentityLabel(faceLabel)
		a.Voice.Label = types.IdentityLabel(voiceLabel)
		a.Decision.Reason = types.Reason(reason)
		a.Decision.Identity = types.IdentityLabel(identity)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS auth_attempts CASCADE;
		DROP TABLE IF EXISTS customer_profiles CASCADE;
	`)
	return err
}
