package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/sentiment"
	"github.com/ZanzyTHEbar/teamsignal/internal/skills"
	"github.com/google/uuid"
)

// Repository persists skill and risk snapshots
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveSkillScores stores a batch of scores in one transaction
func (r *Repository) SaveSkillScores(ctx context.Context, scores []skills.SkillScore) error {
	if len(scores) == 0 {
		return nil
	}

	stmt, err := r.db.GetPreparedStatement(stmtInsertSkillScore)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		txStmt := tx.StmtContext(ctx, stmt)
		defer txStmt.Close()

		for _, s := range scores {
			signals, err := json.Marshal(s.Signals)
			if err != nil {
				return fmt.Errorf("failed to encode signals: %w", err)
			}
			if _, err := txStmt.ExecContext(ctx,
				uuid.NewString(), s.PersonID, strings.ToLower(s.SkillName), s.SkillName,
				s.Level, string(s.Trend), s.TrendMagnitude, s.Confidence, s.EvidenceCount,
				string(signals), toUnix(s.ComputedAt),
			); err != nil {
				return apperrors.WrapError(err, "failed to insert skill score %s/%s", s.PersonID, s.SkillName)
			}
		}
		return nil
	})
}

// LatestSkillScores returns the most recent score per skill for each requested
// person. People without snapshots are absent from the map.
func (r *Repository) LatestSkillScores(ctx context.Context, personIDs []string) (map[string][]skills.SkillScore, error) {
	result := make(map[string][]skills.SkillScore)
	if len(personIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(personIDs)), ",")
	args := make([]interface{}, len(personIDs))
	for i, id := range personIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT person_id, skill_key, skill_name, level, trend, trend_magnitude,
			confidence, evidence_count, signals, computed_at
		FROM skill_scores
		WHERE person_id IN (`+placeholders+`)
		ORDER BY person_id, skill_key, computed_at DESC, rowid DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skill scores: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var (
			s          skills.SkillScore
			key        string
			trend      string
			signals    string
			computedAt int64
		)
		if err := rows.Scan(&s.PersonID, &key, &s.SkillName, &s.Level, &trend, &s.TrendMagnitude,
			&s.Confidence, &s.EvidenceCount, &signals, &computedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skill score: %w", err)
		}

		seenKey := s.PersonID + "\x00" + key
		if seen[seenKey] {
			continue
		}
		seen[seenKey] = true

		if err := json.Unmarshal([]byte(signals), &s.Signals); err != nil {
			return nil, fmt.Errorf("failed to decode signals: %w", err)
		}
		s.Trend = analysis.Direction(trend)
		s.ComputedAt = fromUnix(computedAt)
		result[s.PersonID] = append(result[s.PersonID], s)
	}

	return result, rows.Err()
}

// SaveRiskProfiles stores one snapshot per profile, all stamped with computedAt
func (r *Repository) SaveRiskProfiles(ctx context.Context, teamID string, profiles []sentiment.PersonRiskProfile, computedAt time.Time) error {
	if len(profiles) == 0 {
		return nil
	}

	stmt, err := r.db.GetPreparedStatement(stmtInsertRiskProfile)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		txStmt := tx.StmtContext(ctx, stmt)
		defer txStmt.Close()

		for _, p := range profiles {
			snap := NewRiskSnapshot(teamID, p, computedAt)
			if _, err := txStmt.ExecContext(ctx,
				snap.ID, snap.TeamID, p.PersonID, p.AverageSentiment, string(p.SentimentTrend),
				p.TrendMagnitude, p.BlockerRate, p.BlockerCount, string(p.RiskLevel), p.RiskScore,
				p.SampleCount, p.WindowDays, p.Confidence, p.HeuristicCount, toUnix(snap.ComputedAt),
			); err != nil {
				return apperrors.WrapError(err, "failed to insert risk profile for %s", p.PersonID)
			}
		}
		return nil
	})
}

// RiskHistory returns up to limit snapshots for a person, newest first
func (r *Repository) RiskHistory(ctx context.Context, personID string, limit int) ([]RiskSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	stmt, err := r.db.GetPreparedStatement(stmtRiskHistory)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, personID, limit)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to query risk history for %s", personID)
	}
	defer rows.Close()

	history := make([]RiskSnapshot, 0, limit)
	for rows.Next() {
		var (
			snap       RiskSnapshot
			trend      string
			level      string
			computedAt int64
		)
		p := &snap.PersonRiskProfile
		if err := rows.Scan(&snap.ID, &snap.TeamID, &p.PersonID, &p.AverageSentiment, &trend,
			&p.TrendMagnitude, &p.BlockerRate, &p.BlockerCount, &level, &p.RiskScore,
			&p.SampleCount, &p.WindowDays, &p.Confidence, &p.HeuristicCount, &computedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk profile: %w", err)
		}
		p.SentimentTrend = analysis.Direction(trend)
		p.RiskLevel = sentiment.RiskLevel(level)
		snap.ComputedAt = fromUnix(computedAt)
		history = append(history, snap)
	}

	return history, rows.Err()
}

// LatestRiskProfile returns the newest snapshot for a person
func (r *Repository) LatestRiskProfile(ctx context.Context, personID string) (RiskSnapshot, error) {
	history, err := r.RiskHistory(ctx, personID, 1)
	if err != nil {
		return RiskSnapshot{}, err
	}
	if len(history) == 0 {
		return RiskSnapshot{}, apperrors.NewNotFoundError("risk_profile", personID)
	}
	return history[0], nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
