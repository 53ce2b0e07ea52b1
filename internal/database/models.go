package database

import (
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/sentiment"
	"github.com/google/uuid"
)

// RiskSnapshot is a persisted person risk profile
type RiskSnapshot struct {
	ID         string    `json:"id" db:"id"`
	TeamID     string    `json:"team_id" db:"team_id"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
	sentiment.PersonRiskProfile
}

// NewRiskSnapshot stamps a profile with an id, its team and a computation time
func NewRiskSnapshot(teamID string, profile sentiment.PersonRiskProfile, computedAt time.Time) RiskSnapshot {
	return RiskSnapshot{
		ID:                uuid.NewString(),
		TeamID:            teamID,
		ComputedAt:        computedAt.UTC(),
		PersonRiskProfile: profile,
	}
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
