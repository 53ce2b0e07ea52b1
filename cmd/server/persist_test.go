package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZanzyTHEbar/teamsignal/internal/config"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWriteErrors(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "teamsignal_snapshot_write_errors_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestPersist_RetriesBusyWrites(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}

	tests := []struct {
		name         string
		failures     []error
		wantAttempts int
		wantErrors   float64
		wantDBErrors int64
	}{
		{"succeeds first time", nil, 1, 0, 0},
		{"busy twice then succeeds", []error{busy, busy}, 3, 0, 0},
		{"busy on every attempt", []error{busy, busy, busy, busy}, 3, 1, 1},
		{"constraint failure is not retried", []error{sqlite3.Error{Code: sqlite3.ErrConstraint}}, 1, 1, 1},
		{"plain error is not retried", []error{errors.New("disk full")}, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			cfg := config.New()
			cfg.Server.DataDir = t.TempDir()
			cfg.RateLimit.Enabled = false
			reg := prometheus.NewRegistry()

			srv, err := newServer(context.Background(), cfg, monitoring.NewNopLogger(), reg)
			require.NoError(t, err)
			t.Cleanup(srv.Close)

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/v1/skills/score", nil)

			attempts := 0
			srv.persist(c, "skill_scores", func(ctx context.Context) error {
				attempts++
				if attempts <= len(tt.failures) {
					return tt.failures[attempts-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantErrors, snapshotWriteErrors(t, reg))

			health, ok := srv.health.ServiceHealth(databaseServiceName)
			require.True(t, ok)
			assert.Equal(t, tt.wantDBErrors, health.ErrorCount)
		})
	}
}
