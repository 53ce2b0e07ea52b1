package main

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/allocation"
	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	"github.com/ZanzyTHEbar/teamsignal/internal/database"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/resilience"
	"github.com/ZanzyTHEbar/teamsignal/internal/security"
	"github.com/ZanzyTHEbar/teamsignal/internal/skills"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const allocationRoute = "/v1/allocation"

// snapshotRetry retries snapshot writes that lose a SQLite lock race
var snapshotRetry = resilience.RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    25 * time.Millisecond,
	MaxDelay:        250 * time.Millisecond,
	BackoffFactor:   2.0,
	JitterEnabled:   true,
	RetryableErrors: database.IsBusy,
}

func setupRouter(s *server) *gin.Engine {
	r := gin.New()

	// monitoring goes first to capture every request
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	// compression buffers the response, so recovery must sit inside it
	r.Use(s.compression.Handler())

	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())

	securityConfig := security.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.cfg.Server.Origins()
	securityConfig.RequestTimeout = s.cfg.Server.RequestTimeout
	securityConfig.MaxBodyBytes = s.cfg.Server.MaxBodyBytes
	r.Use(security.NewSecurityMiddleware(securityConfig).Handlers()...)

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/stats", s.handleStats)

	v1 := r.Group("/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	v1.Use(cache.Middleware(s.responseStore, s.metrics, allocationRoute))

	v1.POST("/skills/score", s.handleScoreSkills)
	v1.GET("/people/:id/skills", s.handlePersonSkills)
	v1.POST("/sentiment/analyze", s.handleAnalyzeMessage)
	v1.POST("/sentiment/team", s.handleAnalyzeTeam)
	v1.GET("/people/:id/risk", s.handlePersonRisk)
	v1.POST("/allocation", s.handleAllocate)

	return r
}

// respondError writes err as a structured AppError body
func respondError(c *gin.Context, err error) {
	appErr := apperrors.ToAppError(err)
	appErr.RequestID = c.GetString("request_id")
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request body", "body", err.Error()))
		return false
	}
	return true
}

// persist writes a snapshot without failing the request. The write outlives
// a client that has already gone away.
func (s *server) persist(c *gin.Context, snapshot string, write func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()

	err := resilience.RetryWithConfig(ctx, snapshotRetry, func() error {
		return write(ctx)
	})
	if err != nil {
		s.metrics.IncrementSnapshotWriteError()
		s.health.RecordError(databaseServiceName, err)
		s.logger.Error("Failed to persist snapshot",
			"snapshot", snapshot,
			"request_id", c.GetString("request_id"),
			"error", err)
		return
	}
	s.health.RecordSuccess(databaseServiceName)
}

func (s *server) handleHealth(c *gin.Context) {
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		s.health.RecordError(databaseServiceName, err)
	}

	level := s.health.OverallLevel()
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
		"level":     level,
		"services":  s.health.AllServiceHealth(),
		"database":  s.db.GetPoolStats(),
		"redis":     s.redis.GetPoolStats(),
	}
	if s.classifier != nil {
		response["classifier_breaker"] = s.classifier.BreakerState().String()
	} else {
		response["classifier_breaker"] = "disabled"
	}

	if level == resilience.LevelEmergency {
		response["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *server) handleStats(c *gin.Context) {
	stats := gin.H{
		"metrics":              s.metrics.GetStats(),
		"response_cache":       s.responses.Stats(),
		"classification_cache": s.classifications.Stats(),
		"compression":          s.compression.GetStats(),
	}
	if s.limiter != nil {
		stats["rate_limit"] = s.limiter.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}

type scoreSkillsRequest struct {
	Evidence []types.ContributionEvidence `json:"evidence"`
	// Skill restricts scoring to one skill of one person
	Skill string `json:"skill,omitempty"`
}

func (s *server) handleScoreSkills(c *gin.Context) {
	var req scoreSkillsRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.Skill != "" {
		s.scoreSingleSkill(c, req)
		return
	}

	batch, err := s.engine.ScoreSkills(c.Request.Context(), req.Evidence)
	if err != nil {
		respondError(c, err)
		return
	}

	var scores []skills.SkillScore
	development := make(map[string][]skills.DevelopmentRecommendation)
	for _, p := range batch.People {
		scores = append(scores, p.Skills...)
		if len(batch.People) > 1 {
			if recs := skills.RecommendDevelopment(p.Skills, batch.People); len(recs) > 0 {
				development[p.PersonID] = recs
			}
		}
	}
	s.persist(c, "skill_scores", func(ctx context.Context) error {
		return s.repo.SaveSkillScores(ctx, scores)
	})

	c.JSON(http.StatusOK, gin.H{
		"people":          batch.People,
		"invalid_records": batch.InvalidRecords,
		"matrix":          skills.BuildTeamMatrix(batch.People),
		"development":     development,
	})
}

func (s *server) scoreSingleSkill(c *gin.Context, req scoreSkillsRequest) {
	people := make(map[string]bool)
	for _, ev := range req.Evidence {
		people[ev.PersonID] = true
	}
	if len(people) > 1 {
		respondError(c, apperrors.NewValidationError("single-skill scoring takes evidence for one person"))
		return
	}

	score, err := s.engine.Skills().Score(req.Evidence, req.Skill)
	if err != nil {
		respondError(c, err)
		return
	}

	if score.PersonID != "" {
		s.persist(c, "skill_scores", func(ctx context.Context) error {
			return s.repo.SaveSkillScores(ctx, []skills.SkillScore{score})
		})
	}
	c.JSON(http.StatusOK, score)
}

// parseRequirements reads "Go:6,SQL:4.5" into a skill -> level map
func parseRequirements(raw string) (map[string]float64, error) {
	required := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, levelStr, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, apperrors.NewValidationError("requirement must look like skill:level", "require", part)
		}
		level, err := strconv.ParseFloat(strings.TrimSpace(levelStr), 64)
		if err != nil || level < 0 || level > 10 {
			return nil, apperrors.NewValidationError("requirement level must be between 0 and 10", "require", part)
		}
		required[strings.TrimSpace(name)] = level
	}
	return required, nil
}

func (s *server) handlePersonSkills(c *gin.Context) {
	personID := c.Param("id")

	required, err := parseRequirements(c.Query("require"))
	if err != nil {
		respondError(c, err)
		return
	}

	latest, err := s.repo.LatestSkillScores(c.Request.Context(), []string{personID})
	if err != nil {
		s.health.RecordError(databaseServiceName, err)
		respondError(c, apperrors.NewInternalError("failed to load skill scores", err))
		return
	}
	scores, ok := latest[personID]
	if !ok || len(scores) == 0 {
		respondError(c, apperrors.NewNotFoundError("skill_scores", personID))
		return
	}

	response := gin.H{
		"person_id": personID,
		"skills":    scores,
	}
	if len(required) > 0 {
		response["gaps"] = skills.AnalyzeGaps(scores, required)
	}
	c.JSON(http.StatusOK, response)
}

type analyzeMessageRequest struct {
	Text string `json:"text"`
}

func (s *server) handleAnalyzeMessage(c *gin.Context) {
	var req analyzeMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	obs, err := s.engine.AnalyzeMessage(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, obs)
}

type analyzeTeamRequest struct {
	TeamID     string                `json:"team_id"`
	WindowDays int                   `json:"window_days"`
	Messages   []types.MessageRecord `json:"messages"`
}

func (s *server) handleAnalyzeTeam(c *gin.Context) {
	var req analyzeTeamRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.TeamID) == "" {
		respondError(c, apperrors.NewValidationError("team_id is required"))
		return
	}
	if req.WindowDays < 0 {
		respondError(c, apperrors.NewValidationError("window_days must not be negative", "window_days", req.WindowDays))
		return
	}

	result, err := s.engine.AnalyzeTeam(c.Request.Context(), req.TeamID, req.Messages, req.WindowDays)
	if err != nil {
		respondError(c, err)
		return
	}

	s.persist(c, "risk_profiles", func(ctx context.Context) error {
		return s.repo.SaveRiskProfiles(ctx, req.TeamID, result.Profiles, result.ComputedAt)
	})

	c.JSON(http.StatusOK, result)
}

// handlePersonRisk returns the newest snapshot, plus history when limit is given
func (s *server) handlePersonRisk(c *gin.Context) {
	personID := c.Param("id")

	raw := c.Query("limit")
	if raw == "" {
		latest, err := s.repo.LatestRiskProfile(c.Request.Context(), personID)
		if err != nil {
			if !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
				s.health.RecordError(databaseServiceName, err)
				err = apperrors.NewInternalError("failed to load risk profile", err)
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"person_id": personID,
			"latest":    latest,
		})
		return
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		respondError(c, apperrors.NewValidationError("limit must be a positive integer", "limit", raw))
		return
	}

	history, err := s.repo.RiskHistory(c.Request.Context(), personID, limit)
	if err != nil {
		s.health.RecordError(databaseServiceName, err)
		respondError(c, apperrors.NewInternalError("failed to load risk history", err))
		return
	}
	if len(history) == 0 {
		respondError(c, apperrors.NewNotFoundError("risk_profile", personID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"person_id": personID,
		"latest":    history[0],
		"history":   history,
	})
}

type allocationRequest struct {
	Tasks  []types.Task            `json:"tasks"`
	Roster []allocation.TeamMember `json:"roster"`
}

func (s *server) handleAllocate(c *gin.Context) {
	var req allocationRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.hydrateRoster(c.Request.Context(), req.Roster); err != nil {
		s.health.RecordError(databaseServiceName, err)
		respondError(c, apperrors.NewInternalError("failed to load roster skill scores", err))
		return
	}

	plan, err := s.engine.Allocate(c.Request.Context(), req.Tasks, req.Roster)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// hydrateRoster fills in stored skill scores for members sent without any
func (s *server) hydrateRoster(ctx context.Context, roster []allocation.TeamMember) error {
	var missing []string
	for _, m := range roster {
		if len(m.SkillScores) == 0 && strings.TrimSpace(m.PersonID) != "" {
			missing = append(missing, m.PersonID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)

	stored, err := s.repo.LatestSkillScores(ctx, missing)
	if err != nil {
		return err
	}
	for i := range roster {
		if len(roster[i].SkillScores) == 0 {
			roster[i].SkillScores = stored[roster[i].PersonID]
		}
	}
	return nil
}
