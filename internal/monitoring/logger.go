package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Logger provides structured logging with domain helpers
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to w. A nil writer logs to stdout.
func NewLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLogger(io.Discard, slog.LevelError)
}

// ParseLevel maps a config string to a slog level
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, requestID string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"request_id", requestID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// ScoringLogger logs a completed skill scoring batch
func (l *Logger) ScoringLogger(people, skills, invalidRecords int, duration time.Duration) {
	level := slog.LevelInfo
	if invalidRecords > 0 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "Skill Scoring Completed",
		"people", people,
		"skills", skills,
		"invalid_records", invalidRecords,
		"duration_ms", duration.Milliseconds(),
	)
}

// SentimentLogger logs a completed team sentiment analysis
func (l *Logger) SentimentLogger(teamID string, messages, skipped, heuristic, atRisk int, duration time.Duration) {
	l.Info("Sentiment Analysis Completed",
		"team_id", teamID,
		"messages", messages,
		"skipped_messages", skipped,
		"heuristic_observations", heuristic,
		"at_risk_members", atRisk,
		"duration_ms", duration.Milliseconds(),
	)
}

// AllocationLogger logs a completed allocation run
func (l *Logger) AllocationLogger(tasks, allocated, infeasible int, utilization float64, duration time.Duration) {
	l.Info("Allocation Completed",
		"tasks", tasks,
		"allocated", allocated,
		"infeasible", infeasible,
		"team_utilization", utilization,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	// Get caller information for better debugging
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// ExternalAPILogger logs calls to external services such as the classifier
func (l *Logger) ExternalAPILogger(apiName, method, endpoint string, statusCode int, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.Log(context.Background(), level, "External API Call",
		"api_name", apiName,
		"method", method,
		"endpoint", endpoint,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"success", success,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()
