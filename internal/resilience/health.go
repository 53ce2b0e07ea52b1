package resilience

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

// String returns the level name reported by the health endpoint
func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// MarshalText lets levels serialize by name
func (l DegradationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// DegradationConfig holds error-rate thresholds (0.0-1.0) for each level
type DegradationConfig struct {
	DegradedThreshold  float64 `json:"degraded_threshold" koanf:"degraded_threshold"`
	CriticalThreshold  float64 `json:"critical_threshold" koanf:"critical_threshold"`
	EmergencyThreshold float64 `json:"emergency_threshold" koanf:"emergency_threshold"`
	// MinRequests is the sample size below which a service is always normal
	MinRequests int64 `json:"min_requests" koanf:"min_requests"`
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		DegradedThreshold:  0.1,
		CriticalThreshold:  0.25,
		EmergencyThreshold: 0.5,
		MinRequests:        5,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime time.Time        `json:"last_error_time,omitempty"`
	StatusMessage string           `json:"status_message"`
}

// HealthTracker keeps per-service error rates and maps them onto degradation levels
type HealthTracker struct {
	config   DegradationConfig
	logger   *slog.Logger
	now      func() time.Time
	services map[string]*ServiceHealth
	mutex    sync.RWMutex
}

// NewHealthTracker creates a tracker. A nil logger uses slog.Default().
func NewHealthTracker(config DegradationConfig, logger *slog.Logger) *HealthTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthTracker{
		config:   config,
		logger:   logger,
		now:      time.Now,
		services: make(map[string]*ServiceHealth),
	}
}

// RegisterService starts tracking a service in the normal state
func (ht *HealthTracker) RegisterService(serviceName string) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	if _, exists := ht.services[serviceName]; exists {
		return
	}
	ht.services[serviceName] = &ServiceHealth{
		ServiceName:   serviceName,
		Level:         LevelNormal,
		StatusMessage: "Service is healthy",
	}
}

// RecordSuccess records a successful call
func (ht *HealthTracker) RecordSuccess(serviceName string) {
	ht.record(serviceName, nil)
}

// RecordError records a failed call
func (ht *HealthTracker) RecordError(serviceName string, err error) {
	if err == nil {
		return
	}
	ht.record(serviceName, err)
}

func (ht *HealthTracker) record(serviceName string, err error) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	service, exists := ht.services[serviceName]
	if !exists {
		return
	}

	service.TotalRequests++
	if err != nil {
		service.ErrorCount++
		service.LastError = err.Error()
		service.LastErrorTime = ht.now()
	}
	service.ErrorRate = float64(service.ErrorCount) / float64(service.TotalRequests)

	ht.updateLevel(service)
}

// updateLevel must be called with the mutex held
func (ht *HealthTracker) updateLevel(service *ServiceHealth) {
	oldLevel := service.Level

	var newLevel DegradationLevel
	var statusMessage string

	switch {
	case service.TotalRequests < ht.config.MinRequests:
		newLevel = LevelNormal
		statusMessage = "Service is healthy"
	case service.ErrorRate >= ht.config.EmergencyThreshold:
		newLevel = LevelEmergency
		statusMessage = "Service is in emergency state - high error rate"
	case service.ErrorRate >= ht.config.CriticalThreshold:
		newLevel = LevelCritical
		statusMessage = "Service is in critical state - elevated error rate"
	case service.ErrorRate >= ht.config.DegradedThreshold:
		newLevel = LevelDegraded
		statusMessage = "Service is degraded - moderate error rate"
	default:
		newLevel = LevelNormal
		statusMessage = "Service is healthy"
	}

	service.Level = newLevel
	service.StatusMessage = statusMessage

	if oldLevel != newLevel {
		ht.logger.Warn("Service degradation level changed",
			"service", service.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", newLevel.String(),
			"error_rate", service.ErrorRate,
			"total_requests", service.TotalRequests,
			"error_count", service.ErrorCount)
	}
}

// ServiceHealth returns a copy of the health status of a service
func (ht *HealthTracker) ServiceHealth(serviceName string) (ServiceHealth, bool) {
	ht.mutex.RLock()
	defer ht.mutex.RUnlock()

	service, exists := ht.services[serviceName]
	if !exists {
		return ServiceHealth{}, false
	}
	return *service, true
}

// AllServiceHealth returns health for every tracked service, sorted by name
func (ht *HealthTracker) AllServiceHealth() []ServiceHealth {
	ht.mutex.RLock()
	defer ht.mutex.RUnlock()

	result := make([]ServiceHealth, 0, len(ht.services))
	for _, service := range ht.services {
		result = append(result, *service)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ServiceName < result[j].ServiceName })
	return result
}

// OverallLevel returns the worst level across all services
func (ht *HealthTracker) OverallLevel() DegradationLevel {
	ht.mutex.RLock()
	defer ht.mutex.RUnlock()

	level := LevelNormal
	for _, service := range ht.services {
		level = max(level, service.Level)
	}
	return level
}

// ResetService resets a service's health status
func (ht *HealthTracker) ResetService(serviceName string) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	if service, exists := ht.services[serviceName]; exists {
		*service = ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			StatusMessage: "Service is healthy",
		}
		ht.logger.Info("Service health reset", "service", serviceName)
	}
}
