// Package security hardens the HTTP surface: response headers, content-type
// and body-size checks, request deadlines and CORS.
package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   10 << 20,
	}
}

// SecurityMiddleware provides the HTTP hardening handlers
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// SecurityHeaders adds security headers to responses. The API serves JSON
// only, so nothing may be framed or loaded from it.
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Next()
}

// ValidateContentType rejects request bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "application/json") {
		appErr := apperrors.NewValidationError("unsupported content type", "content_type", contentType)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		appErr.RequestID = c.GetString("request_id")
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, appErr)
		return
	}

	c.Next()
}

// LimitBody caps how much of a request body handlers may read
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if sm.config.RequestTimeout <= 0 {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORSConfig builds the CORS handler. An empty origin list allows any origin
// without credentials.
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if len(sm.config.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = sm.config.AllowedOrigins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}

// Handlers returns the middleware chain in the order it should be installed
func (sm *SecurityMiddleware) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		sm.CORSConfig(),
		sm.SecurityHeaders,
		sm.ValidateContentType,
		sm.LimitBody,
		sm.RequestTimeout,
	}
}
