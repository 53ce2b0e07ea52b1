// Package middleware holds HTTP middleware that is not tied to a domain package.
package middleware

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      `koanf:"min_size"`      // Minimum response size to compress (bytes)
	CompressionLevel int      `koanf:"level"`         // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string `koanf:"content_types"` // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// CompressionMiddleware gzips buffered responses that are large enough
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware. An invalid
// level falls back to the gzip default.
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(nil, level)
		return gz
	}
	return cm
}

// Handler returns the Gin middleware. It must run inside any middleware that
// reads the final status, since the response is only written once handlers
// return.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.clientAcceptsGzip(c.Request) {
			c.Next()
			return
		}

		bw := &bufferedWriter{
			ResponseWriter: c.Writer,
			buf:            &bytes.Buffer{},
			status:         c.Writer.Status(),
		}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		cm.flush(bw)
	}
}

func (cm *CompressionMiddleware) flush(bw *bufferedWriter) {
	w := bw.ResponseWriter
	if !bw.wroteHeader && bw.buf.Len() == 0 {
		// nothing was written; leave the response to gin
		return
	}

	body := bw.buf.Bytes()
	header := w.Header()

	compress := len(body) >= cm.config.MinSize &&
		header.Get("Content-Encoding") == "" &&
		cm.shouldCompress(header.Get("Content-Type"))

	if !compress {
		cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
		w.WriteHeader(bw.status)
		w.WriteHeaderNow()
		_, _ = w.Write(body)
		return
	}

	var out bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&out)
	_, err := gz.Write(body)
	if err == nil {
		err = gz.Close()
	}
	cm.pool.Put(gz)

	if err != nil {
		cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
		w.WriteHeader(bw.status)
		_, _ = w.Write(body)
		return
	}

	header.Set("Content-Encoding", "gzip")
	header.Add("Vary", "Accept-Encoding")
	header.Set("Content-Length", strconv.Itoa(out.Len()))
	cm.stats.RecordRequest(int64(len(body)), int64(out.Len()), true)

	w.WriteHeader(bw.status)
	_, _ = w.Write(out.Bytes())
}

// clientAcceptsGzip checks if the client accepts gzip compression
func (cm *CompressionMiddleware) clientAcceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// bufferedWriter holds the status and body until the handler chain finishes
type bufferedWriter struct {
	gin.ResponseWriter
	buf         *bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
	w.wroteHeader = true
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.wroteHeader = true
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.wroteHeader = true
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wroteHeader = true
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	if !w.wroteHeader {
		return -1
	}
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.wroteHeader
}

// Flush is a no-op; buffered responses are written when the chain returns
func (w *bufferedWriter) Flush() {}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize
	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	} else {
		cs.CompressedBytes += originalSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(1)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
		"compression_savings": 1.0 - compressionRatio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
