// internal/middleware/logging.go
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/models"
)

const maxLoggedBody = 64 << 10

// RequestLogWriter persists the administrative request trail.
type RequestLogWriter interface {
	CreateRequestLog(ctx context.Context, entry *models.AuditLog) error
}

// RequestLogger logs every request through logrus and records its latency.
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), start)

		entry := logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"route":    route,
			"status":   status,
			"duration": time.Since(start).Milliseconds(),
			"ip":       c.ClientIP(),
		})
		if userID, ok := c.Get("user_id"); ok {
			entry = entry.WithField("user_id", userID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request processed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request processed")
		default:
			entry.Info("Request processed")
		}
	}
}

// AuditLogMiddleware records each mutating request made by an authenticated
// caller. Reads are not recorded.
func AuditLogMiddleware(writer RequestLogWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		// Only JSON bodies are kept; uploads are referenced by the resulting
		// lab certificate instead.
		var requestBody []byte
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
			requestBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(requestBody), c.Request.Body))
		}

		c.Next()

		var requestData map[string]interface{}
		if len(requestBody) > 0 {
			_ = json.Unmarshal(requestBody, &requestData)
		}

		entry := &models.AuditLog{
			Action:       c.Request.Method + " " + routeOrPath(c),
			ResourceType: extractResourceType(c.Request.URL.Path),
			StatusCode:   c.Writer.Status(),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			NewValues:    models.JSONB(requestData),
		}
		if userID, ok := c.Get("user_id"); ok {
			if uid, ok := userID.(string); ok && uid != "" {
				entry.UserID = &uid
			}
		}
		if resourceID := extractResourceID(c.Request.URL.Path); resourceID != "" {
			if parsed, err := uuid.Parse(resourceID); err == nil {
				entry.ResourceID = &parsed
			}
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
		defer cancel()
		if err := writer.CreateRequestLog(ctx, entry); err != nil {
			logrus.WithError(err).WithField("action", entry.Action).Error("Failed to create audit log")
		}
	}
}

func routeOrPath(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}

// extractResourceType maps /v1/compliance/products/:id/reveal to "products".
func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "v1" {
		parts = parts[1:]
	}
	if len(parts) > 1 && parts[0] == "compliance" {
		parts = parts[1:]
	}
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func extractResourceID(path string) string {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if _, err := uuid.Parse(part); err == nil {
			return part
		}
	}
	return ""
}
