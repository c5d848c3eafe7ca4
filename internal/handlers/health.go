// internal/handlers/health.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DependencyCheck reports whether one backing service is reachable.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	version string
	checks  []DependencyCheck
}

func NewHealthHandler(version string, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for _, dep := range h.checks {
		if err := dep.Check(ctx); err != nil {
			deps[dep.Name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[dep.Name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"version":      h.version,
		"dependencies": deps,
	})
}
