package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger is a Pinger that also names its backend.
type NamedPinger interface {
	Pinger
	Name() string
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type HealthController struct {
	db       Pinger
	sessions NamedPinger
	version  string
}

func NewHealthController(db Pinger, sessions NamedPinger, version string) *HealthController {
	return &HealthController{
		db:       db,
		sessions: sessions,
		version:  version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	check := func(name string, p Pinger) {
		if p == nil {
			checks[name] = "not configured"
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			status = "unhealthy"
			return
		}
		checks[name] = "ok"
	}

	check("database", h.db)
	if h.sessions != nil {
		check("sessions_"+h.sessions.Name(), h.sessions)
	} else {
		checks["sessions"] = "not configured"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
