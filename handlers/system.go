package handlers

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/dmitrymomot/mailroom"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

const pingTimeout = 2 * time.Second

// SystemConfig carries the process facts reported by the banner and health
// endpoints. Sender is the display From value and must not hold credentials.
type SystemConfig struct {
	SchedulerRunning func() bool
	Now              func() time.Time
	Sender           string
	EmailConfigured  bool
}

// System serves the banner, template listing and service health.
type System struct {
	svc Service
	cfg SystemConfig
}

// NewSystem creates the system handler.
func NewSystem(svc Service, cfg SystemConfig) *System {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SchedulerRunning == nil {
		cfg.SchedulerRunning = func() bool { return false }
	}
	return &System{svc: svc, cfg: cfg}
}

// Routes implements mailroom.Handler.
func (h *System) Routes(r mailroom.Router) {
	r.GET("/api/", h.banner)
	r.GET("/api/templates", h.templates)
	r.GET("/api/health", h.health)
}

const bannerPage = `<html>
    <head><title>Mailroom API</title></head>
    <body>
        <h1>Mailroom API</h1>
        <p>The email dispatch service is running.</p>
        <p><strong>Configured sender:</strong> %s</p>
    </body>
</html>
`

func (h *System) banner(c mailroom.Context) error {
	sender := h.cfg.Sender
	if sender == "" {
		sender = "not configured"
	}
	return c.HTML(http.StatusOK, fmt.Sprintf(bannerPage, html.EscapeString(sender)))
}

func (h *System) templates(c mailroom.Context) error {
	list := h.svc.Templates()
	if list == nil {
		list = []mailer.TemplateInfo{}
	}
	return c.JSON(http.StatusOK, map[string]any{"templates": list})
}

// HealthResponse reports service readiness in the legacy health format.
type HealthResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	Status            string    `json:"status"`
	EmailConfigured   bool      `json:"email_configured"`
	DatabaseConnected bool      `json:"database_connected"`
	SchedulerRunning  bool      `json:"scheduler_running"`
}

func (h *System) health(c mailroom.Context) error {
	ctx, cancel := context.WithTimeout(c, pingTimeout)
	defer cancel()

	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		Timestamp:         h.cfg.Now().UTC(),
		EmailConfigured:   h.cfg.EmailConfigured,
		DatabaseConnected: h.svc.Ping(ctx) == nil,
		SchedulerRunning:  h.cfg.SchedulerRunning(),
	})
}
