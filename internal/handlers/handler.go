package handlers

import (
	"github.com/acme/enrollment/internal/admin"
	"github.com/acme/enrollment/internal/auth"
	"github.com/acme/enrollment/internal/enrollment"
	"github.com/acme/enrollment/internal/metrics"

	charmlog "github.com/charmbracelet/log"
)

// Handler carries the services every route needs.
type Handler struct {
	auth    *auth.Service
	engine  *enrollment.Engine
	admin   *admin.Service
	metrics *metrics.Metrics
	log     *charmlog.Logger
}

func New(authSvc *auth.Service, engine *enrollment.Engine, adminSvc *admin.Service, m *metrics.Metrics, log *charmlog.Logger) *Handler {
	return &Handler{
		auth:    authSvc,
		engine:  engine,
		admin:   adminSvc,
		metrics: m,
		log:     log,
	}
}
