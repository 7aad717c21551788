package admin

import (
	"log"

	"github.com/go-chi/chi/v5"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
)

// Handler wires staff-only HTTP endpoints to the review service.
type Handler struct {
	logger  *log.Logger
	reviews application.ReviewService
}

// Config provides dependencies for Handler.
type Config struct {
	Logger  *log.Logger
	Reviews application.ReviewService
}

// NewHandler constructs a staff HTTP handler set.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		logger:  cfg.Logger,
		reviews: cfg.Reviews,
	}
}

// Register mounts staff routes onto router.
// 認証・ロール検査ミドルウェアはサーバー側で前段に積まれる前提。
func (h *Handler) Register(r chi.Router) {
	r.Put("/applications/{id}/status", h.statusUpdateHandler())
	r.Get("/applications/{id}/activity", h.activityLogHandler())
}
