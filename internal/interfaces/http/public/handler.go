package public

import (
	"log"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakura-gakuin/admissions-services/api/internal/admissions/application"
	"github.com/sakura-gakuin/admissions-services/api/internal/infrastructure/persistence"
	"github.com/sakura-gakuin/admissions-services/api/internal/upload"
)

// Handler wires applicant-facing HTTP endpoints to application services.
type Handler struct {
	logger   *log.Logger
	commands application.ApplicationCommandService
	queries  application.ApplicationQueryService
	uploads  *upload.Store
	adapter  *persistence.Adapter
	location *time.Location
	defLimit int
}

// Config defines dependencies required by Handler.
type Config struct {
	Logger           *log.Logger
	Commands         application.ApplicationCommandService
	Queries          application.ApplicationQueryService
	Uploads          *upload.Store
	Adapter          *persistence.Adapter
	Location         *time.Location
	DefaultPageLimit int
}

// NewHandler constructs a public HTTP handler set.
func NewHandler(cfg Config) *Handler {
	defLimit := cfg.DefaultPageLimit
	if defLimit <= 0 {
		defLimit = 20
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		logger:   cfg.Logger,
		commands: cfg.Commands,
		queries:  cfg.Queries,
		uploads:  cfg.Uploads,
		adapter:  cfg.Adapter,
		location: location,
		defLimit: defLimit,
	}
}

// Register mounts applicant routes onto router.
// 出願の作成・参照・検索・一覧とヘルスチェックは認証なしで利用できる。
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.healthHandler())
	r.Post("/applications", h.applicationCreateHandler())
	r.Get("/applications", h.applicationListHandler())
	r.Get("/applications/search", h.applicationSearchHandler())
	r.Get("/applications/{id}", h.applicationDetailHandler())
}
