package routers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/assignment"
	"github.com/Oniqq60/civic_report_system/internal/auth"
	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/middleware"
	"github.com/Oniqq60/civic_report_system/internal/resource"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

// multipartOverhead - запас на поля формы сверх самого снимка
const multipartOverhead = 1 << 20

type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Result, error)
}

type Assigner interface {
	Assign(ctx context.Context, taskID string, category task.Category, location task.Location) (assignment.Result, error)
}

type WebhookHandler interface {
	Verify(w http.ResponseWriter, r *http.Request)
	Receive(w http.ResponseWriter, r *http.Request)
}

type Dependencies struct {
	Tasks       task.TaskService
	Intake      Submitter
	Assigner    Assigner
	Resources   resource.Directory
	Objects     storage.ObjectStore
	Verifier    *auth.Verifier
	WhatsApp    WebhookHandler
	RateLimiter *middleware.RateLimiter
	Logger      *zap.Logger

	AllowedOrigins []string
	MaxImageSize   int64
}

type Router struct {
	mux     *chi.Mux
	handler http.Handler
}

func New(deps Dependencies) (*Router, error) {
	if deps.Tasks == nil || deps.Intake == nil || deps.Assigner == nil {
		return nil, errors.New("task service, intake and assigner must be provided")
	}
	if deps.Resources == nil || deps.Objects == nil {
		return nil, errors.New("resource directory and object store must be provided")
	}
	if deps.Verifier == nil {
		return nil, errors.New("jwt verifier is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxImageSize <= 0 {
		deps.MaxImageSize = 5 << 20
	}

	mux := chi.NewRouter()
	mux.Use(
		chimw.RequestID,
		middleware.RequestLogger(deps.Logger),
		chimw.Recoverer,
		middleware.SecurityHeaders,
		middleware.RequestSizeLimit(deps.MaxImageSize+multipartOverhead),
	)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Logger, http.StatusNotFound, map[string]any{"success": false, "message": "not found", "code": "not_found"})
	})

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.WhatsApp != nil {
		mux.Get("/webhooks/whatsapp", deps.WhatsApp.Verify)
		mux.Post("/webhooks/whatsapp", deps.WhatsApp.Receive)
	}

	staff := []auth.Role{auth.RoleTechnician, auth.RoleSupervisor, auth.RoleAdmin}
	tasks := &taskRoutes{deps: deps}
	images := &imageRoutes{deps: deps}
	resources := &resourceRoutes{deps: deps}

	mux.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware, authenticate(deps.Verifier, deps.Logger))

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", tasks.handleCreate)
			r.Get("/", tasks.handleList)
			r.Get("/{id}", tasks.handleGet)
			r.With(requireRole(deps.Logger, staff...)).Patch("/{id}/status", tasks.handleTransition)
			r.With(requireRole(deps.Logger, staff...)).Post("/{id}/notes", tasks.handleAddNote)
			r.With(requireRole(deps.Logger, auth.RoleSupervisor, auth.RoleAdmin)).Post("/{id}/assign", tasks.handleAssign)
		})

		r.Post("/images", images.handleUpload)
		r.Get("/images/*", images.handleGet)

		r.With(requireRole(deps.Logger, staff...)).Get("/resources", resources.handleList)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return &Router{mux: mux, handler: c.Handler(mux)}, nil
}

func (r *Router) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return r.handler
}
