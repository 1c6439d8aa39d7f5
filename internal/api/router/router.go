package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
	"github.com/wolfman30/frontdesk-calendar/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/frontdesk-calendar/internal/http/middleware"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Console            *frontdesk.Console
	ConsoleHandler     *handlers.ConsoleHandler
	StreamHandler      *handlers.StreamHandler
	AuthHandler        *handlers.AuthHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// StaffAuthSecret protects /api with session tokens when set.
	StaffAuthSecret string

	// RefreshLimiter throttles manual refreshes per client. Optional.
	RefreshLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health(cfg.Console))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AuthHandler != nil {
			public.Post("/auth/login", cfg.AuthHandler.Login)
		}
	})

	if cfg.ConsoleHandler == nil {
		return r
	}
	h := cfg.ConsoleHandler

	r.Route("/api", func(api chi.Router) {
		if cfg.StaffAuthSecret != "" {
			api.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
		}
		api.Get("/grid", h.Grid)
		if cfg.RefreshLimiter != nil {
			api.With(cfg.RefreshLimiter.Middleware).Post("/refresh", h.Refresh)
		} else {
			api.Post("/refresh", h.Refresh)
		}
		api.Post("/slots/click", h.SlotClick)
		api.Get("/entities/{id}", h.Entity)
		api.Get("/patients", h.SearchPatients)
		api.Post("/patients", h.AddPatient)

		api.Route("/appointments", func(appts chi.Router) {
			appts.Post("/", h.CreateAppointment)
			appts.Delete("/{id}", h.CancelAppointment)
			appts.Post("/{id}/move", h.Move)
		})
		api.Route("/time-blocks", func(blocks chi.Router) {
			blocks.Post("/", h.CreateTimeBlock)
			blocks.Delete("/{id}", h.DeleteTimeBlock)
		})
		if cfg.StreamHandler != nil {
			api.Get("/stream", cfg.StreamHandler.Connect)
		}
	})

	return r
}
