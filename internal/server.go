package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/config"
	"it-inventory-api/internal/handlers"
	"it-inventory-api/internal/models"
	"it-inventory-api/internal/service"
	"it-inventory-api/internal/store"
	"it-inventory-api/pkg/importer"
)

type Server struct {
	Router     *chi.Mux
	Store      *store.Store
	Mutator    *service.Mutator
	Query      *service.Query
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Log        *zap.Logger

	cfg     *config.Config
	mapping *importer.MappingConfig
}

// NewServer wires the services over st and mounts every route. mapping may
// be nil, in which case the import endpoint loads cfg.ImportMapping per call.
func NewServer(cfg *config.Config, log *zap.Logger, st *store.Store, jwtManager *auth.JWTManager, mapping *importer.MappingConfig) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := NewMetrics()
	opts := service.OptionsFromConfig(cfg)

	s := &Server{
		Router:     chi.NewRouter(),
		Store:      st,
		Mutator:    service.NewMutator(st, log, opts, metrics),
		Query:      service.NewQuery(st, log, opts),
		JWTManager: jwtManager,
		Metrics:    metrics,
		Log:        log,
		cfg:        cfg,
		mapping:    mapping,
	}

	// chi requires every middleware before the first route.
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(s.requestLogger)
	s.Router.Use(middleware.Recoverer)
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Get("/health", s.health)

	s.Router.Route("/api", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		r.Use(recordSubject)
		s.mountProtectedRoutes(r)
	})

	return s
}

// mountProtectedRoutes mounts all routes that require a bearer token. Role
// checks happen in the service layer, except for the import upload which is
// refused before the body is read.
func (s *Server) mountProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", s.me)

	r.Get("/inventory", s.listItems)
	r.Post("/inventory", s.createItem)
	r.Get("/inventory/{asset_tag}", s.getItem)
	r.Put("/inventory/{asset_tag}", s.updateItem)
	r.Delete("/inventory/{asset_tag}", s.deleteItem)
	r.Post("/inventory/{asset_tag}/toggle-loaner", s.toggleLoaner)
	r.Get("/inventory/{asset_tag}/history", s.itemHistory)

	r.Get("/locations", s.listLocations)
	r.Post("/locations", s.createLocation)
	r.Get("/locations/{id}", s.getLocation)
	r.Put("/locations/{id}", s.updateLocation)
	r.Delete("/locations/{id}", s.deleteLocation)
	r.Get("/locations/{id}/history", s.locationHistory)

	r.Get("/audit", s.actorHistory)

	r.Get("/stats", s.stats)
	r.Get("/stats/recent-activity", s.recentActivity)
	r.Get("/stats/export", s.export)
	r.Get("/stats/export.xlsx", s.exportXLSX)

	imports := handlers.NewImportsHandler(importer.New(s.Mutator, s.Store, s.Log), s.mapping, s.cfg.ImportMaxBytes, s.Log)
	imports.MappingPath = s.cfg.ImportMapping
	r.With(auth.MustRole(models.WriterRoles...)).Post("/imports/excel", imports.UploadExcel)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.Log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type subjectKey struct{}

// subjectHolder is filled in by recordSubject once the token is verified, so
// the outer request logger can report who made the call.
type subjectHolder struct{ subject string }

func recordSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(subjectKey{}).(*subjectHolder); ok {
			h.subject = auth.SubjectFromContext(r.Context())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		holder := &subjectHolder{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), subjectKey{}, holder)))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if holder.subject != "" {
			fields = append(fields, zap.String("subject", holder.subject))
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.Log.Error("request", fields...)
			return
		}
		s.Log.Info("request", fields...)
	})
}
