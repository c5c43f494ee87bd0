package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docindex/internal/api/middlewares"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer builds the query API on top of the app's services.
func NewServer(a *App) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           NewRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: a.Log}
}

// NewRouter wires all routes. /api is behind the JWT middleware when a
// secret is configured; /health is always open.
func NewRouter(a *App) http.Handler {
	docHandler := handlers.NewDocumentHandler(a.Documents, a.Log)
	chatHandler := handlers.NewChatHandler(a.Query, a.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := a.Config.CORSOrigins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
	}))

	r.Get("/health", handlers.Health(a.DBClient.Ping))

	r.Route("/api", func(api chi.Router) {
		if a.Config.JWTSecret != "" {
			api.Use(appMiddleware.JWTMiddleware(a.Config.JWTSecret))
		}

		api.Get("/stats", docHandler.Stats)
		api.Get("/documents", docHandler.GetDocuments)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Get("/documents/{id}/chunks", docHandler.GetChunks)
		api.Get("/search", docHandler.Search)
		api.Get("/watch-folders", docHandler.WatchFolders)
		api.Post("/search/similar", chatHandler.SimilarSearch)
		api.Post("/ai/query", chatHandler.QueryDocuments)
	})

	return r
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
