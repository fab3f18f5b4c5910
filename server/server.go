// Package server provides the HTTP and WebSocket API for lore retrieval.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/config"
	"github.com/xhad/lore/pkg/llm"
	"github.com/xhad/lore/pkg/lore"
)

// LoreService is the retrieval surface the API exposes.
type LoreService interface {
	Search(ctx context.Context, query string, opts lore.SearchOptions) ([]models.Result, error)
	LookupEntity(ctx context.Context, name string, category models.Category) (*models.Result, error)
	ContextForSituation(ctx context.Context, situation string, entities []string, maxLength int) (models.Context, error)
	GetRandomLore(ctx context.Context, category models.Category) (*models.Result, error)
	Status(ctx context.Context) lore.Status
}

// Answerer streams an answer to a question grounded in a lore context.
// llm.ChatEngine satisfies it.
type Answerer interface {
	AnswerStream(ctx context.Context, question string, lore models.Context) <-chan llm.Chunk
}

// Server is the HTTP server for the lore API.
type Server struct {
	service  LoreService
	chat     Answerer
	config   config.ServerConfig
	logger   *zap.Logger
	validate *validator.Validate
	origins  originMatcher
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a server. chat may be nil, in which case "ask" messages
// are answered with an error.
func NewServer(service LoreService, chat Answerer, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service:  service,
		chat:     chat,
		config:   cfg,
		logger:   logger,
		validate: newValidator(),
		origins:  newOriginMatcher(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the route tree. The WebSocket endpoint sits outside the
// request timeout and compression middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: s.allowOrigin,
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Accept", "Content-Type"},
		ExposedHeaders:  []string{"X-Request-ID"},
		MaxAge:          300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/search", s.handleSearch)
		r.Get("/lookup", s.handleLookup)
		r.Post("/context", s.handleContext)
		r.Get("/random", s.handleRandom)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", s.config.Addr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, err := models.ParseCategory(fl.Field().String())
		return err == nil
	})
	return v
}
