package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Retriever is the part of lore.Service the tools call.
type Retriever interface {
	Search(ctx context.Context, query string, opts lore.SearchOptions) ([]models.Result, error)
	LookupEntity(ctx context.Context, name string, category models.Category) (*models.Result, error)
	ContextForSituation(ctx context.Context, situation string, entities []string, maxLength int) (models.Context, error)
	GetRandomLore(ctx context.Context, category models.Category) (*models.Result, error)
	Status(ctx context.Context) lore.Status
}

// Server is the MCP server for lore retrieval.
type Server struct {
	service  Retriever
	server   *mcp.Server
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer creates an MCP server backed by service.
func NewServer(service Retriever, logger *zap.Logger) (*Server, error) {
	if service == nil {
		return nil, ErrMissingService
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	impl := &mcp.Implementation{
		Name:    "lore",
		Version: Version,
	}

	s := &Server{
		service:  service,
		server:   mcp.NewServer(impl, nil),
		validate: newValidator(),
		logger:   logger,
	}

	s.registerTools()

	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	s.logger.Info("serving MCP over HTTP", zap.String("addr", addr))
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// "category" accepts any spelling models.ParseCategory understands.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, err := models.ParseCategory(fl.Field().String())
		return err == nil
	})
	return v
}

func (s *Server) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
