package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/internal/types"
	"github.com/xhad/lore/pkg/config"
	"github.com/xhad/lore/pkg/llm"
	"github.com/xhad/lore/pkg/logger"
	"github.com/xhad/lore/pkg/lore"
	"github.com/xhad/lore/pkg/store"
)

var version = "dev"

var (
	configPath   string
	indexBackend string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "lore",
	Short: "Semantic lore retrieval for game masters and agents",
	Long: `lore indexes a knowledge base of setting lore and retrieves it by meaning.

Entries are embedded with an Ollama model (or the offline hash embedder) and
stored in a vector index (PostgreSQL/pgvector, SQLite or memory). Retrieved
entries can be packed into a bounded context block for an LLM prompt.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("lore version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&indexBackend, "index", "", "index backend: postgres, sqlite or memory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// app bundles the components one command invocation works with.
type app struct {
	config  *config.Config
	logger  *zap.Logger
	index   types.VectorIndex
	repo    *lore.Repository
	service *lore.Service
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if indexBackend != "" {
		cfg.Database.Backend = indexBackend
	}
	if debug {
		cfg.Debug = true
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		joined := make([]error, 0, len(errs))
		for _, e := range errs {
			joined = append(joined, e)
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(joined...))
	}
	return cfg, nil
}

// newApp wires config, logging, index and service without connecting anything.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	index, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	embedding := cfg.Embedding
	repo := lore.NewRepository(index, func(context.Context) (types.Embedder, error) {
		return llm.NewEmbedder(embedding)
	}, log)

	return &app{
		config:  cfg,
		logger:  log,
		index:   index,
		repo:    repo,
		service: lore.NewService(repo, cfg.Retrieval, log),
	}, nil
}

// openApp is newApp followed by Initialize.
func openApp(ctx context.Context) (*app, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}
	if err := a.repo.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.index.Close()
	_ = a.logger.Sync()
}

func (a *app) chatEngine() (*llm.ChatEngine, error) {
	return llm.NewWithConfig(llm.ChatConfig{
		Model:       a.config.Chat.Model,
		Temperature: a.config.Chat.TemperatureValue(),
		MaxTokens:   a.config.Chat.MaxTokens,
		BaseURL:     a.config.Embedding.BaseURL,
	})
}

func parseCategory(s string) (models.Category, error) {
	c, err := models.ParseCategory(s)
	if err != nil {
		return "", fmt.Errorf("%w (known: %s)", err, models.Categories)
	}
	return c, nil
}
