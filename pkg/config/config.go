package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Chat      ChatConfig      `yaml:"chat"`
	Server    ServerConfig    `yaml:"server"`
	Debug     bool            `yaml:"debug"`
}

// EmbeddingConfig selects the embedding provider. Provider is "ollama" or "hash".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// DatabaseConfig selects the vector index. Backend is "postgres", "sqlite" or "memory".
type DatabaseConfig struct {
	Backend    string `yaml:"backend"`
	URL        string `yaml:"url"`
	TableName  string `yaml:"table_name"`
	SQLitePath string `yaml:"sqlite_path"`
	VectorDim  int    `yaml:"vector_dim"`
	BatchSize  int    `yaml:"batch_size"`
}

type RetrievalConfig struct {
	DefaultLimit          int     `yaml:"default_limit"`
	MinRelevance          float64 `yaml:"min_relevance"`
	MaxContextLength      int     `yaml:"max_context_length"`
	SituationLimit        int     `yaml:"situation_limit"`
	SituationMinRelevance float64 `yaml:"situation_min_relevance"`
	SituationMaxLength    int     `yaml:"situation_max_length"`
}

type IngestConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

type ScraperConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// ChatConfig configures the answer model. Temperature is a pointer so an
// explicit 0 survives applyDefaults.
type ChatConfig struct {
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

const DefaultTemperature = 0.7

// TemperatureValue returns the configured temperature, or DefaultTemperature when unset.
func (c ChatConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"lore.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/lore/config.yaml"),
			"/etc/lore/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.Dimensions == 0 {
		config.Embedding.Dimensions = 768
	}

	if config.Database.Backend == "" {
		if config.Database.URL != "" {
			config.Database.Backend = "postgres"
		} else {
			config.Database.Backend = "sqlite"
		}
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "lore_entries"
	}
	if config.Database.SQLitePath == "" {
		config.Database.SQLitePath = filepath.Join(os.Getenv("HOME"), ".local/share/lore/lore.db")
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = config.Embedding.Dimensions
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Retrieval.DefaultLimit == 0 {
		config.Retrieval.DefaultLimit = 5
	}
	if config.Retrieval.MinRelevance == 0 {
		config.Retrieval.MinRelevance = 0.3
	}
	if config.Retrieval.MaxContextLength == 0 {
		config.Retrieval.MaxContextLength = 2000
	}
	if config.Retrieval.SituationLimit == 0 {
		config.Retrieval.SituationLimit = 5
	}
	if config.Retrieval.SituationMinRelevance == 0 {
		config.Retrieval.SituationMinRelevance = 0.25
	}
	if config.Retrieval.SituationMaxLength == 0 {
		config.Retrieval.SituationMaxLength = 3000
	}

	if config.Ingest.MinLength == 0 {
		config.Ingest.MinLength = 50
	}
	if config.Ingest.MaxLength == 0 {
		config.Ingest.MaxLength = 3000
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}

	if config.Chat.Model == "" {
		config.Chat.Model = "mistral"
	}
	if config.Chat.MaxTokens == 0 {
		config.Chat.MaxTokens = 2000
	}
	if config.Chat.Temperature == nil {
		temperature := DefaultTemperature
		config.Chat.Temperature = &temperature
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedding.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if backend := os.Getenv("LORE_INDEX"); backend != "" {
		config.Database.Backend = backend
	}
	if path := os.Getenv("LORE_SQLITE_PATH"); path != "" {
		config.Database.SQLitePath = path
	}
	if provider := os.Getenv("LORE_EMBEDDER"); provider != "" {
		config.Embedding.Provider = provider
	}
	if debug, err := strconv.ParseBool(os.Getenv("LORE_DEBUG")); err == nil {
		config.Debug = debug
	}
}
