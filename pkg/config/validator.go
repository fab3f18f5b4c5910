package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama":
		if c.Embedding.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "Ollama base URL is required",
			})
		} else if u, err := url.Parse(c.Embedding.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "hash":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q (want ollama or hash)", c.Embedding.Provider),
		})
	}

	if c.Embedding.Dimensions < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.dimensions",
			Message: "dimensions must be positive",
		})
	}

	// Validate database config
	switch c.Database.Backend {
	case "postgres":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the postgres backend",
			})
		} else if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errors = append(errors, ValidationError{
				Field:   "database.sqlite_path",
				Message: "sqlite_path is required for the sqlite backend",
			})
		}
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.backend",
			Message: fmt.Sprintf("unknown backend %q (want postgres, sqlite or memory)", c.Database.Backend),
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	} else if c.Database.VectorDim != c.Embedding.Dimensions {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must match embedding.dimensions",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate retrieval config
	if c.Retrieval.DefaultLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.default_limit",
			Message: "default_limit must be positive",
		})
	}

	if c.Retrieval.MinRelevance > 1 || c.Retrieval.SituationMinRelevance > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_relevance",
			Message: "relevance floors must not exceed 1",
		})
	}

	if c.Retrieval.MaxContextLength < 1 || c.Retrieval.SituationMaxLength < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.max_context_length",
			Message: "context lengths must be positive",
		})
	}

	// Validate ingest config
	if c.Ingest.MinLength < 0 || c.Ingest.MaxLength <= c.Ingest.MinLength {
		errors = append(errors, ValidationError{
			Field:   "ingest.max_length",
			Message: "max_length must be greater than a non-negative min_length",
		})
	}

	// Validate scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate chat config
	if c.Chat.MaxTokens < 1 || c.Chat.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "chat.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.Chat.TemperatureValue(); t < 0 || t > 2 {
		errors = append(errors, ValidationError{
			Field:   "chat.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	return errors
}
