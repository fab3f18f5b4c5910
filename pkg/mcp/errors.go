// Package mcp exposes lore retrieval as Model Context Protocol tools.
package mcp

import "errors"

// ErrMissingService is returned when no retrieval service is provided.
var ErrMissingService = errors.New("mcp: lore service is required")
