package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

const defaultContextLength = 2000

type SearchRequest struct {
	Query        string  `json:"query" validate:"required"`
	Category     string  `json:"category,omitempty" validate:"omitempty,category"`
	Limit        int     `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
	MinRelevance float64 `json:"min_relevance,omitempty" validate:"omitempty,max=1"`
}

type SearchResponse struct {
	Results []models.Result `json:"results"`
	Count   int             `json:"count"`
}

type ContextRequest struct {
	Situation string   `json:"situation" validate:"required"`
	Entities  []string `json:"entities,omitempty" validate:"omitempty,dive,required"`
	MaxLength int      `json:"max_length,omitempty" validate:"omitempty,min=1,max=100000"`
}

type EntityResponse struct {
	Found  bool           `json:"found"`
	Result *models.Result `json:"result,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	results, err := s.service.Search(r.Context(), req.Query, lore.SearchOptions{
		Limit:        req.Limit,
		Category:     mustCategory(req.Category),
		MinRelevance: req.MinRelevance,
	})
	if err != nil {
		s.respondServiceError(w, "search", err)
		return
	}
	if results == nil {
		results = []models.Result{}
	}
	s.respondJSON(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.LookupEntity(r.Context(), name, category)
	if err != nil {
		s.respondServiceError(w, "lookup", err)
		return
	}
	if result == nil {
		s.respondJSON(w, http.StatusNotFound, EntityResponse{Found: false})
		return
	}
	s.respondJSON(w, http.StatusOK, EntityResponse{Found: true, Result: result})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxLength == 0 {
		req.MaxLength = defaultContextLength
	}

	c, err := s.service.ContextForSituation(r.Context(), req.Situation, req.Entities, req.MaxLength)
	if err != nil {
		s.respondServiceError(w, "context", err)
		return
	}
	if c.Sources == nil {
		c.Sources = []string{}
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.GetRandomLore(r.Context(), category)
	if err != nil {
		s.respondServiceError(w, "random", err)
		return
	}
	s.respondJSON(w, http.StatusOK, EntityResponse{Found: result != nil, Result: result})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lore.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, lore.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// mustCategory parses a category that has already passed validation.
func mustCategory(s string) models.Category {
	c, err := models.ParseCategory(s)
	if err != nil {
		return models.CategoryAny
	}
	return c
}
