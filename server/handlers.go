package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/search"
)

var errLimitNotInteger = errors.New("limit must be an integer")

// reservedParams are explore query parameters that are not concept weights.
var reservedParams = map[string]bool{"limit": true, "exclude": true, "minScore": true}

type swipeRequest struct {
	Actions []core.UserAction `json:"actions" validate:"dive"`
	Exclude []string          `json:"exclude"`
	Limit   int               `json:"limit" validate:"gte=0"`
}

type moodBlendRequest struct {
	Weights map[string]float64 `json:"weights" validate:"required,min=1,dive,keys,required,endkeys,gte=-1,lte=1"`
	Exclude []string           `json:"exclude"`
	Limit   int                `json:"limit" validate:"gte=0"`
}

type personalizeRequest struct {
	Limit int `json:"limit" validate:"gte=0"`
}

type recommendEachResponse struct {
	Success bool                          `json:"success"`
	Total   int                           `json:"total"`
	Items   []*search.ItemRecommendations `json:"items"`
}

type bootstrapResponse struct {
	Success   bool     `json:"success"`
	Concepts  []string `json:"concepts"`
	Dimension int      `json:"dimension"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	weights := core.ConceptWeights{}
	for name, values := range q {
		if reservedParams[name] || len(values) == 0 || values[0] == "" {
			continue
		}
		weight, err := strconv.ParseFloat(values[0], 64)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, fmt.Sprintf("weight for %q must be a number", name), nil)
			return
		}
		weights[name] = weight
	}

	req := search.ExploreRequest{
		Weights: weights,
		Exclude: listParam(q.Get("exclude")),
		Limit:   limit,
	}
	if raw := q.Get("minScore"); raw != "" {
		minScore, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, "minScore must be a number", nil)
			return
		}
		ms := float32(minScore)
		req.MinScore = &ms
	}

	resp, err := s.engine.Explore(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	resp, err := s.engine.Search(r.Context(), search.TextRequest{
		Query:   q.Get("q"),
		Exclude: listParam(q.Get("exclude")),
		Limit:   limit,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	resp, err := s.engine.Random(r.Context(), listParam(q.Get("exclude")), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	resp, err := s.engine.Similar(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handlePersonalize(w http.ResponseWriter, r *http.Request) {
	var req personalizeRequest
	if !s.decodeAndValidate(w, r, &req, true) {
		return
	}
	resp, err := s.engine.Personalize(r.Context(), req.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	resp, err := s.engine.Swipe(r.Context(), search.SwipeRequest{
		Actions: req.Actions,
		Exclude: req.Exclude,
		Limit:   req.Limit,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleRecommendEach(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	items, err := s.engine.RecommendEach(r.Context(), req.Actions, req.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &recommendEachResponse{Success: true, Total: len(items), Items: items})
}

func (s *Server) handleMoodBlend(w http.ResponseWriter, r *http.Request) {
	var req moodBlendRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	resp, err := s.engine.MoodBlend(r.Context(), search.MoodBlendRequest{
		Weights: req.Weights,
		Exclude: req.Exclude,
		Limit:   req.Limit,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondResults(w, resp)
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if s.concepts == nil {
		respondMessage(w, http.StatusNotImplemented, "concept bootstrap is not available", nil)
		return
	}
	// The rebuild drops the collection first; a client disconnect must not strand it.
	vectors, err := s.concepts.Bootstrap(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := &bootstrapResponse{Success: true, Concepts: make([]string, len(vectors))}
	for i, v := range vectors {
		out.Concepts[i] = v.Name
		out.Dimension = len(v.Vector)
	}
	respondJSON(w, http.StatusOK, out)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errLimitNotInteger
	}
	return n, nil
}

// listParam splits a comma-separated query value.
func listParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
