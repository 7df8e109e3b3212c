package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/search"
	"github.com/poiesic/cinevec/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// resultsEnvelope is the success body for every result-set endpoint.
type resultsEnvelope struct {
	Success bool                 `json:"success"`
	Mode    core.Mode            `json:"mode"`
	Total   int                  `json:"total"`
	Results []*core.SearchResult `json:"results"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to marshal JSON response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("failed to write JSON response", "err", err)
	}
}

func respondResults(w http.ResponseWriter, resp *search.Response) {
	respondJSON(w, http.StatusOK, &resultsEnvelope{
		Success: true,
		Mode:    resp.Mode,
		Total:   resp.Total,
		Results: resp.Results,
	})
}

func respondMessage(w http.ResponseWriter, status int, message string, details any) {
	respondJSON(w, status, &errorEnvelope{Message: message, Details: details})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrItemNotIndexed), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrCollectionNotFound):
		return http.StatusServiceUnavailable, "index not ready"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, core.ErrRemoteService):
		return http.StatusBadGateway, "upstream service failed"
	case errors.Is(err, core.ErrConfiguration):
		return http.StatusInternalServerError, "service misconfigured"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	respondMessage(w, status, message, nil)
}

// fieldError is one failed validation rule.
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func validationDetails(err error) []fieldError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make([]fieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = fieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()}
	}
	return out
}

// decodeAndValidate reads a JSON body into dst and validates it.
// An empty body leaves dst untouched when allowEmpty is set.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if !allowEmpty || !errors.Is(err, io.EOF) {
			respondMessage(w, http.StatusBadRequest, "invalid JSON body", nil)
			return false
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		respondMessage(w, http.StatusBadRequest, "validation failed", validationDetails(err))
		return false
	}
	return true
}
