package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camerad/internal/override"
)

// SetParamRequest is the body of PUT /params/{key}.
type SetParamRequest struct {
	Value *string `json:"value"`
}

// handleListParams returns every stored parameter.
func (s *Server) handleListParams(w http.ResponseWriter, _ *http.Request) {
	params := s.params.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"params": params,
		"count":  len(params),
	})
}

// handleGetParam returns one parameter.
func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	p, err := s.params.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		s.writeParamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSetParam stores a parameter value.
func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var req SetParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, r, "value is required")
		return
	}

	p, err := s.params.Set(r.Context(), chi.URLParam(r, "key"), *req.Value)
	if err != nil {
		s.writeParamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeleteParam clears a parameter.
func (s *Server) handleDeleteParam(w http.ResponseWriter, r *http.Request) {
	if err := s.params.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeParamError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeParamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, override.ErrInvalidKey):
		writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, override.ErrParamNotFound):
		writeNotFound(w, r, "param not found")
	default:
		s.logger.Error("param store failed", "error", err)
		writeInternalError(w, r, "param store failed")
	}
}
