package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camerad/internal/camera"
)

const (
	defaultLossLimit = 50
	maxLossLimit     = 1000
)

// handleListCameras returns every camera's status ordered as configured.
func (s *Server) handleListCameras(w http.ResponseWriter, _ *http.Request) {
	out := make([]camera.Status, 0, len(s.cameras))
	for _, c := range s.cameras {
		out = append(out, c.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cameras": out,
		"count":   len(out),
	})
}

// handleGetCamera returns one camera's status by index.
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	st, ok := s.findCamera(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleListLosses returns a camera's recent frame-loss events, newest
// first. The optional limit query parameter caps the count.
func (s *Server) handleListLosses(w http.ResponseWriter, r *http.Request) {
	st, ok := s.findCamera(w, r)
	if !ok {
		return
	}

	limit := defaultLossLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLossLimit {
			writeBadRequest(w, r, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events := []camera.LossEvent{}
	if s.losses != nil {
		got, err := s.losses.Recent(r.Context(), st.Index, limit)
		if err != nil {
			s.logger.Error("listing frame losses failed", "camera", st.Index, "error", err)
			writeInternalError(w, r, "failed to list frame losses")
			return
		}
		for i := range got {
			got[i].Stream = st.Stream
		}
		events = append(events, got...)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"camera": st.Index,
		"losses": events,
		"count":  len(events),
	})
}

// findCamera resolves the {index} URL parameter, writing the error
// response itself when it cannot.
func (s *Server) findCamera(w http.ResponseWriter, r *http.Request) (camera.Status, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeBadRequest(w, r, "camera index must be an integer")
		return camera.Status{}, false
	}
	for _, c := range s.cameras {
		if st := c.Status(); st.Index == idx {
			return st, true
		}
	}
	writeNotFound(w, r, "camera not found")
	return camera.Status{}, false
}
