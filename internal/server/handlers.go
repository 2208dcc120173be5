package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tests, err := s.store.ListTests(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		s.logger.Warn("failed to read database size", "error", err)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// handleListTests returns all tests, optionally filtered by ?status=.
func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	var (
		tests []*store.ABTest
		err   error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, parseErr := store.ParseTestStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", parseErr.Error())
			return
		}
		tests, err = s.store.ListTestsByStatus(r.Context(), status)
	} else {
		tests, err = s.store.ListTests(r.Context())
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	response := make([]TestResponse, 0, len(tests))
	for _, t := range tests {
		response = append(response, newTestResponse(t))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}

	ev, err := s.engine.Results(r.Context(), id)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultsResponse(ev))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}

	st, err := s.engine.Status(r.Context(), id)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(st))
}

// ConcludeRequest is the optional body of POST /api/tests/{id}/conclude.
type ConcludeRequest struct {
	WinnerVariantID *int64 `json:"winner_variant_id"`
	NoWinner        bool   `json:"no_winner"`
}

func (s *Server) handleConclude(w http.ResponseWriter, r *http.Request) {
	id, ok := testID(w, r)
	if !ok {
		return
	}

	var req ConcludeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.NoWinner && req.WinnerVariantID != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "winner_variant_id and no_winner are exclusive")
		return
	}

	res, err := s.engine.Conclude(r.Context(), id, engine.ConcludeRequest{
		WinnerVariantID: req.WinnerVariantID,
		NoWinner:        req.NoWinner,
		Reason:          "api",
	})
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConcludeResponse{Test: newTestResponse(res.Test), Changed: res.Changed})
}

func testID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_test_id", "test id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "test not found")
	case errors.Is(err, engine.ErrVariantNotInTest):
		writeError(w, http.StatusBadRequest, "invalid_winner", err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		"path", r.URL.Path,
		"request_id", requestIDFromContext(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
