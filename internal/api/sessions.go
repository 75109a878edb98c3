package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/labgate/labgate-core/internal/audit"
	"github.com/labgate/labgate-core/internal/relay"
)

// handleMintSession creates a fresh pairing session with a server-minted
// code. Desktops may also create sessions implicitly on register_desktop;
// minting here gives the code out of band (QR display) before the
// WebSocket opens.
func (s *Server) handleMintSession(w http.ResponseWriter, _ *http.Request) {
	code, err := relay.NewSessionCode()
	if err != nil {
		s.logger.Error("minting session code failed", "error", err)
		writeInternalError(w, "failed to mint session code")
		return
	}
	s.store.Ensure(code)

	s.logger.Info("pairing session minted", "session_id", code)
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": code,
	})
}

// handleListSessions returns redacted snapshots of all live pairing
// sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snaps := s.store.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": snaps,
		"count":    len(snaps),
	})
}

// handleGetSession returns the redacted snapshot of a single session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, ok := s.store.Get(id)
	if !ok {
		writeNotFound(w, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleListLabs returns the configured labs.
func (s *Server) handleListLabs(w http.ResponseWriter, r *http.Request) {
	if s.labs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"labs": []any{}, "count": 0})
		return
	}

	labs, err := s.labs.List(r.Context())
	if err != nil {
		s.logger.Error("listing labs failed", "error", err)
		writeInternalError(w, "failed to list labs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"labs":  labs,
		"count": len(labs),
	})
}

// handleListAudit returns audit trail entries, filterable by action,
// session and lab via query parameters.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		SessionID: q.Get("session_id"),
		LabSlug:   q.Get("lab"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
