package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labgate/labgate-core/internal/audit"
	"github.com/labgate/labgate-core/internal/auth"
	"github.com/labgate/labgate-core/internal/geofence"
)

// loginRequest is the request body for POST /auth/login. Location is
// optional: desktops that already hold a position report send it here so
// the grant carries the geofence evaluation.
type loginRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Location *geofence.Point `json:"location,omitempty"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int              `json:"expires_in"`
	User        loginUser        `json:"user"`
	Lab         loginLab         `json:"lab"`
	Geofence    *geofence.Result `json:"geofence,omitempty"`
}

// loginUser is the account summary returned on login.
type loginUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        auth.Role `json:"role"`
}

// loginLab is the lab summary returned on login. RequireLocation tells the
// desktop whether the pairing flow must include a geofence check.
type loginLab struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	RequireLocation bool   `json:"require_location"`
}

// handleLogin authenticates a user and returns a JWT access token together
// with the account's lab, so the desktop knows the pairing requirements
// before opening a relay session. When the request carries a location it
// is evaluated against the lab's geofence: a report outside the fence is
// rejected with 403.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	user, lab, err := s.authService.VerifyCredentials(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.recordLogin(r, req.Email, false, "invalid credentials")
		writeUnauthorized(w, "invalid credentials")
		return
	case errors.Is(err, auth.ErrUserInactive):
		s.recordLogin(r, req.Email, false, "account disabled")
		writeForbidden(w, "account disabled")
		return
	case err != nil:
		s.logger.Error("credential verification failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	var fence *geofence.Result
	if req.Location != nil {
		center := geofence.Point{Latitude: lab.Latitude, Longitude: lab.Longitude}
		fence, err = geofence.Evaluate(*req.Location, center, lab.RadiusM)
		if err != nil {
			writeBadRequest(w, "invalid location: "+err.Error())
			return
		}
		if !fence.WithinTolerance {
			s.recordLogin(r, user.Email, false, "outside the lab geofence")
			writeForbidden(w, "outside the lab geofence")
			return
		}
	}

	ttl := s.authCfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15
	}

	token, err := auth.GenerateAccessToken(user, s.authCfg.JWTSecret, ttl)
	if err != nil {
		s.logger.Error("token generation failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.recordLogin(r, user.Email, true, "")

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
		User: loginUser{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			Role:        user.Role,
		},
		Lab: loginLab{
			ID:              lab.ID,
			Name:            lab.Name,
			Slug:            lab.Slug,
			RequireLocation: lab.RequireLocation,
		},
		Geofence: fence,
	})
}

// recordLogin appends a login attempt to the audit trail, best-effort.
func (s *Server) recordLogin(r *http.Request, email string, success bool, reason string) {
	if s.audit == nil {
		return
	}

	details := map[string]any{}
	if reason != "" {
		details["reason"] = reason
	}
	entry := &audit.AuditLog{
		Action:    audit.ActionLogin,
		UserEmail: email,
		Source:    "api",
		Success:   &success,
		Details:   details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("writing login audit entry failed", "email", email, "error", err)
	}
}
