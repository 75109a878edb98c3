package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labgate/labgate-core/internal/audit"
)

func postLogin(t *testing.T, env *testEnv, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(env.ts.URL+"/api/v1/auth/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	return resp
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": testPassword})
	resp, err := http.Post(env.ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if lr.AccessToken == "" || lr.TokenType != "Bearer" {
		t.Errorf("unexpected token fields: %+v", lr)
	}
	if lr.ExpiresIn != 15*60 {
		t.Errorf("expires_in = %d", lr.ExpiresIn)
	}
	if lr.User.Email != "alice@example.com" {
		t.Errorf("user email = %s", lr.User.Email)
	}
	if lr.Lab.Slug != "bio-lab-a" || !lr.Lab.RequireLocation {
		t.Errorf("unexpected lab: %+v", lr.Lab)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	resp := postLogin(t, env, `{"email":"alice@example.com","password":"wrong"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", resp.StatusCode)
	}

	// Unknown email must be indistinguishable from a wrong password.
	resp = postLogin(t, env, `{"email":"ghost@example.com","password":"wrong"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d", resp.StatusCode)
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := postLogin(t, env, `not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}

	resp = postLogin(t, env, `{"email":"alice@example.com"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing password status = %d", resp.StatusCode)
	}
}

func TestLoginWithLocationInsideGeofence(t *testing.T) {
	env := newTestEnv(t)

	// At the lab centre.
	resp := postLogin(t, env, `{"email":"alice@example.com","password":"test-password","location":{"latitude":12.9716,"longitude":77.5946}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	if lr.Geofence == nil || !lr.Geofence.WithinTolerance {
		t.Fatalf("geofence evaluation missing or negative: %+v", lr.Geofence)
	}
}

func TestLoginWithLocationOutsideGeofence(t *testing.T) {
	env := newTestEnv(t)

	// Several kilometres away from the lab.
	resp := postLogin(t, env, `{"email":"alice@example.com","password":"test-password","location":{"latitude":13.05,"longitude":77.70}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("outside geofence status = %d", resp.StatusCode)
	}
}

func TestLoginWithInvalidLocation(t *testing.T) {
	env := newTestEnv(t)

	resp := postLogin(t, env, `{"email":"alice@example.com","password":"test-password","location":{"latitude":91,"longitude":0}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid location status = %d", resp.StatusCode)
	}
}

func TestLoginAudited(t *testing.T) {
	env := newTestEnv(t)

	resp := postLogin(t, env, `{"email":"alice@example.com","password":"wrong"}`)
	resp.Body.Close()
	env.login(t, "alice@example.com")

	result, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionLogin})
	if err != nil {
		t.Fatalf("listing audit: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected 2 login entries, got %d", result.Total)
	}

	var granted, denied int
	for _, entry := range result.Logs {
		if entry.Success != nil && *entry.Success {
			granted++
		} else {
			denied++
		}
	}
	if granted != 1 || denied != 1 {
		t.Errorf("granted=%d denied=%d", granted, denied)
	}
}
