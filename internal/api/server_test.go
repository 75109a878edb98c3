package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labgate/labgate-core/internal/audit"
	"github.com/labgate/labgate-core/internal/auth"
	"github.com/labgate/labgate-core/internal/infrastructure/config"
	"github.com/labgate/labgate-core/internal/infrastructure/database"
	"github.com/labgate/labgate-core/internal/infrastructure/logging"
	"github.com/labgate/labgate-core/internal/relay"
	_ "github.com/labgate/labgate-core/migrations"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testPassword  = "test-password"
)

// testEnv wires a full server over a temp database and exposes it through
// an httptest listener.
type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *relay.Store
	audit audit.Repository
	labs  auth.LabRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := database.Open(context.Background(), database.Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	userRepo := auth.NewUserRepository(db.DB)
	labRepo := auth.NewLabRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	seedAccounts(t, userRepo, labRepo)

	directory := auth.NewLabDirectory(labRepo)
	registry := relay.NewRegistry()
	store := relay.NewStore()
	recorder := audit.NewRecorder(auditRepo, nil, nil, directory, logger)
	t.Cleanup(recorder.Close)

	relayRouter := relay.NewRouter(registry, store, logger, relay.Options{
		Recorder:            recorder,
		Labs:                directory,
		RedirectURL:         "/dashboard",
		ServerGeofenceCheck: true,
	})

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS: config.WebSocketConfig{
			Path:           "/relay",
			MaxMessageSize: 16384,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Auth:        config.AuthConfig{JWTSecret: testJWTSecret, AccessTokenTTL: 15},
		Logger:      logger,
		DB:          db,
		Registry:    registry,
		Store:       store,
		RelayRouter: relayRouter,
		AuthService: auth.NewService(userRepo, labRepo),
		Labs:        labRepo,
		Audit:       auditRepo,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, ts: ts, store: store, audit: auditRepo, labs: labRepo}
}

// seedAccounts creates one lab, an admin and a member account.
func seedAccounts(t *testing.T, users auth.UserRepository, labs auth.LabRepository) {
	t.Helper()

	lab := &auth.Lab{
		Name:            "Bio Lab A",
		Slug:            "bio-lab-a",
		Latitude:        12.9716,
		Longitude:       77.5946,
		RadiusM:         50,
		RequireLocation: true,
	}
	if err := labs.Create(context.Background(), lab); err != nil {
		t.Fatalf("seeding lab: %v", err)
	}

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	accounts := []*auth.User{
		{Email: "admin@example.com", DisplayName: "Admin", PasswordHash: hash, LabID: lab.ID, Role: auth.RoleAdmin, IsActive: true},
		{Email: "alice@example.com", DisplayName: "Alice", PasswordHash: hash, LabID: lab.ID, Role: auth.RoleMember, IsActive: true},
	}
	for _, u := range accounts {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("seeding user %s: %v", u.Email, err)
		}
	}
}

// login performs a real login and returns the access token.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": testPassword})
	resp, err := http.Post(e.ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
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
	return lr.AccessToken
}

// get performs an authenticated GET and returns the response.
func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	components, ok := body["components"].(map[string]any)
	if !ok || components["database"] != "ok" {
		t.Errorf("database component = %v", body["components"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/v1/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
	if _, ok := body["relay"].(map[string]any); !ok {
		t.Errorf("relay metrics missing: %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/v1/relay/sessions", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", resp.StatusCode)
	}

	resp = env.get(t, "/api/v1/relay/sessions", "not-a-token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d", resp.StatusCode)
	}

	token := env.login(t, "alice@example.com")
	resp = env.get(t, "/api/v1/relay/sessions", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d", resp.StatusCode)
	}
}

func TestAuditRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	member := env.login(t, "alice@example.com")
	resp := env.get(t, "/api/v1/audit", member)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member audit status = %d", resp.StatusCode)
	}

	admin := env.login(t, "admin@example.com")
	resp = env.get(t, "/api/v1/audit", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin audit status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	// The two logins above were themselves audited.
	if body["total"] == nil {
		t.Errorf("audit listing missing total: %v", body)
	}
}

func TestListLabs(t *testing.T) {
	env := newTestEnv(t)

	token := env.login(t, "alice@example.com")
	resp := env.get(t, "/api/v1/labs", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("labs status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("lab count = %v", body["count"])
	}
}
