package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labgate/labgate-core/internal/relay"
)

func TestMintSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice@example.com")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, env.ts.URL+"/api/v1/relay/sessions", http.NoBody)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("minting session: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mint status = %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding mint response: %v", err)
	}
	resp.Body.Close()

	if !relay.IsMintedSessionCode(body.SessionID) {
		t.Errorf("session id missing service prefix: %s", body.SessionID)
	}
	if _, ok := env.store.Get(body.SessionID); !ok {
		t.Error("minted session not present in store")
	}
}

func TestListAndGetSessions(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice@example.com")

	env.store.AttachDesktop("labgate-list-test", "conn-1", relay.DesktopMeta{
		UserEmail: "alice@example.com",
		LabName:   "Bio Lab A",
	})

	resp := env.get(t, "/api/v1/relay/sessions", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("session count = %v", body["count"])
	}

	resp = env.get(t, "/api/v1/relay/sessions/labgate-list-test", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	snap := decodeBody(t, resp)
	if snap["lab_name"] != "Bio Lab A" || snap["has_desktop"] != true {
		t.Errorf("unexpected snapshot: %v", snap)
	}
	// The introspection view must not expose proof or location payloads.
	raw, _ := json.Marshal(snap)
	if strings.Contains(string(raw), "credential") {
		t.Errorf("snapshot leaks payload fields: %s", raw)
	}
}

func TestGetUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice@example.com")

	resp := env.get(t, "/api/v1/relay/sessions/labgate-ghost", token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d", resp.StatusCode)
	}
}
