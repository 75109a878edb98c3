package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/labgate/labgate-core/internal/relay"
)

// wsReadTimeout bounds each expected message in the flow tests.
const wsReadTimeout = 5 * time.Second

// wsPeer is a test-side relay participant.
type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

// dialRelay opens a WebSocket connection to the test server's relay
// endpoint and consumes the connected greeting.
func dialRelay(t *testing.T, env *testEnv) *wsPeer {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/relay"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	peer := &wsPeer{t: t, conn: conn}
	greet := peer.expect(relay.MsgConnected)
	if greet["connectionId"] == "" {
		t.Fatalf("greeting missing connection id: %v", greet)
	}
	return peer
}

// send writes one envelope to the relay.
func (p *wsPeer) send(msgType string, data any) {
	p.t.Helper()

	env := map[string]any{"type": msgType}
	if data != nil {
		env["data"] = data
	}
	if err := p.conn.WriteJSON(env); err != nil {
		p.t.Fatalf("sending %s: %v", msgType, err)
	}
}

// expect reads envelopes until one of the given type arrives, failing the
// test on timeout or an unexpected error envelope.
func (p *wsPeer) expect(msgType string) map[string]any {
	p.t.Helper()

	deadline := time.Now().Add(wsReadTimeout)
	for {
		if err := p.conn.SetReadDeadline(deadline); err != nil {
			p.t.Fatalf("setting read deadline: %v", err)
		}
		var env relay.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type != msgType {
			if env.Type == relay.MsgError {
				p.t.Fatalf("waiting for %s, got error envelope: %s", msgType, env.Data)
			}
			continue
		}

		data := map[string]any{}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				p.t.Fatalf("decoding %s payload: %v", msgType, err)
			}
		}
		return data
	}
}

// expectError reads the next envelope and asserts it is an error carrying
// the given message.
func (p *wsPeer) expectError(message string) {
	p.t.Helper()

	data := p.expect(relay.MsgError)
	if data["message"] != message {
		p.t.Fatalf("error message = %v, want %q", data["message"], message)
	}
}

func TestRelayFlowWithLocationCheck(t *testing.T) {
	env := newTestEnv(t)

	desktop := dialRelay(t, env)
	desktop.send(relay.MsgRegisterDesktop, map[string]any{
		"sessionId": "labgate-ws-flow",
		"userEmail": "alice@example.com",
		"labName":   "Bio Lab A",
	})
	desktop.expect(relay.MsgDesktopRegistered)

	mobile := dialRelay(t, env)
	mobile.send(relay.MsgRegisterMobile, map[string]any{
		"sessionId":       "labgate-ws-flow",
		"userEmail":       "alice@example.com",
		"requireLocation": true,
		"mode":            "login",
	})
	mobile.expect(relay.MsgMobileRegistered)
	desktop.expect(relay.MsgMobileConnected)

	mobile.send(relay.MsgPasskeyAuthSuccess, map[string]any{
		"authData": map[string]any{
			"userEmail":  "alice@example.com",
			"device":     "pixel-9",
			"credential": "opaque",
		},
	})
	mobile.expect(relay.MsgPasskeyVerifiedConfirmed)

	verified := desktop.expect(relay.MsgPasskeyVerified)
	if verified["userEmail"] != "alice@example.com" || verified["device"] != "pixel-9" {
		t.Fatalf("unexpected passkey_verified payload: %v", verified)
	}
	desktop.expect(relay.MsgRequestLocationFromMobile)

	desktop.send(relay.MsgRequestLocation, map[string]any{"requestId": "req-1"})
	request := mobile.expect(relay.MsgRequestLocation)
	if request["requestId"] != "req-1" {
		t.Fatalf("request id not forwarded: %v", request)
	}

	mobile.send(relay.MsgLocationReceived, map[string]any{
		"location": map[string]any{"latitude": 12.9716, "longitude": 77.5946},
	})
	report := desktop.expect(relay.MsgLocationReceived)
	if report["location"] == nil {
		t.Fatalf("location not forwarded: %v", report)
	}

	desktop.send(relay.MsgLocationCheckComplete, map[string]any{
		"success":  true,
		"distance": 12.4,
		"location": map[string]any{"latitude": 12.9716, "longitude": 77.5946},
	})

	granted := desktop.expect(relay.MsgAccessGranted)
	if granted["redirect"] != "/dashboard" || granted["distance"] != 12.4 {
		t.Fatalf("unexpected access_granted payload: %v", granted)
	}
	mobile.expect(relay.MsgAccessGranted)
	mirror := mobile.expect(relay.MsgLocationCheckComplete)
	if mirror["success"] != true {
		t.Fatalf("mirror success = %v", mirror["success"])
	}

	sess, ok := env.store.Get("labgate-ws-flow")
	if !ok || sess.State() != relay.StateResolved {
		t.Fatalf("session not resolved after flow")
	}
}

func TestRelayFlowWithoutLocation(t *testing.T) {
	env := newTestEnv(t)

	desktop := dialRelay(t, env)
	desktop.send(relay.MsgRegisterDesktop, map[string]any{
		"sessionId": "labgate-ws-nolocation",
		"userEmail": "alice@example.com",
		"labName":   "Bio Lab A",
	})
	desktop.expect(relay.MsgDesktopRegistered)

	mobile := dialRelay(t, env)
	mobile.send(relay.MsgRegisterMobile, map[string]any{
		"sessionId":       "labgate-ws-nolocation",
		"requireLocation": false,
		"mode":            "enroll",
	})
	mobile.expect(relay.MsgMobileRegistered)
	desktop.expect(relay.MsgMobileConnected)

	mobile.send(relay.MsgPasskeyCreated, map[string]any{
		"authData": map[string]any{"credential": "opaque"},
	})
	mobile.expect(relay.MsgPasskeyCreatedConfirmed)
	desktop.expect(relay.MsgPasskeyCreated)

	// No location required: the proof alone resolves the session.
	desktop.expect(relay.MsgAccessGranted)
	mobile.expect(relay.MsgAccessGranted)
}

func TestRelayMobileUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	mobile := dialRelay(t, env)
	mobile.send(relay.MsgRegisterMobile, map[string]any{
		"sessionId": "labgate-ghost",
	})
	mobile.expectError("session not found: labgate-ghost")
}

func TestRelayDisconnectKeepsSession(t *testing.T) {
	env := newTestEnv(t)

	desktop := dialRelay(t, env)
	desktop.send(relay.MsgRegisterDesktop, map[string]any{
		"sessionId": "labgate-ws-reconnect",
		"labName":   "Bio Lab A",
	})
	desktop.expect(relay.MsgDesktopRegistered)

	desktop.conn.Close()

	// The read pump detaches asynchronously; the session itself must survive
	// for the reaper grace period.
	detached := false
	for i := 0; i < 50; i++ {
		sess, ok := env.store.Get("labgate-ws-reconnect")
		if !ok {
			t.Fatal("session removed on disconnect")
		}
		if sess.DesktopConnID() == "" {
			detached = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !detached {
		t.Fatal("desktop slot not detached after disconnect")
	}
}
