package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/labgate/labgate-core/internal/geofence"
	"github.com/labgate/labgate-core/internal/infrastructure/logging"
)

// ResolvedEvent describes a session reaching its terminal outcome. It is
// handed to the Recorder for audit, access-event publication and telemetry.
type ResolvedEvent struct {
	SessionID string
	UserEmail string
	LabName   string
	Mode      Mode
	Granted   bool
	Reason    string
	DistanceM *float64
	Location  *Location
	Duration  time.Duration
}

// Recorder receives protocol lifecycle events. Implementations must be
// non-blocking and must never fail the protocol step that triggered them.
type Recorder interface {
	SessionRegistered(sessionID string, role Role, userEmail, labName string)
	ProofAttached(sessionID string, kind ProofKind)
	SessionResolved(ev ResolvedEvent)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) SessionRegistered(string, Role, string, string) {}
func (NopRecorder) ProofAttached(string, ProofKind)                {}
func (NopRecorder) SessionResolved(ResolvedEvent)                  {}

// GeofenceDirectory resolves a lab's configured geofence for the advisory
// server-side re-check of desktop verdicts.
type GeofenceDirectory interface {
	LabGeofence(ctx context.Context, labName string) (center geofence.Point, radiusM float64, ok bool)
}

// Options configures a Router.
type Options struct {
	// Recorder receives lifecycle events. Defaults to NopRecorder.
	Recorder Recorder

	// Labs enables the advisory server-side geofence re-check on
	// location_check_complete. Nil disables the re-check.
	Labs GeofenceDirectory

	// RedirectURL is included in access_granted broadcasts.
	RedirectURL string

	// ServerGeofenceCheck gates the advisory re-check.
	ServerGeofenceCheck bool
}

// Router decodes inbound relay messages, validates them against the
// session's current state, mutates state and forwards derived messages to
// the correct peer(s). All errors are local to the offending message.
type Router struct {
	registry *Registry
	store    *Store
	logger   *logging.Logger

	recorder    Recorder
	labs        GeofenceDirectory
	redirectURL string
	serverCheck bool

	now func() time.Time
}

// NewRouter creates a message router over the given registry and store.
func NewRouter(registry *Registry, store *Store, logger *logging.Logger, opts Options) *Router {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}

	return &Router{
		registry:    registry,
		store:       store,
		logger:      logger,
		recorder:    recorder,
		labs:        opts.Labs,
		redirectURL: opts.RedirectURL,
		serverCheck: opts.ServerGeofenceCheck,
		now:         time.Now,
	}
}

// HandleConnect registers a transport and greets it with its assigned
// connection id.
func (rt *Router) HandleConnect(sender Sender) *Connection {
	conn := rt.registry.Register(sender)
	rt.send(conn, MsgConnected, map[string]any{
		"connectionId": conn.ID(),
	})
	rt.logger.Debug("relay connection opened", "connection_id", conn.ID(), "connections", rt.registry.Count())
	return conn
}

// HandleDisconnect removes the connection from the registry and clears its
// session slot. The session itself survives: the same role can reconnect
// within the grace period and resume with prior proof/location state.
func (rt *Router) HandleDisconnect(conn *Connection) {
	rt.registry.Remove(conn.ID())

	if sessionID := conn.SessionID(); sessionID != "" {
		rt.store.Detach(sessionID, conn.Role())
		rt.logger.Debug("relay peer detached",
			"connection_id", conn.ID(),
			"session_id", sessionID,
			"role", conn.Role(),
		)
	}
}

// HandleMessage processes one inbound frame from a connection. Errors are
// answered to the sender and never propagate to other sessions.
func (rt *Router) HandleMessage(conn *Connection, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		rt.sendError(conn, "invalid message envelope")
		return
	}

	switch env.Type {
	case MsgRegisterDesktop:
		rt.handleRegisterDesktop(conn, env)
	case MsgRegisterMobile:
		rt.handleRegisterMobile(conn, env)
	case MsgPasskeyAuthSuccess:
		rt.handleProof(conn, env, ProofAuthentication)
	case MsgPasskeyCreated:
		rt.handleProof(conn, env, ProofCreation)
	case MsgRequestLocation:
		rt.handleRequestLocation(conn, env)
	case MsgLocationReceived:
		rt.handleLocationReceived(conn, env)
	case MsgLocationCheckComplete:
		rt.handleLocationCheckComplete(conn, env)
	case MsgPing:
		rt.send(conn, MsgPong, map[string]any{
			"timestamp": rt.now().UTC().Format(time.RFC3339),
		})
	default:
		rt.sendError(conn, "unknown message type: "+env.Type)
	}
}

// handleRegisterDesktop creates or joins a session as its desktop. A
// desktop re-registering mid-flow simply rebinds the slot.
func (rt *Router) handleRegisterDesktop(conn *Connection, env Envelope) {
	var data RegisterDesktopData
	if err := decodeData(env, &data); err != nil {
		rt.sendError(conn, "invalid register_desktop payload")
		return
	}
	if data.SessionID == "" {
		rt.sendError(conn, "sessionId is required")
		return
	}

	rt.store.AttachDesktop(data.SessionID, conn.ID(), DesktopMeta{
		UserEmail: data.UserEmail,
		LabName:   data.LabName,
	})
	conn.bind(RoleDesktop, data.SessionID)

	rt.send(conn, MsgDesktopRegistered, map[string]any{
		"sessionId": data.SessionID,
	})
	rt.recorder.SessionRegistered(data.SessionID, RoleDesktop, data.UserEmail, data.LabName)
	rt.logger.Info("desktop registered",
		"session_id", data.SessionID,
		"lab", data.LabName,
	)
}

// handleRegisterMobile joins an existing session as its mobile. The
// session must have been created by a desktop first.
func (rt *Router) handleRegisterMobile(conn *Connection, env Envelope) {
	var data RegisterMobileData
	if err := decodeData(env, &data); err != nil {
		rt.sendError(conn, "invalid register_mobile payload")
		return
	}
	if data.SessionID == "" {
		rt.sendError(conn, "sessionId is required")
		return
	}

	sess, err := rt.store.AttachMobile(data.SessionID, conn.ID(), MobileMeta{
		UserEmail:       data.UserEmail,
		RequireLocation: data.RequireLocation,
		Mode:            Mode(data.Mode),
	})
	if err != nil {
		rt.sendError(conn, "session not found: "+data.SessionID)
		return
	}
	conn.bind(RoleMobile, data.SessionID)

	rt.send(conn, MsgMobileRegistered, map[string]any{
		"sessionId": data.SessionID,
	})
	rt.sendTo(sess.DesktopConnID(), MsgMobileConnected, map[string]any{
		"sessionId": data.SessionID,
		"userEmail": data.UserEmail,
	})
	rt.recorder.SessionRegistered(data.SessionID, RoleMobile, data.UserEmail, "")
	rt.logger.Info("mobile joined session", "session_id", data.SessionID)
}

// handleProof records a passkey ceremony result and advances the session.
// The proof payload is accepted structurally and forwarded as an opaque
// token; its cryptographic content is not validated here.
func (rt *Router) handleProof(conn *Connection, env Envelope, kind ProofKind) {
	var data ProofData
	if err := decodeData(env, &data); err != nil || len(data.AuthData) == 0 {
		rt.sendError(conn, "missing auth data")
		return
	}

	sess, ok := rt.sessionFor(conn)
	if !ok {
		rt.sendError(conn, "no session registered for this connection")
		return
	}

	// Descriptor fields are best-effort; authData itself stays opaque.
	var desc proofDescriptor
	_ = json.Unmarshal(data.AuthData, &desc)

	proof := &AuthProof{
		Success:    true,
		Credential: data.AuthData,
		UserEmail:  desc.UserEmail,
		Device:     desc.Device,
		Kind:       kind,
		ReceivedAt: rt.now(),
	}

	res, err := sess.attachProof(conn.ID(), proof, rt.now())
	if err != nil {
		rt.sendError(conn, "proof rejected: "+err.Error())
		return
	}
	rt.recorder.ProofAttached(sess.ID(), kind)

	ackType, notifyType := MsgPasskeyVerifiedConfirmed, MsgPasskeyVerified
	if kind == ProofCreation {
		ackType, notifyType = MsgPasskeyCreatedConfirmed, MsgPasskeyCreated
	}

	rt.send(conn, ackType, map[string]any{
		"sessionId": sess.ID(),
	})
	rt.sendTo(res.desktopConnID, notifyType, map[string]any{
		"sessionId": sess.ID(),
		"authData":  json.RawMessage(data.AuthData),
		"userEmail": desc.UserEmail,
		"device":    desc.Device,
	})

	if res.resolved != nil {
		// requireLocation=false: the proof alone grants access.
		rt.broadcastOutcome(res.desktopConnID, res.mobileConnID, res.resolved, nil)
		rt.recorder.SessionResolved(*res.resolved)
		return
	}

	if res.requireLocation {
		rt.sendTo(res.desktopConnID, MsgRequestLocationFromMobile, map[string]any{
			"sessionId": sess.ID(),
		})
	}
}

// handleRequestLocation forwards a desktop's location request to the
// mobile. Requires an attached proof and a live mobile connection.
func (rt *Router) handleRequestLocation(conn *Connection, env Envelope) {
	// The payload is optional pass-through; an empty one is fine.
	var data RequestLocationData
	_ = decodeData(env, &data)

	sess, ok := rt.sessionFor(conn)
	if !ok {
		rt.sendError(conn, "no session registered for this connection")
		return
	}

	mobileID, err := sess.markLocationRequested(conn.ID())
	if err != nil {
		rt.sendError(conn, rt.describeError(err, "mobile device not connected"))
		return
	}

	mobile, ok := rt.registry.Lookup(mobileID)
	if !ok {
		rt.sendError(conn, "mobile device not connected")
		return
	}

	rt.sendToConn(mobile, MsgRequestLocation, map[string]any{
		"sessionId": sess.ID(),
		"requestId": data.RequestID,
		"authData":  rawOrNil(data.AuthData),
	})
}

// handleLocationReceived stores a mobile's raw location report and
// forwards it to the desktop, which performs the geofence check itself and
// reports back via location_check_complete. The relay defers the
// accept/deny decision to the desktop-side evaluator.
func (rt *Router) handleLocationReceived(conn *Connection, env Envelope) {
	var data LocationReceivedData
	if err := decodeData(env, &data); err != nil || data.Location == nil {
		rt.sendError(conn, "missing location")
		return
	}

	sess, ok := rt.sessionFor(conn)
	if !ok {
		rt.sendError(conn, "no session registered for this connection")
		return
	}

	desktopID, err := sess.attachLocation(conn.ID(), data.Location)
	if err != nil {
		rt.sendError(conn, rt.describeError(err, "desktop not connected"))
		return
	}

	desktop, ok := rt.registry.Lookup(desktopID)
	if !ok {
		rt.sendError(conn, "desktop not connected")
		return
	}

	rt.sendToConn(desktop, MsgLocationReceived, map[string]any{
		"sessionId": sess.ID(),
		"location":  data.Location,
		"authData":  rawOrNil(data.AuthData),
	})
}

// handleLocationCheckComplete attaches the desktop's geofence verdict as
// the session's terminal outcome and broadcasts the decision to both
// peers. When enabled, the server re-evaluates the reported location
// against the lab's configured geofence for the audit trail only; the
// desktop's verdict stands either way.
func (rt *Router) handleLocationCheckComplete(conn *Connection, env Envelope) {
	var data CheckCompleteData
	if err := decodeData(env, &data); err != nil {
		rt.sendError(conn, "invalid location_check_complete payload")
		return
	}

	sess, ok := rt.sessionFor(conn)
	if !ok {
		rt.sendError(conn, "no session registered for this connection")
		return
	}

	outcome := &Outcome{
		Success:   data.Success,
		DistanceM: data.Distance,
		Location:  data.Location,
		Error:     data.Error,
		DecidedAt: rt.now(),
	}

	ev, desktopID, mobileID, err := sess.resolve(outcome, rt.now())
	if err != nil {
		rt.sendError(conn, "session already resolved")
		return
	}

	disagreement := rt.advisoryGeofenceCheck(sess, ev)
	rt.broadcastOutcome(desktopID, mobileID, ev, disagreement)
	rt.recorder.SessionResolved(*ev)
}

// advisoryGeofenceCheck re-runs the geofence evaluation server-side and
// returns a non-nil disagreement description when the server's verdict
// differs from the desktop's. Purely advisory: logged and audited, never
// overriding.
func (rt *Router) advisoryGeofenceCheck(sess *PairingSession, ev *ResolvedEvent) map[string]any {
	if !rt.serverCheck || rt.labs == nil || ev.Location == nil {
		return nil
	}

	center, radius, ok := rt.labs.LabGeofence(context.Background(), ev.LabName)
	if !ok {
		return nil
	}

	point := geofence.Point{Latitude: ev.Location.Latitude, Longitude: ev.Location.Longitude}
	result, err := geofence.Evaluate(point, center, radius)
	if err != nil {
		rt.logger.Warn("advisory geofence evaluation failed",
			"session_id", sess.ID(),
			"error", err,
		)
		return nil
	}

	if result.WithinTolerance == ev.Granted {
		return nil
	}

	rt.logger.Warn("desktop geofence verdict disagrees with server evaluation",
		"session_id", sess.ID(),
		"lab", ev.LabName,
		"desktop_granted", ev.Granted,
		"server_within_tolerance", result.WithinTolerance,
		"server_distance_m", result.DistanceM,
	)
	return map[string]any{
		"server_within_tolerance": result.WithinTolerance,
		"server_distance_m":       result.DistanceM,
	}
}

// broadcastOutcome fans the terminal decision out to both peers and
// mirrors a location_check_complete to the mobile.
func (rt *Router) broadcastOutcome(desktopID, mobileID string, ev *ResolvedEvent, disagreement map[string]any) {
	if ev.Granted {
		payload := map[string]any{
			"sessionId": ev.SessionID,
			"redirect":  rt.redirectURL,
		}
		if ev.DistanceM != nil {
			payload["distance"] = *ev.DistanceM
		}
		if ev.Location != nil {
			payload["location"] = ev.Location
		}
		rt.fanout([]string{desktopID, mobileID}, "", MsgAccessGranted, payload)

		mirror := map[string]any{"sessionId": ev.SessionID, "success": true}
		if ev.DistanceM != nil {
			mirror["distance"] = *ev.DistanceM
		}
		rt.sendTo(mobileID, MsgLocationCheckComplete, mirror)
	} else {
		rt.fanout([]string{desktopID, mobileID}, "", MsgAccessDenied, map[string]any{
			"sessionId": ev.SessionID,
			"error":     ev.Reason,
		})
		rt.sendTo(mobileID, MsgLocationCheckComplete, map[string]any{
			"sessionId": ev.SessionID,
			"success":   false,
			"error":     ev.Reason,
		})
	}

	logArgs := []any{
		"session_id", ev.SessionID,
		"lab", ev.LabName,
		"granted", ev.Granted,
		"duration_ms", ev.Duration.Milliseconds(),
	}
	if disagreement != nil {
		logArgs = append(logArgs, "advisory_disagreement", true)
	}
	rt.logger.Info("pairing session resolved", logArgs...)
}

// sessionFor resolves the session a connection is bound to.
func (rt *Router) sessionFor(conn *Connection) (*PairingSession, bool) {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return nil, false
	}
	return rt.store.Get(sessionID)
}

// fanout sends a message to every listed connection id except the excluded
// one. Empty ids and closed connections are skipped silently: sends are
// best-effort at the relay layer.
func (rt *Router) fanout(connIDs []string, exclude string, msgType string, data any) {
	for _, id := range connIDs {
		if id == "" || id == exclude {
			continue
		}
		rt.sendTo(id, msgType, data)
	}
}

// sendTo delivers a message to a connection id, silently dropping it if
// the connection is no longer open.
func (rt *Router) sendTo(connID string, msgType string, data any) {
	if connID == "" {
		return
	}
	conn, ok := rt.registry.Lookup(connID)
	if !ok {
		return
	}
	rt.sendToConn(conn, msgType, data)
}

// send delivers a message to the given connection.
func (rt *Router) send(conn *Connection, msgType string, data any) {
	rt.sendToConn(conn, msgType, data)
}

func (rt *Router) sendToConn(conn *Connection, msgType string, data any) {
	encoded, err := encodeMessage(msgType, data, rt.now())
	if err != nil {
		rt.logger.Error("failed to encode relay message", "type", msgType, "error", err)
		return
	}
	conn.Send(encoded)
}

// sendError answers the sender with an error envelope.
func (rt *Router) sendError(conn *Connection, message string) {
	rt.send(conn, MsgError, map[string]string{"message": message})
}

// describeError maps sentinel errors to client-facing messages.
func (rt *Router) describeError(err error, peerMessage string) string {
	switch {
	case errors.Is(err, ErrPeerNotConnected):
		return peerMessage
	case errors.Is(err, ErrProofNotAttached):
		return "authentication proof not attached"
	case errors.Is(err, ErrNotSessionPeer):
		return err.Error()
	default:
		return err.Error()
	}
}

// rawOrNil passes an opaque JSON payload through, mapping empty to nil so
// the field is omitted from the outbound envelope.
func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
