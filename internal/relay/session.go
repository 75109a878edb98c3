package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// State is a pairing session's position in the protocol.
type State string

const (
	StateCreated                 State = "created"
	StateAwaitingMobile          State = "awaiting_mobile"
	StateAwaitingProof           State = "awaiting_proof"
	StateAwaitingLocationRequest State = "awaiting_location_request"
	StateAwaitingLocationReport  State = "awaiting_location_report"
	StateResolved                State = "resolved"
)

// Mode distinguishes a login attempt from a credential enrollment.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeEnroll Mode = "enroll"
)

// ProofKind identifies which passkey ceremony produced a proof.
type ProofKind string

const (
	ProofAuthentication ProofKind = "authentication"
	ProofCreation       ProofKind = "creation"
)

// AuthProof records the opaque result of the external passkey ceremony.
// At most one proof is attached per session: a later proof overwrites the
// earlier one (a session models a single login/enroll attempt).
type AuthProof struct {
	Success    bool            `json:"success"`
	Credential json.RawMessage `json:"credential"`
	UserEmail  string          `json:"user_email,omitempty"`
	Device     string          `json:"device,omitempty"`
	Kind       ProofKind       `json:"kind"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Location is a raw position report from the mobile device. It is stored
// verbatim; the derived geofence verdict lives in Outcome.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// Outcome is the terminal access decision for a session. Once set, the
// only further legal action is teardown.
type Outcome struct {
	Success   bool      `json:"success"`
	DistanceM *float64  `json:"distance_m,omitempty"`
	Location  *Location `json:"location,omitempty"`
	Error     string    `json:"error,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// PairingSession links one desktop flow and one mobile flow under a shared
// session id. All mutation goes through methods that hold the session
// mutex, so concurrent messages for the same session are serialized while
// different sessions proceed fully in parallel.
type PairingSession struct {
	mu sync.Mutex

	id        string
	createdAt time.Time

	desktopConnID string
	mobileConnID  string

	userEmail       string
	labName         string
	requireLocation bool
	mode            Mode

	proof    *AuthProof
	location *Location
	outcome  *Outcome

	state State

	// emptySince is set when both connection slots are empty, and cleared
	// on any attach. The reaper collects sessions empty for longer than
	// the configured grace period.
	emptySince time.Time
}

// DesktopMeta carries the desktop's declared registration fields.
type DesktopMeta struct {
	UserEmail string
	LabName   string
}

// MobileMeta carries the mobile's declared registration fields.
type MobileMeta struct {
	UserEmail       string
	RequireLocation bool
	Mode            Mode
}

// Snapshot is the redacted introspection view of a session, safe to expose
// on the operator API: proof and location contents are reduced to flags.
type Snapshot struct {
	ID              string    `json:"id"`
	State           State     `json:"state"`
	Mode            Mode      `json:"mode,omitempty"`
	UserEmail       string    `json:"user_email,omitempty"`
	LabName         string    `json:"lab_name,omitempty"`
	RequireLocation bool      `json:"require_location"`
	HasDesktop      bool      `json:"has_desktop"`
	HasMobile       bool      `json:"has_mobile"`
	HasProof        bool      `json:"has_proof"`
	HasLocation     bool      `json:"has_location"`
	Resolved        bool      `json:"resolved"`
	Granted         *bool     `json:"granted,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ID returns the session id. Immutable after creation.
func (p *PairingSession) ID() string {
	return p.id
}

// State returns the session's current protocol state.
func (p *PairingSession) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CreatedAt returns the session creation time. Immutable after creation.
func (p *PairingSession) CreatedAt() time.Time {
	return p.createdAt
}

// DesktopConnID returns the bound desktop connection id, or "".
func (p *PairingSession) DesktopConnID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desktopConnID
}

// MobileConnID returns the bound mobile connection id, or "".
func (p *PairingSession) MobileConnID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mobileConnID
}

// Snapshot returns the redacted view of the session.
func (p *PairingSession) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		ID:              p.id,
		State:           p.state,
		Mode:            p.mode,
		UserEmail:       p.userEmail,
		LabName:         p.labName,
		RequireLocation: p.requireLocation,
		HasDesktop:      p.desktopConnID != "",
		HasMobile:       p.mobileConnID != "",
		HasProof:        p.proof != nil,
		HasLocation:     p.location != nil,
		Resolved:        p.outcome != nil,
		CreatedAt:       p.createdAt,
	}
	if p.outcome != nil {
		granted := p.outcome.Success
		snap.Granted = &granted
	}
	return snap
}

// attachDesktop binds (or rebinds) the desktop slot. Rebinding after a
// reconnect retains proof and location state. The state only advances from
// Created so a mid-flow reconnect does not regress the protocol.
func (p *PairingSession) attachDesktop(connID string, meta DesktopMeta) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.desktopConnID = connID
	p.emptySince = time.Time{}
	if meta.UserEmail != "" {
		p.userEmail = meta.UserEmail
	}
	if meta.LabName != "" {
		p.labName = meta.LabName
	}
	if p.state == StateCreated {
		p.state = StateAwaitingMobile
	}
}

// attachMobile binds (or rebinds) the mobile slot and records the declared
// requireLocation flag and mode.
func (p *PairingSession) attachMobile(connID string, meta MobileMeta) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.mobileConnID = connID
	p.emptySince = time.Time{}
	if meta.UserEmail != "" {
		p.userEmail = meta.UserEmail
	}
	p.requireLocation = meta.RequireLocation
	if meta.Mode != "" {
		p.mode = meta.Mode
	}
	if p.state == StateCreated || p.state == StateAwaitingMobile {
		p.state = StateAwaitingProof
	}
}

// detach clears the slot for the given role. When both slots become empty
// the expiry clock starts (or refreshes).
func (p *PairingSession) detach(role Role, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch role {
	case RoleDesktop:
		p.desktopConnID = ""
	case RoleMobile:
		p.mobileConnID = ""
	case RoleUnassigned:
		return
	}

	if p.desktopConnID == "" && p.mobileConnID == "" {
		p.emptySince = now
	}
}

// proofResult is what attachProof hands back to the router: the peer ids
// to notify and, when the session resolved immediately, the terminal event.
type proofResult struct {
	desktopConnID   string
	mobileConnID    string
	requireLocation bool
	resolved        *ResolvedEvent
}

// attachProof records the passkey ceremony result. The sender must be the
// session's bound mobile connection. Last proof wins: a retry overwrites
// the previous record. When the session does not require location the
// proof resolves it immediately.
func (p *PairingSession) attachProof(senderConnID string, proof *AuthProof, now time.Time) (proofResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mobileConnID == "" || p.mobileConnID != senderConnID {
		return proofResult{}, fmt.Errorf("%w: proof must come from the session's mobile device", ErrNotSessionPeer)
	}

	p.proof = proof

	res := proofResult{
		desktopConnID:   p.desktopConnID,
		mobileConnID:    p.mobileConnID,
		requireLocation: p.requireLocation,
	}

	if p.requireLocation {
		p.state = StateAwaitingLocationRequest
		return res, nil
	}

	p.outcome = &Outcome{
		Success:   true,
		DecidedAt: now,
	}
	p.state = StateResolved
	res.resolved = p.resolvedEventLocked(now)
	return res, nil
}

// markLocationRequested moves the session into AwaitingLocationReport.
// Precondition: a proof is attached and the mobile slot is bound; failing
// either leaves the session untouched.
func (p *PairingSession) markLocationRequested(senderConnID string) (mobileConnID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.desktopConnID == "" || p.desktopConnID != senderConnID {
		return "", fmt.Errorf("%w: location requests must come from the session's desktop", ErrNotSessionPeer)
	}
	if p.proof == nil {
		return "", ErrProofNotAttached
	}
	if p.mobileConnID == "" {
		return "", fmt.Errorf("%w: mobile device not connected", ErrPeerNotConnected)
	}

	p.state = StateAwaitingLocationReport
	return p.mobileConnID, nil
}

// attachLocation stores the raw location report. Precondition: the sender
// is the bound mobile, a proof is attached, and the desktop slot is bound.
func (p *PairingSession) attachLocation(senderConnID string, loc *Location) (desktopConnID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mobileConnID == "" || p.mobileConnID != senderConnID {
		return "", fmt.Errorf("%w: location reports must come from the session's mobile device", ErrNotSessionPeer)
	}
	if p.proof == nil {
		return "", ErrProofNotAttached
	}
	if p.desktopConnID == "" {
		return "", fmt.Errorf("%w: desktop not connected", ErrPeerNotConnected)
	}

	p.location = loc
	return p.desktopConnID, nil
}

// resolve attaches the terminal outcome and returns the resolution event.
// The outcome is terminal: a second resolve attempt fails.
func (p *PairingSession) resolve(outcome *Outcome, now time.Time) (*ResolvedEvent, string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outcome != nil {
		return nil, "", "", ErrSessionResolved
	}

	if outcome.Location == nil {
		outcome.Location = p.location
	}
	p.outcome = outcome
	p.state = StateResolved

	return p.resolvedEventLocked(now), p.desktopConnID, p.mobileConnID, nil
}

// resolvedEventLocked builds the resolution event. Caller holds p.mu.
func (p *PairingSession) resolvedEventLocked(now time.Time) *ResolvedEvent {
	ev := &ResolvedEvent{
		SessionID: p.id,
		UserEmail: p.userEmail,
		LabName:   p.labName,
		Mode:      p.mode,
		Granted:   p.outcome.Success,
		Reason:    p.outcome.Error,
		DistanceM: p.outcome.DistanceM,
		Location:  p.outcome.Location,
		Duration:  now.Sub(p.createdAt),
	}
	return ev
}

// reapable reports whether the session is eligible for collection: both
// slots empty beyond the grace period, or older than the absolute age
// limit regardless of connection state.
func (p *PairingSession) reapable(now time.Time, grace, maxAge time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.createdAt) > maxAge {
		return true
	}
	if !p.emptySince.IsZero() && now.Sub(p.emptySince) > grace {
		return true
	}
	return false
}
