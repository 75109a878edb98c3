// Package relay implements the pairing and verification relay between a
// desktop flow and its companion mobile flow.
//
// A desktop opens a session under a shareable id (typically displayed as
// a QR code), the mobile joins the same id, and the relay forwards the
// passkey ceremony result and the optional location exchange between the
// two until the session resolves to access granted or denied. The relay
// never inspects credential material: proofs and location reports pass
// through as opaque payloads, and the access decision is made by the
// desktop-side geofence evaluation.
//
// The package separates three concerns:
//
//   - Registry tracks live connections and their opaque ids.
//   - Store holds pairing sessions; each session serializes its own
//     mutation behind a per-session mutex so distinct sessions proceed
//     fully in parallel.
//   - Router decodes inbound envelopes, validates them against session
//     state and fans derived messages out to the correct peers.
//
// Delivery is fire-and-forget: a closed or congested peer drops the
// message and the protocol continues. A Reaper collects sessions that
// have been empty beyond the disconnect grace period or have exceeded
// the absolute age limit.
package relay
