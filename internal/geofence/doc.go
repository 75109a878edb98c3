// Package geofence determines whether a reported location falls inside a
// lab's authorised area.
//
// The evaluator is a pure function shared by two callers: the HTTP login
// path (server-side check before issuing a token) and the pairing relay's
// advisory re-check of desktop-reported verdicts.
//
// Distance is great-circle (haversine), accurate to the metre. A banded
// tolerance policy extends the nominal radius to absorb consumer GPS
// error: small fences stay strict, large fences forgive up to a bounded
// amount. See BandedTolerance for the exact bands.
package geofence
