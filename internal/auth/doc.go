// Package auth provides member accounts, lab geofence records, password
// hashing and JWT access tokens.
//
// Passwords are hashed with Argon2id and stored in PHC string format.
// Access tokens are short-lived HS256 JWTs validated by signature alone.
// Accounts belong to exactly one lab; the lab record carries the geofence
// definition used for location verification.
package auth
