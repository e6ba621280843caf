// Package session issues, verifies, rotates and revokes access/refresh token pairs.
//
// The Manager keeps no in-process state. The only session state is the digest of
// each principal's current refresh token, held by a PrincipalStore that must offer
// an atomic compare-and-set on it. Rotation is a single CAS from the presented
// token's digest to the new one, so of two concurrent rotations with the same
// token exactly one succeeds and the other fails with models.ErrTokenReused.
package session
