package session

// Digest exposes digest to the external test package.
var Digest = digest
