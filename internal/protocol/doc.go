// Package protocol owns the nsqd frame taxonomy.
//
// Ownership boundary:
// - typed Response/Error/Message frames
// - interpretation of raw (type, payload) tuples from package frame
// - protocol-level error values
//
// Sub-packages own the primitives: frame (stream framing), command (outbound
// encoding), identify (IDENTIFY body), msgid (message identifiers).
package protocol
