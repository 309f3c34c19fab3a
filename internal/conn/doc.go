// Package conn drives one nsqd TCP connection: it sends the magic preamble
// on construction, encodes commands through package command and decodes
// frames through packages frame and protocol.
//
// A Conn has no internal goroutines or locks. One caller owns it and
// serializes every Send* and RecvFrame call. Heartbeats are returned to the
// caller like any other frame; answering them with SendNop is the caller's
// job, as are retry, backoff and RDY policy.
package conn
