// Package ipc implements the transport between the CmdMox controller and
// its short-lived command launchers.
//
// The channel is a framed, bidirectional, newline-delimited UTF-8 JSON
// stream over a Unix domain socket (POSIX) or a duplex named pipe
// (Windows). Each message is self-describing via a "kind" field:
//
//	launcher -> server: "invocation", "passthrough-result"
//	server -> launcher: "response"
//
// ARCHITECTURE:
//
// Connection-per-message:
// A launcher opens a fresh connection for every message it sends and
// reads exactly one response on it. This keeps the server stateless at
// the connection level; passthrough correlation happens via invocation
// IDs, not connections.
//
// Boundary invariants:
//   - All stdio crossing the wire is UTF-8; invalid bytes are replaced
//     with U+FFFD at decode time, never rejected.
//   - The logical socket path is the single rendezvous value exported to
//     launchers. On Windows it deterministically hashes to a pipe name,
//     so launcher-side PATH filtering needs no platform branch.
package ipc
