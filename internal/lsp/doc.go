// Package lsp manages the connection to the envlens-ls language
// server: a JSON-RPC 2.0 stdio transport with LSP base-protocol
// framing, the lifecycle of the server process, a registry of live
// connections, and the command gateway every higher-level operation
// goes through.
//
// The gateway resolves connections by the session id cached in state,
// falling back to discovery by accepted client names. Failures are
// always returned values or callback arguments; nothing in this
// package panics across its boundary or retries on its own.
//
// # Known limitation
//
// The synchronous path (Gateway.ExecuteSync) collapses timeout,
// transport error, and empty success into a nil result. The server
// contract does not let the client distinguish these, so callers must
// treat nil as "unknown" rather than "empty".
package lsp
