// Package lsp is the language server client and document synchronization
// core of lspsync.
//
// It keeps a language server's view of each open document identical to the
// editor's local text, across arbitrary edits, undo/redo, and server crashes.
//
// # Architecture
//
// Components, leaves first:
//
//   - Decoder / Encode: Content-Length framing of JSON-RPC messages
//   - Transport: request ids, the pending request table, and inbound residue
//     for one server process
//   - Session: the handshake and shutdown state machine plus restart on crash
//   - SyncEngine: turns local buffer mutations into didOpen/didChange/didClose
//     notifications and folds publishDiagnostics back into byte offsets
//   - DiagnosticsCache: per-document diagnostics for tooltip lookups
//
// # Scheduling
//
// The package is driven from a single reactor goroutine. Steady state
// traffic never blocks: Request returns an id immediately and the matching
// response surfaces later from Poll. Only Session.Start waits on the server,
// for the initialize response and for capability registration.
//
//	sess := lsp.NewSession(cfg, spawn, logger)
//	if err := sess.Start(ctx); err != nil {
//	    return err
//	}
//	engine := lsp.NewSyncEngine(sess, lsp.NewDiagnosticsCache(), logger)
//	sess.OnRestart(engine.Resync)
//
//	engine.Open(uri, "rust", text)
//	engine.Apply(uri, 10, 10, "x")
//
// # Positions
//
// Protocol positions are (line, character) pairs where character counts
// UTF-16 code units within the line. They are always computed from the
// document buffer as it was before the mutation being described.
package lsp
