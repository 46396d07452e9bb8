// Package app wires the editing core into workspaces.
//
// A Workspace is the context object for one project root: it owns the
// language server Session, the SyncEngine and DiagnosticsCache, and the open
// Documents with their undo history, selection and bracket index. Nothing
// is held in package-level state, so several workspaces coexist; Editor keeps
// them by root.
//
// Input arrives as dispatcher events ("edit.insert", "history.undo", ...) or
// as direct method calls. Server output is consumed by Pump, which never
// blocks, or by Run, which pumps whenever the server process signals output
// or exits:
//
//	ws, _ := app.NewWorkspace(root, cfg, app.ProcessSpawner(logger), logger)
//	ws.OnDiagnostics(func(uri string, diags []lsp.Diagnostic) { ... })
//	go ws.Run(ctx)
//	ws.Open(ctx, uri, text)
//	ws.Insert(uri, "x")
//
// Local editing never fails because of the server. When the server cannot
// be started or dies, edits keep applying to the buffer and diagnostics and
// completion simply stop arriving.
package app
