// Package cli provides the interactive kappi command-line client.
//
// It wires configuration, the local SQLite store, the session manager, the
// scan queue and the sync engine behind a small REPL. Scans are captured
// offline and pushed to the remote service whenever a usable session and a
// connection are available.
//
// Commands:
//   - register / login / logout / status
//   - scan / list / delete
//   - sync / history
//   - location / link
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher and runREPL for details.
package cli
