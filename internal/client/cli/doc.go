// Package cli provides the interactive medkeeper command-line client.
//
// NewApp is the composition root: it opens the local SQLite store, builds the
// HTTP client for the credential server and wires the SessionManager,
// RecordService and BackupService around them. App.Run bootstraps the
// session, starts the inactivity watcher and runs the REPL until the user
// exits.
//
// Commands:
//   - setup, login, lock, reload, status
//   - add, list, show <id>: encrypted notes
//   - export/import/backups, optionally against an S3 bucket ("s3")
//
// Every command counts as activity for the inactivity lock. PINs are read
// without echo when stdin is a terminal.
package cli
