// Package client contains the client-side building blocks that talk to the
// outside world.
//
// # Overview
//
// The package provides:
//  1. The Client interface: the credential store contract (setup status,
//     setup, login, account export/restore for backups, ping).
//  2. HTTPClient, the JSON-over-HTTP implementation. It maps status codes to
//     the sentinels in internal/common and never retries.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations): an SQLite
//     database with embedded goose migrations for the keyring and the
//     encrypted record store.
//
// # Error Handling
//
// Transport failures and 5xx responses are reported as ErrUnavailable.
// Contract errors use common.ErrInvalidCredentials, common.ErrAlreadySetup,
// common.ErrMissingFields and common.ErrInvalidToken; match them with
// errors.Is.
package client
