// Package shared holds the JSON wire contract between the credential server
// and the client.
package shared

import "time"

const (
	PathHealth        = "/healthz"
	PathAuthStatus    = "/api/auth/status"
	PathAuthSetup     = "/api/auth/setup"
	PathAuthLogin     = "/api/auth/login"
	PathAuthRefresh   = "/api/auth/refresh"
	PathBackupAccount = "/api/backup/account"
)

type StatusResponse struct {
	IsSetup bool `json:"isSetup"`
}

// SetupRequest creates the single operator account. Username defaults to
// "admin" when empty.
type SetupRequest struct {
	Username             string `json:"username,omitempty"`
	Password             string `json:"password"`
	DisplayName          string `json:"displayName"`
	AmbulatoryName       string `json:"ambulatoryName"`
	WrappedMasterKeyBlob string `json:"wrappedMasterKeyBlob"`
	Salt                 string `json:"salt"`
	KDFIterations        int    `json:"kdfIterations"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by setup and login. It never carries an
// unwrapped key.
type AuthResponse struct {
	ID                   string `json:"id"`
	Username             string `json:"username"`
	DisplayName          string `json:"displayName"`
	AmbulatoryName       string `json:"ambulatoryName"`
	Role                 string `json:"role"`
	WrappedMasterKeyBlob string `json:"wrappedMasterKeyBlob"`
	Salt                 string `json:"salt"`
	KDFIterations        int    `json:"kdfIterations"`
	Token                string `json:"token"`
}

// TokenResponse is returned by token refresh.
type TokenResponse struct {
	Token string `json:"token"`
}

// AccountExport is the account section of a backup.
type AccountExport struct {
	Username             string    `json:"username"`
	PasswordHash         string    `json:"passwordHash"`
	DisplayName          string    `json:"displayName"`
	AmbulatoryName       string    `json:"ambulatoryName"`
	Role                 string    `json:"role"`
	WrappedMasterKeyBlob string    `json:"wrappedMasterKeyBlob"`
	Salt                 string    `json:"salt"`
	KDFIterations        int       `json:"kdfIterations"`
	CreatedAt            time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
