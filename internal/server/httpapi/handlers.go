package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/server/services"
	"github.com/dmitrijs2005/medkeeper/internal/shared"
)

func (s *HTTPServer) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, shared.HealthResponse{Status: "OK"})
}

// Status handles GET /api/auth/status.
func (s *HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	done, err := s.accounts.IsSetupComplete(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "setup status failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shared.StatusResponse{IsSetup: done})
}

// Setup handles POST /api/auth/setup.
func (s *HTTPServer) Setup(w http.ResponseWriter, r *http.Request) {
	var req shared.SetupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.accounts.CreateAccount(r.Context(), services.CreateAccountInput{
		Username:         req.Username,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		AmbulatoryName:   req.AmbulatoryName,
XX, "error", err)
		writeServiceError(w, err)
		return
	}

	s.logger.Info(r.Context(), "account created", "account_id", res.Account.ID)
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

// Login handles POST /api/auth/login.
func (s *HTTPServer) Login(w http.ResponseWriter, r *http.Request) {
	var req shared.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeServiceError(w, common.ErrInvalidCredentials)
		return
	}

	res, err := s.accounts.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// Refresh handles POST /api/auth/refresh. The current token must still be
// valid; an expired one means logging in again.
func (s *HTTPServer) Refresh(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFromContext(r.Context())

	token, err := s.accounts.RefreshToken(r.Context(), account)
	if err != nil {
		s.logger.Error(r.Context(), "token refresh failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shared.TokenResponse{Token: token})
}

// ExportAccount handles GET /api/backup/account.
func (s *HTTPServer) ExportAccount(w http.ResponseWriter, r *http.Request) {
	account, _ := accountFromContext(r.Context())

	exp, err := s.accounts.ExportAccount(r.Context(), account.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shared.AccountExport{
		Username:             exp.Username,
		PasswordHash:         exp.PasswordHash,
		DisplayName:          exp.DisplayName,
		AmbulatoryName:       exp.AmbulatoryName,
		Role:                 exp.Role,
		WrappedMasterKeyBlob: exp.WrappedMasterKey,
		Salt:                 exp.Salt,
		KDFIterations:        exp.KDFIterations,
		CreatedAt:            exp.CreatedAt,
	})
}

// RestoreAccount handles PUT /api/backup/account.
func (s *HTTPServer) RestoreAccount(w http.ResponseWriter, r *http.Request) {
	var req shared.AccountExport
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, authorized := accountFromContext(r.Context())

	account, err := s.accounts.RestoreAccount(r.Context(), authorized, services.AccountExport{
		Username:         req.Username,
		PasswordHash:     req.PasswordHash,
		DisplayName:      req.DisplayName,
		AmbulatoryName:   req.AmbulatoryName,
		Role:             req.Role,
		WrappedMasterKey: req.WrappedMasterKeyBlob,
		Salt:             req.Salt,
		KDFIterations:    req.KDFIterations,
		CreatedAt:        req.CreatedAt,
	})
	if err != nil {
		s.logger.Warn(r.Context(), "account restore rejected", "error", err)
		writeServiceError(w, err)
		return
	}

	s.logger.Info(r.Context(), "account restored", "account_id", account.ID)
	w.WriteHeader(http.StatusNoContent)
}

func toAuthResponse(res *services.AuthResult) shared.AuthResponse {
	a := res.Account
	return shared.AuthResponse{
		ID:                   a.ID,
		Username:             a.Username,
		DisplayName:          a.DisplayName,
		AmbulatoryName:       a.AmbulatoryName,
		Role:                 a.Role,
		WrappedMasterKeyBlob: a.WrappedMasterKey,
		Salt:                 a.Salt,
		KDFIterations:        a.KDFIterations,
		Token:                res.Token,
	}
}
