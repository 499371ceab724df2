package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/netx"
	"github.com/dmitrijs2005/medkeeper/internal/shared"
)

const defaultTimeout = 12 * time.Second

type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: defaultTimeout},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) (int, error) {
	status, err := netx.DoJSON(ctx, c.hc, method, c.baseURL+path, token, in, out)
	if err != nil {
		var te *netx.TransportError
		if errors.As(err, &te) {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, te.Err)
		}
		return status, err
	}
	if status >= 500 {
		return status, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	return status, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	var resp shared.HealthResponse
	status, err := c.do(ctx, http.MethodGet, shared.PathHealth, "", nil, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK || resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *HTTPClient) SetupStatus(ctx context.Context) (bool, error) {
	var resp shared.StatusResponse
	status, err := c.do(ctx, http.MethodGet, shared.PathAuthStatus, "", nil, &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, unexpected(status)
	}
	return resp.IsSetup, nil
}

func (c *HTTPClient) Setup(ctx context.Context, req shared.SetupRequest) (*shared.AuthResponse, error) {
	var resp shared.AuthResponse
	status, err := c.do(ctx, http.MethodPost, shared.PathAuthSetup, "", req, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return &resp, nil
	case http.StatusForbidden:
		return nil, common.ErrAlreadySetup
	case http.StatusBadRequest:
		return nil, common.ErrMissingFields
	default:
		return nil, unexpected(status)
	}
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (*shared.AuthResponse, error) {
	var resp shared.AuthResponse
	req := shared.LoginRequest{Username: username, Password: password}
	status, err := c.do(ctx, http.MethodPost, shared.PathAuthLogin, "", req, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &resp, nil
	case http.StatusUnauthorized, http.StatusBadRequest:
		return nil, common.ErrInvalidCredentials
	default:
		return nil, unexpected(status)
	}
}

func (c *HTTPClient) Refresh(ctx context.Context, token string) (string, error) {
	var resp shared.TokenResponse
	status, err := c.do(ctx, http.MethodPost, shared.PathAuthRefresh, token, nil, &resp)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return resp.Token, nil
	case http.StatusUnauthorized:
		return "", common.ErrInvalidToken
	default:
		return "", unexpected(status)
	}
}

func (c *HTTPClient) ExportAccount(ctx context.Context, token string) (*shared.AccountExport, error) {
	var resp shared.AccountExport
	status, err := c.do(ctx, http.MethodGet, shared.PathBackupAccount, token, nil, &resp)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return &resp, nil
	case http.StatusUnauthorized:
		return nil, common.ErrInvalidToken
	default:
		return nil, unexpected(status)
	}
}

func (c *HTTPClient) RestoreAccount(ctx context.Context, token string, exp shared.AccountExport) error {
	status, err := c.do(ctx, http.MethodPut, shared.PathBackupAccount, token, exp, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return common.ErrInvalidToken
	case http.StatusBadRequest:
		return common.ErrMissingFields
	default:
		return unexpected(status)
	}
}

func unexpected(status int) error {
	return fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
}
