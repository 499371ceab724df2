package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// ---- fake client ----

// fakeClient is an in-memory credential store. Passwords are stored as real
// argon2id hashes so that exported accounts pass backup validation.
type fakeClient struct {
	mu      sync.Mutex
	account *shared.AccountExport
	token   string
	seq     int

	PingErr    error
	StatusErr  error
	SetupErr   error
	LoginErr   error
	RefreshErr error
	ExportErr  error
	RestoreErr error

	// RejectTokens makes every token-protected call fail as expired.
	RejectTokens bool
	// TokenTTL > 0 issues signed JWTs expiring TokenTTL after Now().
	TokenTTL time.Duration
	Now      func() time.Time

	SetupCalls   int
	LoginCalls   int
	RefreshCalls int
	RestoreCalls int
	LastRestore  *shared.AccountExport
	LastToken    string
}

var _ client.Client = (*fakeClient)(nil)


func (f *fakeClient) Ping(ctx context.Context) error { return f.PingErr }

func (f *fakeClient) SetupStatus(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return false, f.StatusErr
	}
	return f.account != nil, nil
}

func (f *fakeClient) Setup(ctx context.Context, req shared.SetupRequest) (*shared.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetupCalls++
	if f.SetupErr != nil {
		return nil, f.SetupErr
	}
	if f.account != nil {
		return nil, common.ErrAlreadySetup
	}
	hash, err := cryptox.HashPassword([]byte(req.Password))
	if err != nil {
		return nil, err
	}
	f.account = &shared.AccountExport{
		Username:             req.Username,
		PasswordHash:         hash,
		DisplayName:          req.DisplayName,
		AmbulatoryName:       req.AmbulatoryName,
		Role:                 common.AdminRole,
		WrappedMasterKeyBlob: req.WrappedMasterKeyBlob,
		Salt:                 req.Salt,
		KDFIterations:        req.KDFIterations,
		CreatedAt:            time.Now().UTC(),
	}
	return f.respLocked(), nil
}

func (f *fakeClient) Login(ctx context.Context, username, password string) (*shared.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoginCalls++
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	if f.account == nil || f.account.Username != username {
		return nil, common.ErrInvalidCredentials
	}
	ok, err := cryptox.VerifyPassword([]byte(password), f.account.PasswordHash)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}
	return f.respLocked(), nil
}

func (f *fakeClient) Refresh(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return "", f.RefreshErr
	}
	if f.RejectTokens || f.account == nil || token != f.token || f.expiredLocked(token) {
		return "", common.ErrInvalidToken
	}
	f.token = f.nextToken()
	return f.token, nil
}

func (f *fakeClient) ExportAccount(ctx context.Context, token string) (*shared.AccountExport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}
	if f.RejectTokens || f.account == nil || token != f.token || f.expiredLocked(token) {
		return nil, common.ErrInvalidToken
	}
	a := *f.account
	return &a, nil
}

func (f *fakeClient) RestoreAccount(ctx context.Context, token string, exp shared.AccountExport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RestoreCalls++
	f.LastToken = token
	if f.RestoreErr != nil {
		return f.RestoreErr
	}
	if f.account != nil && token != f.token {
		return common.ErrInvalidToken
	}
	f.LastRestore = &exp
	f.account = &exp
	f.token = ""
	return nil
}

func (f *fakeClient) respLocked() *shared.AuthResponse {
	f.token = f.nextToken()
	return &shared.AuthResponse{
		ID:                   "acc-1",
		Username:             f.account.Username,
		DisplayName:          f.account.DisplayName,
		AmbulatoryName:       f.account.AmbulatoryName,
		Role:                 f.account.Role,
		WrappedMasterKeyBlob: f.account.WrappedMasterKeyBlob,
		Salt:                 f.account.Salt,
		KDFIterations:        f.account.KDFIterations,
		Token:                f.token,
	}
}

func (f *fakeClient) nextToken() string {
	f.seq++
	id := fmt.Sprintf("tok-%s-%d", f.account.Username, f.seq)
	if f.TokenTTL <= 0 {
		return id
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        id,
		ExpiresAt: jwt.NewNumericDate(f.now().Add(f.TokenTTL)),
	}).SignedString([]byte("fake-secret"))
	if err != nil {
		panic(err)
	}
	return signed
}

func (f *fakeClient) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *fakeClient) expiredLocked(token string) bool {
	exp := tokenExpiry(token)
	return !exp.IsZero() && !f.now().Before(exp)
}

// ---- helpers ----

func newVault(t *testing.T) *cryptox.KeyVault {
	t.Helper()
	p, err := cryptox.NewStandardProvider(cryptox.MinPBKDF2Iterations)
	require.NoError(t, err)
	return cryptox.NewKeyVault(p)
}

func newStore(t *testing.T) *dbx.Store {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	st := dbx.NewStore(db)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type env struct {
	client   *fakeClient
	store    *dbx.Store
	session  *SessionManager
	records  *RecordService
	backups  *BackupService
	sessions *MemorySessionStore
}

func newEnv(t *testing.T, fc *fakeClient, opts ...SessionOption) *env {
	t.Helper()
	if fc == nil {
		fc = &fakeClient{}
	}
	st := newStore(t)
	ss := NewMemorySessionStore()
	opts = append([]SessionOption{WithSessionStore(ss)}, opts...)
	sm := NewSessionManager(fc, newVault(t), st, opts...)
	return &env{
		client:   fc,
		store:    st,
		session:  sm,
		records:  NewRecordService(sm, st),
		backups:  NewBackupService(sm, fc, st, nil),
		sessions: ss,
	}
}

// setUp bootstraps a fresh env and completes account setup with pin.
func (e *env) setUp(t *testing.T, pin string) {
	t.Helper()
	ctx := context.Background()
	st, err := e.session.Bootstrap(ctx)
	require.NoError(t, err)
	require.Equal(t, StateRequiresSetup, st)
	require.NoError(t, e.session.SetupAccount(ctx, pin, "Dr. Ana Ruiz", "Clinica Norte"))
	require.Equal(t, StateUnlocked, e.session.State())
}
