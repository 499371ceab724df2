// Package services contains the client application services: the session
// state machine guarding the master key, backups and the encrypted record
// store built on top of it.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/keyring"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/dmitrijs2005/medkeeper/internal/logging"
	"github.com/dmitrijs2005/medkeeper/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

type State int

const (
	StateUninitialized State = iota
	StateRequiresSetup
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRequiresSetup:
		return "requires-setup"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultIdleTimeout   = 15 * time.Minute
	DefaultCheckInterval = 5 * time.Second

	// tokenRefreshMargin is how long before its expiry a server token is renewed.
	tokenRefreshMargin = time.Minute
)

// SessionManager owns the unwrapped master key. The key exists only while
// the state is StateUnlocked and only inside a memguard LockedBuffer.
//
// state, key, profile and token are guarded by mu. Slow work (key derivation,
// HTTP calls, database writes) happens outside mu; a transition is committed
// only after all of it succeeded.
type SessionManager struct {
	mu      sync.RWMutex
	state   State
	key     *memguard.LockedBuffer
	profile *models.Profile
	token   string

	lastActivity atomic.Int64

	client   client.Client
	vault    *cryptox.KeyVault
	store    *dbx.Store
	sessions SessionStore
	logger   logging.Logger

	idleTimeout   time.Duration
	checkInterval time.Duration
	now           func() time.Time
}

type SessionOption func(*SessionManager)

// WithSessionStore enables session restore through st. A nil st disables it.
func WithSessionStore(st SessionStore) SessionOption {
	return func(m *SessionManager) { m.sessions = st }
}

func WithIdleTimeout(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

func WithCheckInterval(d time.Duration) SessionOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.checkInterval = d
		}
	}
}

func WithLogger(l logging.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = l }
}

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

func NewSessionManager(c client.Client, vault *cryptox.KeyVault, store *dbx.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		state:         StateUninitialized,
		client:        c,
		vault:         vault,
		store:         store,
		logger:        logging.Discard(),
		idleTimeout:   DefaultIdleTimeout,
		checkInterval: DefaultCheckInterval,
		now:           time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("module", "session")
	return m
}

// Bootstrap asks the credential store whether the account exists. A fresh
// store yields StateRequiresSetup; otherwise a session persisted earlier in
// this process is restored (StateUnlocked) or the session is StateLocked.
func (m *SessionManager) Bootstrap(ctx context.Context) (State, error) {
	done, err := m.client.SetupStatus(ctx)
	if err != nil {
		return m.State(), fmt.Errorf("setup status: %w", err)
	}

	if !done {
		m.mu.Lock()
		m.dropKeyLocked()
		m.state = StateRequiresSetup
		m.mu.Unlock()
		return StateRequiresSetup, nil
	}

	if m.restoreSession() {
		return StateUnlocked, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		m.state = StateLocked
	}
	return m.state, nil
}

// SetupAccount creates the operator account and unlocks the new session.
// Every failure is reported as common.ErrSetupFailed wrapping the cause.
func (m *SessionManager) SetupAccount(ctx context.Context, pin, displayName, ambulatoryName string) error {
	switch m.State() {
	case StateLocked, StateUnlocked:
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, common.ErrAlreadySetup)
	}
	if pin == "" || displayName == "" || ambulatoryName == "" {
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, common.ErrMissingFields)
	}

	salt, err := m.vault.GenerateSalt()
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}
	iterations := m.vault.Iterations()
	kek, err := m.vault.DeriveKeyFromPin([]byte(pin), salt, iterations)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}
	masterKey, err := m.vault.GenerateMasterKey()
	if err != nil {
		common.WipeByteArray(kek)
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}
	blob, err := m.vault.WrapMasterKey(masterKey, kek)
	common.WipeByteArray(kek)
	if err != nil {
		common.WipeByteArray(masterKey)
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}

	k := &models.Keyring{
		WrappedMasterKeyBlob: blob,
		Salt:                 base64.StdEncoding.EncodeToString(salt),
		KDFIterations:        iterations,
	}

	resp, err := m.client.Setup(ctx, shared.SetupRequest{
		Username:             common.AdminUsername,
		Password:             pin,
		DisplayName:          displayName,
		AmbulatoryName:       ambulatoryName,
		WrappedMasterKeyBlob: k.WrappedMasterKeyBlob,
		Salt:                 k.Salt,
		KDFIterations:        k.KDFIterations,
	})
	if err != nil {
		common.WipeByteArray(masterKey)
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}

	// the account exists from here on; failures below leave the session locked
	if err := m.cacheKeyring(ctx, k); err != nil {
		common.WipeByteArray(masterKey)
		m.setLocked()
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}

	if err := m.unlock(masterKey, profileFrom(resp), resp.Token); err != nil {
		m.setLocked()
		return fmt.Errorf("%w: %w", common.ErrSetupFailed, err)
	}

	m.logger.Info(ctx, "account set up", "account_id", resp.ID)
	return nil
}

// Login verifies pin against the credential store and unwraps the master key
// with a KEK derived from it, using the salt and iteration count stored with
// the account. Bad credentials and a key blob that does not unwrap both return
// (false, nil) and leave the state unchanged; transport and storage failures
// are returned as errors, also with false.
func (m *SessionManager) Login(ctx context.Context, pin string) (bool, error) {
	resp, err := m.client.Login(ctx, common.AdminUsername, pin)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			m.logger.Warn(ctx, "login rejected")
			return false, nil
		}
		return false, err
	}

	salt, err := base64.StdEncoding.DecodeString(resp.Salt)
	if err != nil || len(salt) == 0 {
		m.logger.Warn(ctx, "login: malformed salt")
		return false, nil
	}

	if err := cryptox.ValidateIterations(resp.KDFIterations); err != nil {
		m.logger.Warn(ctx, "login: unusable KDF parameters", "error", err)
		return false, nil
	}

	kek, err := m.vault.DeriveKeyFromPin([]byte(pin), salt, resp.KDFIterations)
	if err != nil {
		return false, err
	}
	masterKey, err := m.vault.UnwrapMasterKey(resp.WrappedMasterKeyBlob, kek)
	common.WipeByteArray(kek)
	if err != nil {
		m.logger.Warn(ctx, "login: master key did not unwrap")
		return false, nil
	}

	k := &models.Keyring{
		WrappedMasterKeyBlob: resp.WrappedMasterKeyBlob,
		Salt:                 resp.Salt,
		KDFIterations:        resp.KDFIterations,
	}
	if err := m.cacheKeyring(ctx, k); err != nil {
		common.WipeByteArray(masterKey)
		return false, err
	}

	if err := m.unlock(masterKey, profileFrom(resp), resp.Token); err != nil {
		m.logger.Warn(ctx, "session not persisted", "error", err)
	}

	m.logger.Info(ctx, "session unlocked")
	return true, nil
}

// Lock destroys the key and moves an unlocked session to StateLocked. Key
// destruction, the state flip and clearing the persisted session happen in
// one critical section.
func (m *SessionManager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropKeyLocked()
	if m.state == StateUnlocked {
		m.state = StateLocked
	}
}

// setLocked is Lock for transitions that must end in StateLocked whatever
// the current state, e.g. after a backup import.
func (m *SessionManager) setLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropKeyLocked()
	m.state = StateLocked
}

func (m *SessionManager) dropKeyLocked() {
	if m.key != nil {
		m.key.Destroy()
		m.key = nil
	}
	m.profile = nil
	m.token = ""
	if m.sessions != nil {
		m.sessions.Clear()
	}
}

// unlock takes ownership of masterKey (it is wiped) and commits the
// StateUnlocked transition. The returned error only reports a failure to
// persist the session; the session is unlocked regardless.
func (m *SessionManager) unlock(masterKey []byte, p *models.Profile, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		m.key.Destroy()
	}
	m.key = memguard.NewBufferFromBytes(masterKey)
	m.profile = p
	m.token = token
	m.state = StateUnlocked
	m.lastActivity.Store(m.now().UnixNano())

	return m.persistSessionLocked()
}

func (m *SessionManager) persistSessionLocked() error {
	if m.sessions == nil || m.key == nil {
		return nil
	}
	key := make([]byte, m.key.Size())
	copy(key, m.key.Bytes())
	return m.sessions.Save(&SessionSnapshot{Key: key, Profile: *m.profile, Token: m.token})
}

func (m *SessionManager) restoreSession() bool {
	if m.sessions == nil {
		return false
	}

	snap, err := m.sessions.Load()
	if err != nil {
		m.logger.Warn(context.Background(), "session restore failed", "error", err)
		m.sessions.Clear()
		return false
	}
	if snap == nil {
		return false
	}
	if len(snap.Key) != cryptox.MasterKeySize {
		memguard.WipeBytes(snap.Key)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		m.key.Destroy()
	}
	m.key = memguard.NewBufferFromBytes(snap.Key)
	p := snap.Profile
	m.profile = &p
	m.token = snap.Token
	m.state = StateUnlocked
	m.lastActivity.Store(m.now().UnixNano())
	return true
}

// Touch records user activity and postpones the inactivity lock.
func (m *SessionManager) Touch() {
	m.lastActivity.Store(m.now().UnixNano())
}

// WatchInactivity locks the session once it has been idle for the configured
// timeout. It blocks until ctx is cancelled.
func (m *SessionManager) WatchInactivity(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkInactivity(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *SessionManager) checkInactivity(ctx context.Context) bool {
	if m.State() != StateUnlocked {
		return false
	}

	last := time.Unix(0, m.lastActivity.Load())
	if m.now().Sub(last) < m.idleTimeout {
		return false
	}

	m.mu.Lock()
	// re-check under the write lock; a Touch or Lock may have raced us
	last = time.Unix(0, m.lastActivity.Load())
	if m.state != StateUnlocked || m.now().Sub(last) < m.idleTimeout {
		m.mu.Unlock()
		return false
	}
	m.dropKeyLocked()
	m.state = StateLocked
	m.mu.Unlock()

	m.logger.Info(ctx, "session locked after inactivity", "idle_timeout", m.idleTimeout.String())
	return true
}

func (m *SessionManager) cacheKeyring(ctx context.Context, k *models.Keyring) error {
	return m.store.Exclusive(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return keyring.NewSQLiteRepository(tx).Save(ctx, k)
	})
}

func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Profile returns a copy of the operator profile, or nil unless unlocked.
func (m *SessionManager) Profile() *models.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// Token returns the server access token of the unlocked session as is.
func (m *SessionManager) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateUnlocked {
		return "", common.ErrNotUnlocked
	}
	return m.token, nil
}

// ServerToken returns a server token the credential store will accept,
// renewing it shortly before it expires. When the server refuses the token
// the session is locked and common.ErrNotUnlocked is returned; the operator
// has to log in again.
func (m *SessionManager) ServerToken(ctx context.Context) (string, error) {
	token, err := m.Token()
	if err != nil {
		return "", err
	}

	exp := tokenExpiry(token)
	if exp.IsZero() || m.now().Add(tokenRefreshMargin).Before(exp) {
		return token, nil
	}

	fresh, err := m.client.Refresh(ctx, token)
	if err != nil {
		if tokenRejected(err) {
			return "", m.expireToken(ctx, token, err)
		}
		return "", fmt.Errorf("refresh token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return "", common.ErrNotUnlocked
	}
	if m.token != token {
		// renewed concurrently
		return m.token, nil
	}
	m.token = fresh
	if err := m.persistSessionLocked(); err != nil {
		m.logger.Warn(ctx, "session not persisted", "error", err)
	}
	m.logger.Debug(ctx, "server token renewed")
	return fresh, nil
}

// expireToken locks the session after the server refused token, unless the
// session has moved on to another token meanwhile.
func (m *SessionManager) expireToken(ctx context.Context, token string, cause error) error {
	m.mu.Lock()
	if m.state == StateUnlocked && m.token == token {
		m.dropKeyLocked()
		m.state = StateLocked
	}
	m.mu.Unlock()

	m.logger.Warn(ctx, "session locked: server token rejected", "error", cause)
	return fmt.Errorf("%w: %w", common.ErrNotUnlocked, cause)
}

func tokenRejected(err error) bool {
	return errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrTokenExpired)
}

// tokenExpiry reads the exp claim without verifying the signature; only the
// server can verify it. Zero when the token carries no expiry.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Encrypt seals v with the master key. common.ErrLocked unless unlocked.
func (m *SessionManager) Encrypt(v any) (*cryptox.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateUnlocked || m.key == nil {
		return nil, common.ErrLocked
	}
	return m.vault.EncryptPayload(v, m.key.Bytes())
}

// Decrypt opens p into out. common.ErrLocked unless unlocked.
func (m *SessionManager) Decrypt(p *cryptox.Payload, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateUnlocked || m.key == nil {
		return common.ErrLocked
	}
	return m.vault.DecryptPayload(p, m.key.Bytes(), out)
}

func profileFrom(r *shared.AuthResponse) *models.Profile {
	return &models.Profile{
		ID:             r.ID,
		Username:       r.Username,
		DisplayName:    r.DisplayName,
		AmbulatoryName: r.AmbulatoryName,
		Role:           r.Role,
	}
}
