package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/client/client"
	"github.com/dmitrijs2005/medkeeper/internal/client/models"
	"github.com/dmitrijs2005/medkeeper/internal/client/repositories/keyring"
	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/dmitrijs2005/medkeeper/internal/cryptox"
	"github.com/dmitrijs2005/medkeeper/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "requires-setup", StateRequiresSetup.String())
	assert.Equal(t, "locked", StateLocked.String())
	assert.Equal(t, "unlocked", StateUnlocked.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestBootstrap_FreshStoreRequiresSetup(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, StateUninitialized, e.session.State())

	st, err := e.session.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRequiresSetup, st)
	assert.Equal(t, StateRequiresSetup, e.session.State())
}

func TestBootstrap_StatusErrorKeepsState(t *testing.T) {
	e := newEnv(t, &fakeClient{StatusErr: client.ErrUnavailable})

	st, err := e.session.Bootstrap(context.Background())
	require.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, StateUninitialized, st)
}

func TestSetupAccount_UnlocksAndCachesKeyring(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	p := e.session.Profile()
	require.NotNil(t, p)
	assert.Equal(t, common.AdminUsername, p.Username)
	assert.Equal(t, "Dr. Ana Ruiz", p.DisplayName)
	assert.Equal(t, "Clinica Norte", p.AmbulatoryName)

	tok, err := e.session.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	// the PIN is sent as the password, never the key
	ok, err := cryptox.VerifyPassword([]byte("1234"), e.client.account.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cryptox.MinPBKDF2Iterations, e.client.account.KDFIterations)

	var k *models.Keyring
	require.NoError(t, e.store.Shared(context.Background(), func(ctx context.Context, db dbx.DBTX) error {
		var err error
		k, err = keyring.NewSQLiteRepository(db).Load(ctx)
		return err
	}))
	assert.Equal(t, e.client.account.WrappedMasterKeyBlob, k.WrappedMasterKeyBlob)
	assert.Equal(t, e.client.account.Salt, k.Salt)
	assert.Equal(t, cryptox.MinPBKDF2Iterations, k.KDFIterations)
}

func TestSetupAccount_SecondSetupFails(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	err := e.session.SetupAccount(context.Background(), "9999", "X", "Y")
	require.ErrorIs(t, err, common.ErrSetupFailed)
	require.ErrorIs(t, err, common.ErrAlreadySetup)
	assert.Equal(t, 1, e.client.SetupCalls)
	assert.Equal(t, StateUnlocked, e.session.State())
}

func TestSetupAccount_ServerSaysAlreadySetup(t *testing.T) {
	fc := &fakeClient{}
	e := newEnv(t, fc)
	_, err := e.session.Bootstrap(context.Background())
	require.NoError(t, err)

	// another device completed setup in the meantime
	fc.SetupErr = common.ErrAlreadySetup

	err = e.session.SetupAccount(context.Background(), "1234", "A", "B")
	require.ErrorIs(t, err, common.ErrSetupFailed)
	require.ErrorIs(t, err, common.ErrAlreadySetup)
	assert.Equal(t, StateRequiresSetup, e.session.State())
	assert.Nil(t, e.session.Profile())
}

func TestSetupAccount_MissingFields(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.session.Bootstrap(context.Background())
	require.NoError(t, err)

	for _, tc := range []struct{ pin, name, amb string }{
		{"", "A", "B"},
		{"1234", "", "B"},
		{"1234", "A", ""},
	} {
		err := e.session.SetupAccount(context.Background(), tc.pin, tc.name, tc.amb)
		require.ErrorIs(t, err, common.ErrSetupFailed)
		require.ErrorIs(t, err, common.ErrMissingFields)
	}
	assert.Equal(t, 0, e.client.SetupCalls)
	assert.Equal(t, StateRequiresSetup, e.session.State())
}

func TestLock_GatesKeyOperations(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	p, err := e.session.Encrypt(map[string]string{"a": "b"})
	require.NoError(t, err)

	e.session.Lock()
	assert.Equal(t, StateLocked, e.session.State())
	assert.Nil(t, e.session.Profile())

	_, err = e.session.Encrypt("x")
	require.ErrorIs(t, err, common.ErrLocked)

	var out map[string]string
	require.ErrorIs(t, e.session.Decrypt(p, &out), common.ErrLocked)

	_, err = e.session.Token()
	require.ErrorIs(t, err, common.ErrNotUnlocked)

	snap, err := e.sessions.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	// idempotent
	e.session.Lock()
	assert.Equal(t, StateLocked, e.session.State())
}

func TestLock_DoesNotLeaveRequiresSetup(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.session.Bootstrap(context.Background())
	require.NoError(t, err)

	e.session.Lock()
	assert.Equal(t, StateRequiresSetup, e.session.State())
}

func TestLogin_WrongPinThenCorrectPin(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	before, err := e.session.Encrypt("secret note")
	require.NoError(t, err)
	e.session.Lock()

	ok, err := e.session.Login(context.Background(), "0000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateLocked, e.session.State())

	ok, err = e.session.Login(context.Background(), "1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateUnlocked, e.session.State())

	var got string
	require.NoError(t, e.session.Decrypt(before, &got))
	assert.Equal(t, "secret note", got)
}

func TestLogin_TransportErrorIsReturned(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	e.client.LoginErr = client.ErrUnavailable
	ok, err := e.session.Login(context.Background(), "1234")
	assert.False(t, ok)
	require.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, StateLocked, e.session.State())
}

func TestLogin_BlobThatDoesNotUnwrap(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	// a blob wrapped under some other KEK
	v := newVault(t)
	mk, err := v.GenerateMasterKey()
	require.NoError(t, err)
	other, err := v.GenerateMasterKey()
	require.NoError(t, err)
	blob, err := v.WrapMasterKey(mk, other)
	require.NoError(t, err)
	e.client.account.WrappedMasterKeyBlob = blob

	ok, err := e.session.Login(context.Background(), "1234")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateLocked, e.session.State())
}

func TestLogin_MalformedSalt(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	e.client.account.Salt = "%%%"
	ok, err := e.session.Login(context.Background(), "1234")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_SameKeyAfterRelogin(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "2580")

	p1, err := e.session.Encrypt(42)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		e.session.Lock()
		ok, err := e.session.Login(context.Background(), "2580")
		require.NoError(t, err)
		require.True(t, ok)
	}

	var n int
	require.NoError(t, e.session.Decrypt(p1, &n))
	assert.Equal(t, 42, n)

	salt, err := base64.StdEncoding.DecodeString(e.client.account.Salt)
	require.NoError(t, err)
	assert.Len(t, salt, 16)
}

func TestBootstrap_RestoresSessionInSameProcess(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	p, err := e.session.Encrypt("persisted")
	require.NoError(t, err)

	// a second manager over the same process-scoped session store
	reloaded := NewSessionManager(e.client, newVault(t), e.store, WithSessionStore(e.sessions))
	st, err := reloaded.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnlocked, st)
	assert.Equal(t, "Dr. Ana Ruiz", reloaded.Profile().DisplayName)

	var got string
	require.NoError(t, reloaded.Decrypt(p, &got))
	assert.Equal(t, "persisted", got)

	tok, err := reloaded.Token()
	require.NoError(t, err)
	assert.Equal(t, e.client.token, tok)
}

func TestBootstrap_NoRestoreAfterLock(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	reloaded := NewSessionManager(e.client, newVault(t), e.store, WithSessionStore(e.sessions))
	st, err := reloaded.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateLocked, st)
}

func TestBootstrap_RestoreDisabled(t *testing.T) {
	fc := &fakeClient{}
	st := newStore(t)
	sm := NewSessionManager(fc, newVault(t), st)
	_, err := sm.Bootstrap(context.Background())
	require.NoError(t, err)
	require.NoError(t, sm.SetupAccount(context.Background(), "1234", "A", "B"))

	reloaded := NewSessionManager(fc, newVault(t), st)
	state, err := reloaded.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateLocked, state)
}

func TestInactivity_LocksAfterTimeout(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e := newEnv(t, nil, WithClock(clock.Now), WithIdleTimeout(15*time.Minute))
	e.setUp(t, "1234")
	ctx := context.Background()

	clock.Advance(14 * time.Minute)
	assert.False(t, e.session.checkInactivity(ctx))
	assert.Equal(t, StateUnlocked, e.session.State())

	e.session.Touch()
	clock.Advance(14 * time.Minute)
	assert.False(t, e.session.checkInactivity(ctx))

	clock.Advance(time.Minute)
	assert.True(t, e.session.checkInactivity(ctx))
	assert.Equal(t, StateLocked, e.session.State())

	_, err := e.session.Encrypt("x")
	require.ErrorIs(t, err, common.ErrLocked)

	// nothing more to do once locked
	clock.Advance(time.Hour)
	assert.False(t, e.session.checkInactivity(ctx))
}

func TestWatchInactivity_RealTicker(t *testing.T) {
	e := newEnv(t, nil, WithIdleTimeout(50*time.Millisecond), WithCheckInterval(10*time.Millisecond))
	e.setUp(t, "1234")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.session.WatchInactivity(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return e.session.State() == StateLocked
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestSessionManager_ConcurrentUseAndLock(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p, err := e.session.Encrypt(j)
				if err != nil {
					assert.True(t, errors.Is(err, common.ErrLocked))
					continue
				}
				var out int
				if err := e.session.Decrypt(p, &out); err == nil {
					assert.Equal(t, j, out)
				}
			}
		}()
	}
	e.session.Lock()
	wg.Wait()
	assert.Equal(t, StateLocked, e.session.State())
}

func TestLogin_UsesIterationsStoredWithAccount(t *testing.T) {
	fc := &fakeClient{}
	st := newStore(t)
	ctx := context.Background()

	p, err := cryptox.NewStandardProvider(200_000)
	require.NoError(t, err)
	creator := NewSessionManager(fc, cryptox.NewKeyVault(p), st)
	_, err = creator.Bootstrap(ctx)
	require.NoError(t, err)
	require.NoError(t, creator.SetupAccount(ctx, "1234", "A", "B"))
	assert.Equal(t, 200_000, fc.account.KDFIterations)

	enc, err := creator.Encrypt("kept")
	require.NoError(t, err)
	creator.Lock()

	// configured with the default cost, still derives with the stored one
	other := NewSessionManager(fc, newVault(t), st)
	_, err = other.Bootstrap(ctx)
	require.NoError(t, err)
	ok, err := other.Login(ctx, "1234")
	require.NoError(t, err)
	require.True(t, ok)

	var got string
	require.NoError(t, other.Decrypt(enc, &got))
	assert.Equal(t, "kept", got)
}

func TestLogin_UnusableIterations(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	for _, n := range []int{0, 1000, cryptox.MaxPBKDF2Iterations + 1} {
		e.client.account.KDFIterations = n
		ok, err := e.session.Login(context.Background(), "1234")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StateLocked, e.session.State())
	}
}

func newTokenEnv(t *testing.T) (*env, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Now()}
	fc := &fakeClient{TokenTTL: 30 * time.Minute, Now: clock.Now}
	e := newEnv(t, fc, WithClock(clock.Now), WithIdleTimeout(time.Hour))
	e.setUp(t, "1234")
	return e, clock
}

func TestServerToken_RenewedBeforeExpiry(t *testing.T) {
	e, clock := newTokenEnv(t)
	ctx := context.Background()

	first, err := e.session.ServerToken(ctx)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	tok, err := e.session.ServerToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, tok)
	assert.Equal(t, 0, e.client.RefreshCalls)

	clock.Advance(19*time.Minute + 30*time.Second)
	tok, err = e.session.ServerToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, tok)
	assert.Equal(t, 1, e.client.RefreshCalls)

	snap, err := e.sessions.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, tok, snap.Token)

	// the renewed token keeps export working past the first expiry
	clock.Advance(5 * time.Minute)
	_, err = e.backups.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnlocked, e.session.State())
}

func TestServerToken_ExpiredTokenLocksSession(t *testing.T) {
	e, clock := newTokenEnv(t)
	ctx := context.Background()

	clock.Advance(31 * time.Minute)
	e.session.Touch()

	_, err := e.session.ServerToken(ctx)
	require.ErrorIs(t, err, common.ErrNotUnlocked)
	require.ErrorIs(t, err, common.ErrInvalidToken)
	assert.Equal(t, StateLocked, e.session.State())

	_, err = e.session.Encrypt("x")
	require.ErrorIs(t, err, common.ErrLocked)

	snap, err := e.sessions.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	ok, err := e.session.Login(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServerToken_TransportErrorKeepsSession(t *testing.T) {
	e, clock := newTokenEnv(t)
	e.client.RefreshErr = client.ErrUnavailable

	clock.Advance(29*time.Minute + 30*time.Second)
	_, err := e.session.ServerToken(context.Background())
	require.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, StateUnlocked, e.session.State())
}

func TestServerToken_LockedSession(t *testing.T) {
	e := newEnv(t, nil)
	e.setUp(t, "1234")
	e.session.Lock()

	_, err := e.session.ServerToken(context.Background())
	require.ErrorIs(t, err, common.ErrNotUnlocked)
	assert.Equal(t, 0, e.client.RefreshCalls)
}
