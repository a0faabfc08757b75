package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/client"
	"github.com/dmitrijs2005/kappi/internal/client/integrity"
	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/client/repositories/kv"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	goodEmail    = "maria@example.ph"
	goodPassword = "Secret1!"
)

func newIntegrityStore(t *testing.T) (*integrity.Store, *kv.MemoryRepository) {
	t.Helper()
	repo := kv.NewMemoryRepository()
	s, err := integrity.New(repo, []byte("services-test"), clock.Fake(epoch), logging.Nop())
	require.NoError(t, err)
	return s, repo
}

// fakeRemote accepts goodEmail/goodPassword and rejects everything else
// with a 401, unless loginErr overrides the outcome.
type fakeRemote struct {
	mu         sync.Mutex
	logins     int
	loginErr   error
	token      string
	social     models.AuthResult
	registered map[string]bool
	lastDevice models.DeviceInfo
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{token: "opaque-token", registered: map[string]bool{}}
}

func (f *fakeRemote) result(email string, isNew bool) models.AuthResult {
	return models.AuthResult{
		Token:     f.token,
		User:      models.UserProfile{ID: "u-" + email, FullName: "Maria Santos", Email: email},
		IsNewUser: isNew,
	}
}

func (f *fakeRemote) Login(_ context.Context, req client.LoginRequest) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	f.lastDevice = req.DeviceInfo
	if f.loginErr != nil {
		return models.AuthResult{}, f.loginErr
	}
	if req.Email != goodEmail || req.Password != goodPassword {
		return models.AuthResult{}, &client.RemoteError{Status: 401, Message: "Invalid email or password"}
	}
	return f.result(req.Email, false), nil
}

func (f *fakeRemote) Register(_ context.Context, req client.RegisterRequest) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registered[req.Email] {
		return models.AuthResult{}, &client.RemoteError{Status: 400, Message: "Email already exists. Please log in instead."}
	}
	f.registered[req.Email] = true
	return f.result(req.Email, true), nil
}

func (f *fakeRemote) SocialLogin(_ context.Context, req client.SocialLoginRequest) (models.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.social, nil
}

func (f *fakeRemote) LinkSocial(_ context.Context, provider, _ string) (models.UserProfile, error) {
	u := f.result(goodEmail, false).User
	u.Providers = []string{provider}
	return u, nil
}

func (f *fakeRemote) UpdateLocation(context.Context, models.Coordinates, models.Address) error {
	return nil
}

func (f *fakeRemote) SubmitScan(_ context.Context, s models.Scan) (models.Scan, error) { return s, nil }

func (f *fakeRemote) ListScans(context.Context) ([]models.Scan, error) { return nil, nil }

func (f *fakeRemote) Ping(context.Context) error { return nil }

func (f *fakeRemote) loginCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type sessionFixture struct {
	store  *integrity.Store
	repo   *kv.MemoryRepository
	clock  *clock.FakeClock
	remote *fakeRemote
	m      *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	store, repo := newIntegrityStore(t)
	f := &sessionFixture{store: store, repo: repo, clock: clock.Fake(epoch), remote: newFakeRemote()}
	f.m = f.reopen(t)
	return f
}

// reopen builds a fresh manager over the same store, as a restart would.
func (f *sessionFixture) reopen(t *testing.T) *SessionManager {
	t.Helper()
	devices := NewDeviceRegistry(f.store, "linux", "test")
	m := NewSessionManager(f.store, f.remote, devices, f.clock, logging.Nop())
	require.NoError(t, m.Restore(context.Background()))
	return m
}

func (f *sessionFixture) failLogins(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.m.Login(context.Background(), goodEmail, "Wrong1!pass")
		require.Error(t, err)
	}
}

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	user, err := f.m.Login(ctx, " "+goodEmail+" ", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, goodEmail, user.Email)

	st := f.m.State()
	assert.Equal(t, StatusLoggedIn, st.Status)
	assert.True(t, st.IsAuthenticated)
	require.NotNil(t, st.User)
	assert.Equal(t, user, *st.User)
	assert.Empty(t, st.Error)

	var cred models.Credential
	found, err := f.store.Get(ctx, keyCredential, &cred)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "opaque-token", cred.Token)
	assert.Equal(t, epoch.Add(common.CredentialTTL).UnixMilli(), cred.ExpiresAtMillis)

	assert.NotEmpty(t, f.remote.lastDevice.DeviceID)
	assert.Equal(t, "linux", f.remote.lastDevice.Platform)

	tok, err := f.m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", tok)
}

func TestLogin_ValidationSkipsRemote(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.m.Login(context.Background(), "not-an-email", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, errors.Is(err, common.ErrValidationFailed))
	assert.Equal(t, 0, f.remote.loginCalls())

	st := f.m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Equal(t, map[Field]string{FieldEmail: MsgEmailInvalid, FieldPassword: MsgPasswordRequired}, st.ValidationErrors)
	assert.Equal(t, map[Field]bool{FieldEmail: true, FieldPassword: true}, st.TouchedFields)
	assert.Equal(t, 0, st.AttemptCount)
}

func TestLogin_LockoutAfterFiveRejections(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	for i := 1; i < common.MaxLoginAttempts; i++ {
		_, err := f.m.Login(ctx, goodEmail, "Wrong1!pass")
		require.True(t, errors.Is(err, common.ErrRemoteRejected))
		require.False(t, errors.Is(err, common.ErrTooManyAttempts))
		assert.Equal(t, i, f.m.State().AttemptCount)
		assert.Equal(t, "Invalid email or password", f.m.State().Error)
	}

	_, err := f.m.Login(ctx, goodEmail, "Wrong1!pass")
	var lerr *LockoutError
	require.ErrorAs(t, err, &lerr)
	require.NotNil(t, lerr.Cause)
	assert.Equal(t, common.LockoutDuration, lerr.Remaining)
	assert.Equal(t, "Too many failed attempts. Account locked for 15 minutes.", err.Error())

	st := f.m.State()
	assert.Equal(t, StatusLockedOut, st.Status)
	assert.Equal(t, 0, st.AttemptCount)
	assert.True(t, epoch.Add(common.LockoutDuration).Equal(st.LockoutUntil))

	// Correct credentials are refused without a round trip.
	_, err = f.m.Login(ctx, goodEmail, goodPassword)
	require.ErrorAs(t, err, &lerr)
	assert.Nil(t, lerr.Cause)
	assert.Equal(t, "Too many login attempts. Please try again in 15 minutes.", err.Error())
	assert.Equal(t, common.MaxLoginAttempts, f.remote.loginCalls())

	f.clock.Advance(10*time.Minute + 30*time.Second)
	_, err = f.m.Login(ctx, goodEmail, goodPassword)
	assert.Equal(t, "Too many login attempts. Please try again in 5 minutes.", err.Error())
	assert.Equal(t, common.MaxLoginAttempts, f.remote.loginCalls())

	f.clock.Advance(4*time.Minute + 30*time.Second)
	_, err = f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)
	assert.Equal(t, common.MaxLoginAttempts+1, f.remote.loginCalls())

	st = f.m.State()
	assert.Equal(t, StatusLoggedIn, st.Status)
	assert.Equal(t, 0, st.AttemptCount)
	assert.True(t, st.LockoutUntil.IsZero())
}

func TestLogin_LockoutSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.failLogins(t, common.MaxLoginAttempts)

	f.m = f.reopen(t)
	assert.Equal(t, StatusLockedOut, f.m.State().Status)

	_, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.True(t, errors.Is(err, common.ErrTooManyAttempts))
	assert.Equal(t, common.MaxLoginAttempts, f.remote.loginCalls())

	f.clock.Advance(common.LockoutDuration)
	f.m = f.reopen(t)
	st := f.m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Equal(t, 0, st.AttemptCount)
}

func TestLogin_AttemptCountPersisted(t *testing.T) {
	f := newSessionFixture(t)
	f.failLogins(t, 3)

	f.m = f.reopen(t)
	f.failLogins(t, 1)
	assert.Equal(t, 4, f.m.State().AttemptCount)

	_, err := f.m.Login(context.Background(), goodEmail, "Wrong1!pass")
	require.True(t, errors.Is(err, common.ErrTooManyAttempts))
}

func TestLogin_NetworkErrorsDoNotCount(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.remote.loginErr = fmt.Errorf("%w: connection refused", common.ErrNetworkUnavailable)

	for i := 0; i < 2*common.MaxLoginAttempts; i++ {
		_, err := f.m.Login(ctx, goodEmail, goodPassword)
		require.True(t, errors.Is(err, common.ErrNetworkUnavailable))
	}

	st := f.m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Equal(t, 0, st.AttemptCount)
	assert.Equal(t, "Network error. Please check your connection", st.Error)
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.failLogins(t, common.MaxLoginAttempts-1)

	_, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)
	assert.Equal(t, 0, f.m.State().AttemptCount)

	f.failLogins(t, common.MaxLoginAttempts-1)
	assert.Equal(t, common.MaxLoginAttempts-1, f.m.State().AttemptCount)
	assert.NotEqual(t, StatusLockedOut, f.m.State().Status)
}

func TestLogin_ConcurrentFailuresCountedExactly(t *testing.T) {
	f := newSessionFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 3*common.MaxLoginAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.m.Login(context.Background(), goodEmail, "Wrong1!pass")
		}()
	}
	wg.Wait()

	assert.Equal(t, common.MaxLoginAttempts, f.remote.loginCalls())
	assert.Equal(t, StatusLockedOut, f.m.State().Status)
}

func TestToken_ExpiresAfterSevenDays(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	_, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)

	f.clock.Advance(common.CredentialTTL - time.Millisecond)
	_, err = f.m.Token(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Millisecond)
	_, err = f.m.Token(ctx)
	require.ErrorIs(t, err, common.ErrCredentialExpired)

	st := f.m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Nil(t, st.User)

	found, err := f.store.Get(ctx, keyCredential, &models.Credential{})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.m.Token(ctx)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}

func TestToken_CappedByJWTExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
	}).SignedString([]byte("server-key"))
	require.NoError(t, err)
	f.remote.token = tok

	_, err = f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)

	var cred models.Credential
	_, err = f.store.Get(ctx, keyCredential, &cred)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Hour).UnixMilli(), cred.ExpiresAtMillis)

	f.clock.Advance(time.Hour)
	_, err = f.m.Token(ctx)
	require.ErrorIs(t, err, common.ErrCredentialExpired)
}

func TestToken_TamperedCredentialLogsOut(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	_, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)

	require.NoError(t, f.repo.Set(ctx, keyCredential, []byte("forged")))

	_, err = f.m.Token(ctx)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
	assert.Equal(t, StatusLoggedOut, f.m.State().Status)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	user, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)

	m := f.reopen(t)
	st := m.State()
	assert.Equal(t, StatusLoggedIn, st.Status)
	require.NotNil(t, st.User)
	assert.Equal(t, user, *st.User)

	f.clock.Advance(common.CredentialTTL)
	m = f.reopen(t)
	assert.Equal(t, StatusLoggedOut, m.State().Status)

	found, err := f.store.Get(ctx, keyProfile, &models.UserProfile{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLogout_KeepsLockoutAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.failLogins(t, 2)
	_, err := f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)
	f.failLogins(t, 2)

	require.NoError(t, f.m.Logout(ctx))
	require.NoError(t, f.m.Logout(ctx))

	st := f.m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Nil(t, st.User)
	assert.Equal(t, 2, st.AttemptCount)

	_, err = f.m.Token(ctx)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}

// brokenPutMany fails every batch write.
type brokenPutMany struct {
	Store
}

func (b brokenPutMany) PutMany(context.Context, map[string]any) error {
	return fmt.Errorf("put many: %w", common.ErrStorageUnavailable)
}

func TestLogin_PersistFailureStaysLoggedOut(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	m := NewSessionManager(brokenPutMany{f.store}, f.remote, nil, f.clock, logging.Nop())

	_, err := m.Login(ctx, goodEmail, goodPassword)
	require.ErrorIs(t, err, common.ErrStorageUnavailable)

	st := m.State()
	assert.Equal(t, StatusLoggedOut, st.Status)
	assert.Equal(t, "Local storage is unavailable. Please try again.", st.Error)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.m.Register(ctx, "", goodEmail, "weak", "weaker")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Len(t, f.m.State().TouchedFields, 4)

	user, err := f.m.Register(ctx, "Maria Santos", goodEmail, goodPassword, goodPassword)
	require.NoError(t, err)
	assert.Equal(t, goodEmail, user.Email)
	assert.Equal(t, StatusLoggedIn, f.m.State().Status)

	require.NoError(t, f.m.Logout(ctx))
	_, err = f.m.Register(ctx, "Maria Santos", goodEmail, goodPassword, goodPassword)
	require.ErrorIs(t, err, common.ErrRemoteRejected)
	assert.Equal(t, "Email already exists. Please log in instead.", f.m.State().Error)
	assert.Equal(t, 0, f.m.State().AttemptCount)
}

func TestSocialLogin(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	id := models.SocialIdentity{Email: goodEmail, FullName: "Maria Santos", Provider: "google", ProviderID: "g-1"}

	f.remote.social = f.remote.result(goodEmail, false)
	_, err := f.m.SocialLogin(ctx, id, true)
	require.ErrorIs(t, err, common.ErrAlreadyRegistered)
	assert.Equal(t, "This email is already registered. Please use the login screen instead.", UserMessage(err))
	assert.Equal(t, StatusLoggedOut, f.m.State().Status)

	user, err := f.m.SocialLogin(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, goodEmail, user.Email)
	assert.Equal(t, StatusLoggedIn, f.m.State().Status)

	_, err = f.m.SocialLogin(ctx, models.SocialIdentity{Provider: "google"}, false)
	require.ErrorIs(t, err, common.ErrValidationFailed)
}

func TestLinkSocial_RequiresSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	_, err := f.m.LinkSocial(ctx, "facebook", "fb-1")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
	require.ErrorIs(t, f.m.UpdateLocation(ctx, models.Coordinates{}, models.Address{}), common.ErrNotAuthenticated)

	_, err = f.m.Login(ctx, goodEmail, goodPassword)
	require.NoError(t, err)

	user, err := f.m.LinkSocial(ctx, "facebook", "fb-1")
	require.NoError(t, err)
	assert.True(t, user.HasProvider("facebook"))
	assert.True(t, f.m.State().User.HasProvider("facebook"))

	var stored models.UserProfile
	_, err = f.store.Get(ctx, keyProfile, &stored)
	require.NoError(t, err)
	assert.Equal(t, user, stored)
}

func TestValidateFieldAndReset(t *testing.T) {
	f := newSessionFixture(t)
	f.failLogins(t, 2)

	assert.Equal(t, MsgEmailInvalid, f.m.ValidateField(FieldEmail, "nope", ""))
	st := f.m.State()
	assert.Equal(t, map[Field]string{FieldEmail: MsgEmailInvalid}, st.ValidationErrors)
	assert.Equal(t, map[Field]bool{FieldEmail: true}, st.TouchedFields)

	assert.Empty(t, f.m.ValidateField(FieldEmail, goodEmail, ""))
	assert.Empty(t, f.m.State().ValidationErrors)

	f.m.ValidateField(FieldPassword, "", "")
	f.m.ResetValidation()
	st = f.m.State()
	assert.Empty(t, st.ValidationErrors)
	assert.Empty(t, st.TouchedFields)
	assert.Empty(t, st.Error)
	assert.Equal(t, 2, st.AttemptCount)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Please log in first.", UserMessage(common.ErrNotAuthenticated))
	assert.Equal(t, "Your session has expired. Please log in again.", UserMessage(fmt.Errorf("x: %w", common.ErrCredentialExpired)))
	assert.Equal(t, "Account does not exist", UserMessage(&client.RemoteError{Status: 404, Message: "Account does not exist"}))
	assert.Equal(t, "Too many failed attempts. Account locked for 15 minutes.",
		UserMessage(&LockoutError{Remaining: 15 * time.Minute, Cause: &client.RemoteError{Message: "Invalid email or password"}}))
}
