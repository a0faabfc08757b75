package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/client"
	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

const (
	keyCredential = "credential"
	keyProfile    = "user-profile"
	keyLockout    = "login-lockout"
)

// Store is the tamper-evident persistence the services need.
// *integrity.Store satisfies it.
type Store interface {
	Put(ctx context.Context, key string, value any) error
	PutMany(ctx context.Context, values map[string]any) error
	Get(ctx context.Context, key string, dst any) (bool, error)
	Remove(ctx context.Context, keys ...string) error
}

// DeviceSource supplies the identity sent along with login and register.
type DeviceSource interface {
	DeviceInfo(ctx context.Context) (models.DeviceInfo, error)
}

type Status int

const (
	StatusLoggedOut Status = iota
	StatusAuthenticating
	StatusLoggedIn
	StatusLockedOut
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusLoggedIn:
		return "logged in"
	case StatusLockedOut:
		return "locked out"
	default:
		return "logged out"
	}
}

// SessionState is a point-in-time copy of the session.
type SessionState struct {
	Status           Status
	IsAuthenticated  bool
	User             *models.UserProfile
	AttemptCount     int
	LockoutUntil     time.Time
	ValidationErrors map[Field]string
	TouchedFields    map[Field]bool
	Error            string
}

// lockoutRecord is persisted so that restarting the client does not reset
// the failed-attempt counter.
type lockoutRecord struct {
	AttemptCount       int   `json:"attemptCount"`
	LockoutUntilMillis int64 `json:"lockoutUntilMillis"`
}

func (l lockoutRecord) active(now time.Time) bool {
	return l.LockoutUntilMillis != 0 && now.UnixMilli() < l.LockoutUntilMillis
}

// SessionManager owns the credential, the signed-in profile, form
// validation state and the login lockout.
type SessionManager struct {
	store   Store
	remote  client.Client
	devices DeviceSource
	clock   clock.Clock
	logger  logging.Logger

	// authMu serializes login, register and social login so failed
	// attempts are counted one at a time.
	authMu sync.Mutex

	mu               sync.Mutex
	status           Status
	user             *models.UserProfile
	lockout          lockoutRecord
	validationErrors map[Field]string
	touched          map[Field]bool
	formError        string
}

func NewSessionManager(store Store, remote client.Client, devices DeviceSource, clk clock.Clock, logger logging.Logger) *SessionManager {
	return &SessionManager{
		store:            store,
		remote:           remote,
		devices:          devices,
		clock:            clk,
		logger:           logger.With("component", "session"),
		validationErrors: map[Field]string{},
		touched:          map[Field]bool{},
	}
}

// Restore rebuilds the session from the store at startup. A usable
// credential with its profile signs the user back in; an expired one is
// deleted.
func (m *SessionManager) Restore(ctx context.Context) error {
	lock, err := m.currentLockout(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	var cred models.Credential
	hasCred, err := m.store.Get(ctx, keyCredential, &cred)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	var user models.UserProfile
	hasUser, err := m.store.Get(ctx, keyProfile, &user)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	now := m.clock.Now()
	if hasCred && hasUser && cred.Usable(now.UnixMilli()) {
		m.mu.Lock()
		m.status = StatusLoggedIn
		m.user = &user
		m.mu.Unlock()
		m.logger.Info(ctx, "session restored", "user_id", user.ID)
		return nil
	}

	if hasCred || hasUser {
		if err := m.store.Remove(ctx, keyCredential, keyProfile); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
	}

	m.mu.Lock()
	m.user = nil
	m.status = StatusLoggedOut
	if lock.active(now) {
		m.status = StatusLockedOut
	}
	m.mu.Unlock()
	return nil
}

// currentLockout loads the persisted lockout. A lockout whose deadline has
// passed is cleared (attempt counter included) on this first observation.
func (m *SessionManager) currentLockout(ctx context.Context) (lockoutRecord, error) {
	var rec lockoutRecord
	if _, err := m.store.Get(ctx, keyLockout, &rec); err != nil {
		return lockoutRecord{}, err
	}

	if rec.LockoutUntilMillis != 0 && !rec.active(m.clock.Now()) {
		rec = lockoutRecord{}
		if err := m.store.Put(ctx, keyLockout, rec); err != nil {
			return lockoutRecord{}, err
		}
		m.logger.Info(ctx, "login lockout expired")
	}

	m.mu.Lock()
	m.lockout = rec
	if m.status == StatusLockedOut && rec.LockoutUntilMillis == 0 {
		m.status = StatusLoggedOut
	}
	m.mu.Unlock()

	return rec, nil
}

// Login signs in with email and password. While locked out it fails with
// *LockoutError without contacting the remote service. Every remote
// rejection counts towards the lockout; transport failures do not.
func (m *SessionManager) Login(ctx context.Context, email, password string) (models.UserProfile, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	lock, err := m.currentLockout(ctx)
	if err != nil {
		m.setResult(m.State().Status, UserMessage(err))
		return models.UserProfile{}, fmt.Errorf("login: %w", err)
	}

	now := m.clock.Now()
	if lock.active(now) {
		lerr := &LockoutError{Remaining: time.UnixMilli(lock.LockoutUntilMillis).Sub(now)}
		m.setResult(m.idleStatus(), lerr.Error())
		return models.UserProfile{}, lerr
	}

	if verr := ValidateLogin(email, password); verr != nil {
		m.setValidation(verr, FieldEmail, FieldPassword)
		return models.UserProfile{}, verr
	}

	m.setResult(StatusAuthenticating, "")
	res, err := m.remote.Login(ctx, client.LoginRequest{
		Email:      strings.TrimSpace(email),
		Password:   password,
		DeviceInfo: m.deviceInfo(ctx),
	})
	if err != nil {
		return models.UserProfile{}, m.loginFailed(ctx, lock, err)
	}

	return m.establish(ctx, res, true)
}

func (m *SessionManager) loginFailed(ctx context.Context, lock lockoutRecord, cause error) error {
	if !errors.Is(cause, common.ErrRemoteRejected) {
		m.setResult(m.idleStatus(), UserMessage(cause))
		return fmt.Errorf("login: %w", cause)
	}

	lock.AttemptCount++
	out := fmt.Errorf("login: %w", cause)
	if lock.AttemptCount >= common.MaxLoginAttempts {
		lock = lockoutRecord{LockoutUntilMillis: m.clock.Now().Add(common.LockoutDuration).UnixMilli()}
		out = &LockoutError{Remaining: common.LockoutDuration, Cause: cause}
		m.logger.Warn(ctx, "too many failed logins, locking", "duration", common.LockoutDuration)
	}

	if err := m.store.Put(ctx, keyLockout, lock); err != nil {
		m.setResult(m.idleStatus(), UserMessage(err))
		return fmt.Errorf("record failed login: %w", err)
	}

	m.mu.Lock()
	m.lockout = lock
	m.mu.Unlock()
	m.setResult(m.idleStatus(), UserMessage(out))
	return out
}

// Register creates an account and signs into it.
func (m *SessionManager) Register(ctx context.Context, fullName, email, password, confirm string) (models.UserProfile, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if verr := ValidateRegistration(fullName, email, password, confirm); verr != nil {
		m.setValidation(verr, fieldOrder...)
		return models.UserProfile{}, verr
	}

	m.setResult(StatusAuthenticating, "")
	res, err := m.remote.Register(ctx, client.RegisterRequest{
		FullName:   strings.TrimSpace(fullName),
		Email:      strings.TrimSpace(email),
		Password:   password,
		DeviceInfo: m.deviceInfo(ctx),
	})
	if err != nil {
		m.setResult(m.idleStatus(), UserMessage(err))
		return models.UserProfile{}, fmt.Errorf("register: %w", err)
	}

	return m.establish(ctx, res, false)
}

// SocialLogin signs in with an identity from a social provider. With
// isRegistration set, an existing account is refused with
// common.ErrAlreadyRegistered.
func (m *SessionManager) SocialLogin(ctx context.Context, id models.SocialIdentity, isRegistration bool) (models.UserProfile, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if msg := ValidateField(FieldEmail, id.Email, ""); msg != "" {
		verr := &ValidationError{Fields: map[Field]string{FieldEmail: msg}}
		m.setValidation(verr, FieldEmail)
		return models.UserProfile{}, verr
	}

	m.setResult(StatusAuthenticating, "")
	res, err := m.remote.SocialLogin(ctx, client.SocialLoginRequest{
		Email:          strings.TrimSpace(id.Email),
		FullName:       id.FullName,
		Provider:       id.Provider,
		ProviderID:     id.ProviderID,
		IsRegistration: isRegistration,
	})
	if err == nil && isRegistration && !res.IsNewUser {
		err = common.ErrAlreadyRegistered
	}
	if err != nil {
		m.setResult(m.idleStatus(), UserMessage(err))
		return models.UserProfile{}, fmt.Errorf("social login: %w", err)
	}

	return m.establish(ctx, res, false)
}

// establish persists credential and profile together and moves to
// LoggedIn. resetLockout clears the failed-attempt state as well.
func (m *SessionManager) establish(ctx context.Context, res models.AuthResult, resetLockout bool) (models.UserProfile, error) {
	if res.Token == "" {
		err := fmt.Errorf("%w: response carried no token", common.ErrNetworkUnavailable)
		m.setResult(m.idleStatus(), UserMessage(err))
		return models.UserProfile{}, err
	}

	now := m.clock.Now()
	cred := models.Credential{Token: res.Token, ExpiresAtMillis: credentialExpiry(res.Token, now).UnixMilli()}

	values := map[string]any{keyCredential: cred, keyProfile: res.User}
	if resetLockout {
		values[keyLockout] = lockoutRecord{}
	}
	if err := m.store.PutMany(ctx, values); err != nil {
		m.setResult(m.idleStatus(), UserMessage(err))
		return models.UserProfile{}, fmt.Errorf("persist session: %w", err)
	}

	user := res.User
	m.mu.Lock()
	m.status = StatusLoggedIn
	m.user = &user
	if resetLockout {
		m.lockout = lockoutRecord{}
	}
	m.formError = ""
	m.mu.Unlock()

	m.logger.Info(ctx, "signed in", "user_id", user.ID)
	return user, nil
}

// credentialExpiry is now plus the credential lifetime, capped by the
// token's own exp claim when it is a JWT.
func credentialExpiry(token string, now time.Time) time.Time {
	expiry := now.Add(common.CredentialTTL)

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return expiry
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expiry) {
		return claims.ExpiresAt.Time
	}
	return expiry
}

// Logout drops the credential and profile. The lockout state is kept.
func (m *SessionManager) Logout(ctx context.Context) error {
	err := m.store.Remove(ctx, keyCredential, keyProfile)

	m.mu.Lock()
	m.user = nil
	m.formError = ""
	m.mu.Unlock()
	m.setResult(m.idleStatus(), "")

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Token returns the stored bearer token while it is usable. An expired
// credential is deleted and the session logged out locally.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	var cred models.Credential
	found, err := m.store.Get(ctx, keyCredential, &cred)
	if err != nil {
		return "", err
	}

	if !found {
		m.dropSession()
		return "", common.ErrNotAuthenticated
	}

	if !cred.Usable(clock.NowMillis(m.clock)) {
		if err := m.store.Remove(ctx, keyCredential, keyProfile); err != nil {
			return "", err
		}
		m.dropSession()
		m.logger.Info(ctx, "credential expired, signed out")
		return "", common.ErrCredentialExpired
	}

	return cred.Token, nil
}

func (m *SessionManager) dropSession() {
	m.mu.Lock()
	wasIn := m.status == StatusLoggedIn
	m.user = nil
	m.mu.Unlock()
	if wasIn {
		m.setResult(m.idleStatus(), "")
	}
}

// LinkSocial attaches a social provider to the signed-in account.
func (m *SessionManager) LinkSocial(ctx context.Context, provider, providerID string) (models.UserProfile, error) {
	if _, err := m.Token(ctx); err != nil {
		return models.UserProfile{}, err
	}

	user, err := m.remote.LinkSocial(ctx, provider, providerID)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("link %s: %w", provider, err)
	}
	if err := m.store.Put(ctx, keyProfile, user); err != nil {
		return models.UserProfile{}, fmt.Errorf("link %s: %w", provider, err)
	}

	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()
	return user, nil
}

// UpdateLocation records the user's farm location on the remote service.
func (m *SessionManager) UpdateLocation(ctx context.Context, coords models.Coordinates, addr models.Address) error {
	if _, err := m.Token(ctx); err != nil {
		return err
	}
	if err := m.remote.UpdateLocation(ctx, coords, addr); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// ValidateField checks one field and records only that field's outcome.
func (m *SessionManager) ValidateField(field Field, value, password string) string {
	msg := ValidateField(field, value, password)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[field] = true
	if msg == "" {
		delete(m.validationErrors, field)
	} else {
		m.validationErrors[field] = msg
	}
	return msg
}

// ResetValidation clears field errors, touched flags and the form error.
// Lockout state is untouched.
func (m *SessionManager) ResetValidation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationErrors = map[Field]string{}
	m.touched = map[Field]bool{}
	m.formError = ""
}

func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := SessionState{
		Status:           m.status,
		IsAuthenticated:  m.status == StatusLoggedIn,
		AttemptCount:     m.lockout.AttemptCount,
		ValidationErrors: make(map[Field]string, len(m.validationErrors)),
		TouchedFields:    make(map[Field]bool, len(m.touched)),
		Error:            m.formError,
	}
	if m.user != nil {
		u := *m.user
		st.User = &u
	}
	if m.lockout.LockoutUntilMillis != 0 {
		st.LockoutUntil = time.UnixMilli(m.lockout.LockoutUntilMillis)
	}
	for k, v := range m.validationErrors {
		st.ValidationErrors[k] = v
	}
	for k, v := range m.touched {
		st.TouchedFields[k] = v
	}
	return st
}

func (m *SessionManager) setResult(status Status, formError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.formError = formError
}

// setValidation replaces the recorded errors of fields with those in verr.
func (m *SessionManager) setValidation(verr *ValidationError, fields ...Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fields {
		m.touched[f] = true
		if msg, ok := verr.Fields[f]; ok {
			m.validationErrors[f] = msg
		} else {
			delete(m.validationErrors, f)
		}
	}
	m.formError = verr.Error()
	if m.status == StatusAuthenticating {
		m.status = StatusLoggedOut
	}
}

// idleStatus is the status outside of an auth round trip.
func (m *SessionManager) idleStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil {
		return StatusLoggedIn
	}
	if m.lockout.active(m.clock.Now()) {
		return StatusLockedOut
	}
	return StatusLoggedOut
}

func (m *SessionManager) deviceInfo(ctx context.Context) models.DeviceInfo {
	if m.devices == nil {
		return models.DeviceInfo{}
	}
	info, err := m.devices.DeviceInfo(ctx)
	if err != nil {
		m.logger.Warn(ctx, "device info unavailable", "error", err)
	}
	return info
}

// UserMessage renders err for people.
func UserMessage(err error) string {
	var (
		lerr *LockoutError
		verr *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &lerr):
		return lerr.Error()
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, common.ErrAlreadyRegistered):
		return "This email is already registered. Please use the login screen instead."
	case errors.Is(err, common.ErrStorageUnavailable):
		return "Local storage is unavailable. Please try again."
	case errors.Is(err, common.ErrCredentialExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, common.ErrNotAuthenticated):
		return "Please log in first."
	default:
		return client.UserMessage(err)
	}
}
