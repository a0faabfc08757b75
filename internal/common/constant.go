// Package common contains shared constants and sentinel errors used across
// kappi client components.
package common

import "time"

const (
	// AuthorizationHeaderName carries the bearer token on authenticated
	// requests to the remote service.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token in AuthorizationHeaderName.
	BearerPrefix = "Bearer "
)

const (
	// MaxLoginAttempts is the number of consecutive rejected logins that
	// trigger a local lockout.
	MaxLoginAttempts = 5

	// LockoutDuration is how long login is refused locally after
	// MaxLoginAttempts rejections.
	LockoutDuration = 15 * time.Minute

	// CredentialTTL is the local lifetime of a freshly issued token.
	CredentialTTL = 7 * 24 * time.Hour
)
