package models

// UserProfile is the signed-in user as returned by the remote service.
type UserProfile struct {
	ID        string   `json:"id"`
	FullName  string   `json:"fullName"`
	Email     string   `json:"email"`
	Providers []string `json:"providers,omitempty"`
}

// HasProvider reports whether provider is already linked to the profile.
func (u UserProfile) HasProvider(provider string) bool {
	for _, p := range u.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// Credential is a bearer token plus the local expiry the client enforces.
type Credential struct {
	Token           string `json:"token"`
	ExpiresAtMillis int64  `json:"expiresAtMillis"`
}

// Usable reports whether the credential may still be sent at nowMillis.
func (c Credential) Usable(nowMillis int64) bool {
	return c.Token != "" && nowMillis < c.ExpiresAtMillis
}

// SocialIdentity is what a social identity provider hands back after the
// user signs in with it.
type SocialIdentity struct {
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId"`
}

// DeviceInfo identifies this install to the remote service.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
}

// AuthResult is a successful login, registration or social login.
type AuthResult struct {
	Token     string      `json:"token"`
	User      UserProfile `json:"user"`
	IsNewUser bool        `json:"isNewUser,omitempty"`
}
