package client

import (
	"context"

	"github.com/dmitrijs2005/kappi/internal/client/models"
)

// Client is the remote scan service as seen by the rest of the client.
type Client interface {
	Login(ctx context.Context, req LoginRequest) (models.AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (models.AuthResult, error)
	SocialLogin(ctx context.Context, req SocialLoginRequest) (models.AuthResult, error)
	LinkSocial(ctx context.Context, provider, providerID string) (models.UserProfile, error)
	UpdateLocation(ctx context.Context, coords models.Coordinates, addr models.Address) error
	SubmitScan(ctx context.Context, scan models.Scan) (models.Scan, error)
	ListScans(ctx context.Context) ([]models.Scan, error)
	Ping(ctx context.Context) error
}

// TokenSource supplies the bearer token for authenticated calls. An error
// means there is no usable token and the header must be omitted.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

type LoginRequest struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	DeviceInfo models.DeviceInfo `json:"deviceInfo"`
}

type RegisterRequest struct {
	FullName   string            `json:"fullName"`
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	DeviceInfo models.DeviceInfo `json:"deviceInfo"`
}

type SocialLoginRequest struct {
	Email          string `json:"email"`
	FullName       string `json:"fullName"`
	Provider       string `json:"provider"`
	ProviderID     string `json:"providerId"`
	IsRegistration bool   `json:"isRegistration"`
}

type linkSocialRequest struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId"`
	Token      string `json:"token,omitempty"`
}

type locationRequest struct {
	Coordinates models.Coordinates `json:"coordinates"`
	Address     models.Address     `json:"address"`
}

type userResponse struct {
	User models.UserProfile `json:"user"`
}

type scanResponse struct {
	Scan *models.Scan `json:"scan"`
}

type scansResponse struct {
	Scans []models.Scan `json:"scans"`
}

type errorResponse struct {
	Message string `json:"message"`
}
