package auth

import "context"

// Identity is what the external provider vouches for on a successful
// sign-in: a stable user id plus the latest profile fields.
type Identity struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// I_Provider exchanges a provider credential (OAuth code, ID token)
// for the signed-in identity.
type I_Provider interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}
