// Package token supplies the bearer token and endpoint for a dxLink session.
package token

import "context"

// Credentials are what a feed session needs to connect.
type Credentials struct {
	Token     string `json:"token"`
	DxlinkURL string `json:"dxlink-url"`
	Level     string `json:"level"`
}

// Provider hands out feed credentials on demand.
type Provider interface {
	Token(ctx context.Context) (Credentials, error)
}

// Invalidator is implemented by providers that cache credentials.
type Invalidator interface {
	Invalidate()
}

// Static always returns the same credentials.
type Static struct {
	Credentials Credentials
}

func (s Static) Token(ctx context.Context) (Credentials, error) {
	if s.Credentials.Token == "" {
		return Credentials{}, ErrNoToken
	}
	return s.Credentials, nil
}
