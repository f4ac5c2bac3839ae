package service

import (
	"time"

	"gatekeeper/internal/domain/entity"
)

// AccessToken is a minted access credential.
type AccessToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CredentialCodec mints and verifies signed, self-describing access tokens.
type CredentialCodec interface {
	// Mint signs a token for the principal that expires at the given instant.
	Mint(principal *entity.Principal, expiresAt time.Time) (*AccessToken, error)

	// Verify checks signature and expiry and returns the principal snapshot carried by the token.
	// Failures are ErrTokenMalformed, ErrTokenSignatureMismatch or ErrTokenExpired.
	Verify(token string) (*entity.Principal, error)
}
