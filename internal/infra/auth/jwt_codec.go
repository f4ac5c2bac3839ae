// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// accessClaims is the payload of an access token. The registered exp is rounded up to the
// next whole second; ExpiresAtNano carries the exact instant and is what Verify enforces.
type accessClaims struct {
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	ExpiresAtNano int64    `json:"exp_ns,omitempty"`
	jwt.RegisteredClaims
}

// jwtCodec is a concrete implementation of the CredentialCodec interface using HS256 JWTs.
type jwtCodec struct {
	secret []byte
	issuer string
	clock  service.Clock
}

// NewJWTCodec is the constructor for jwtCodec. The signing key is read once at startup.
func NewJWTCodec(cfg *config.Config, clock service.Clock) (service.CredentialCodec, error) {
	if len(cfg.SecretKey.Access) < 32 {
		return nil, errors.New("access signing key must be at least 32 bytes")
	}

	issuer := cfg.Env.ServiceName
	if cfg.Auth != nil && cfg.Auth.Issuer != "" {
		issuer = cfg.Auth.Issuer
	}

	return &jwtCodec{
		secret: []byte(cfg.SecretKey.Access),
		issuer: issuer,
		clock:  clock,
	}, nil
}

// Mint signs an access token for the principal.
func (c *jwtCodec) Mint(principal *entity.Principal, expiresAt time.Time) (*service.AccessToken, error) {
	if principal == nil || principal.ID == uuid.Nil {
		return nil, errors.New("principal is required")
	}

	now := c.clock.Now()
	expiresAt = expiresAt.Round(0)
	claims := accessClaims{
		Username:      principal.Username,
		Roles:         principal.Roles.ToStrings(),
		ExpiresAtNano: expiresAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expiresAt)),
			ID:        uuid.NewString(), // nonce
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign access token")
	}

	return &service.AccessToken{
		Token:     token,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: expiresAt,
	}, nil
}

func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Before(t) {
		return truncated.Add(time.Second)
	}

	return truncated
}

// Verify checks the token against the signing key and the server clock with no grace period.
func (c *jwtCodec) Verify(token string) (*entity.Principal, error) {
	var claims accessClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
		jwt.WithLeeway(0),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if claims.ExpiresAtNano != 0 && !c.clock.Now().Before(time.Unix(0, claims.ExpiresAtNano)) {
		return nil, errors.Wrap(domainerrors.ErrTokenExpired, "token has expired")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrTokenMalformed, "subject is not a user id")
	}

	roles := entity.RolesFromStrings(claims.Roles)
	if len(roles) == 0 {
		return nil, errors.Wrap(domainerrors.ErrTokenMalformed, "token carries no known role")
	}

	return &entity.Principal{
		ID:       id,
		Username: claims.Username,
		Roles:    roles,
		UserType: entity.UserTypeFor(roles),
		IsActive: true,
	}, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Wrap(domainerrors.ErrTokenExpired, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Wrap(domainerrors.ErrTokenSignatureMismatch, err.Error())
	default:
		return errors.Wrap(domainerrors.ErrTokenMalformed, err.Error())
	}
}
