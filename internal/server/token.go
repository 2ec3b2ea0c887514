package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL is the lifetime of a handshake token. Tokens only bridge
// the gap between the HTTP token request and the websocket upgrade, so
// one minute is plenty.
const tokenTTL = time.Minute

// tokenIssuer is the iss claim of every token this service signs.
const tokenIssuer = "carlos-server"

// TokenService issues and verifies the short-lived tokens that
// authenticate the websocket handshake. Tokens are HS256 signed and
// bound to both the device id and the requesting client's hostname, so
// a leaked token cannot be replayed for another device or from another
// machine.
type TokenService struct {
	secret []byte

	// now is swapped out in tests.
	now func() time.Time
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret, now: time.Now}
}

// Issue signs a token for the given device and client hostname.
func (s *TokenService) Issue(deviceID uuid.UUID, clientHostname string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   deviceID.String(),
		Audience:  jwt.ClaimStrings{clientHostname},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Verify checks the token's signature and claims against the expected
// device and client hostname. Any failure, including missing claims,
// returns ErrInvalidToken.
func (s *TokenService) Verify(token string, deviceID uuid.UUID, clientHostname string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(deviceID.String()),
		jwt.WithAudience(clientHostname),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.IssuedAt == nil {
		return fmt.Errorf("%w: missing iat claim", ErrInvalidToken)
	}
	return nil
}

// BearerVerifier authorizes callers of the HTTP token endpoint. The
// server does not implement an auth provider itself; deployments plug
// in whatever they use.
type BearerVerifier interface {
	VerifyBearer(token string) error
}

// StaticBearerVerifier accepts exactly one pre-shared bearer token.
type StaticBearerVerifier string

func (v StaticBearerVerifier) VerifyBearer(token string) error {
	if string(v) == "" || token != string(v) {
		return errors.New("bearer token rejected")
	}
	return nil
}
