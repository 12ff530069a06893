// Package jwtauth issues and validates the HS256 access tokens that
// authenticate API callers.
package jwtauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"dcp/internal/identity"
	id "dcp/pkg/domain"
	dErrors "dcp/pkg/domain-errors"
)

// Claims carries the actor's identity and platform role inside the token.
// Role is advisory for clients; authorization always re-reads the actor.
type Claims struct {
	ActorID string `json:"actor_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	signingKey []byte
	issuer     string
	expiry     time.Duration
}

func New(signingKey, issuer string, expiry time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		expiry:     expiry,
	}
}

// Issue mints an access token for the actor. The returned time is the
// token's expiry.
func (s *Service) Issue(actor *identity.Actor, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.expiry)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ActorID: actor.ID.String(),
		Email:   actor.Email,
		Role:    string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   actor.ID.String(),
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token string.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ActorIDFromToken validates the token and returns the actor identifier.
func (s *Service) ActorIDFromToken(tokenString string) (id.ActorID, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return id.ActorID{}, err
	}
	actorUUID, err := uuid.Parse(claims.ActorID)
	if err != nil {
		return id.ActorID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return id.ActorID(actorUUID), nil
}
