package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the provided session token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// SessionClaims is the JWT payload carried by session tokens.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 session tokens issued by the API.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier constructs a verifier bound to the shared signing secret.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
	}, nil
}

// VerifyToken parses and validates the token, returning the authenticated identity.
func (v *JWTVerifier) VerifyToken(tokenStr string) (*Identity, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	identity := &Identity{
		UserID: claims.Subject,
		Email:  strings.TrimSpace(claims.Email),
	}
	if role := normaliseRole(claims.Role); role != "" {
		identity.Roles = []string{role}
	}
	return identity, nil
}

// IssueToken mints a signed session token for the given identity, primarily for tooling and tests.
func (v *JWTVerifier) IssueToken(identity *Identity, ttl time.Duration, now time.Time) (string, error) {
	if v == nil {
		return "", errors.New("auth: verifier is nil")
	}
	if identity == nil || strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("auth: identity with user id is required")
	}

	role := ""
	if len(identity.Roles) > 0 {
		role = identity.Roles[0]
	}

	claims := SessionClaims{
		Email: identity.Email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
