package gateway

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

// TokenValidator validates HS256 tokens issued by the clinic auth service
type TokenValidator struct {
	jwtSecret []byte
	issuer    string
	ttl       time.Duration
}

// NewTokenValidator creates a new token validator.
// An empty issuer accepts tokens from any issuer.
func NewTokenValidator(secret, issuer string, ttl time.Duration) *TokenValidator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenValidator{
		jwtSecret: []byte(secret),
		issuer:    issuer,
		ttl:       ttl,
	}
}

// ValidateJWT validates a JWT token and returns user claims
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.UserClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &types.UserClaims{
		UserID:     userID,
		Username:   claims.Username,
		Role:       types.UserRole(claims.Role),
		Ambulatori: claims.Ambulatori,
	}, nil
}

// IssueToken signs a token for claims. The services never log users in; this
// serves tests and local tooling that need a token the validator accepts.
func (tv *TokenValidator) IssueToken(claims *types.UserClaims) (*types.AuthToken, error) {
	now := time.Now()

	jwtClaims := &JWTClaims{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Role:       string(claims.Role),
		Ambulatori: claims.Ambulatori,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tv.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tv.issuer,
			Subject:   claims.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	tokenString, err := token.SignedString(tv.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &types.AuthToken{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tv.ttl.Seconds()),
		IssuedAt:    now,
	}, nil
}

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	Role       string   `json:"role"`
	Ambulatori []string `json:"ambulatori,omitempty"`
	jwt.RegisteredClaims
}
