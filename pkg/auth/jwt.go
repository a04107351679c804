package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
)

// Claims identifies the user a token was issued to.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (c *Claims) User() model.User {
	return model.User{ID: c.UserID, Username: c.Username}
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates a new JWT for u.
func (i *Issuer) GenerateToken(u model.User) (string, error) {
	now := i.now()
	claims := &Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// ValidateToken parses and validates a JWT.
func (i *Issuer) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chaterrors.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", chaterrors.ErrUnauthorized)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: token has no user", chaterrors.ErrUnauthorized)
	}
	return claims, nil
}

var errNoToken = errors.New("no token provided")

// TokenFromRequest reads the token from the Authorization header, falling
// back to the token query parameter used by browser websocket clients.
func TokenFromRequest(r *http.Request) (string, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return "", fmt.Errorf("%w: %w", chaterrors.ErrUnauthorized, errNoToken)
	}
	return tokenString, nil
}

// Authenticate validates the token carried by r.
func (i *Issuer) Authenticate(r *http.Request) (*Claims, error) {
	tokenString, err := TokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return i.ValidateToken(tokenString)
}
