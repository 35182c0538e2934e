package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/financetracker/backend/internal/db"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrPasswordMismatch = errors.New("password mismatch")
)

// Credentials is the single seam for password hashing and token signing.
// Handlers and the Service never touch bcrypt or JWT directly.
type Credentials interface {
	HashPassword(password string) (string, error)
	// ComparePassword returns ErrPasswordMismatch when password does not match hash.
	ComparePassword(hash, password string) error
	IssueToken(userID uuid.UUID, role db.Role) (token string, expiresAt time.Time, err error)
	// VerifyToken returns ErrTokenExpired or ErrInvalidToken on failure.
	VerifyToken(token string) (*Claims, error)
}

// Claims carried by an access token. Role is informational only; the
// middleware always reloads the role from the user record.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type JWTConfig struct {
	Secret     string
	TTL        time.Duration
	Issuer     string
	BcryptCost int
}

// JWTCredentials implements Credentials with bcrypt and HS256 tokens.
type JWTCredentials struct {
	secret []byte
	ttl    time.Duration
	issuer string
	cost   int
	now    func() time.Time
}

func NewJWTCredentials(cfg JWTConfig) *JWTCredentials {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &JWTCredentials{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		cost:   cost,
		now:    time.Now,
	}
}

func (c *JWTCredentials) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("auth.HashPassword: %w", err)
	}
	return string(hash), nil
}

func (c *JWTCredentials) ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

func (c *JWTCredentials) IssueToken(userID uuid.UUID, role db.Role) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)

	claims := &Claims{
		UserID: userID.String(),
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth.IssueToken: %w", err)
	}
	return signed, expiresAt, nil
}

func (c *JWTCredentials) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
