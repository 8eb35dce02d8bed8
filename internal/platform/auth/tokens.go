package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = time.Hour

var (
	// ErrTokenExpired signals that the presented bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrAdminMismatch signals that an admin token's claims do not match the configured credentials.
	ErrAdminMismatch = errors.New("auth: admin credentials mismatch")
)

// TokenConfig carries the signing material shared by issuer and verifier.
type TokenConfig struct {
	Secret        string
	TTL           time.Duration
	AdminEmail    string
	AdminPassword string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Tokens mints and verifies the HS256 bearer tokens used by the API. User
// tokens carry the user ID; admin tokens carry the shared admin credentials
// verbatim and are checked against configuration on every request.
type Tokens struct {
	secret        []byte
	ttl           time.Duration
	adminEmail    string
	adminPassword string
	now           func() time.Time
}

// NewTokens validates the config and constructs a token codec.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tokens{
		secret:        []byte(cfg.Secret),
		ttl:           ttl,
		adminEmail:    cfg.AdminEmail,
		adminPassword: cfg.AdminPassword,
		now:           now,
	}, nil
}

// MintUserToken issues a signed token identifying the given user.
func (t *Tokens) MintUserToken(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: user id is required")
	}
	issued := t.now()
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": issued.Unix(),
		"exp": issued.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// MintAdminToken issues a signed token carrying the admin credentials.
func (t *Tokens) MintAdminToken(email, password string) (string, error) {
	issued := t.now()
	claims := jwt.MapClaims{
		"email":    email,
		"password": password,
		"iat":      issued.Unix(),
		"exp":      issued.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// VerifyUserToken checks the signature and expiry and returns the user ID.
func (t *Tokens) VerifyUserToken(tokenStr string) (string, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return "", err
	}
	userID, _ := claims["id"].(string)
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: missing user id claim", ErrTokenInvalid)
	}
	return userID, nil
}

// VerifyAdminToken checks the signature, expiry, and that the embedded
// credentials match the configured admin account.
func (t *Tokens) VerifyAdminToken(tokenStr string) (*Identity, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	email, _ := claims["email"].(string)
	password, _ := claims["password"].(string)
	if !t.adminCredentialsMatch(email, password) {
		return nil, ErrAdminMismatch
	}
	return &Identity{Email: email, Role: RoleAdmin}, nil
}

func (t *Tokens) adminCredentialsMatch(email, password string) bool {
	if t.adminEmail == "" || t.adminPassword == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(t.adminEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(t.adminPassword)) == 1
	return emailOK && passwordOK
}

func (t *Tokens) parse(tokenStr string) (jwt.MapClaims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	token, err := parser.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
