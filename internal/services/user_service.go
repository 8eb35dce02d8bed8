package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/oklog/ulid/v2"

	"github.com/threadline/api/internal/domain"
	"github.com/threadline/api/internal/repositories"
)

// ErrUserInvalidInput indicates the caller supplied invalid input.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserExists indicates the email address is already registered.
var ErrUserExists = errors.New("user service: user already exists")

// ErrUserNotFound indicates no account exists for the email address.
var ErrUserNotFound = errors.New("user service: user not found")

// ErrInvalidCredentials indicates the password or admin credentials do not match.
var ErrInvalidCredentials = errors.New("user service: invalid credentials")

// ErrUserUnavailable indicates the user service cannot fulfil the request due to backend issues.
var ErrUserUnavailable = errors.New("user service: unavailable")

// TokenMinter issues signed bearer tokens.
type TokenMinter interface {
	MintUserToken(userID string) (string, error)
	MintAdminToken(email, password string) (string, error)
}

// UserServiceDeps wires the repository, token minter, and configured admin
// credentials for account operations.
type UserServiceDeps struct {
	Users         repositories.UserRepository
	Tokens        TokenMinter
	AdminEmail    string
	AdminPassword string
	Clock         func() time.Time
	IDGenerator   func() string
	HashCost      int
}

type userService struct {
	users         repositories.UserRepository
	tokens        TokenMinter
	adminEmail    string
	adminPassword string
	now           func() time.Time
	newID         func() string
	hashCost      int
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token minter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	hashCost := deps.HashCost
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}

	return &userService{
		users:         deps.Users,
		tokens:        deps.Tokens,
		adminEmail:    deps.AdminEmail,
		adminPassword: deps.AdminPassword,
		now:           func() time.Time { return clock().UTC() },
		newID:         newID,
		hashCost:      hashCost,
	}, nil
}

// Register creates a shopper account and returns a signed bearer token.
func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (string, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	email, err := normaliseEmail(cmd.Email)
	if err != nil {
		return "", err
	}
	if err := checkPasswordStrength(cmd.Password); err != nil {
		return "", err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return "", ErrUserExists
	} else if !repositories.IsNotFound(err) {
		return "", translateUserRepoError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", ErrUserUnavailable, err)
	}

	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return "", translateUserRepoError(err)
	}

	token, err := s.tokens.MintUserToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: mint token: %v", ErrUserUnavailable, err)
	}
	return token, nil
}

// Login verifies the password and returns a signed bearer token.
func (s *userService) Login(ctx context.Context, email, password string) (string, error) {
	normalised, err := normaliseEmail(email)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, normalised)
	if err != nil {
		if repositories.IsNotFound(err) {
			return "", ErrUserNotFound
		}
		return "", translateUserRepoError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.MintUserToken(user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: mint token: %v", ErrUserUnavailable, err)
	}
	return token, nil
}

// AdminLogin verifies the configured admin credentials and returns an admin token.
func (s *userService) AdminLogin(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", ErrUserInvalidInput)
	}
	if s.adminEmail == "" || s.adminPassword == "" {
		return "", fmt.Errorf("%w: admin account is not configured", ErrUserUnavailable)
	}

	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.adminEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) == 1
	if !emailOK || !passwordOK {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.MintAdminToken(email, password)
	if err != nil {
		return "", fmt.Errorf("%w: mint token: %v", ErrUserUnavailable, err)
	}
	return token, nil
}

// ListUsers returns every registered account without password material.
func (s *userService) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, translateUserRepoError(err)
	}
	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, UserView{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
		})
	}
	return views, nil
}

func normaliseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is not well formed", ErrUserInvalidInput)
	}
	return email, nil
}

func checkPasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrUserInvalidInput)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	switch {
	case !upper:
		return fmt.Errorf("%w: password must contain an uppercase letter", ErrUserInvalidInput)
	case !lower:
		return fmt.Errorf("%w: password must contain a lowercase letter", ErrUserInvalidInput)
	case !digit:
		return fmt.Errorf("%w: password must contain a digit", ErrUserInvalidInput)
	case !symbol:
		return fmt.Errorf("%w: password must contain a symbol", ErrUserInvalidInput)
	}
	return nil
}

func translateUserRepoError(err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrUserNotFound
	case repositories.IsConflict(err):
		return ErrUserExists
	default:
		return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
}
