// Package accounts manages registration, login and role administration.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/delivergo/storefront/internal/app/domain/user"
	"github.com/delivergo/storefront/internal/app/storage"
	"github.com/delivergo/storefront/internal/apperr"
	"github.com/delivergo/storefront/pkg/logger"
)

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Service manages user accounts and issues access tokens.
type Service struct {
	store    storage.UserStore
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// New constructs an accounts service. The secret signs HS256 tokens.
func New(store storage.UserStore, secret []byte, tokenTTL time.Duration, log *logger.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{
		store:    store,
		secret:   secret,
		tokenTTL: tokenTTL,
		now:      time.Now,
		log:      log,
	}
}

// Register creates a customer account. Emails are unique,
// case-insensitively.
func (s *Service) Register(ctx context.Context, email, name, phone, password string) (user.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return user.User{}, apperr.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return user.User{}, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, err
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Phone:        strings.TrimSpace(phone),
		Role:         user.RoleCustomer,
		PasswordHash: string(hash),
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return user.User{}, apperr.Validation("an account with this email already exists")
	}
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", created.ID).Info("account registered")
	return created, nil
}

// Login verifies credentials and returns the user with a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, "", apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return user.User{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return user.User{}, "", apperr.Unauthorized("invalid email or password")
	}

	token, err := s.issueToken(u)
	if err != nil {
		return user.User{}, "", err
	}
	return u, token, nil
}

func (s *Service) issueToken(u user.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken parses and validates a token, returning the actor it encodes.
func (s *Service) VerifyToken(tokenString string) (user.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthorized("unexpected token signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return user.Actor{}, apperr.Unauthorized("invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return user.Actor{}, apperr.Unauthorized("invalid token claims")
	}
	role, err := user.ParseRole(claims.Role)
	if err != nil {
		return user.Actor{}, apperr.Unauthorized("invalid token role")
	}
	return user.Actor{UserID: claims.UserID, Role: role}, nil
}

// Get returns one account. Customers may only read themselves.
func (s *Service) Get(ctx context.Context, actor user.Actor, id string) (user.User, error) {
	if !actor.Role.Staff() && actor.UserID != id {
		return user.User{}, apperr.Unauthorized("cannot read another user's account")
	}
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperr.NotFoundf("user %s not found", id)
	}
	return u, err
}

// List returns all accounts. Admin only.
func (s *Service) List(ctx context.Context, actor user.Actor) ([]user.User, error) {
	if actor.Role != user.RoleAdmin {
		return nil, apperr.Unauthorized("listing users requires the admin role")
	}
	return s.store.ListUsers(ctx)
}

// SetRole changes a user's role. Admin only; admins cannot demote
// themselves, which keeps at least one admin reachable.
func (s *Service) SetRole(ctx context.Context, actor user.Actor, id string, role user.Role) (user.User, error) {
	if actor.Role != user.RoleAdmin {
		return user.User{}, apperr.Unauthorized("changing roles requires the admin role")
	}
	if _, err := user.ParseRole(string(role)); err != nil {
		return user.User{}, apperr.Validationf("unknown role %q", role)
	}
	if actor.UserID == id && role != user.RoleAdmin {
		return user.User{}, apperr.Validation("admins cannot demote themselves")
	}

	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperr.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return user.User{}, err
	}
	u.Role = role
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).WithField("role", string(role)).Info("role changed")
	return updated, nil
}

// UpdateProfile changes the caller's own name and phone.
func (s *Service) UpdateProfile(ctx context.Context, actor user.Actor, name, phone string) (user.User, error) {
	u, err := s.store.GetUser(ctx, actor.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperr.NotFoundf("user %s not found", actor.UserID)
	}
	if err != nil {
		return user.User{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	u.Phone = strings.TrimSpace(phone)
	return s.store.UpdateUser(ctx, u)
}
