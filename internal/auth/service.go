package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examportal/internal/apperr"
	"examportal/internal/validate"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	ErrInvalidCredentials = apperr.Unauthenticated("invalid_credentials", "invalid credentials")
	ErrUnauthorized       = apperr.Unauthenticated("unauthorized", "unauthorized")
	ErrForbidden          = apperr.Authorization("forbidden", "forbidden")
	ErrUserExists         = apperr.Conflict("user_exists", "username or email already registered")
	ErrUserNotFound       = apperr.NotFound("user_not_found", "user not found")
	ErrInvalidRole        = apperr.Validation("invalid_role", "role must be student, teacher or admin")
)

type Service struct {
	store      Store
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

type ServiceConfig struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

// User is an account as exposed to the rest of the module.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the authenticated identity handed to services.
type Principal struct {
	ID   int64
	Role string
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

func (p Principal) IsStaff() bool {
	return p.Role == RoleTeacher || p.Role == RoleAdmin
}

type RegisterInput struct {
	Username string `json:"username" validate:"notblank,max=64"`
	FullName string `json:"full_name" validate:"notblank,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:      store,
		secret:     []byte(cfg.Secret),
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: cfg.BcryptCost,
		now:        cfg.Now,
	}
}

// Register creates a student account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return s.CreateUser(ctx, in, RoleStudent)
}

// CreateUser creates an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, role string) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if !isValidRole(role) {
		return nil, ErrInvalidRole
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:  in.Username,
		FullName:  in.FullName,
		Email:     in.Email,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u, string(hash)); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and issues a signed token.
func (s *Service) Login(ctx context.Context, identifier, password string) (*User, string, time.Time, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	u, hash, err := s.store.FindCredentials(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issueToken(u)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return u, token, expiresAt, nil
}

// Authenticate resolves a bearer token into the current account.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	p, err := s.parseToken(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	u, err := s.store.GetUser(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	if !isValidRole(role) {
		return nil, ErrInvalidRole
	}
	return s.store.ListUsersByRole(ctx, role)
}

func isValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}
