package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/db"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownUser        = errors.New("token subject no longer exists")
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Create(ctx context.Context, user *db.User) error
	GetByEmail(ctx context.Context, email string) (*db.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *UserInfo `json:"user"`
}

// UserInfo is the public view of a user; it never carries the password hash.
type UserInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func NewUserInfo(u *db.User) *UserInfo {
	info := &UserInfo{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
	if u.LastLogin.Valid {
		t := u.LastLogin.Time
		info.LastLogin = &t
	}
	return info
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   db.Role
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == db.RoleAdmin
}

type Service struct {
	users   UserStore
	creds   Credentials
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(users UserStore, creds Credentials, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		users:   users,
		creds:   creds,
		log:     log.WithComponent("auth"),
		metrics: m,
		now:     time.Now,
	}
}

// NormalizeEmail is applied before every lookup and insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with role "user" and signs a token for it.
func (s *Service) Register(ctx context.Context, name, email, password string) (*AuthResponse, error) {
	passwordHash, err := s.creds.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         db.RoleUser,
		CreatedAt:    s.now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.metrics.IncCounter(metrics.CounterUsersRegistered)
	s.log.Info(ctx, "user registered", map[string]any{"user_id": user.ID.String()})

	return s.respond(user)
}

// Login verifies the password and records the login time. Unknown email
// and wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Burn the same bcrypt work as a real comparison.
			_ = s.creds.ComparePassword(s.dummy(), password)
			s.metrics.IncCounter(metrics.CounterLoginsFailed)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.creds.ComparePassword(user.PasswordHash, password); err != nil {
		s.metrics.IncCounter(metrics.CounterLoginsFailed)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}
	user.LastLogin.Time, user.LastLogin.Valid = now, true

	s.metrics.IncCounter(metrics.CounterLoginsSucceeded)
	return s.respond(user)
}

// Profile returns the public view of the user with id.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*UserInfo, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewUserInfo(user), nil
}

// Authenticate verifies token and loads its subject. The returned role
// always comes from the stored user, never from the token.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.creds.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	return &Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *Service) respond(user *db.User) (*AuthResponse, error) {
	token, expiresAt, err := s.creds.IssueToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      NewUserInfo(user),
	}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.creds.HashPassword(uuid.NewString())
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
