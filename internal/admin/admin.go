package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/auth"
	"github.com/financetracker/backend/internal/cache"
	"github.com/financetracker/backend/internal/db"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidRole  = errors.New("role must be user or admin")
	// ErrSelfAction guards against an admin locking themselves out.
	ErrSelfAction = errors.New("admins cannot delete or demote themselves")
)

type UserStore interface {
	List(ctx context.Context) ([]db.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role db.Role) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) (int64, error)
}

type StatsStore interface {
	AdminStats(ctx context.Context, now time.Time) (*db.AdminStats, error)
}

type Service struct {
	users   UserStore
	stats   StatsStore
	cache   *cache.Cache
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(users UserStore, stats StatsStore, c *cache.Cache, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		users:   users,
		stats:   stats,
		cache:   c,
		log:     log.WithComponent("admin"),
		metrics: m,
		now:     time.Now,
	}
}

// ListUsers returns every user, newest first, without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]auth.UserInfo, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin.ListUsers: %w", err)
	}
	out := make([]auth.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, *auth.NewUserInfo(&users[i]))
	}
	return out, nil
}

// Stats returns the aggregate counters, cached for the cache TTL.
func (s *Service) Stats(ctx context.Context) (*db.AdminStats, error) {
	var cached db.AdminStats
	if s.cache.GetJSON(ctx, cache.AdminStatsKey, &cached) {
		return &cached, nil
	}

	stats, err := s.stats.AdminStats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("admin.Stats: %w", err)
	}
	_ = s.cache.SetJSON(ctx, cache.AdminStatsKey, stats)
	return stats, nil
}

// SetRole changes a user's role. It takes effect on the user's next request.
func (s *Service) SetRole(ctx context.Context, actor, target uuid.UUID, rawRole string) (*auth.UserInfo, error) {
	role := db.Role(strings.ToLower(strings.TrimSpace(rawRole)))
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if actor == target && role != db.RoleAdmin {
		return nil, ErrSelfAction
	}

	if err := s.users.UpdateRole(ctx, target, role); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("admin.SetRole: %w", err)
	}

	user, err := s.users.GetByID(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("admin.SetRole: %w", err)
	}

	s.cache.Delete(ctx, cache.AdminStatsKey)
	s.log.Info(ctx, "role changed", map[string]any{
		"actor":   actor.String(),
		"user_id": target.String(),
		"role":    string(role),
	})
	return auth.NewUserInfo(user), nil
}

// DeleteUser removes target and, first, every transaction it owns. It
// returns the number of transactions removed.
func (s *Service) DeleteUser(ctx context.Context, actor, target uuid.UUID) (int64, error) {
	if actor == target {
		return 0, ErrSelfAction
	}

	removed, err := s.users.DeleteCascade(ctx, target)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("admin.DeleteUser: %w", err)
	}

	s.cache.Delete(ctx, cache.AdminStatsKey, cache.SummaryKey(target))
	s.metrics.IncCounter(metrics.CounterUsersDeleted)
	s.log.Info(ctx, "user deleted", map[string]any{
		"actor":                actor.String(),
		"user_id":              target.String(),
		"deleted_transactions": removed,
	})
	return removed, nil
}
