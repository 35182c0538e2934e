package db

import (
	"context"
	"fmt"
	"time"
)

// TypeTotal aggregates transactions of one type.
type TypeTotal struct {
	Type  string  `json:"type"`
	Total float64 `json:"total"`
	Count int64   `json:"count"`
}

type AdminStats struct {
	TotalUsers         int64       `json:"totalUsers"`
	TotalTransactions  int64       `json:"totalTransactions"`
	ActiveUsers        int64       `json:"activeUsers"`
	NewUsersThisMonth  int64       `json:"newUsersThisMonth"`
	TransactionsByType []TypeTotal `json:"transactionsByType"`
}

// ActiveWindow is how recent a login must be for a user to count as active.
const ActiveWindow = 7 * 24 * time.Hour

type StatsRepository struct {
	db *DB
}

func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// AdminStats computes the admin dashboard counters relative to now.
func (r *StatsRepository) AdminStats(ctx context.Context, now time.Time) (*AdminStats, error) {
	const op = "db.StatsRepository.AdminStats"

	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	activeSince := now.Add(-ActiveWindow)

	stats := &AdminStats{TransactionsByType: []TypeTotal{}}

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&stats.TotalTransactions, `SELECT COUNT(*) FROM transactions`, nil},
		{&stats.ActiveUsers, `SELECT COUNT(*) FROM users WHERE last_login >= ?`, []any{timestamp(activeSince)}},
		{&stats.NewUsersThisMonth, `SELECT COUNT(*) FROM users WHERE created_at >= ?`, []any{timestamp(monthStart)}},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, r.db.Rebind(c.query), c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, COALESCE(SUM(amount), 0), COUNT(*)
		FROM transactions
		GROUP BY type
		ORDER BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tt TypeTotal
		if err := rows.Scan(&tt.Type, &tt.Total, &tt.Count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		stats.TransactionsByType = append(stats.TransactionsByType, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}
