package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/cache"
	"github.com/financetracker/backend/internal/db"
)

const trendMonths = 6

type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

type MonthTotals struct {
	Month   string  `json:"month"` // YYYY-MM
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// MonthOverMonth holds percent changes against the previous calendar
// month. A nil field means the previous month had nothing to compare with.
type MonthOverMonth struct {
	Income  *float64 `json:"income"`
	Expense *float64 `json:"expense"`
}

// Summary is the per-user dashboard.
type Summary struct {
	TotalIncome       float64         `json:"totalIncome"`
	TotalExpense      float64         `json:"totalExpense"`
	Balance           float64         `json:"balance"`
	TransactionCount  int             `json:"transactionCount"`
	ExpenseByCategory []CategoryTotal `json:"expenseByCategory"`
	MonthlyTrend      []MonthTotals   `json:"monthlyTrend"`
	MonthOverMonth    MonthOverMonth  `json:"monthOverMonth"`
}

// Summary computes the caller's dashboard, served from cache when possible.
func (s *Service) Summary(ctx context.Context, caller uuid.UUID) (*Summary, error) {
	key := cache.SummaryKey(caller)

	var cached Summary
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.store.ListByUser(ctx, caller, db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("ledger.Summary: %w", err)
	}

	sum := summarize(rows, s.now())
	// A failed write only costs the next request a recompute.
	_ = s.cache.SetJSON(ctx, key, sum)
	return sum, nil
}

func summarize(rows []db.Transaction, now time.Time) *Summary {
	now = now.UTC()
	sum := &Summary{TransactionCount: len(rows)}

	// Oldest month first; the last slot is the current month.
	trend := make([]MonthTotals, trendMonths)
	index := make(map[string]int, trendMonths)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < trendMonths; i++ {
		month := first.AddDate(0, i-(trendMonths-1), 0).Format("2006-01")
		trend[i].Month = month
		index[month] = i
	}

	byCategory := map[string]float64{}
	for _, t := range rows {
		i, inTrend := index[t.Date.UTC().Format("2006-01")]
		switch t.Type {
		case "income":
			sum.TotalIncome += t.Amount
			if inTrend {
				trend[i].Income += t.Amount
			}
		case "expense":
			sum.TotalExpense += t.Amount
			byCategory[t.Category] += t.Amount
			if inTrend {
				trend[i].Expense += t.Amount
			}
		}
	}

	for i := range trend {
		trend[i].Income = roundCents(trend[i].Income)
		trend[i].Expense = roundCents(trend[i].Expense)
	}

	sum.TotalIncome = roundCents(sum.TotalIncome)
	sum.TotalExpense = roundCents(sum.TotalExpense)
	sum.Balance = roundCents(sum.TotalIncome - sum.TotalExpense)
	sum.ExpenseByCategory = sortedCategories(byCategory)
	sum.MonthlyTrend = trend

	cur, prev := trend[trendMonths-1], trend[trendMonths-2]
	sum.MonthOverMonth = MonthOverMonth{
		Income:  percentChange(prev.Income, cur.Income),
		Expense: percentChange(prev.Expense, cur.Expense),
	}
	return sum
}

func percentChange(prev, cur float64) *float64 {
	if prev == 0 {
		return nil
	}
	v := math.Round((cur-prev)/prev*1000) / 10
	return &v
}
