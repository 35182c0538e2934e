package ledger

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/financetracker/backend/internal/category"
)

const (
	maxDescriptionLength = 500
	// Larger amounts lose cent precision as float64.
	maxAmount = 1e12
)

// Input is the body of a create or update. Update replaces all fields, so
// the rules are the same for both.
type Input struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	// Date is RFC 3339 or YYYY-MM-DD. Empty means now.
	Date string `json:"date"`
}

// ValidationError lists each rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

type validInput struct {
	Type        string
	Amount      float64
	Category    string
	Description string
	Date        time.Time
}

func (in Input) validate(now time.Time) (*validInput, error) {
	problems := map[string]string{}
	out := &validInput{}

	typ, err := category.ParseType(in.Type)
	if err != nil {
		problems["type"] = "type must be income or expense"
	} else {
		out.Type = string(typ)
	}

	amount := roundCents(in.Amount)
	switch {
	case math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0):
		problems["amount"] = "amount must be a number"
	case amount <= 0:
		problems["amount"] = "amount must be greater than 0"
	case amount > maxAmount:
		problems["amount"] = "amount is too large"
	default:
		out.Amount = amount
	}

	if err == nil {
		cat, cerr := category.Parse(typ, in.Category)
		switch {
		case errors.Is(cerr, category.ErrEmpty):
			problems["category"] = "category is required"
		case errors.Is(cerr, category.ErrTooLong):
			problems["category"] = "category must be at most 50 characters"
		case cerr != nil:
			problems["category"] = "category contains invalid characters"
		default:
			out.Category = cat.String()
		}
	} else if strings.TrimSpace(in.Category) == "" {
		problems["category"] = "category is required"
	}

	out.Description = strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(out.Description) > maxDescriptionLength {
		problems["description"] = "description must be at most 500 characters"
	}

	date, ok := parseDate(in.Date, now)
	if !ok {
		problems["date"] = "date must be RFC 3339 or YYYY-MM-DD"
	}
	out.Date = date

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return out, nil
}

func parseDate(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
