// Package category validates transaction types and categories.
//
// A category is either one of the predefined names for its transaction
// type or a custom label. Predefined names are matched case-insensitively
// after Unicode normalisation and returned in canonical spelling; anything
// else that passes validation is kept as a custom category.
package category

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Type is the direction of a transaction.
type Type string

const (
	Income  Type = "income"
	Expense Type = "expense"
)

// MaxLength is the longest custom category accepted, in runes.
const MaxLength = 50

var (
	ErrInvalidType  = errors.New("type must be income or expense")
	ErrEmpty        = errors.New("category is required")
	ErrTooLong      = fmt.Errorf("category must be at most %d characters", MaxLength)
	ErrInvalidChars = errors.New("category contains control characters")
)

var predefined = map[Type][]string{
	Income:  {"Salary", "Freelance", "Investment", "Gift", "Other"},
	Expense: {"Food", "Transport", "Shopping", "Bills", "Entertainment", "Health", "Education", "Other"},
}

// Category is a validated category name.
type Category struct {
	name  string
	known bool
}

func (c Category) String() string { return c.name }

// Known reports whether c is one of the predefined categories.
func (c Category) Known() bool { return c.known }

// ParseType validates a transaction type.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// Parse validates raw as a category for transactions of type t.
func Parse(t Type, raw string) (Category, error) {
	name := clean(raw)
	if name == "" {
		return Category{}, ErrEmpty
	}
	if utf8.RuneCountInString(name) > MaxLength {
		return Category{}, ErrTooLong
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return Category{}, ErrInvalidChars
		}
	}

	// Casers carry state, so each call gets its own.
	fold := cases.Fold()
	key := fold.String(name)
	for _, p := range predefined[t] {
		if fold.String(p) == key {
			return Category{name: p, known: true}, nil
		}
	}
	return Category{name: name}, nil
}

// Predefined returns the suggested categories for t.
func Predefined(t Type) []string {
	out := make([]string, len(predefined[t]))
	copy(out, predefined[t])
	return out
}

// clean NFC-normalises s and collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
