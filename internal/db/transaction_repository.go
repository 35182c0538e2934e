package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        string
	Amount      float64
	Category    string
	Description string
	Date        time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilter narrows ListByUser. Empty fields match everything.
type ListFilter struct {
	Type   string
	Search string
}

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, type, amount, category, description, date, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	t := &Transaction{}
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Category, &t.Description, &t.Date, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepository) Create(ctx context.Context, t *Transaction) error {
	t.Date = timestamp(t.Date)
	t.CreatedAt = timestamp(t.CreatedAt)
	t.UpdatedAt = timestamp(t.UpdatedAt)

	query := r.db.Rebind(`
		INSERT INTO transactions (id, user_id, type, amount, category, description, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Type, t.Amount, t.Category, t.Description, t.Date, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db.TransactionRepository.Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := r.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("db.TransactionRepository.GetByID: %w", err)
	}
	return t, nil
}

// ListByUser returns all of userID's transactions, newest date first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`)
	args := []any{userID}

	if f.Type != "" {
		sb.WriteString(` AND type = ?`)
		args = append(args, f.Type)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		sb.WriteString(` AND (LOWER(category) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	sb.WriteString(` ORDER BY date DESC, created_at DESC`)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("db.TransactionRepository.ListByUser: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("db.TransactionRepository.ListByUser: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Update overwrites the mutable fields of t. The owner column is never written.
func (r *TransactionRepository) Update(ctx context.Context, t *Transaction) error {
	t.Date = timestamp(t.Date)
	t.UpdatedAt = timestamp(t.UpdatedAt)

	query := r.db.Rebind(`
		UPDATE transactions
		SET type = ?, amount = ?, category = ?, description = ?, date = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		t.Type, t.Amount, t.Category, t.Description, t.Date, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("db.TransactionRepository.Update: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db.TransactionRepository.Update: %w", err)
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM transactions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("db.TransactionRepository.Delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db.TransactionRepository.Delete: %w", err)
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
