// Package ledger is the ownership-checked transaction service. Every
// operation takes the caller's user id; a caller only ever sees or changes
// transactions it owns, whatever its role.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/cache"
	"github.com/financetracker/backend/internal/db"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
	"github.com/financetracker/backend/internal/storage"
	"github.com/financetracker/backend/internal/websocket"
)

var (
	ErrNotFound  = errors.New("transaction not found")
	ErrForbidden = errors.New("transaction belongs to another user")
	// ErrExportDisabled is returned by Archive when no object store is configured.
	ErrExportDisabled = errors.New("export storage is not configured")
)

// Store is the persistence the ledger needs. db.TransactionRepository
// satisfies it.
type Store interface {
	Create(ctx context.Context, t *db.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*db.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, f db.ListFilter) ([]db.Transaction, error)
	Update(ctx context.Context, t *db.Transaction) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Publisher fans transaction events out to the owner's live connections.
type Publisher interface {
	Publish(userID uuid.UUID, eventType string, payload any)
}

type Options struct {
	Store   Store
	Cache   *cache.Cache
	Events  Publisher
	Objects storage.ObjectStore
	// PresignTTL bounds archive download links.
	PresignTTL time.Duration
	Log        *logger.Logger
	Metrics    *metrics.Metrics
}

type Service struct {
	store      Store
	cache      *cache.Cache
	events     Publisher
	objects    storage.ObjectStore
	presignTTL time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(opts Options) *Service {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		store:      opts.Store,
		cache:      opts.Cache,
		events:     opts.Events,
		objects:    opts.Objects,
		presignTTL: ttl,
		log:        opts.Log.WithComponent("ledger"),
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

// Transaction is the client view of a stored transaction.
type Transaction struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"ownerUserId"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newTransaction(t *db.Transaction) *Transaction {
	return &Transaction{
		ID:          t.ID.String(),
		OwnerUserID: t.UserID.String(),
		Type:        t.Type,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Filter narrows List and the exports. Type "" or "all" matches both types.
type Filter struct {
	Type   string
	Search string
}

func (f Filter) normalize() (db.ListFilter, error) {
	out := db.ListFilter{Search: strings.TrimSpace(f.Search)}
	switch t := strings.ToLower(strings.TrimSpace(f.Type)); t {
	case "", "all":
	case "income", "expense":
		out.Type = t
	default:
		return out, &ValidationError{Fields: map[string]string{"type": "type must be income, expense or all"}}
	}
	return out, nil
}

// Create stores a transaction owned by caller.
func (s *Service) Create(ctx context.Context, caller uuid.UUID, in Input) (*Transaction, error) {
	now := s.now()
	fields, err := in.validate(now)
	if err != nil {
		return nil, err
	}

	t := &db.Transaction{
		ID:          uuid.New(),
		UserID:      caller,
		Type:        fields.Type,
		Amount:      fields.Amount,
		Category:    fields.Category,
		Description: fields.Description,
		Date:        fields.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("ledger.Create: %w", err)
	}

	s.metrics.IncCounter(metrics.CounterTransactionsCreated)
	out := newTransaction(t)
	s.changed(ctx, caller, websocket.EventTransactionCreated, out)
	return out, nil
}

// List returns the caller's transactions, newest date first.
func (s *Service) List(ctx context.Context, caller uuid.UUID, f Filter) ([]Transaction, error) {
	filter, err := f.normalize()
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListByUser(ctx, caller, filter)
	if err != nil {
		return nil, fmt.Errorf("ledger.List: %w", err)
	}

	out := make([]Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, *newTransaction(&rows[i]))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, caller, id uuid.UUID) (*Transaction, error) {
	t, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return newTransaction(t), nil
}

// Update replaces every mutable field. The owner never changes; concurrent
// updates are last-write-wins.
func (s *Service) Update(ctx context.Context, caller, id uuid.UUID, in Input) (*Transaction, error) {
	t, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields, err := in.validate(now)
	if err != nil {
		return nil, err
	}

	t.Type = fields.Type
	t.Amount = fields.Amount
	t.Category = fields.Category
	t.Description = fields.Description
	t.Date = fields.Date
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		if errors.Is(err, db.ErrTransactionNotFound) {
			// Deleted between load and write.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger.Update: %w", err)
	}

	s.metrics.IncCounter(metrics.CounterTransactionsUpdated)
	out := newTransaction(t)
	s.changed(ctx, caller, websocket.EventTransactionUpdated, out)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, caller, id uuid.UUID) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, db.ErrTransactionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ledger.Delete: %w", err)
	}

	s.metrics.IncCounter(metrics.CounterTransactionsDeleted)
	s.changed(ctx, caller, websocket.EventTransactionDeleted, map[string]string{"id": id.String()})
	return nil
}

// owned loads id and checks that caller owns it. Existence is checked
// before ownership.
func (s *Service) owned(ctx context.Context, caller, id uuid.UUID) (*db.Transaction, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger.load: %w", err)
	}
	if t.UserID != caller {
		s.metrics.IncCounter(metrics.CounterOwnershipDenied)
		s.log.Warn(ctx, "ownership check failed", map[string]any{
			"caller":         caller.String(),
			"transaction_id": id.String(),
		})
		return nil, ErrForbidden
	}
	return t, nil
}

// changed drops derived data for the owner and notifies live clients.
func (s *Service) changed(ctx context.Context, owner uuid.UUID, event string, payload any) {
	s.cache.Delete(ctx, cache.SummaryKey(owner), cache.AdminStatsKey)
	if s.events != nil {
		s.events.Publish(owner, event, payload)
	}
}

// sortedCategories orders totals descending, then by name.
func sortedCategories(totals map[string]float64) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(totals))
	for name, total := range totals {
		out = append(out, CategoryTotal{Category: name, Total: roundCents(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Category < out[j].Category
	})
	return out
}
