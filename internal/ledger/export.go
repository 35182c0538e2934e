package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/metrics"
	"github.com/financetracker/backend/internal/storage"
)

var csvHeader = []string{"Date", "Type", "Category", "Description", "Amount"}

// WriteCSV writes the caller's filtered transactions as CSV.
func (s *Service) WriteCSV(ctx context.Context, caller uuid.UUID, f Filter, w io.Writer) error {
	rows, err := s.List(ctx, caller, f)
	if err != nil {
		return err
	}
	return encodeCSV(w, rows)
}

func encodeCSV(w io.Writer, rows []Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range rows {
		record := []string{
			t.Date.UTC().Format(time.DateOnly),
			t.Type,
			safeCell(t.Category),
			safeCell(t.Description),
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// safeCell keeps spreadsheet apps from evaluating user text as a formula.
func safeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// Archive is a stored export and its time-limited download link.
type Archive struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Archive writes the caller's CSV to object storage and presigns it.
func (s *Service) Archive(ctx context.Context, caller uuid.UUID, f Filter) (*Archive, error) {
	if s.objects == nil {
		return nil, ErrExportDisabled
	}

	var buf bytes.Buffer
	if err := s.WriteCSV(ctx, caller, f, &buf); err != nil {
		return nil, err
	}

	now := s.now()
	key := storage.ExportKey(caller, now)
	size := int64(buf.Len())
	if err := s.objects.Put(ctx, key, &buf, size, "text/csv"); err != nil {
		return nil, fmt.Errorf("ledger.Archive: %w", err)
	}

	url, err := s.objects.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("ledger.Archive: %w", err)
	}

	s.metrics.IncCounter(metrics.CounterExportsArchived)
	s.log.Info(ctx, "export archived", map[string]any{"key": key, "bytes": size})
	return &Archive{Key: key, URL: url, ExpiresAt: now.Add(s.presignTTL)}, nil
}
