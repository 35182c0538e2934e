package api

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/auth"
	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/ledger"
)

type TransactionHandlers struct {
	ledger *ledger.Service
}

func NewTransactionHandlers(l *ledger.Service) *TransactionHandlers {
	return &TransactionHandlers{ledger: l}
}

type MessageResponse struct {
	Message string `json:"message"`
}

// List handles GET /api/transactions?type=&search=
func (h *TransactionHandlers) List(w http.ResponseWriter, r *http.Request) error {
	caller, err := callerID(r)
	if err != nil {
		return err
	}

	list, err := h.ledger.List(r.Context(), caller, filterFromQuery(r))
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusOK, list)
	return nil
}

// Create handles POST /api/transactions
func (h *TransactionHandlers) Create(w http.ResponseWriter, r *http.Request) error {
	caller, err := callerID(r)
	if err != nil {
		return err
	}

	var in ledger.Input
	if err := apperrors.DecodeJSON(w, r, &in); err != nil {
		return err
	}

	t, err := h.ledger.Create(r.Context(), caller, in)
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusCreated, t)
	return nil
}

// Get handles GET /api/transactions/{id}
func (h *TransactionHandlers) Get(w http.ResponseWriter, r *http.Request) error {
	caller, id, err := callerAndTransaction(r)
	if err != nil {
		return err
	}

	t, err := h.ledger.Get(r.Context(), caller, id)
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusOK, t)
	return nil
}

// Update handles PUT /api/transactions/{id}
func (h *TransactionHandlers) Update(w http.ResponseWriter, r *http.Request) error {
	caller, id, err := callerAndTransaction(r)
	if err != nil {
		return err
	}

	var in ledger.Input
	if err := apperrors.DecodeJSON(w, r, &in); err != nil {
		return err
	}

	t, err := h.ledger.Update(r.Context(), caller, id, in)
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusOK, t)
	return nil
}

// Delete handles DELETE /api/transactions/{id}
func (h *TransactionHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	caller, id, err := callerAndTransaction(r)
	if err != nil {
		return err
	}

	if err := h.ledger.Delete(r.Context(), caller, id); err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Transaction deleted"})
	return nil
}

// Summary handles GET /api/transactions/summary
func (h *TransactionHandlers) Summary(w http.ResponseWriter, r *http.Request) error {
	caller, err := callerID(r)
	if err != nil {
		return err
	}

	sum, err := h.ledger.Summary(r.Context(), caller)
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusOK, sum)
	return nil
}

// ExportCSV handles GET /api/transactions/export
func (h *TransactionHandlers) ExportCSV(w http.ResponseWriter, r *http.Request) error {
	caller, err := callerID(r)
	if err != nil {
		return err
	}

	// Render into memory first so a failure can still become a JSON error.
	var buf bytes.Buffer
	if err := h.ledger.WriteCSV(r.Context(), caller, filterFromQuery(r), &buf); err != nil {
		return ledgerError(err)
	}

	filename := "transactions_" + time.Now().UTC().Format(time.DateOnly) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, err = buf.WriteTo(w)
	return err
}

// Archive handles POST /api/transactions/export
func (h *TransactionHandlers) Archive(w http.ResponseWriter, r *http.Request) error {
	caller, err := callerID(r)
	if err != nil {
		return err
	}

	archive, err := h.ledger.Archive(r.Context(), caller, filterFromQuery(r))
	if err != nil {
		return ledgerError(err)
	}
	writeJSON(w, r, http.StatusCreated, archive)
	return nil
}

func filterFromQuery(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	return ledger.Filter{Type: q.Get("type"), Search: q.Get("search")}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		return uuid.Nil, apperrors.Unauthorized("not authenticated")
	}
	return identity.UserID, nil
}

// callerAndTransaction resolves the caller and the {id} path value. An id
// that is not a UUID cannot name a stored transaction, so it is a 404.
func callerAndTransaction(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	caller, err := callerID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperrors.NotFound("transaction")
	}
	return caller, id, nil
}

// ledgerError maps ledger failures onto the HTTP error taxonomy.
func ledgerError(err error) error {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.ValidationFields(verr.Fields)
	case errors.Is(err, ledger.ErrNotFound):
		return apperrors.NotFound("transaction")
	case errors.Is(err, ledger.ErrForbidden):
		return apperrors.Forbidden("not authorized to access this transaction")
	case errors.Is(err, ledger.ErrExportDisabled):
		return apperrors.StorageUnavailable()
	default:
		return err
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
}
