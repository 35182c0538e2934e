package auth

import (
	"errors"
	"net/http"

	"github.com/financetracker/backend/internal/db"
	apperrors "github.com/financetracker/backend/internal/errors"
)

type Handlers struct {
	authService *Service
}

func NewHandlers(authService *Service) *Handlers {
	return &Handlers{authService: authService}
}

// Register handles POST /api/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) error {
	var req RegisterRequest
	if err := apperrors.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	if problems := req.Validate(); len(problems) > 0 {
		return apperrors.ValidationFields(problems)
	}

	resp, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, db.ErrEmailExists) {
			return apperrors.EmailExists()
		}
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusCreated, resp)
	return nil
}

// Login handles POST /api/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := apperrors.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	if problems := req.Validate(); len(problems) > 0 {
		return apperrors.ValidationFields(problems)
	}

	resp, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return apperrors.InvalidCredentials()
		}
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

// Me handles GET /api/auth/user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		return apperrors.Unauthorized("not authenticated")
	}

	info, err := h.authService.Profile(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return apperrors.InvalidToken("user no longer exists")
		}
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, info)
	return nil
}
