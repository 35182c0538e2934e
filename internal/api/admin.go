package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/admin"
	apperrors "github.com/financetracker/backend/internal/errors"
)

type AdminHandlers struct {
	admin *admin.Service
}

func NewAdminHandlers(a *admin.Service) *AdminHandlers {
	return &AdminHandlers{admin: a}
}

type RoleRequest struct {
	Role string `json:"role"`
}

type DeleteUserResponse struct {
	Message             string `json:"message"`
	DeletedTransactions int64  `json:"deletedTransactions"`
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := h.admin.ListUsers(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, users)
	return nil
}

// Stats handles GET /api/admin/stats
func (h *AdminHandlers) Stats(w http.ResponseWriter, r *http.Request) error {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, r, http.StatusOK, stats)
	return nil
}

// SetRole handles PUT /api/admin/users/{id}/role
func (h *AdminHandlers) SetRole(w http.ResponseWriter, r *http.Request) error {
	actor, target, err := actorAndUser(r)
	if err != nil {
		return err
	}

	var req RoleRequest
	if err := apperrors.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	info, err := h.admin.SetRole(r.Context(), actor, target, req.Role)
	if err != nil {
		return adminError(err)
	}
	writeJSON(w, r, http.StatusOK, info)
	return nil
}

// DeleteUser handles DELETE /api/admin/users/{id}
func (h *AdminHandlers) DeleteUser(w http.ResponseWriter, r *http.Request) error {
	actor, target, err := actorAndUser(r)
	if err != nil {
		return err
	}

	removed, err := h.admin.DeleteUser(r.Context(), actor, target)
	if err != nil {
		return adminError(err)
	}
	writeJSON(w, r, http.StatusOK, DeleteUserResponse{
		Message:             "User and their data deleted successfully",
		DeletedTransactions: removed,
	})
	return nil
}

func actorAndUser(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	actor, err := callerID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	target, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apperrors.NotFound("user")
	}
	return actor, target, nil
}

func adminError(err error) error {
	switch {
	case errors.Is(err, admin.ErrUserNotFound):
		return apperrors.NotFound("user")
	case errors.Is(err, admin.ErrInvalidRole):
		return apperrors.ValidationFields(map[string]string{"role": err.Error()})
	case errors.Is(err, admin.ErrSelfAction):
		return apperrors.ValidationError(err.Error())
	default:
		return err
	}
}
