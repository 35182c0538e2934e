package api

import (
	"net/http"

	"github.com/financetracker/backend/internal/category"
)

type CategoriesResponse struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

// Categories handles GET /api/categories. Clients may also send any other
// category name; these are the suggestions.
func Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, CategoriesResponse{
		Income:  category.Predefined(category.Income),
		Expense: category.Predefined(category.Expense),
	})
}
