package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/financetracker/backend/internal/admin"
	"github.com/financetracker/backend/internal/auth"
	"github.com/financetracker/backend/internal/db"
	"github.com/financetracker/backend/internal/health"
	"github.com/financetracker/backend/internal/ledger"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
)

type testAPI struct {
	t      *testing.T
	router *Router
	users  *db.UserRepository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	database, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := logger.Nop()
	m := metrics.New()
	users := db.NewUserRepository(database)
	creds := auth.NewJWTCredentials(auth.JWTConfig{
		Secret:     "api-test-secret",
		TTL:        time.Hour,
		Issuer:     "financetracker-test",
		BcryptCost: bcrypt.MinCost,
	})

	router := NewRouter(Deps{
		Auth: auth.NewService(users, creds, log, m),
		Ledger: ledger.NewService(ledger.Options{
			Store:   db.NewTransactionRepository(database),
			Log:     log,
			Metrics: m,
		}),
		Admin:   admin.NewService(users, db.NewStatsRepository(database), nil, log, m),
		Health:  health.NewHandler(health.NewChecker(&health.CheckerConfig{DB: database, Version: "test"})),
		Metrics: m,
		Log:     log,
	})

	return &testAPI{t: t, router: router, users: users}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type session struct {
	token  string
	userID string
}

func (a *testAPI) register(name, email string) session {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "correct horse",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp auth.AuthResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return session{token: resp.Token, userID: resp.User.ID}
}

func (a *testAPI) promote(s session) {
	a.t.Helper()
	require.NoError(a.t, a.users.UpdateRole(context.Background(), uuid.MustParse(s.userID), db.RoleAdmin))
}

func (a *testAPI) createTransaction(s session, body map[string]any) ledger.Transaction {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/transactions", s.token, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var tx ledger.Transaction
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &tx))
	return tx
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "Alice@Example.com")

	rec := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/api/auth/user", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me auth.UserInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, alice.userID, me.ID)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.Equal(t, "user", me.Role)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	a := newTestAPI(t)
	a.register("Alice", "alice@example.com")

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Other", "email": "ALICE@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMAIL_EXISTS", errorCode(t, rec))
}

func TestLoginFailures(t *testing.T) {
	a := newTestAPI(t)
	a.register("Alice", "alice@example.com")

	wrongPassword := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "nope",
	})
	unknownEmail := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "nope",
	})

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownEmail.Code)
	assert.Equal(t, errorCode(t, wrongPassword), errorCode(t, unknownEmail))
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestAPI(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/user"},
		{http.MethodGet, "/api/transactions"},
		{http.MethodPost, "/api/transactions"},
		{http.MethodGet, "/api/transactions/summary"},
		{http.MethodGet, "/api/transactions/export"},
		{http.MethodGet, "/api/transactions/" + uuid.NewString()},
		{http.MethodGet, "/api/admin/users"},
		{http.MethodDelete, "/api/admin/users/" + uuid.NewString()},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := a.do(rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec := a.do(http.MethodGet, "/api/transactions", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))
}

func TestCreateTransaction(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")

	tx := a.createTransaction(alice, map[string]any{
		"type": "expense", "amount": 50, "category": "Food",
	})
	assert.Equal(t, alice.userID, tx.OwnerUserID)
	assert.Equal(t, "expense", tx.Type)
	assert.Equal(t, 50.0, tx.Amount)
	assert.Equal(t, "Food", tx.Category)
	assert.NotEmpty(t, tx.ID)

	rec := a.do(http.MethodPost, "/api/transactions", alice.token, map[string]any{
		"type": "gift", "amount": -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestOwnershipIsEnforced(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")
	bob := a.register("Bob", "bob@example.com")
	a.promote(bob)

	tx := a.createTransaction(alice, map[string]any{
		"type": "income", "amount": 1000, "category": "Salary",
	})
	path := "/api/transactions/" + tx.ID

	// Admin role does not grant access to another user's transactions.
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		var body any
		if method == http.MethodPut {
			body = map[string]any{"type": "income", "amount": 1, "category": "Salary"}
		}
		rec := a.do(method, path, bob.token, body)
		assert.Equal(t, http.StatusForbidden, rec.Code, method)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	}

	rec := a.do(http.MethodGet, "/api/transactions", bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	// Alice's transaction is untouched.
	rec = a.do(http.MethodGet, path, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got ledger.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1000.0, got.Amount)
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")
	tx := a.createTransaction(alice, map[string]any{
		"type": "expense", "amount": 20, "category": "Food", "date": "2024-03-01",
	})
	path := "/api/transactions/" + tx.ID

	rec := a.do(http.MethodPut, path, alice.token, map[string]any{
		"type": "expense", "amount": 25.5, "category": "Transport", "description": "taxi", "date": "2024-03-02",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated ledger.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, tx.ID, updated.ID)
	assert.Equal(t, alice.userID, updated.OwnerUserID)
	assert.Equal(t, 25.5, updated.Amount)
	assert.Equal(t, "Transport", updated.Category)

	rec = a.do(http.MethodDelete, path, alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Transaction deleted"}`, rec.Body.String())

	rec = a.do(http.MethodGet, path, alice.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingAndMalformedIDs(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rec := a.do(http.MethodGet, "/api/transactions/"+id, alice.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
	}
}

func TestListFilters(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")
	a.createTransaction(alice, map[string]any{"type": "income", "amount": 100, "category": "Salary", "description": "June pay"})
	a.createTransaction(alice, map[string]any{"type": "expense", "amount": 30, "category": "Food", "description": "groceries"})

	var list []ledger.Transaction
	rec := a.do(http.MethodGet, "/api/transactions?type=expense", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Food", list[0].Category)

	rec = a.do(http.MethodGet, "/api/transactions?search=pay", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Salary", list[0].Category)

	rec = a.do(http.MethodGet, "/api/transactions?type=bogus", alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryAndExport(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")
	a.createTransaction(alice, map[string]any{"type": "income", "amount": 100, "category": "Salary"})
	a.createTransaction(alice, map[string]any{"type": "expense", "amount": 40, "category": "Food", "description": "=SUM(A1)"})

	rec := a.do(http.MethodGet, "/api/transactions/summary", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	var sum struct {
		TotalIncome   float64 `json:"totalIncome"`
		TotalExpense  float64 `json:"totalExpense"`
		Balance       float64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 100.0, sum.TotalIncome)
	assert.Equal(t, 40.0, sum.TotalExpense)
	assert.Equal(t, 60.0, sum.Balance)

	rec = a.do(http.MethodGet, "/api/transactions/export", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "transactions_")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Type,Category,Description,Amount", lines[0])
	assert.Contains(t, rec.Body.String(), "'=SUM(A1)")

	rec = a.do(http.MethodPost, "/api/transactions/export", alice.token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errorCode(t, rec))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newTestAPI(t)
	alice := a.register("Alice", "alice@example.com")

	for _, path := range []string{"/api/admin/users", "/api/admin/stats"} {
		rec := a.do(http.MethodGet, path, alice.token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
	rec := a.do(http.MethodDelete, "/api/admin/users/"+alice.userID, alice.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminDeleteCascades(t *testing.T) {
	a := newTestAPI(t)
	root := a.register("Root", "root@example.com")
	a.promote(root)
	alice := a.register("Alice", "alice@example.com")
	a.createTransaction(alice, map[string]any{"type": "expense", "amount": 5, "category": "Food"})
	a.createTransaction(alice, map[string]any{"type": "expense", "amount": 7, "category": "Food"})

	rec := a.do(http.MethodGet, "/api/admin/users", root.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var users []auth.UserInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	rec = a.do(http.MethodDelete, "/api/admin/users/"+alice.userID, root.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"User and their data deleted successfully","deletedTransactions":2}`, rec.Body.String())

	// The deleted user's token no longer authenticates.
	rec = a.do(http.MethodGet, "/api/transactions", alice.token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/admin/stats", root.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats db.AdminStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Equal(t, int64(0), stats.TotalTransactions)

	rec = a.do(http.MethodDelete, "/api/admin/users/"+alice.userID, root.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSetRole(t *testing.T) {
	a := newTestAPI(t)
	root := a.register("Root", "root@example.com")
	a.promote(root)
	alice := a.register("Alice", "alice@example.com")

	rec := a.do(http.MethodPut, "/api/admin/users/"+alice.userID+"/role", root.token, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The role is read from the store on every request, so Alice's old token
	// now reaches admin routes.
	rec = a.do(http.MethodGet, "/api/admin/users", alice.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPut, "/api/admin/users/"+alice.userID+"/role", root.token, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPut, "/api/admin/users/"+root.userID+"/role", root.token, map[string]string{"role": "user"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoriesAndFallbacks(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cats map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Contains(t, cats["income"], "Salary")
	assert.Contains(t, cats["expense"], "Food")

	rec = a.do(http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = a.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ftk_")
}

func TestResponsesCarryRequestID(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(http.MethodGet, "/api/transactions", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEndToEndFlow(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "A", "email": "a@x.com", "password": "p",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var regA auth.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regA))
	require.NotEmpty(t, regA.Token)
	userA := session{token: regA.Token, userID: regA.User.ID}

	tx := a.createTransaction(userA, map[string]any{"type": "expense", "amount": 50, "category": "Food"})
	assert.Equal(t, userA.userID, tx.OwnerUserID)

	var list []ledger.Transaction
	rec = a.do(http.MethodGet, "/api/transactions", userA.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, tx.ID, list[0].ID)

	userB := a.register("B", "b@x.com")
	rec = a.do(http.MethodGet, "/api/transactions", userB.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
