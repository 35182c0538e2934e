package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx   context.Context
	db    *DB
	users *UserRepository
	txns  *TransactionRepository
	stats *StatsRepository
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	db, err := OpenSQLite(s.ctx, ":memory:")
	require.NoError(s.T(), err, "failed to create test database")
	s.db = db
	s.users = NewUserRepository(db)
	s.txns = NewTransactionRepository(db)
	s.stats = NewStatsRepository(db)
}

func (s *RepositorySuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) newUser(email string, created time.Time) *User {
	u := &User{
		ID:           uuid.New(),
		Name:         "User " + email,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    created,
	}
	require.NoError(s.T(), s.users.Create(s.ctx, u))
	return u
}

func (s *RepositorySuite) newTxn(owner uuid.UUID, typ string, amount float64, category, desc string, date time.Time) *Transaction {
	now := time.Now()
	t := &Transaction{
		ID:          uuid.New(),
		UserID:      owner,
		Type:        typ,
		Amount:      amount,
		Category:    category,
		Description: desc,
		Date:        date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(s.T(), s.txns.Create(s.ctx, t))
	return t
}

func (s *RepositorySuite) TestCreateAndGetUser() {
	u := s.newUser("a@x.com", time.Now())

	got, err := s.users.GetByEmail(s.ctx, "a@x.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)
	assert.Equal(s.T(), RoleUser, got.Role)
	assert.False(s.T(), got.LastLogin.Valid)

	byID, err := s.users.GetByID(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "a@x.com", byID.Email)
	assert.WithinDuration(s.T(), u.CreatedAt, byID.CreatedAt, time.Millisecond)
}

func (s *RepositorySuite) TestDuplicateEmail() {
	s.newUser("dup@x.com", time.Now())

	err := s.users.Create(s.ctx, &User{ID: uuid.New(), Name: "again", Email: "dup@x.com", PasswordHash: "h", CreatedAt: time.Now()})
	assert.ErrorIs(s.T(), err, ErrEmailExists)

	users, err := s.users.List(s.ctx)
	require.NoError(s.T(), err)
	assert.Len(s.T(), users, 1)
}

func (s *RepositorySuite) TestUserNotFound() {
	_, err := s.users.GetByID(s.ctx, uuid.New())
	assert.ErrorIs(s.T(), err, ErrUserNotFound)

	_, err = s.users.GetByEmail(s.ctx, "ghost@x.com")
	assert.ErrorIs(s.T(), err, ErrUserNotFound)

	assert.ErrorIs(s.T(), s.users.UpdateRole(s.ctx, uuid.New(), RoleAdmin), ErrUserNotFound)
}

func (s *RepositorySuite) TestListUsersNewestFirst() {
	base := time.Now().Add(-time.Hour)
	s.newUser("old@x.com", base)
	s.newUser("new@x.com", base.Add(30*time.Minute))

	users, err := s.users.List(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), users, 2)
	assert.Equal(s.T(), "new@x.com", users[0].Email)
	assert.Equal(s.T(), "old@x.com", users[1].Email)
}

func (s *RepositorySuite) TestTouchLastLoginAndRole() {
	u := s.newUser("role@x.com", time.Now())
	at := time.Now()

	require.NoError(s.T(), s.users.TouchLastLogin(s.ctx, u.ID, at))
	require.NoError(s.T(), s.users.UpdateRole(s.ctx, u.ID, RoleAdmin))

	got, err := s.users.GetByID(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), RoleAdmin, got.Role)
	require.True(s.T(), got.LastLogin.Valid)
	assert.WithinDuration(s.T(), at, got.LastLogin.Time, time.Millisecond)

	assert.Error(s.T(), s.users.UpdateRole(s.ctx, u.ID, Role("root")))
}

func (s *RepositorySuite) TestTransactionCRUD() {
	u := s.newUser("owner@x.com", time.Now())
	t := s.newTxn(u.ID, "expense", 50, "Food", "lunch", time.Now())

	got, err := s.txns.GetByID(s.ctx, t.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.UserID)
	assert.Equal(s.T(), 50.0, got.Amount)

	got.Amount = 75.25
	got.Category = "Bills"
	got.UpdatedAt = time.Now()
	require.NoError(s.T(), s.txns.Update(s.ctx, got))

	again, err := s.txns.GetByID(s.ctx, t.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 75.25, again.Amount)
	assert.Equal(s.T(), "Bills", again.Category)
	assert.Equal(s.T(), u.ID, again.UserID)

	require.NoError(s.T(), s.txns.Delete(s.ctx, t.ID))
	_, err = s.txns.GetByID(s.ctx, t.ID)
	assert.ErrorIs(s.T(), err, ErrTransactionNotFound)
	assert.ErrorIs(s.T(), s.txns.Delete(s.ctx, t.ID), ErrTransactionNotFound)
}

func (s *RepositorySuite) TestListByUserOrderAndFilters() {
	a := s.newUser("a@x.com", time.Now())
	b := s.newUser("b@x.com", time.Now())
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	s.newTxn(a.ID, "expense", 10, "Food", "groceries", base.Add(-48*time.Hour))
	s.newTxn(a.ID, "income", 1000, "Salary", "march pay", base)
	s.newTxn(a.ID, "expense", 30, "Transport", "50% off_bus", base.Add(-24*time.Hour))
	s.newTxn(b.ID, "expense", 99, "Food", "not mine", base)

	all, err := s.txns.ListByUser(s.ctx, a.ID, ListFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	assert.Equal(s.T(), "Salary", all[0].Category)
	assert.Equal(s.T(), "Transport", all[1].Category)
	assert.Equal(s.T(), "Food", all[2].Category)

	expenses, err := s.txns.ListByUser(s.ctx, a.ID, ListFilter{Type: "expense"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), expenses, 2)

	search, err := s.txns.ListByUser(s.ctx, a.ID, ListFilter{Search: "FOOD"})
	require.NoError(s.T(), err)
	require.Len(s.T(), search, 1)
	assert.Equal(s.T(), "groceries", search[0].Description)

	literal, err := s.txns.ListByUser(s.ctx, a.ID, ListFilter{Search: "50%"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), literal, 1)

	none, err := s.txns.ListByUser(s.ctx, uuid.New(), ListFilter{})
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), none)
	assert.Empty(s.T(), none)
}

func (s *RepositorySuite) TestDeleteCascade() {
	victim := s.newUser("victim@x.com", time.Now())
	other := s.newUser("other@x.com", time.Now())
	s.newTxn(victim.ID, "expense", 5, "Food", "", time.Now())
	s.newTxn(victim.ID, "income", 7, "Gift", "", time.Now())
	kept := s.newTxn(other.ID, "expense", 9, "Food", "", time.Now())

	removed, err := s.users.DeleteCascade(s.ctx, victim.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), removed)

	_, err = s.users.GetByID(s.ctx, victim.ID)
	assert.ErrorIs(s.T(), err, ErrUserNotFound)

	left, err := s.txns.ListByUser(s.ctx, victim.ID, ListFilter{})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), left)

	_, err = s.txns.GetByID(s.ctx, kept.ID)
	assert.NoError(s.T(), err)

	_, err = s.users.DeleteCascade(s.ctx, victim.ID)
	assert.ErrorIs(s.T(), err, ErrUserNotFound)
}

func (s *RepositorySuite) TestUserWithTransactionsCannotBeDeletedDirectly() {
	u := s.newUser("fk@x.com", time.Now())
	s.newTxn(u.ID, "expense", 1, "Food", "", time.Now())

	_, err := s.db.ExecContext(s.ctx, `DELETE FROM users WHERE id = ?`, u.ID)
	assert.Error(s.T(), err, "foreign key must reject deleting an owner before its transactions")
}

func (s *RepositorySuite) TestAdminStats() {
	now := time.Now().UTC()
	active := s.newUser("active@x.com", now)
	idle := s.newUser("idle@x.com", now.AddDate(-1, 0, 0))
	require.NoError(s.T(), s.users.TouchLastLogin(s.ctx, active.ID, now.Add(-time.Hour)))
	require.NoError(s.T(), s.users.TouchLastLogin(s.ctx, idle.ID, now.Add(-30*24*time.Hour)))

	s.newTxn(active.ID, "expense", 10, "Food", "", now)
	s.newTxn(active.ID, "expense", 15.5, "Bills", "", now)
	s.newTxn(idle.ID, "income", 100, "Salary", "", now)

	stats, err := s.stats.AdminStats(s.ctx, now)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), int64(2), stats.TotalUsers)
	assert.Equal(s.T(), int64(3), stats.TotalTransactions)
	assert.Equal(s.T(), int64(1), stats.ActiveUsers)
	assert.Equal(s.T(), int64(1), stats.NewUsersThisMonth)
	require.Len(s.T(), stats.TransactionsByType, 2)
	assert.Equal(s.T(), TypeTotal{Type: "expense", Total: 25.5, Count: 2}, stats.TransactionsByType[0])
	assert.Equal(s.T(), TypeTotal{Type: "income", Total: 100, Count: 1}, stats.TransactionsByType[1])
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}
	q := `SELECT a FROM t WHERE x = ? AND y = ?`

	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2`, pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite", sqliteDSN(":memory:"))
	assert.Equal(t, "app.db?cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", sqliteDSN("app.db?cache=shared"))
	assert.Equal(t, "x.db?_pragma=foreign_keys(1)&_time_format=sqlite", sqliteDSN("x.db?_pragma=foreign_keys(1)&_time_format=sqlite"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})
	assert.Error(t, err)
}
