// Package ledger persists expense entries in a libSQL / SQLite database and
// implements domain.Ledger. Every query is scoped to one owner.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"expensechat/internal/db"
	"expensechat/internal/domain"
)

// Store is a domain.Ledger backed by database/sql.
type Store struct {
	db    *sql.DB
	newID func() string    // injectable for tests
	now   func() time.Time // injectable for tests
}

// NewStore wraps an open, migrated database. Panics if conn is nil.
func NewStore(conn *sql.DB) *Store {
	if conn == nil {
		panic("ledger: db must not be nil")
	}
	return &Store{db: conn, newID: uuid.NewString, now: time.Now}
}

// Open connects to dbURL, applies migrations and returns a ready Store.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	conn, err := db.Connect(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return NewStore(conn), nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the migration version applied to the ledger database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return db.Version(ctx, s.db)
}

// createdAtLayout is fixed width so created_at sorts correctly as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const expenseColumns = `id, user_id, amount, category, date, COALESCE(description, ''), created_at`

// AddExpense inserts one entry owned by ownerID.
func (s *Store) AddExpense(ctx context.Context, ownerID string, e domain.NewExpense) (domain.Expense, error) {
	const op = "add expense"
	if ownerID == "" {
		return domain.Expense{}, storageErr(op, domain.ErrMissingOwner)
	}
	exp := domain.Expense{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
		CreatedAt:   s.now().UTC(),
	}
	var desc sql.NullString
	if exp.Description != "" {
		desc = sql.NullString{String: exp.Description, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount, category, date, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.OwnerID, exp.Amount, string(exp.Category), exp.Date, desc, exp.CreatedAt.Format(createdAtLayout),
	)
	if err != nil {
		return domain.Expense{}, storageErr(op, err)
	}
	return exp, nil
}

// GetExpenses returns ownerID's entries matching f, newest date first.
func (s *Store) GetExpenses(ctx context.Context, ownerID string, f domain.ExpenseFilter) ([]domain.Expense, error) {
	const op = "get expenses"
	if ownerID == "" {
		return nil, storageErr(op, domain.ErrMissingOwner)
	}
	where, args := scopedWhere(ownerID, f.Category, f.StartDate, f.EndDate)
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + where + ` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []domain.Expense{}
	for rows.Next() {
		var (
			e         domain.Expense
			category  string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Amount, &category, &e.Date, &e.Description, &createdAt); err != nil {
			return nil, storageErr(op, err)
		}
		e.Category = domain.Category(category)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// CalculateTotal sums ownerID's amounts matching f, overall and per category.
func (s *Store) CalculateTotal(ctx context.Context, ownerID string, f domain.TotalFilter) (domain.Totals, error) {
	const op = "calculate total"
	totals := domain.Totals{ByCategory: map[domain.Category]float64{}}
	if ownerID == "" {
		return totals, storageErr(op, domain.ErrMissingOwner)
	}
	where, args := scopedWhere(ownerID, f.Category, f.StartDate, f.EndDate)
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, SUM(amount), COUNT(*) FROM expenses WHERE `+where+` GROUP BY category ORDER BY category`, args...)
	if err != nil {
		return totals, storageErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			sum      float64
			count    int
		)
		if err := rows.Scan(&category, &sum, &count); err != nil {
			return totals, storageErr(op, err)
		}
		totals.ByCategory[domain.Category(category)] = sum
		totals.Total += sum
		totals.Count += count
	}
	if err := rows.Err(); err != nil {
		return totals, storageErr(op, err)
	}
	return totals, nil
}

// DeleteExpense removes id if it belongs to ownerID. Deleting a missing or
// foreign id is a no-op reported as false.
func (s *Store) DeleteExpense(ctx context.Context, ownerID, id string) (bool, error) {
	const op = "delete expense"
	if ownerID == "" {
		return false, storageErr(op, domain.ErrMissingOwner)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return false, storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}
	return n > 0, nil
}

// scopedWhere builds the owner-scoped WHERE clause shared by queries.
func scopedWhere(ownerID string, category domain.Category, start, end string) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{ownerID}
	if category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(category))
	}
	if start != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, start)
	}
	if end != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, end)
	}
	return strings.Join(clauses, " AND "), args
}

func storageErr(op string, err error) error {
	var se *domain.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}

var _ domain.Ledger = (*Store)(nil)
