// Package postgres provides a PostgreSQL implementation of ledger.Store
// using pgx. Money columns are DECIMAL(12, 2) and scan straight into
// decimal.Decimal; the paid <= amount invariant is also a CHECK constraint.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/trackpay/ledger"
)

// PGXDB is implemented by both pgxpool.Pool and pgx.Tx, so the store can
// run against a pool or inside a test transaction.
type PGXDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ PGXDB        = (*pgxpool.Pool)(nil)
	_ PGXDB        = (pgx.Tx)(nil)
	_ ledger.Store = (*Store)(nil)
)

// Connect establishes a connection pool to the PostgreSQL database.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

type Store struct {
	db   PGXDB
	pool *pgxpool.Pool
}

// New wraps db. Close is a no-op unless the store was built by Open.
func New(db PGXDB) *Store {
	return &Store{db: db}
}

// Open connects, migrates and returns a store that owns the pool.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Reset truncates all tables (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "TRUNCATE TABLE purchases, transactions, customers CASCADE")
	if err != nil {
		return fmt.Errorf("failed to reset tables: %w", err)
	}
	return nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*ledger.Customer, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	c := &ledger.Customer{
		ID:       ledger.CustomerID(uuid.NewString()),
		Name:     nc.Name,
		Phone:    nc.Phone,
		Location: nc.Location,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (id, name, phone, location)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING created_at
	`, c.ID, c.Name, c.Phone, c.Location).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	var (
		c        ledger.Customer
		location *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone, location, created_at
		FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &location, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if location != nil {
		c.Location = *location
	}

	c.Purchases, err = queryPurchases(ctx, s.db, `
		SELECT id, customer_id, amount, paid, description, date, created_at
		FROM purchases WHERE customer_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone, location, created_at
		FROM customers ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}

	customers := []ledger.Customer{}
	index := make(map[ledger.CustomerID]int)
	for rows.Next() {
		var (
			c        ledger.Customer
			location *string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &location, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		if location != nil {
			c.Location = *location
		}
		index[c.ID] = len(customers)
		customers = append(customers, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	purchases, err := queryPurchases(ctx, s.db, `
		SELECT id, customer_id, amount, paid, description, date, created_at
		FROM purchases ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	for _, p := range purchases {
		if i, ok := index[p.CustomerID]; ok {
			customers[i].Purchases = append(customers[i].Purchases, p)
		}
	}
	return customers, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func (s *Store) AddPurchase(ctx context.Context, customerID ledger.CustomerID, np ledger.NewPurchase) (*ledger.Purchase, error) {
	if err := np.Validate(); err != nil {
		return nil, err
	}
	if err := customerExists(ctx, s.db, customerID); err != nil {
		return nil, err
	}

	date := np.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	p := &ledger.Purchase{
		ID:          ledger.PurchaseID(uuid.NewString()),
		CustomerID:  customerID,
		Amount:      np.Amount,
		Paid:        np.Paid,
		Description: np.Description,
		Date:        ledger.DayOf(date),
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO purchases (id, customer_id, amount, paid, description, date)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING created_at
	`, p.ID, p.CustomerID, p.Amount.Value, p.Paid.Value, p.Description, p.Date).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := patchPurchase(ctx, tx, customerID, purchaseID, patch)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase update: %w", err)
	}
	return updated, nil
}

// UpdatePurchases writes every update in one database transaction. Each
// row is locked with FOR UPDATE before its paid value is compared to the
// update's PreviousPaid, so of two settlements planned from the same read
// only the first commits; the second fails with ErrConcurrentModification.
func (s *Store) UpdatePurchases(ctx context.Context, customerID ledger.CustomerID, updates []ledger.PurchaseUpdate) ([]ledger.Purchase, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := customerExists(ctx, tx, customerID); err != nil {
		return nil, err
	}

	out := make([]ledger.Purchase, 0, len(updates))
	for _, u := range updates {
		updated, err := patchPurchase(ctx, tx, customerID, u.PurchaseID, u.Patch())
		if err != nil {
			return nil, err
		}
		out = append(out, *updated)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase batch: %w", err)
	}
	return out, nil
}

func patchPurchase(ctx context.Context, db PGXDB, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	current, err := queryPurchases(ctx, db, `
		SELECT id, customer_id, amount, paid, description, date, created_at
		FROM purchases WHERE id = $1 AND customer_id = $2
		FOR UPDATE
	`, purchaseID, customerID)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		if err := customerExists(ctx, db, customerID); err != nil {
			return nil, err
		}
		return nil, ledger.ErrPurchaseNotFound
	}

	updated, err := patch.Apply(current[0])
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(ctx, `
		UPDATE purchases SET paid = $1, description = NULLIF($2, '') WHERE id = $3
	`, updated.Paid.Value, updated.Description, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}
	return &updated, nil
}

func customerExists(ctx context.Context, db PGXDB, id ledger.CustomerID) error {
	var exists bool
	err := db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check customer: %w", err)
	}
	if !exists {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

func queryPurchases(ctx context.Context, db PGXDB, query string, args ...any) ([]ledger.Purchase, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []ledger.Purchase
	for rows.Next() {
		var (
			p           ledger.Purchase
			description *string
		)
		err := rows.Scan(&p.ID, &p.CustomerID, &p.Amount.Value, &p.Paid.Value, &description, &p.Date, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		if description != nil {
			p.Description = *description
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, nt ledger.NewTransaction) (*ledger.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return nil, err
	}

	date := nt.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	tx := &ledger.Transaction{
		ID:          ledger.TransactionID(uuid.NewString()),
		Type:        nt.Type,
		Amount:      nt.Amount,
		Category:    nt.Category,
		Description: nt.Description,
		Date:        ledger.DayOf(date),
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO transactions (id, tx_type, amount, category, description, date)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING created_at
	`, tx.ID, string(tx.Type), tx.Amount.Value, tx.Category, tx.Description, tx.Date).Scan(&tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM transactions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, window *ledger.Period) ([]ledger.Transaction, error) {
	query := `
		SELECT id, tx_type, amount, category, description, date, created_at
		FROM transactions
	`
	var args []any
	if window != nil {
		query += " WHERE date >= $1 AND date <= $2"
		args = append(args, ledger.DayOf(window.Start), ledger.DayOf(window.End))
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		var (
			tx          ledger.Transaction
			txType      string
			description *string
		)
		err := rows.Scan(&tx.ID, &txType, &tx.Amount.Value, &tx.Category, &description, &tx.Date, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = ledger.TransactionType(txType)
		if description != nil {
			tx.Description = *description
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// GetTransactionSummary computes totals in Go over the window so the
// category order matches every other backend.
func (s *Store) GetTransactionSummary(ctx context.Context, window *ledger.Period) (*ledger.TransactionSummary, error) {
	txs, err := s.ListTransactions(ctx, window)
	if err != nil {
		return nil, err
	}
	return ledger.Summarize(txs, window), nil
}
