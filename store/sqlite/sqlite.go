/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists customers, their purchases and account transactions in a
  single SQLite file. The server uses it when no PostgreSQL URL is
  configured.

INTERFACES IMPLEMENTED:
  ledger.Gateway:      Customer reads, purchase writes, transactions
  ledger.BatchUpdater: Atomic multi-purchase paid update
  ledger.Directory:    Customer listing and creation

KEY TABLES:
  customers:    One row per customer
  purchases:    Credit sales, seq preserves insertion order
  transactions: Income and expense entries

MONEY:
  Amounts are stored as TEXT ("125.50") and parsed back into decimals.
  SQLite REAL would reintroduce float rounding, so totals are computed in
  Go from the loaded rows rather than with SUM().

INVARIANTS:
  Every write path validates 0 <= paid <= amount before touching the
  database. UpdatePurchases runs inside one SQL transaction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. PostgreSQL relies on database
  transactions instead (see store/postgres).

USAGE:
  store, err := sqlite.New("./data/trackpay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  settler := ledger.NewSettler(store)

SEE ALSO:
  - ledger/gateway.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/trackpay/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		location TEXT,
		created_at TEXT NOT NULL
	);

	-- seq keeps insertion order, which breaks FIFO ties on equal dates
	CREATE TABLE IF NOT EXISTS purchases (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		amount TEXT NOT NULL,
		paid TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_customer
		ON purchases(customer_id, seq);

	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('income', 'expense')),
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(date, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CUSTOMERS (ledger.Directory)
// =============================================================================

func (s *Store) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*ledger.Customer, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &ledger.Customer{
		ID:        ledger.CustomerID(uuid.NewString()),
		Name:      nc.Name,
		Phone:     nc.Phone,
		Location:  nc.Location,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, location, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Phone, nullString(c.Location), c.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to insert customer: %w", err)
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getCustomer(ctx, s.db, id)
}

func (s *Store) getCustomer(ctx context.Context, q queryer, id ledger.CustomerID) (*ledger.Customer, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, phone, location, created_at
		FROM customers WHERE id = ?
	`, id)

	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Purchases, err = s.queryPurchases(ctx, q, `
		SELECT id, customer_id, amount, paid, description, date, created_at
		FROM purchases WHERE customer_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCustomers returns customers in creation order with their purchases.
func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, location, created_at
		FROM customers ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}

	customers := []ledger.Customer{}
	index := make(map[ledger.CustomerID]int)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[c.ID] = len(customers)
		customers = append(customers, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	purchases, err := s.queryPurchases(ctx, s.db, `
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*ledger.Customer, error) {
	var (
		c         ledger.Customer
		location  sql.NullString
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &location, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	c.Location = location.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// =============================================================================
// PURCHASES (ledger.Gateway + ledger.BatchUpdater)
// =============================================================================

func (s *Store) AddPurchase(ctx context.Context, customerID ledger.CustomerID, np ledger.NewPurchase) (*ledger.Purchase, error) {
	if err := np.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.customerExists(ctx, s.db, customerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	date := np.Date
	if date.IsZero() {
		date = now
	}
	p := &ledger.Purchase{
		ID:          ledger.PurchaseID(uuid.NewString()),
		CustomerID:  customerID,
		Amount:      np.Amount,
		Paid:        np.Paid,
		Description: np.Description,
		Date:        ledger.DayOf(date),
		CreatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, customer_id, amount, paid, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.CustomerID, p.Amount.String(), p.Paid.String(), nullString(p.Description),
		p.Date.Format(ledger.DateLayout), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePurchase(ctx context.Context, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	updated, err := s.patchPurchase(ctx, sqlTx, customerID, purchaseID, patch)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase update: %w", err)
	}
	return updated, nil
}

// UpdatePurchases writes every update in one SQL transaction.
func (s *Store) UpdatePurchases(ctx context.Context, customerID ledger.CustomerID, updates []ledger.PurchaseUpdate) ([]ledger.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.customerExists(ctx, sqlTx, customerID); err != nil {
		return nil, err
	}

	out := make([]ledger.Purchase, 0, len(updates))
	for _, u := range updates {
		updated, err := s.patchPurchase(ctx, sqlTx, customerID, u.PurchaseID, u.Patch())
		if err != nil {
			return nil, err
		}
		out = append(out, *updated)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase batch: %w", err)
	}
	return out, nil
}

func (s *Store) patchPurchase(ctx context.Context, q queryer, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	current, err := s.queryPurchases(ctx, q, `
		SELECT id, customer_id, amount, paid, description, date, created_at
		FROM purchases WHERE id = ? AND customer_id = ?
	`, purchaseID, customerID)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		if err := s.customerExists(ctx, q, customerID); err != nil {
			return nil, err
		}
		return nil, ledger.ErrPurchaseNotFound
	}

	updated, err := patch.Apply(current[0])
	if err != nil {
		return nil, err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE purchases SET paid = ?, description = ? WHERE id = ?
	`, updated.Paid.String(), nullString(updated.Description), updated.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}
	return &updated, nil
}

func (s *Store) customerExists(ctx context.Context, q queryer, id ledger.CustomerID) error {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("failed to check customer: %w", err)
	}
	if count == 0 {
		return ledger.ErrCustomerNotFound
	}
	return nil
}

func (s *Store) queryPurchases(ctx context.Context, q queryer, query string, args ...any) ([]ledger.Purchase, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []ledger.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func scanPurchase(rows *sql.Rows) (ledger.Purchase, error) {
	var (
		p           ledger.Purchase
		amount      string
		paid        string
		description sql.NullString
		date        string
		createdAt   string
	)

	err := rows.Scan(&p.ID, &p.CustomerID, &amount, &paid, &description, &date, &createdAt)
	if err != nil {
		return p, fmt.Errorf("failed to scan purchase: %w", err)
	}

	if p.Amount, err = ledger.ParseMoney(amount); err != nil {
		return p, fmt.Errorf("purchase %s amount: %w", p.ID, err)
	}
	if p.Paid, err = ledger.ParseMoney(paid); err != nil {
		return p, fmt.Errorf("purchase %s paid: %w", p.ID, err)
	}
	p.Description = description.String
	if p.Date, err = time.Parse(ledger.DateLayout, date); err != nil {
		return p, fmt.Errorf("purchase %s date: %w", p.ID, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) CreateTransaction(ctx context.Context, nt ledger.NewTransaction) (*ledger.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	date := nt.Date
	if date.IsZero() {
		date = now
	}
	tx := &ledger.Transaction{
		ID:          ledger.TransactionID(uuid.NewString()),
		Type:        nt.Type,
		Amount:      nt.Amount,
		Category:    nt.Category,
		Description: nt.Description,
		Date:        ledger.DayOf(date),
		CreatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, tx_type, amount, category, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.Type, tx.Amount.String(), tx.Category, nullString(tx.Description),
		tx.Date.Format(ledger.DateLayout), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

// ListTransactions returns transactions ordered by date, then insertion.
func (s *Store) ListTransactions(ctx context.Context, window *ledger.Period) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tx_type, amount, category, description, date, created_at
		FROM transactions
	`
	var args []any
	if window != nil {
		query += " WHERE date >= ? AND date <= ?"
		args = append(args, window.Start.Format(ledger.DateLayout), window.End.Format(ledger.DateLayout))
	}
	query += " ORDER BY date ASC, seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []ledger.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (s *Store) GetTransactionSummary(ctx context.Context, window *ledger.Period) (*ledger.TransactionSummary, error) {
	txs, err := s.ListTransactions(ctx, window)
	if err != nil {
		return nil, err
	}
	return ledger.Summarize(txs, window), nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		amount      string
		description sql.NullString
		date        string
		createdAt   string
	)

	err := rows.Scan(&tx.ID, &tx.Type, &amount, &tx.Category, &description, &date, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Amount, err = ledger.ParseMoney(amount); err != nil {
		return tx, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	tx.Description = description.String
	if tx.Date, err = time.Parse(ledger.DateLayout, date); err != nil {
		return tx, fmt.Errorf("transaction %s date: %w", tx.ID, err)
	}
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return tx, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"purchases", "transactions", "customers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
