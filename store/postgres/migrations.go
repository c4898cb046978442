package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema. Safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			location TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS purchases (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			paid DECIMAL(12, 2) NOT NULL DEFAULT 0 CHECK (paid >= 0 AND paid <= amount),
			description TEXT,
			date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_purchases_customer ON purchases(customer_id, seq)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			tx_type TEXT NOT NULL CHECK (tx_type IN ('income', 'expense')),
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			description TEXT,
			date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date, seq)`,
	}

	for i, migration := range migrations {
		if _, err := s.db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
