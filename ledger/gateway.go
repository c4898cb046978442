/*
gateway.go - Persistence interface for customers, purchases and transactions

PURPOSE:
  Defines the boundary between the ledger arithmetic and wherever the
  records actually live. The Settler and the HTTP API only see these
  interfaces; the in-memory store, SQLite, PostgreSQL and the remote REST
  client all implement them.

KEY INTERFACES:
  Gateway:      Reads and writes the settlement and summary paths need
  BatchUpdater: Atomic multi-purchase paid update (optional)
  Directory:    Listing and creating customers (optional)
  Store:        Everything above plus Close, what a server is built on

WRITE CONTRACT:
  UpdatePurchase writes absolute values. Sending the same patch twice
  leaves the purchase as after the first call. Every implementation
  rejects paid < 0 and paid > amount.

ATOMIC BATCHES:
  UpdatePurchases either writes every update or none. A settlement over
  three purchases never leaves one paid and two untouched when the
  gateway supports it.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx
  - remote/client.go: TrackPay REST API

SEE ALSO:
  - settlement.go: Main consumer of Gateway and BatchUpdater
*/
package ledger

import "context"

// =============================================================================
// GATEWAY
// =============================================================================

type Gateway interface {
	// GetCustomer returns the customer with purchases in insertion order.
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)

	// UpdatePurchase applies patch and returns the stored purchase.
	UpdatePurchase(ctx context.Context, customerID CustomerID, purchaseID PurchaseID, patch PurchasePatch) (*Purchase, error)

	AddPurchase(ctx context.Context, customerID CustomerID, p NewPurchase) (*Purchase, error)

	// ListTransactions returns transactions inside window ordered by date.
	// A nil window returns every transaction.
	ListTransactions(ctx context.Context, window *Period) ([]Transaction, error)

	GetTransactionSummary(ctx context.Context, window *Period) (*TransactionSummary, error)

	CreateTransaction(ctx context.Context, t NewTransaction) (*Transaction, error)

	DeleteTransaction(ctx context.Context, id TransactionID) error
}

// BatchUpdater is implemented by gateways that can write several paid
// values in one atomic operation.
type BatchUpdater interface {
	UpdatePurchases(ctx context.Context, customerID CustomerID, updates []PurchaseUpdate) ([]Purchase, error)
}

// Directory lists and creates customers.
type Directory interface {
	ListCustomers(ctx context.Context) ([]Customer, error)
	CreateCustomer(ctx context.Context, c NewCustomer) (*Customer, error)
}

// Store is a full backend.
type Store interface {
	Gateway
	BatchUpdater
	Directory
	Close() error
}
