// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/trackpay/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	customers    map[ledger.CustomerID]*ledger.Customer
	order        []ledger.CustomerID
	transactions []ledger.Transaction

	// Now stamps created records. Tests may replace it.
	Now func() time.Time
}

var _ ledger.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		customers: make(map[ledger.CustomerID]*ledger.Customer),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Close() error { return nil }

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers = make(map[ledger.CustomerID]*ledger.Customer)
	m.order = nil
	m.transactions = nil
	return nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (m *Memory) CreateCustomer(_ context.Context, nc ledger.NewCustomer) (*ledger.Customer, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := &ledger.Customer{
		ID:        ledger.CustomerID(uuid.NewString()),
		Name:      nc.Name,
		Phone:     nc.Phone,
		Location:  nc.Location,
		CreatedAt: m.Now(),
	}
	m.customers[c.ID] = c
	m.order = append(m.order, c.ID)
	return cloneCustomer(c), nil
}

func (m *Memory) GetCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, ledger.ErrCustomerNotFound
	}
	return cloneCustomer(c), nil
}

// ListCustomers returns customers in creation order.
func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Customer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *cloneCustomer(m.customers[id]))
	}
	return out, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func (m *Memory) AddPurchase(_ context.Context, customerID ledger.CustomerID, np ledger.NewPurchase) (*ledger.Purchase, error) {
	if err := np.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[customerID]
	if !ok {
		return nil, ledger.ErrCustomerNotFound
	}

	now := m.Now()
	date := np.Date
	if date.IsZero() {
		date = now
	}
	p := ledger.Purchase{
		ID:          ledger.PurchaseID(uuid.NewString()),
		CustomerID:  customerID,
		Amount:      np.Amount,
		Paid:        np.Paid,
		Description: np.Description,
		Date:        ledger.DayOf(date),
		CreatedAt:   now,
	}
	c.Purchases = append(c.Purchases, p)
	return &p, nil
}

func (m *Memory) UpdatePurchase(_ context.Context, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, c, err := m.findPurchaseLocked(customerID, purchaseID)
	if err != nil {
		return nil, err
	}

	updated, err := patch.Apply(c.Purchases[i])
	if err != nil {
		return nil, err
	}
	c.Purchases[i] = updated
	return &updated, nil
}

// UpdatePurchases sets paid on several purchases atomically. Every update
// is validated before any is applied.
func (m *Memory) UpdatePurchases(_ context.Context, customerID ledger.CustomerID, updates []ledger.PurchaseUpdate) ([]ledger.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[customerID]
	if !ok {
		return nil, ledger.ErrCustomerNotFound
	}

	// Work on a copy; commit only if every update is valid
	staged := append([]ledger.Purchase{}, c.Purchases...)
	out := make([]ledger.Purchase, 0, len(updates))
	for _, u := range updates {
		i := indexOf(staged, u.PurchaseID)
		if i < 0 {
			return nil, ledger.ErrPurchaseNotFound
		}
		updated, err := u.Patch().Apply(staged[i])
		if err != nil {
			return nil, err
		}
		staged[i] = updated
		out = append(out, updated)
	}

	c.Purchases = staged
	return out, nil
}

func (m *Memory) findPurchaseLocked(customerID ledger.CustomerID, purchaseID ledger.PurchaseID) (int, *ledger.Customer, error) {
	c, ok := m.customers[customerID]
	if !ok {
		return -1, nil, ledger.ErrCustomerNotFound
	}
	i := indexOf(c.Purchases, purchaseID)
	if i < 0 {
		return -1, nil, ledger.ErrPurchaseNotFound
	}
	return i, c, nil
}

func indexOf(purchases []ledger.Purchase, id ledger.PurchaseID) int {
	for i, p := range purchases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) CreateTransaction(_ context.Context, nt ledger.NewTransaction) (*ledger.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	date := nt.Date
	if date.IsZero() {
		date = now
	}
	tx := ledger.Transaction{
		ID:          ledger.TransactionID(uuid.NewString()),
		Type:        nt.Type,
		Amount:      nt.Amount,
		Category:    nt.Category,
		Description: nt.Description,
		Date:        ledger.DayOf(date),
		CreatedAt:   now,
	}

	// Binary search for insertion point; equal dates keep insertion order
	i := sort.Search(len(m.transactions), func(i int) bool {
		return m.transactions[i].Date.After(tx.Date)
	})
	m.transactions = append(m.transactions, ledger.Transaction{})
	copy(m.transactions[i+1:], m.transactions[i:])
	m.transactions[i] = tx
	return &tx, nil
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, tx := range m.transactions {
		if tx.ID == id {
			m.transactions = append(m.transactions[:i], m.transactions[i+1:]...)
			return nil
		}
	}
	return ledger.ErrTransactionNotFound
}

func (m *Memory) ListTransactions(_ context.Context, window *ledger.Period) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ledger.Transaction{}
	for _, tx := range m.transactions {
		if window == nil || window.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) GetTransactionSummary(ctx context.Context, window *ledger.Period) (*ledger.TransactionSummary, error) {
	txs, err := m.ListTransactions(ctx, window)
	if err != nil {
		return nil, err
	}
	return ledger.Summarize(txs, window), nil
}

func cloneCustomer(c *ledger.Customer) *ledger.Customer {
	out := *c
	out.Purchases = append([]ledger.Purchase{}, c.Purchases...)
	return &out
}
