/*
Package ledger provides the customer ledger and cash-flow engine.

PURPOSE:
  This package holds the arithmetic behind the TrackPay screens: what each
  customer still owes, how a lump payment is spread over their purchases,
  and how income and expense transactions roll up into period summaries
  and category breakdowns. Everything here is pure except the Settler,
  which talks to a Gateway.

KEY CONCEPTS IN THIS FILE (types.go):
  - Purchase:    Goods sold to a customer on credit (amount, paid so far)
  - Customer:    Owns an ordered list of purchases
  - Transaction: An income or expense entry on the account
  - Period:      Inclusive date window used to scope summaries

DESIGN PRINCIPLES:
  1. Precision: Money is decimal, rounded to cents, never float
  2. Purity: Aggregation and allocation never mutate their inputs
  3. Plan then persist: allocation produces a plan before any I/O
  4. Explicit failure: partial persistence is reported, never hidden

SEE ALSO:
  - balance.go: Totals over purchases, transactions and customers
  - allocation.go: FIFO and single-purchase payment allocation
  - summary.go: Category breakdown and chart colors
  - settlement.go: Persisting an allocation through a Gateway
*/
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type PurchaseID string
type TransactionID string

// =============================================================================
// PURCHASE - Credit sale owed by a customer
// =============================================================================

// Purchase is a single credit sale. Paid grows as payments are applied.
// At rest 0 <= Paid <= Amount; reads tolerate violations (see Overpaid).
type Purchase struct {
	ID          PurchaseID
	CustomerID  CustomerID
	Amount      Money
	Paid        Money
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

// Balance is what is still owed on the purchase.
func (p Purchase) Balance() Money {
	return p.Amount.Sub(p.Paid)
}

// IsSettled reports whether nothing is owed.
func (p Purchase) IsSettled() bool {
	return !p.Balance().IsPositive()
}

// Overpaid reports a paid value above the purchase amount.
func (p Purchase) Overpaid() bool {
	return p.Paid.GreaterThan(p.Amount)
}

// NewPurchase is the input for adding a purchase to a customer.
type NewPurchase struct {
	Amount      Money
	Paid        Money
	Description string
	Date        time.Time
}

// Validate checks the purchase before any gateway call.
func (np NewPurchase) Validate() error {
	if !np.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if np.Paid.IsNegative() {
		return &ValidationError{Field: "paid", Message: "paid cannot be negative"}
	}
	if np.Paid.GreaterThan(np.Amount) {
		return &ValidationError{Field: "paid", Message: "paid cannot exceed amount"}
	}
	return nil
}

// PurchasePatch holds the mutable fields of a purchase. Nil means unchanged.
//
// ExpectedPaid turns the paid write into a compare-and-set: the patch is
// rejected with ErrConcurrentModification unless the stored paid still
// equals it.
type PurchasePatch struct {
	Paid         *Money
	Description  *string
	ExpectedPaid *Money
}

// Apply returns p with the patch applied, validating the paid invariant.
func (pp PurchasePatch) Apply(p Purchase) (Purchase, error) {
	if pp.ExpectedPaid != nil && !p.Paid.Equal(*pp.ExpectedPaid) {
		return p, fmt.Errorf("purchase %s paid is %s, expected %s: %w",
			p.ID, p.Paid, *pp.ExpectedPaid, ErrConcurrentModification)
	}
	if pp.Paid != nil {
		if pp.Paid.IsNegative() {
			return p, &ValidationError{Field: "paid", Message: "paid cannot be negative"}
		}
		if pp.Paid.GreaterThan(p.Amount) {
			return p, &OverpaymentError{
				PurchaseID:  p.ID,
				Requested:   pp.Paid.Sub(p.Paid),
				Outstanding: p.Balance(),
			}
		}
		p.Paid = *pp.Paid
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	return p, nil
}

// PurchaseUpdate sets the paid value of one purchase. PreviousPaid, when
// set, is the value the update was planned from; a store holding anything
// else rejects the whole batch.
type PurchaseUpdate struct {
	PurchaseID   PurchaseID
	Paid         Money
	PreviousPaid *Money
}

// Patch is the single-purchase form of u.
func (u PurchaseUpdate) Patch() PurchasePatch {
	paid := u.Paid
	return PurchasePatch{Paid: &paid, ExpectedPaid: u.PreviousPaid}
}

// =============================================================================
// CUSTOMER
// =============================================================================

// Customer owns its purchases, kept in insertion order.
type Customer struct {
	ID        CustomerID
	Name      string
	Phone     string
	Location  string
	Purchases []Purchase
	CreatedAt time.Time
}

// Purchase returns the purchase with the given id.
func (c *Customer) Purchase(id PurchaseID) (Purchase, bool) {
	for _, p := range c.Purchases {
		if p.ID == id {
			return p, true
		}
	}
	return Purchase{}, false
}

// NewCustomer is the input for creating a customer.
type NewCustomer struct {
	Name     string
	Phone    string
	Location string
}

func (nc NewCustomer) Validate() error {
	if strings.TrimSpace(nc.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(nc.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	return nil
}

// =============================================================================
// TRANSACTION - Income or expense on the account
// =============================================================================

type TransactionType string

const (
	TxIncome  TransactionType = "income"
	TxExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TxIncome || t == TxExpense
}

// Transaction is immutable once created; corrections are delete + create.
type Transaction struct {
	ID          TransactionID
	Type        TransactionType
	Amount      Money
	Category    string
	Description string
	Date        time.Time
	CreatedAt   time.Time
}

// NewTransaction is the input for recording a transaction.
type NewTransaction struct {
	Type        TransactionType
	Amount      Money
	Category    string
	Description string
	Date        time.Time
}

func (nt NewTransaction) Validate() error {
	if !nt.Type.Valid() {
		return &ValidationError{Field: "type", Message: "type must be income or expense"}
	}
	if !nt.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if strings.TrimSpace(nt.Category) == "" {
		return &ValidationError{Field: "category", Message: "category is required"}
	}
	return nil
}

// DefaultCategories are offered when recording a transaction.
var DefaultCategories = []string{
	"Customer Payment",
	"Freelance",
	"Food",
	"Transport",
	"Shopping",
	"Bills",
	"Entertainment",
	"Healthcare",
	"Education",
	"Other",
}
