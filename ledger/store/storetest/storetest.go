// Package storetest runs the same behavioural checks against every
// ledger.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trackpay/ledger"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) ledger.Store

// Run exercises newStore against the ledger.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("customers", func(t *testing.T) { testCustomers(t, newStore(t)) })
	t.Run("purchases keep order and precision", func(t *testing.T) { testPurchases(t, newStore(t)) })
	t.Run("update purchase", func(t *testing.T) { testUpdatePurchase(t, newStore(t)) })
	t.Run("batch update is atomic", func(t *testing.T) { testBatchAtomic(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("settlement", func(t *testing.T) { testSettlement(t, newStore(t)) })
	t.Run("same-day purchases settle in insertion order", func(t *testing.T) { testSameDayOrder(t, newStore(t)) })
	t.Run("stale paid is rejected", func(t *testing.T) { testStalePaid(t, newStore(t)) })
}

func day(s string) time.Time {
	t, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func money(s string) ledger.Money {
	return ledger.MustParseMoney(s)
}

func newCustomer(t *testing.T, s ledger.Store, name string) *ledger.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), ledger.NewCustomer{Name: name, Phone: "+254700000000"})
	require.NoError(t, err)
	return c
}

func addPurchase(t *testing.T, s ledger.Store, cid ledger.CustomerID, amount, paid, date string) *ledger.Purchase {
	t.Helper()
	p, err := s.AddPurchase(context.Background(), cid, ledger.NewPurchase{
		Amount: money(amount),
		Paid:   money(paid),
		Date:   day(date),
	})
	require.NoError(t, err)
	return p
}

func paidOf(t *testing.T, s ledger.Store, cid ledger.CustomerID) []string {
	t.Helper()
	c, err := s.GetCustomer(context.Background(), cid)
	require.NoError(t, err)
	out := make([]string, len(c.Purchases))
	for i, p := range c.Purchases {
		out[i] = p.Paid.String()
	}
	return out
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func testCustomers(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.CreateCustomer(ctx, ledger.NewCustomer{Name: " ", Phone: "1"})
	require.ErrorIs(t, err, ledger.ErrValidation)

	first, err := s.CreateCustomer(ctx, ledger.NewCustomer{Name: "Amina Yusuf", Phone: "+254700111222", Location: "Market Street"})
	require.NoError(t, err)
	second := newCustomer(t, s, "Joseph Mwangi")

	got, err := s.GetCustomer(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amina Yusuf", got.Name)
	assert.Equal(t, "Market Street", got.Location)
	assert.Empty(t, got.Purchases)

	_, err = s.GetCustomer(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrCustomerNotFound)

	all, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

// =============================================================================
// PURCHASES
// =============================================================================

func testPurchases(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Amina Yusuf")

	// Inserted out of date order on purpose
	p1 := addPurchase(t, s, c.ID, "0.10", "0", "2026-02-01")
	p2 := addPurchase(t, s, c.ID, "0.20", "0.05", "2026-01-01")
	p3 := addPurchase(t, s, c.ID, "1250.75", "0", "2026-01-01")

	got, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Purchases, 3)
	assert.Equal(t, []ledger.PurchaseID{p1.ID, p2.ID, p3.ID},
		[]ledger.PurchaseID{got.Purchases[0].ID, got.Purchases[1].ID, got.Purchases[2].ID})
	assert.Equal(t, "2026-02-01", got.Purchases[0].Date.Format(ledger.DateLayout))

	totals := ledger.SummarizePurchases(got.Purchases)
	assert.Equal(t, "1251.05", totals.TotalAmount.String())
	assert.Equal(t, "1251.00", totals.Pending.String())

	_, err = s.AddPurchase(ctx, "missing", ledger.NewPurchase{Amount: money("1")})
	require.ErrorIs(t, err, ledger.ErrCustomerNotFound)

	_, err = s.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: money("10"), Paid: money("11")})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = s.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: ledger.Zero})
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func testUpdatePurchase(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Amina Yusuf")
	p := addPurchase(t, s, c.ID, "100", "0", "2026-01-01")

	// Absolute writes are idempotent
	paid := money("40")
	for range 2 {
		updated, err := s.UpdatePurchase(ctx, c.ID, p.ID, ledger.PurchasePatch{Paid: &paid})
		require.NoError(t, err)
		assert.Equal(t, "40.00", updated.Paid.String())
	}
	assert.Equal(t, []string{"40.00"}, paidOf(t, s, c.ID))

	desc := "Rice 50kg"
	updated, err := s.UpdatePurchase(ctx, c.ID, p.ID, ledger.PurchasePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Rice 50kg", updated.Description)
	assert.Equal(t, "40.00", updated.Paid.String())

	over := money("100.01")
	_, err = s.UpdatePurchase(ctx, c.ID, p.ID, ledger.PurchasePatch{Paid: &over})
	require.ErrorIs(t, err, ledger.ErrOverpayment)

	negative := money("-1")
	_, err = s.UpdatePurchase(ctx, c.ID, p.ID, ledger.PurchasePatch{Paid: &negative})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = s.UpdatePurchase(ctx, c.ID, "missing", ledger.PurchasePatch{Paid: &paid})
	require.ErrorIs(t, err, ledger.ErrPurchaseNotFound)

	_, err = s.UpdatePurchase(ctx, "missing", p.ID, ledger.PurchasePatch{Paid: &paid})
	require.ErrorIs(t, err, ledger.ErrCustomerNotFound)

	assert.Equal(t, []string{"40.00"}, paidOf(t, s, c.ID))
}

func testBatchAtomic(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Peter Kamau")
	p1 := addPurchase(t, s, c.ID, "100", "0", "2026-01-01")
	p2 := addPurchase(t, s, c.ID, "50", "0", "2026-01-15")

	// Second update overpays, so the first must not stick
	_, err := s.UpdatePurchases(ctx, c.ID, []ledger.PurchaseUpdate{
		{PurchaseID: p1.ID, Paid: money("100")},
		{PurchaseID: p2.ID, Paid: money("60")},
	})
	require.ErrorIs(t, err, ledger.ErrOverpayment)
	assert.Equal(t, []string{"0.00", "0.00"}, paidOf(t, s, c.ID))

	_, err = s.UpdatePurchases(ctx, c.ID, []ledger.PurchaseUpdate{
		{PurchaseID: p1.ID, Paid: money("100")},
		{PurchaseID: "missing", Paid: money("1")},
	})
	require.ErrorIs(t, err, ledger.ErrPurchaseNotFound)
	assert.Equal(t, []string{"0.00", "0.00"}, paidOf(t, s, c.ID))

	out, err := s.UpdatePurchases(ctx, c.ID, []ledger.PurchaseUpdate{
		{PurchaseID: p1.ID, Paid: money("100")},
		{PurchaseID: p2.ID, Paid: money("20")},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"100.00", "20.00"}, paidOf(t, s, c.ID))

	// A purchase of another customer is not found
	other := newCustomer(t, s, "Grace Otieno")
	_, err = s.UpdatePurchases(ctx, other.ID, []ledger.PurchaseUpdate{{PurchaseID: p1.ID, Paid: money("1")}})
	require.ErrorIs(t, err, ledger.ErrPurchaseNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testTransactions(t *testing.T, s ledger.Store) {
	ctx := context.Background()

	_, err := s.CreateTransaction(ctx, ledger.NewTransaction{Type: "refund", Amount: money("1"), Category: "Food"})
	require.ErrorIs(t, err, ledger.ErrValidation)

	var ids []ledger.TransactionID
	for _, nt := range []ledger.NewTransaction{
		{Type: ledger.TxExpense, Amount: money("10"), Category: "Transport", Date: day("2026-03-31")},
		{Type: ledger.TxIncome, Amount: money("100"), Category: "Salary", Date: day("2026-03-01")},
		{Type: ledger.TxExpense, Amount: money("40"), Category: "Food", Description: "Groceries", Date: day("2026-03-02")},
		{Type: ledger.TxExpense, Amount: money("500"), Category: "Bills", Date: day("2026-04-01")},
	} {
		tx, err := s.CreateTransaction(ctx, nt)
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	march := ledger.MonthPeriod(day("2026-03-15"))

	txs, err := s.ListTransactions(ctx, &march)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "2026-03-01", txs[0].Date.Format(ledger.DateLayout))
	assert.Equal(t, "2026-03-02", txs[1].Date.Format(ledger.DateLayout))
	assert.Equal(t, "Groceries", txs[1].Description)
	assert.Equal(t, "2026-03-31", txs[2].Date.Format(ledger.DateLayout))

	all, err := s.ListTransactions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	summary, err := s.GetTransactionSummary(ctx, &march)
	require.NoError(t, err)
	assert.Equal(t, "100.00", summary.Income.String())
	assert.Equal(t, "50.00", summary.Expense.String())
	assert.Equal(t, "50.00", summary.Balance.String())
	require.Len(t, summary.CategoryBreakdown, 2)
	assert.Equal(t, "Food", summary.CategoryBreakdown[0].Name)
	assert.Equal(t, "Transport", summary.CategoryBreakdown[1].Name)

	require.NoError(t, s.DeleteTransaction(ctx, ids[0]))
	require.ErrorIs(t, s.DeleteTransaction(ctx, ids[0]), ledger.ErrTransactionNotFound)

	summary, err = s.GetTransactionSummary(ctx, &march)
	require.NoError(t, err)
	assert.Equal(t, "40.00", summary.Expense.String())
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func testSettlement(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Peter Kamau")
	addPurchase(t, s, c.ID, "100", "0", "2026-01-01")
	addPurchase(t, s, c.ID, "50", "0", "2026-01-15")

	settler := ledger.NewSettler(s)
	report, err := settler.Settle(ctx, c.ID, money("120"))
	require.NoError(t, err)
	assert.True(t, report.Batched)
	assert.True(t, report.Complete())
	assert.Equal(t, []string{"100.00", "20.00"}, paidOf(t, s, c.ID))

	_, err = settler.Settle(ctx, c.ID, money("30.01"))
	require.ErrorIs(t, err, ledger.ErrOverpayment)
	assert.Equal(t, []string{"100.00", "20.00"}, paidOf(t, s, c.ID))
}

func testSameDayOrder(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Peter Kamau")

	// GIVEN: A purchase dated by the store clock, then one dated the same day
	first, err := s.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: money("10")})
	require.NoError(t, err)
	assert.Equal(t, ledger.DayOf(first.Date), first.Date, "stored date keeps only the day")

	second, err := s.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: money("10"), Date: ledger.DayOf(first.Date)})
	require.NoError(t, err)
	assert.Equal(t, first.Date.Format(ledger.DateLayout), second.Date.Format(ledger.DateLayout))

	// WHEN: A payment covers only one of them
	_, err = ledger.NewSettler(s).Settle(ctx, c.ID, money("10"))
	require.NoError(t, err)

	// THEN: The first inserted is paid
	assert.Equal(t, []string{"10.00", "0.00"}, paidOf(t, s, c.ID))
}

func testStalePaid(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	c := newCustomer(t, s, "Peter Kamau")
	p := addPurchase(t, s, c.ID, "100", "0", "2026-01-01")

	// GIVEN: A plan computed before another payment of 50 lands
	before, err := s.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	stale, err := (&ledger.PaymentAllocator{}).Allocate(money("50"), before.Purchases)
	require.NoError(t, err)

	_, err = ledger.NewSettler(s).Settle(ctx, c.ID, money("50"))
	require.NoError(t, err)

	// WHEN/THEN: Persisting the stale plan fails in batch and stepwise form
	_, err = s.UpdatePurchases(ctx, c.ID, stale.Updates())
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)

	_, err = s.UpdatePurchase(ctx, c.ID, p.ID, stale.Steps[0].Update().Patch())
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)

	// AND: The other payment is intact
	assert.Equal(t, []string{"50.00"}, paidOf(t, s, c.ID))

	// AND: A write planned from the current value succeeds
	current, expected := money("80"), money("50")
	updated, err := s.UpdatePurchase(ctx, c.ID, p.ID, ledger.PurchasePatch{Paid: &current, ExpectedPaid: &expected})
	require.NoError(t, err)
	assert.Equal(t, "80.00", updated.Paid.String())
}
