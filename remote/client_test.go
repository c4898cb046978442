package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trackpay/api"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/ledger/store"
	"github.com/warp/trackpay/remote"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAPI(t *testing.T, token string) (*store.Memory, http.Handler) {
	t.Helper()
	mem := store.NewMemory()
	h := api.NewHandler(mem, ledger.DefaultPalette())
	return mem, api.NewRouter(h, api.RouterOptions{APIToken: token})
}

func serve(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func day(s string) time.Time {
	t, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// seedFIFO creates a customer owing 100 (Jan 1) and 50 (Jan 15).
func seedFIFO(t *testing.T, mem *store.Memory) (*ledger.Customer, []ledger.Purchase) {
	t.Helper()
	ctx := context.Background()

	c, err := mem.CreateCustomer(ctx, ledger.NewCustomer{Name: "Peter Kamau", Phone: "+254733777888"})
	require.NoError(t, err)

	p1, err := mem.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: ledger.MustParseMoney("100"), Date: day("2026-01-01")})
	require.NoError(t, err)
	p2, err := mem.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: ledger.MustParseMoney("50"), Date: day("2026-01-15")})
	require.NoError(t, err)

	return c, []ledger.Purchase{*p1, *p2}
}

// =============================================================================
// GATEWAY ROUND TRIPS
// =============================================================================

func TestClient_CustomerRoundTrip(t *testing.T) {
	t.Parallel()

	// GIVEN: An API over an empty store
	_, router := newAPI(t, "")
	client := remote.NewClient(serve(t, router).URL, nil, time.Second)
	ctx := context.Background()

	// WHEN: A customer and two purchases are created remotely
	c, err := client.CreateCustomer(ctx, ledger.NewCustomer{Name: "Amina Yusuf", Phone: "+254700111222", Location: "Market Street"})
	require.NoError(t, err)

	_, err = client.AddPurchase(ctx, c.ID, ledger.NewPurchase{
		Amount:      ledger.MustParseMoney("450"),
		Paid:        ledger.MustParseMoney("100"),
		Description: "Cooking oil",
		Date:        day("2026-03-02"),
	})
	require.NoError(t, err)
	_, err = client.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: ledger.MustParseMoney("80.50"), Date: day("2026-03-01")})
	require.NoError(t, err)

	// THEN: Reading back keeps insertion order and exact amounts
	got, err := client.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Purchases, 2)
	assert.Equal(t, "Amina Yusuf", got.Name)
	assert.Equal(t, "Market Street", got.Location)
	assert.Equal(t, "450.00", got.Purchases[0].Amount.String())
	assert.Equal(t, "100.00", got.Purchases[0].Paid.String())
	assert.Equal(t, "2026-03-02", got.Purchases[0].Date.Format(ledger.DateLayout))
	assert.Equal(t, "80.50", got.Purchases[1].Amount.String())

	all, err := client.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, c.ID, all[0].ID)
}

func TestClient_Transactions(t *testing.T) {
	t.Parallel()

	// GIVEN: Income 100, expenses 40 and 10 in March, one expense in April
	_, router := newAPI(t, "")
	client := remote.NewClient(serve(t, router).URL, nil, time.Second)
	ctx := context.Background()

	for _, nt := range []ledger.NewTransaction{
		{Type: ledger.TxIncome, Amount: ledger.MustParseMoney("100"), Category: "Salary", Date: day("2026-03-01")},
		{Type: ledger.TxExpense, Amount: ledger.MustParseMoney("40"), Category: "Food", Date: day("2026-03-05")},
		{Type: ledger.TxExpense, Amount: ledger.MustParseMoney("10"), Category: "Transport", Date: day("2026-03-31")},
		{Type: ledger.TxExpense, Amount: ledger.MustParseMoney("999"), Category: "Bills", Date: day("2026-04-01")},
	} {
		_, err := client.CreateTransaction(ctx, nt)
		require.NoError(t, err)
	}

	march := ledger.MonthPeriod(day("2026-03-10"))

	// WHEN: Listing and summarizing March
	txs, err := client.ListTransactions(ctx, &march)
	require.NoError(t, err)
	summary, err := client.GetTransactionSummary(ctx, &march)
	require.NoError(t, err)

	// THEN: Only March transactions count
	assert.Len(t, txs, 3)
	assert.Equal(t, "100.00", summary.Income.String())
	assert.Equal(t, "50.00", summary.Expense.String())
	assert.Equal(t, "50.00", summary.Balance.String())
	require.Len(t, summary.CategoryBreakdown, 2)
	assert.Equal(t, "Food", summary.CategoryBreakdown[0].Name)
	assert.Equal(t, "Transport", summary.CategoryBreakdown[1].Name)

	// AND: A nil window summarizes everything, not just the current month
	everything, err := client.GetTransactionSummary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "1049.00", everything.Expense.String())

	// AND: Deleting removes the transaction
	require.NoError(t, client.DeleteTransaction(ctx, txs[0].ID))
	txs, err = client.ListTransactions(ctx, &march)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestClient_ErrorMapping(t *testing.T) {
	t.Parallel()

	mem, router := newAPI(t, "")
	client := remote.NewClient(serve(t, router).URL, nil, time.Second)
	c, purchases := seedFIFO(t, mem)
	ctx := context.Background()

	t.Run("missing customer", func(t *testing.T) {
		_, err := client.GetCustomer(ctx, "nope")
		require.ErrorIs(t, err, ledger.ErrCustomerNotFound)
		assert.True(t, ledger.IsNotFound(err))
	})

	t.Run("missing purchase", func(t *testing.T) {
		paid := ledger.MustParseMoney("1")
		_, err := client.UpdatePurchase(ctx, c.ID, "nope", ledger.PurchasePatch{Paid: &paid})
		require.ErrorIs(t, err, ledger.ErrPurchaseNotFound)
	})

	t.Run("missing transaction", func(t *testing.T) {
		err := client.DeleteTransaction(ctx, "nope")
		require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})

	t.Run("paid above amount", func(t *testing.T) {
		paid := ledger.MustParseMoney("150")
		_, err := client.UpdatePurchase(ctx, c.ID, purchases[0].ID, ledger.PurchasePatch{Paid: &paid})
		require.ErrorIs(t, err, ledger.ErrOverpayment)
		assert.True(t, ledger.IsClientError(err))

		var apiErr *remote.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	})

	t.Run("invalid input is rejected before the request", func(t *testing.T) {
		_, err := client.CreateTransaction(ctx, ledger.NewTransaction{Type: ledger.TxExpense, Category: "Food"})
		require.ErrorIs(t, err, ledger.ErrValidation)
	})

	t.Run("unreachable server", func(t *testing.T) {
		dead := remote.NewClient("http://127.0.0.1:1", nil, 200*time.Millisecond)
		_, err := dead.GetCustomer(ctx, c.ID)
		require.ErrorIs(t, err, ledger.ErrGateway)
		assert.True(t, ledger.IsRetryable(err))
	})
}

func TestClient_UnauthorizedClearsSession(t *testing.T) {
	t.Parallel()

	// GIVEN: A protected API and a client holding a stale token
	mem, router := newAPI(t, "secret")
	c, _ := seedFIFO(t, mem)
	session := remote.NewSession("stale")
	client := remote.NewClient(serve(t, router).URL, session, time.Second)

	// WHEN: The client calls the API
	_, err := client.GetCustomer(context.Background(), c.ID)

	// THEN: The error is ErrUnauthorized and the token is dropped
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.True(t, remote.IsSessionExpired(err))
	assert.Empty(t, session.Token())

	// AND: A fresh token works
	session.SetToken("secret")
	got, err := client.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

// =============================================================================
// SETTLEMENT THROUGH THE REMOTE GATEWAY
// =============================================================================

func TestSettler_RemoteFIFO(t *testing.T) {
	t.Parallel()

	// GIVEN: A customer owing 100 then 50, reached through the REST client
	mem, router := newAPI(t, "")
	c, purchases := seedFIFO(t, mem)
	client := remote.NewClient(serve(t, router).URL, nil, time.Second)
	settler := ledger.NewSettler(client)

	// WHEN: A payment of 120 is settled
	report, err := settler.Settle(context.Background(), c.ID, ledger.MustParseMoney("120"))

	// THEN: The oldest purchase is paid off and the rest goes to the next
	require.NoError(t, err)
	assert.False(t, report.Batched, "remote client has no batch endpoint")
	assert.True(t, report.Complete())
	assert.Equal(t, "120.00", report.AppliedAmount().String())

	got, err := mem.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	p1, _ := got.Purchase(purchases[0].ID)
	p2, _ := got.Purchase(purchases[1].ID)
	assert.Equal(t, "100.00", p1.Paid.String())
	assert.Equal(t, "20.00", p2.Paid.String())
}

func TestSettler_RemotePartialFailureAndResume(t *testing.T) {
	t.Parallel()

	// GIVEN: An API whose second purchase update fails once
	mem, router := newAPI(t, "")
	c, purchases := seedFIFO(t, mem)

	var puts atomic.Int32
	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && puts.Add(1) == 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "database unavailable", Code: api.CodeInternal})
			return
		}
		router.ServeHTTP(w, r)
	})
	client := remote.NewClient(serve(t, flaky).URL, nil, time.Second)
	settler := ledger.NewSettler(client)
	ctx := context.Background()

	// WHEN: A payment of 120 is settled
	report, err := settler.Settle(ctx, c.ID, ledger.MustParseMoney("120"))

	// THEN: The first step is reported applied and the second failed
	require.Error(t, err)
	var gwErr *ledger.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, purchases[1].ID, gwErr.PurchaseID)
	assert.True(t, ledger.IsRetryable(err))

	require.Len(t, report.Applied, 1)
	assert.Equal(t, purchases[0].ID, report.Applied[0].PurchaseID)
	require.NotNil(t, report.Failed)
	assert.Equal(t, purchases[1].ID, report.Failed.PurchaseID)
	require.Len(t, report.Remaining, 1)
	assert.False(t, report.Complete())

	// WHEN: The plan is resumed
	resumed, err := settler.Resume(ctx, c.ID, report.Plan)

	// THEN: Only the failed step is written and the ledger is settled
	require.NoError(t, err)
	assert.True(t, resumed.Complete())
	assert.Len(t, resumed.Applied, 2)
	assert.Equal(t, int32(3), puts.Load())

	got, err := mem.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	p2, _ := got.Purchase(purchases[1].ID)
	assert.Equal(t, "20.00", p2.Paid.String())
}

func TestClient_UpdatePurchaseSendsExpectedPaid(t *testing.T) {
	t.Parallel()

	mem, router := newAPI(t, "")
	c, purchases := seedFIFO(t, mem)
	client := remote.NewClient(serve(t, router).URL, nil, time.Second)
	ctx := context.Background()

	// GIVEN: Someone else paid 30 on the oldest purchase
	thirty := ledger.MustParseMoney("30")
	_, err := mem.UpdatePurchase(ctx, c.ID, purchases[0].ID, ledger.PurchasePatch{Paid: &thirty})
	require.NoError(t, err)

	// WHEN: A write planned from paid 0 arrives
	paid, stale := ledger.MustParseMoney("100"), ledger.Zero
	_, err = client.UpdatePurchase(ctx, c.ID, purchases[0].ID, ledger.PurchasePatch{Paid: &paid, ExpectedPaid: &stale})

	// THEN: It is refused as a conflict and nothing changes
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.False(t, ledger.IsRetryable(err))
	got, err := mem.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", got.Purchases[0].Paid.String())

	// AND: The same write planned from the current value goes through
	updated, err := client.UpdatePurchase(ctx, c.ID, purchases[0].ID, ledger.PurchasePatch{Paid: &paid, ExpectedPaid: &thirty})
	require.NoError(t, err)
	assert.Equal(t, "100.00", updated.Paid.String())
}
