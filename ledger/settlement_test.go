package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// stepGateway hides the memory store's BatchUpdater and counts writes. It
// fails the write to failOn once.
type stepGateway struct {
	ledger.Gateway
	failOn ledger.PurchaseID
	writes int
}

var errDiskFull = errors.New("disk full")

func (g *stepGateway) UpdatePurchase(ctx context.Context, cid ledger.CustomerID, pid ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	if pid == g.failOn {
		g.failOn = ""
		return nil, errDiskFull
	}
	g.writes++
	return g.Gateway.UpdatePurchase(ctx, cid, pid, patch)
}

// brokenBatch rejects every batch write.
type brokenBatch struct {
	*store.Memory
}

func (brokenBatch) UpdatePurchases(context.Context, ledger.CustomerID, []ledger.PurchaseUpdate) ([]ledger.Purchase, error) {
	return nil, errDiskFull
}

// seedCustomer creates a customer owing 100 (Jan 1), 50 (Jan 15) and 200
// with 25 paid (Feb 1).
func seedCustomer(t *testing.T, mem *store.Memory) (ledger.CustomerID, []ledger.PurchaseID) {
	t.Helper()
	ctx := context.Background()

	c, err := mem.CreateCustomer(ctx, ledger.NewCustomer{Name: "Peter Kamau", Phone: "+254733777888"})
	require.NoError(t, err)

	var ids []ledger.PurchaseID
	for _, np := range []ledger.NewPurchase{
		{Amount: money("100"), Date: day("2026-01-01")},
		{Amount: money("50"), Date: day("2026-01-15")},
		{Amount: money("200"), Paid: money("25"), Date: day("2026-02-01")},
	} {
		p, err := mem.AddPurchase(ctx, c.ID, np)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return c.ID, ids
}

func paidOf(t *testing.T, mem *store.Memory, cid ledger.CustomerID) []string {
	t.Helper()
	c, err := mem.GetCustomer(context.Background(), cid)
	require.NoError(t, err)
	out := make([]string, len(c.Purchases))
	for i, p := range c.Purchases {
		out[i] = p.Paid.String()
	}
	return out
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_Batched(t *testing.T) {
	// GIVEN: A store that supports atomic batches
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	settler := ledger.NewSettler(mem)

	// WHEN: 120 is settled
	report, err := settler.Settle(context.Background(), cid, money("120"))

	// THEN: One batch write applies the FIFO plan
	require.NoError(t, err)
	assert.True(t, report.Batched)
	assert.True(t, report.Complete())
	assert.Len(t, report.Applied, 2)
	assert.Equal(t, "120.00", report.AppliedAmount().String())
	assert.Equal(t, []string{"100.00", "20.00", "25.00"}, paidOf(t, mem, cid))
}

func TestSettle_Stepwise(t *testing.T) {
	// GIVEN: A gateway without batch support
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem}
	settler := ledger.NewSettler(gw)

	// WHEN: Everything owed (325) is settled
	report, err := settler.Settle(context.Background(), cid, money("325"))

	// THEN: Each purchase is written once, in FIFO order
	require.NoError(t, err)
	assert.False(t, report.Batched)
	assert.Equal(t, 3, gw.writes)
	assert.Equal(t, []string{"100.00", "50.00", "200.00"}, paidOf(t, mem, cid))
}

func TestSettle_StepwiseFlagOverridesBatch(t *testing.T) {
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	settler := ledger.NewSettler(mem)
	settler.Stepwise = true

	report, err := settler.Settle(context.Background(), cid, money("10"))
	require.NoError(t, err)
	assert.False(t, report.Batched)
	assert.Equal(t, []string{"10.00", "0.00", "25.00"}, paidOf(t, mem, cid))
}

func TestSettle_RejectsBeforeAnyWrite(t *testing.T) {
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem}
	settler := ledger.NewSettler(gw)
	ctx := context.Background()

	tests := []struct {
		name    string
		payment string
		want    error
	}{
		{"zero", "0", ledger.ErrValidation},
		{"negative", "-5", ledger.ErrValidation},
		{"above pending", "325.01", ledger.ErrOverpayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := settler.Settle(ctx, cid, money(tt.payment))
			require.ErrorIs(t, err, tt.want)
			assert.True(t, ledger.IsClientError(err))
			assert.Nil(t, report)
		})
	}

	assert.Zero(t, gw.writes)
	assert.Equal(t, []string{"0.00", "0.00", "25.00"}, paidOf(t, mem, cid))
}

func TestSettle_UnknownCustomer(t *testing.T) {
	settler := ledger.NewSettler(store.NewMemory())

	_, err := settler.Settle(context.Background(), "nope", money("10"))
	require.ErrorIs(t, err, ledger.ErrCustomerNotFound)

	var gwErr *ledger.GatewayError
	assert.False(t, errors.As(err, &gwErr), "not found is not a gateway failure")
}

func TestSettleOne(t *testing.T) {
	mem := store.NewMemory()
	cid, ids := seedCustomer(t, mem)
	settler := ledger.NewSettler(mem)
	ctx := context.Background()

	// Newest purchase, skipping FIFO
	report, err := settler.SettleOne(ctx, cid, ids[2], money("175"))
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ids[2], report.Applied[0].PurchaseID)
	assert.Equal(t, []string{"0.00", "0.00", "200.00"}, paidOf(t, mem, cid))

	_, err = settler.SettleOne(ctx, cid, ids[1], money("50.01"))
	require.ErrorIs(t, err, ledger.ErrOverpayment)

	_, err = settler.SettleOne(ctx, cid, "nope", money("1"))
	require.ErrorIs(t, err, ledger.ErrPurchaseNotFound)
}

// =============================================================================
// PARTIAL FAILURE & RESUME
// =============================================================================

func TestSettle_PartialFailureReportsAppliedPrefix(t *testing.T) {
	// GIVEN: A gateway that fails on the second purchase
	mem := store.NewMemory()
	cid, ids := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem, failOn: ids[1]}
	settler := ledger.NewSettler(gw)

	// WHEN: 200 is settled over three purchases
	report, err := settler.Settle(context.Background(), cid, money("200"))

	// THEN: The error names the failed purchase and keeps the cause
	require.Error(t, err)
	require.ErrorIs(t, err, ledger.ErrGateway)
	require.ErrorIs(t, err, errDiskFull)
	assert.True(t, ledger.IsRetryable(err))

	var gwErr *ledger.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "update_purchase", gwErr.Op)
	assert.Equal(t, ids[1], gwErr.PurchaseID)
	assert.Same(t, report, gwErr.Report)

	// AND: Only the first step was persisted, the rest is reported
	require.Len(t, report.Applied, 1)
	assert.Equal(t, ids[0], report.Applied[0].PurchaseID)
	require.NotNil(t, report.Failed)
	assert.Equal(t, ids[1], report.Failed.PurchaseID)
	require.Len(t, report.Remaining, 2)
	assert.Equal(t, ids[1], report.Remaining[0].PurchaseID)
	assert.False(t, report.Complete())
	assert.Equal(t, []string{"100.00", "0.00", "25.00"}, paidOf(t, mem, cid))
}

func TestResume_FinishesPlan(t *testing.T) {
	// GIVEN: A settlement that stopped after the first step
	mem := store.NewMemory()
	cid, ids := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem, failOn: ids[1]}
	settler := ledger.NewSettler(gw)
	ctx := context.Background()

	report, err := settler.Settle(ctx, cid, money("200"))
	require.Error(t, err)
	writesBefore := gw.writes

	// WHEN: The plan is resumed
	resumed, err := settler.Resume(ctx, cid, report.Plan)

	// THEN: Only the two pending steps are written
	require.NoError(t, err)
	assert.True(t, resumed.Complete())
	assert.Equal(t, 2, gw.writes-writesBefore)
	assert.Len(t, resumed.Applied, 3)
	assert.Equal(t, "200.00", resumed.AppliedAmount().String())
	assert.Equal(t, []string{"100.00", "50.00", "75.00"}, paidOf(t, mem, cid))

	// AND: Resuming a finished plan is a no-op
	again, err := settler.Resume(ctx, cid, report.Plan)
	require.NoError(t, err)
	assert.True(t, again.Complete())
	assert.Equal(t, 2, gw.writes-writesBefore)
	assert.Equal(t, []string{"100.00", "50.00", "75.00"}, paidOf(t, mem, cid))
}

func TestResume_DetectsConcurrentModification(t *testing.T) {
	mem := store.NewMemory()
	cid, ids := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem, failOn: ids[1]}
	settler := ledger.NewSettler(gw)
	ctx := context.Background()

	report, err := settler.Settle(ctx, cid, money("200"))
	require.Error(t, err)

	// Someone else records a payment on the failed purchase
	other := money("5")
	_, err = mem.UpdatePurchase(ctx, cid, ids[1], ledger.PurchasePatch{Paid: &other})
	require.NoError(t, err)

	_, err = settler.Resume(ctx, cid, report.Plan)
	require.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.False(t, ledger.IsRetryable(err))
	assert.Equal(t, []string{"100.00", "5.00", "25.00"}, paidOf(t, mem, cid))

	_, err = settler.Resume(ctx, cid, nil)
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSettle_BatchFailureAppliesNothing(t *testing.T) {
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	settler := ledger.NewSettler(brokenBatch{mem})

	report, err := settler.Settle(context.Background(), cid, money("120"))

	var gwErr *ledger.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "update_purchases", gwErr.Op)
	assert.True(t, report.Batched)
	assert.Empty(t, report.Applied)
	assert.Len(t, report.Remaining, 2)
	assert.Equal(t, []string{"0.00", "0.00", "25.00"}, paidOf(t, mem, cid))
}

func TestSettle_CancelledContextStopsBeforeWriting(t *testing.T) {
	mem := store.NewMemory()
	cid, _ := seedCustomer(t, mem)
	gw := &stepGateway{Gateway: mem}
	settler := ledger.NewSettler(gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := settler.Settle(ctx, cid, money("120"))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ledger.ErrGateway)
	assert.Empty(t, report.Applied)
	assert.Len(t, report.Remaining, 2)
	assert.Zero(t, gw.writes)
}

// sharedReadGateway holds every GetCustomer until all callers have read,
// so concurrent settlements plan from the same paid values.
type sharedReadGateway struct {
	*store.Memory
	read *sync.WaitGroup
}

func (g sharedReadGateway) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	c, err := g.Memory.GetCustomer(ctx, id)
	g.read.Done()
	g.read.Wait()
	return c, err
}

func TestSettle_ConcurrentPaymentsDoNotOverwrite(t *testing.T) {
	for _, stepwise := range []bool{false, true} {
		name := "batched"
		if stepwise {
			name = "stepwise"
		}
		t.Run(name, func(t *testing.T) {
			// GIVEN: One purchase of 100 and two settlements reading it at once
			mem := store.NewMemory()
			ctx := context.Background()
			c, err := mem.CreateCustomer(ctx, ledger.NewCustomer{Name: "Peter Kamau", Phone: "1"})
			require.NoError(t, err)
			_, err = mem.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: money("100"), Date: day("2026-01-01")})
			require.NoError(t, err)

			var read sync.WaitGroup
			read.Add(2)
			settler := ledger.NewSettler(sharedReadGateway{Memory: mem, read: &read})
			settler.Stepwise = stepwise

			// WHEN: Both pay 50
			errs := make([]error, 2)
			var done sync.WaitGroup
			for i := range errs {
				done.Add(1)
				go func() {
					defer done.Done()
					_, errs[i] = settler.Settle(ctx, c.ID, money("50"))
				}()
			}
			done.Wait()

			// THEN: Exactly one lands; the other is rejected, not lost
			var ok, conflicts int
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ledger.ErrConcurrentModification):
					conflicts++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, 1, conflicts)
			assert.Equal(t, []string{"50.00"}, paidOf(t, mem, c.ID))
		})
	}
}
