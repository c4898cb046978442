/*
settlement.go - Persisting a payment allocation through a Gateway

PURPOSE:
  The allocator says what should change; the Settler makes it so. It loads
  the customer, plans the allocation, then writes the plan.

PERSISTENCE MODES:
  Batched:  Gateway implements BatchUpdater. The whole plan is one atomic
            write; on failure nothing was applied.
  Stepwise: One UpdatePurchase per step, in allocation order. A failure
            stops the walk and the report names the applied prefix.

CONCURRENCY:
  Every write carries the PreviousPaid it was planned from. If another
  settlement changed the purchase in between, the store rejects the write
  with ErrConcurrentModification instead of overwriting that payment.

PARTIAL FAILURE:
  Every step writes the absolute NewPaid value, so a step can be repeated
  safely. After a stepwise failure, pass report.Plan to Resume: steps
  already at NewPaid are skipped, steps still at PreviousPaid are written,
  anything else means someone else touched the purchase and Resume stops
  with ErrConcurrentModification.

EXAMPLE:
  settler := ledger.NewSettler(store)
  report, err := settler.Settle(ctx, "cust-1", ledger.MustParseMoney("120"))
  var gwErr *ledger.GatewayError
  if errors.As(err, &gwErr) {
      report, err = settler.Resume(ctx, "cust-1", gwErr.Report.Plan)
  }

SEE ALSO:
  - allocation.go: Produces the plan
  - gateway.go: Gateway and BatchUpdater contracts
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/warp/trackpay/logger"
)

// =============================================================================
// SETTLEMENT REPORT
// =============================================================================

// SettlementReport records what a settlement persisted.
type SettlementReport struct {
	CustomerID CustomerID
	Plan       *AllocationPlan

	// Applied steps are persisted. Remaining steps are not, Failed
	// included when set.
	Applied   []AllocationStep
	Failed    *AllocationStep
	Remaining []AllocationStep

	// Batched is true when the plan went through BatchUpdater.
	Batched bool
}

// Complete reports whether every step of the plan was persisted.
func (r *SettlementReport) Complete() bool {
	return len(r.Remaining) == 0 && r.Failed == nil
}

// AppliedAmount sums the deltas that reached the gateway.
func (r *SettlementReport) AppliedAmount() Money {
	total := Zero
	for _, s := range r.Applied {
		total = total.Add(s.Delta)
	}
	return total
}

// =============================================================================
// SETTLER
// =============================================================================

// Settler applies payments through a Gateway.
type Settler struct {
	Gateway   Gateway
	Allocator *PaymentAllocator

	// Stepwise disables the BatchUpdater path even when the gateway has it.
	Stepwise bool
}

func NewSettler(gw Gateway) *Settler {
	return &Settler{Gateway: gw, Allocator: &PaymentAllocator{}}
}

func (s *Settler) allocator() *PaymentAllocator {
	if s.Allocator == nil {
		return &PaymentAllocator{}
	}
	return s.Allocator
}

// Settle spreads payment over the customer's purchases oldest first and
// persists the result.
func (s *Settler) Settle(ctx context.Context, customerID CustomerID, payment Money) (*SettlementReport, error) {
	if !payment.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "payment must be greater than zero"}
	}

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	plan, err := s.allocator().Allocate(payment, customer.Purchases)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, customerID, plan, nil)
}

// SettleOne applies payment to a single purchase.
func (s *Settler) SettleOne(ctx context.Context, customerID CustomerID, purchaseID PurchaseID, payment Money) (*SettlementReport, error) {
	if !payment.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "payment must be greater than zero"}
	}

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	plan, err := s.allocator().AllocateTo(payment, customer.Purchases, purchaseID)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, customerID, plan, nil)
}

// Resume finishes a plan that was partially persisted.
func (s *Settler) Resume(ctx context.Context, customerID CustomerID, plan *AllocationPlan) (*SettlementReport, error) {
	if plan == nil {
		return nil, &ValidationError{Field: "plan", Message: "plan is required"}
	}

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var done, pending []AllocationStep
	for _, step := range plan.Steps {
		current, ok := customer.Purchase(step.PurchaseID)
		if !ok {
			return nil, fmt.Errorf("resume step %s: %w", step.PurchaseID, ErrPurchaseNotFound)
		}
		switch {
		case current.Paid.Equal(step.NewPaid):
			done = append(done, step)
		case current.Paid.Equal(step.PreviousPaid):
			pending = append(pending, step)
		default:
			return nil, fmt.Errorf("purchase %s paid is %s, expected %s or %s: %w",
				step.PurchaseID, current.Paid, step.PreviousPaid, step.NewPaid, ErrConcurrentModification)
		}
	}

	logger.Log.Info().
		Str("customer_id", string(customerID)).
		Int("already_applied", len(done)).
		Int("pending", len(pending)).
		Msg("Resuming settlement")

	return s.persist(ctx, customerID, &AllocationPlan{
		Payment:      plan.Payment,
		TotalPending: plan.TotalPending,
		Steps:        pending,
	}, done)
}

func (s *Settler) loadCustomer(ctx context.Context, id CustomerID) (*Customer, error) {
	customer, err := s.Gateway.GetCustomer(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, &GatewayError{Op: "get_customer", Err: err}
	}
	return customer, nil
}

// persist writes plan.Steps. done are steps persisted by an earlier run
// and are reported as applied.
func (s *Settler) persist(ctx context.Context, customerID CustomerID, plan *AllocationPlan, done []AllocationStep) (*SettlementReport, error) {
	full := plan
	if len(done) > 0 {
		full = &AllocationPlan{
			Payment:      plan.Payment,
			TotalPending: plan.TotalPending,
			Steps:        append(append([]AllocationStep{}, done...), plan.Steps...),
		}
	}

	report := &SettlementReport{
		CustomerID: customerID,
		Plan:       full,
		Applied:    append([]AllocationStep{}, done...),
		Remaining:  append([]AllocationStep{}, plan.Steps...),
	}
	if len(plan.Steps) == 0 {
		return report, nil
	}

	if batch, ok := s.Gateway.(BatchUpdater); ok && !s.Stepwise {
		return s.persistBatch(ctx, batch, report, plan)
	}
	return s.persistSteps(ctx, report, plan)
}

func (s *Settler) persistBatch(ctx context.Context, batch BatchUpdater, report *SettlementReport, plan *AllocationPlan) (*SettlementReport, error) {
	report.Batched = true
	if _, err := batch.UpdatePurchases(ctx, report.CustomerID, plan.Updates()); err != nil {
		logger.Log.Error().Err(err).
			Str("customer_id", string(report.CustomerID)).
			Int("steps", len(plan.Steps)).
			Msg("Batch settlement failed")
		return report, &GatewayError{Op: "update_purchases", Report: report, Err: err}
	}

	report.Applied = append(report.Applied, plan.Steps...)
	report.Remaining = nil
	logSettled(report)
	return report, nil
}

func (s *Settler) persistSteps(ctx context.Context, report *SettlementReport, plan *AllocationPlan) (*SettlementReport, error) {
	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			report.Remaining = plan.Steps[i:]
			return report, &GatewayError{Op: "update_purchase", PurchaseID: step.PurchaseID, Report: report, Err: err}
		}

		if _, err := s.Gateway.UpdatePurchase(ctx, report.CustomerID, step.PurchaseID, step.Update().Patch()); err != nil {
			failed := step
			report.Failed = &failed
			report.Remaining = plan.Steps[i:]
			logger.Log.Error().Err(err).
				Str("customer_id", string(report.CustomerID)).
				Str("purchase_id", string(step.PurchaseID)).
				Int("applied", len(report.Applied)).
				Msg("Settlement step failed")
			return report, &GatewayError{Op: "update_purchase", PurchaseID: step.PurchaseID, Report: report, Err: err}
		}

		report.Applied = append(report.Applied, step)
		logger.Log.Debug().
			Str("customer_id", string(report.CustomerID)).
			Str("purchase_id", string(step.PurchaseID)).
			Str("paid", step.NewPaid.String()).
			Msg("Settlement step applied")
	}

	report.Remaining = nil
	logSettled(report)
	return report, nil
}

func logSettled(r *SettlementReport) {
	logger.Log.Info().
		Str("customer_id", string(r.CustomerID)).
		Str("payment", r.Plan.Payment.String()).
		Int("purchases", len(r.Applied)).
		Bool("batched", r.Batched).
		Msg("Payment settled")
}
