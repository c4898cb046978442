/*
allocation.go - Spreading a payment over a customer's purchases

PURPOSE:
  A customer hands over one lump sum. This file decides which purchases
  it settles, oldest first, without ever paying a purchase beyond its
  amount. The result is a plan; nothing is written here.

FIFO ORDERING:
  Purchases are stable-sorted by date ascending. Purchases on the same
  date keep the order they were given in, which is insertion order when
  the list comes straight from a Gateway.

EXAMPLE:
  Jan 1:  amount 100, paid 0
  Jan 15: amount 50,  paid 0
  payment 120 -> [Jan 1 paid 100, Jan 15 paid 20]

VARIANTS:
  Allocate:   distribute over all outstanding purchases (FIFO)
  AllocateTo: apply to one named purchase only

SEE ALSO:
  - balance.go: SummarizePurchases provides the outstanding ceiling
  - settlement.go: Persists the plan through a Gateway
*/
package ledger

import "sort"

// =============================================================================
// ALLOCATION PLAN
// =============================================================================

// AllocationStep is the change to one purchase.
type AllocationStep struct {
	PurchaseID    PurchaseID
	PreviousPaid  Money
	Delta         Money
	NewPaid       Money
	BalanceBefore Money
	BalanceAfter  Money
}

// Update is the write that persists this step. It only applies while the
// purchase still holds PreviousPaid.
func (s AllocationStep) Update() PurchaseUpdate {
	previous := s.PreviousPaid
	return PurchaseUpdate{PurchaseID: s.PurchaseID, Paid: s.NewPaid, PreviousPaid: &previous}
}

// AllocationPlan describes how a payment is split across purchases.
// Steps are in allocation order, one per purchase whose paid changes.
type AllocationPlan struct {
	Payment      Money
	TotalPending Money
	Steps        []AllocationStep
}

// TotalAllocated sums the step deltas. Equals Payment for a valid plan.
func (p *AllocationPlan) TotalAllocated() Money {
	total := Zero
	for _, s := range p.Steps {
		total = total.Add(s.Delta)
	}
	return total
}

// Updates returns the persistence writes in allocation order.
func (p *AllocationPlan) Updates() []PurchaseUpdate {
	updates := make([]PurchaseUpdate, len(p.Steps))
	for i, s := range p.Steps {
		updates[i] = s.Update()
	}
	return updates
}

// =============================================================================
// PAYMENT ALLOCATOR
// =============================================================================

// PaymentAllocator computes allocation plans. It holds no state.
type PaymentAllocator struct{}

// Allocate spreads payment over purchases oldest first.
//
// Returns ValidationError if payment <= 0 and OverpaymentError if payment
// exceeds the aggregate pending balance. The purchases slice is not modified.
func (a *PaymentAllocator) Allocate(payment Money, purchases []Purchase) (*AllocationPlan, error) {
	if !payment.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "payment must be greater than zero"}
	}

	totalPending := SummarizePurchases(purchases).Pending
	if payment.GreaterThan(totalPending) {
		return nil, &OverpaymentError{Requested: payment, Outstanding: totalPending.Max(Zero)}
	}

	plan := &AllocationPlan{Payment: payment, TotalPending: totalPending}
	remaining := payment

	for _, p := range SortByDate(purchases) {
		if remaining.IsZero() {
			break
		}

		balance := p.Balance()
		if !balance.IsPositive() {
			continue
		}

		// Take min(remaining, balance)
		delta := remaining.Min(balance)
		plan.Steps = append(plan.Steps, newStep(p, delta))
		remaining = remaining.Sub(delta)
	}

	return plan, nil
}

// AllocateTo applies payment to a single purchase, rejecting anything
// that would push paid beyond the purchase amount.
func (a *PaymentAllocator) AllocateTo(payment Money, purchases []Purchase, id PurchaseID) (*AllocationPlan, error) {
	if !payment.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "payment must be greater than zero"}
	}

	var (
		target Purchase
		found  bool
	)
	for _, p := range purchases {
		if p.ID == id {
			target, found = p, true
			break
		}
	}
	if !found {
		return nil, ErrPurchaseNotFound
	}

	balance := target.Balance()
	if payment.GreaterThan(balance) {
		return nil, &OverpaymentError{PurchaseID: id, Requested: payment, Outstanding: balance.Max(Zero)}
	}

	return &AllocationPlan{
		Payment:      payment,
		TotalPending: balance,
		Steps:        []AllocationStep{newStep(target, payment)},
	}, nil
}

func newStep(p Purchase, delta Money) AllocationStep {
	newPaid := p.Paid.Add(delta)
	return AllocationStep{
		PurchaseID:    p.ID,
		PreviousPaid:  p.Paid,
		Delta:         delta,
		NewPaid:       newPaid,
		BalanceBefore: p.Balance(),
		BalanceAfter:  p.Amount.Sub(newPaid),
	}
}

// SortByDate returns a copy of purchases ordered oldest first. Equal dates
// keep their input order.
func SortByDate(purchases []Purchase) []Purchase {
	sorted := make([]Purchase, len(purchases))
	copy(sorted, purchases)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
