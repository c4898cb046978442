/*
balance.go - Totals over purchases, transactions and customers

PURPOSE:
  Answers "how much does this customer owe?" and "how did this month go?".
  All functions are pure: same input, same output, inputs untouched.

BALANCE COMPONENTS:
  Purchases:    TotalAmount, TotalPaid, Pending = TotalAmount - TotalPaid
  Transactions: Income, Expense, Balance = Income - Expense
  Customers:    the purchase totals summed over every customer

ANOMALIES:
  Pending is negative only if some purchase was persisted with
  paid > amount upstream. That is flagged by Overpaid(), never an error.

SEE ALSO:
  - allocation.go: Uses Pending as the ceiling for a payment
  - summary.go: Category-level breakdown of the transaction totals
*/
package ledger

// =============================================================================
// PURCHASE TOTALS
// =============================================================================

// PurchaseTotals is the aggregate over a set of purchases.
type PurchaseTotals struct {
	Count       int
	TotalAmount Money
	TotalPaid   Money
	Pending     Money

	// OverpaidCount counts purchases with paid > amount.
	OverpaidCount int
}

// Overpaid reports the paid > amount anomaly.
func (t PurchaseTotals) Overpaid() bool {
	return t.OverpaidCount > 0 || t.Pending.IsNegative()
}

// SummarizePurchases sums amount and paid. Order is irrelevant.
func SummarizePurchases(purchases []Purchase) PurchaseTotals {
	totals := PurchaseTotals{
		TotalAmount: Zero,
		TotalPaid:   Zero,
	}
	for _, p := range purchases {
		totals.Count++
		totals.TotalAmount = totals.TotalAmount.Add(p.Amount)
		totals.TotalPaid = totals.TotalPaid.Add(p.Paid)
		if p.Overpaid() {
			totals.OverpaidCount++
		}
	}
	totals.Pending = totals.TotalAmount.Sub(totals.TotalPaid)
	return totals
}

// =============================================================================
// TRANSACTION TOTALS
// =============================================================================

// Totals is the income/expense aggregate over a window.
type Totals struct {
	Income  Money
	Expense Money
	Balance Money
}

// SummarizeTransactions sums income and expense for transactions inside
// window. A nil window includes everything.
func SummarizeTransactions(txs []Transaction, window *Period) Totals {
	income, expense := Zero, Zero
	for _, tx := range txs {
		if !inWindow(window, tx.Date) {
			continue
		}
		switch tx.Type {
		case TxIncome:
			income = income.Add(tx.Amount)
		case TxExpense:
			expense = expense.Add(tx.Amount)
		}
	}
	return Totals{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}
}

// =============================================================================
// PORTFOLIO TOTALS - Across all customers
// =============================================================================

// PortfolioTotals is shown above the customer list.
type PortfolioTotals struct {
	Customers    int
	TotalAmount  Money
	TotalPaid    Money
	TotalPending Money
}

// SummarizeCustomers sums purchase totals over every customer.
func SummarizeCustomers(customers []Customer) PortfolioTotals {
	out := PortfolioTotals{
		TotalAmount:  Zero,
		TotalPaid:    Zero,
		TotalPending: Zero,
	}
	for _, c := range customers {
		t := SummarizePurchases(c.Purchases)
		out.Customers++
		out.TotalAmount = out.TotalAmount.Add(t.TotalAmount)
		out.TotalPaid = out.TotalPaid.Add(t.TotalPaid)
		out.TotalPending = out.TotalPending.Add(t.Pending)
	}
	return out
}
