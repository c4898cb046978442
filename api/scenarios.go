/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built data sets that populate the store with realistic
	customers, purchases and transactions. Each scenario shows one part of
	the ledger: FIFO settlement, the customer list totals, or the monthly
	dashboard.

AVAILABLE SCENARIOS:

	corner-shop:       Three customers on credit plus a month of cash flow
	fifo-settlement:   One customer with staggered purchases, ready for a payment
	monthly-dashboard: Income and expenses across categories for the summary charts

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create customers
 3. Add purchases, some partially paid
 4. Record income and expense transactions

Dates are relative to the handler clock so "current month" views always
have data.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fifo-settlement"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/logger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "corner-shop",
		Name:        "Corner Shop",
		Description: "Three customers buying on credit, with a month of income and expenses",
	},
	{
		ID:          "fifo-settlement",
		Name:        "FIFO Settlement",
		Description: "One customer with three open purchases; a payment settles the oldest first",
	},
	{
		ID:          "monthly-dashboard",
		Name:        "Monthly Dashboard",
		Description: "Income and expenses across categories for the summary charts",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "corner-shop":
		load = h.loadCornerShopScenario
	case "fifo-settlement":
		load = h.loadFIFOSettlementScenario
	case "monthly-dashboard":
		load = h.loadMonthlyDashboardScenario
	default:
		writeError(w, http.StatusBadRequest, CodeValidation, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	logger.Log.Info().Str("scenario", req.ScenarioID).Msg("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return fmt.Errorf("store %T does not support reset", h.Store)
	}
	return rs.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedPurchase struct {
	amount      string
	paid        string
	description string
	daysAgo     int
}

type seedTransaction struct {
	txType      ledger.TransactionType
	amount      string
	category    string
	description string
	day         int // day of the current month, clamped to today
}

func (h *Handler) loadCornerShopScenario(ctx context.Context) error {
	customers := []struct {
		customer  ledger.NewCustomer
		purchases []seedPurchase
	}{
		{
			customer: ledger.NewCustomer{Name: "Amina Yusuf", Phone: "+254700111222", Location: "Market Street"},
			purchases: []seedPurchase{
				{amount: "1200.00", paid: "1200.00", description: "Rice 50kg", daysAgo: 40},
				{amount: "450.00", paid: "100.00", description: "Cooking oil", daysAgo: 12},
				{amount: "80.50", paid: "0", description: "Sugar", daysAgo: 2},
			},
		},
		{
			customer: ledger.NewCustomer{Name: "Joseph Mwangi", Phone: "+254711333444", Location: "Riverside"},
			purchases: []seedPurchase{
				{amount: "300.00", paid: "0", description: "Maize flour", daysAgo: 20},
				{amount: "150.00", paid: "50.00", description: "Soap", daysAgo: 5},
			},
		},
		{
			customer: ledger.NewCustomer{Name: "Grace Otieno", Phone: "+254722555666"},
			purchases: []seedPurchase{
				{amount: "75.00", paid: "75.00", description: "Bread", daysAgo: 3},
			},
		},
	}

	for _, c := range customers {
		if _, err := h.seedCustomer(ctx, c.customer, c.purchases); err != nil {
			return err
		}
	}

	return h.seedTransactions(ctx, []seedTransaction{
		{txType: ledger.TxIncome, amount: "1200.00", category: "Customer Payment", description: "Amina settled rice", day: 1},
		{txType: ledger.TxIncome, amount: "150.00", category: "Customer Payment", description: "Partial payments", day: 5},
		{txType: ledger.TxExpense, amount: "900.00", category: "Shopping", description: "Restock", day: 2},
		{txType: ledger.TxExpense, amount: "120.00", category: "Transport", description: "Delivery", day: 3},
		{txType: ledger.TxExpense, amount: "60.00", category: "Bills", description: "Electricity", day: 6},
	})
}

func (h *Handler) loadFIFOSettlementScenario(ctx context.Context) error {
	_, err := h.seedCustomer(ctx,
		ledger.NewCustomer{Name: "Peter Kamau", Phone: "+254733777888", Location: "Hill Road"},
		[]seedPurchase{
			{amount: "100.00", paid: "0", description: "Oldest purchase", daysAgo: 30},
			{amount: "50.00", paid: "0", description: "Middle purchase", daysAgo: 15},
			{amount: "200.00", paid: "25.00", description: "Newest purchase", daysAgo: 1},
		})
	return err
}

func (h *Handler) loadMonthlyDashboardScenario(ctx context.Context) error {
	return h.seedTransactions(ctx, []seedTransaction{
		{txType: ledger.TxIncome, amount: "2500.00", category: "Salary", description: "Monthly salary", day: 1},
		{txType: ledger.TxIncome, amount: "400.00", category: "Freelance", description: "Logo design", day: 4},
		{txType: ledger.TxIncome, amount: "180.00", category: "Debt Recovery", description: "Old loan repaid", day: 7},
		{txType: ledger.TxExpense, amount: "320.00", category: "Food", description: "Groceries", day: 2},
		{txType: ledger.TxExpense, amount: "95.00", category: "Transport", description: "Fuel", day: 3},
		{txType: ledger.TxExpense, amount: "210.00", category: "Bills", description: "Internet and power", day: 5},
		{txType: ledger.TxExpense, amount: "60.00", category: "Entertainment", description: "Cinema", day: 6},
		{txType: ledger.TxExpense, amount: "45.00", category: "Food", description: "Lunch", day: 8},
	})
}

func (h *Handler) seedCustomer(ctx context.Context, nc ledger.NewCustomer, purchases []seedPurchase) (*ledger.Customer, error) {
	c, err := h.Store.CreateCustomer(ctx, nc)
	if err != nil {
		return nil, fmt.Errorf("create customer %s: %w", nc.Name, err)
	}

	today := h.Now()
	for _, sp := range purchases {
		_, err := h.Store.AddPurchase(ctx, c.ID, ledger.NewPurchase{
			Amount:      ledger.MustParseMoney(sp.amount),
			Paid:        ledger.MustParseMoney(sp.paid),
			Description: sp.description,
			Date:        today.AddDate(0, 0, -sp.daysAgo),
		})
		if err != nil {
			return nil, fmt.Errorf("add purchase %q: %w", sp.description, err)
		}
	}
	return c, nil
}

func (h *Handler) seedTransactions(ctx context.Context, txs []seedTransaction) error {
	today := h.Now()
	for _, st := range txs {
		day := min(st.day, today.Day())
		_, err := h.Store.CreateTransaction(ctx, ledger.NewTransaction{
			Type:        st.txType,
			Amount:      ledger.MustParseMoney(st.amount),
			Category:    st.category,
			Description: st.description,
			Date:        time.Date(today.Year(), today.Month(), day, 12, 0, 0, 0, today.Location()),
		})
		if err != nil {
			return fmt.Errorf("create transaction %q: %w", st.description, err)
		}
	}
	return nil
}
