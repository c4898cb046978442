/*
scenarios_test.go - Tests for demo scenario loading

Each scenario is loaded through the API and checked for the data the
mobile client relies on. Loading a scenario always starts from an empty
store.
*/
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/ledger/store"
)

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func listCustomers(t *testing.T, router http.Handler) CustomerListResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[CustomerListResponse](t, rec)
}

func TestListScenarios(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"corner-shop", "fifo-settlement", "monthly-dashboard"}, ids)
}

func TestLoadScenario_CornerShop(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	// WHEN: Loading the corner shop
	loadScenario(t, router, "corner-shop")

	// THEN: Three customers with the expected open balances
	list := listCustomers(t, router)
	assert.Equal(t, 3, list.Summary.Customers)
	// 350 + 80.50 + 300 + 100
	assert.Equal(t, "830.50", list.Summary.TotalPending.String())

	// AND: The current month has cash flow
	rec := doJSON(t, router, http.MethodGet, "/api/transactions/summary", nil)
	summary := decode[SummaryDTO](t, rec)
	assert.Equal(t, "1350.00", summary.Income.String())
	assert.Equal(t, "1080.00", summary.Expense.String())
}

func TestLoadScenario_FIFOSettlement(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	// GIVEN: The FIFO scenario (100, 50, then 200 with 25 paid)
	loadScenario(t, router, "fifo-settlement")
	list := listCustomers(t, router)
	require.Len(t, list.Customers, 1)
	peter := list.Customers[0]
	assert.Equal(t, "325.00", peter.Totals.Pending.String())

	// WHEN: 120 is paid
	rec := doJSON(t, router, http.MethodPost, "/api/customers/"+peter.ID+"/payments",
		PaymentRequest{Amount: ledger.MustParseMoney("120")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The oldest is cleared and the middle one partly paid
	report := decode[SettlementDTO](t, rec)
	require.NotNil(t, report.Customer)
	paid := make([]string, len(report.Customer.Purchases))
	for i, p := range report.Customer.Purchases {
		paid[i] = p.Paid.String()
	}
	assert.Equal(t, []string{"100.00", "20.00", "25.00"}, paid)
	assert.Equal(t, "205.00", report.Customer.Totals.Pending.String())
}

func TestLoadScenario_MonthlyDashboard(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	loadScenario(t, router, "monthly-dashboard")

	rec := doJSON(t, router, http.MethodGet, "/api/transactions/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryDTO](t, rec)

	assert.Equal(t, "3080.00", summary.Income.String())
	assert.Equal(t, "730.00", summary.Expense.String())
	assert.Equal(t, "2350.00", summary.Balance.String())

	names := make([]string, len(summary.CategoryBreakdown))
	for i, g := range summary.CategoryBreakdown {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"Food", "Transport", "Bills", "Entertainment"}, names)
	assert.Equal(t, "365.00", summary.CategoryBreakdown[0].Value.String())
	assert.Empty(t, listCustomers(t, router).Customers)
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	loadScenario(t, router, "corner-shop")
	loadScenario(t, router, "fifo-settlement")

	assert.Len(t, listCustomers(t, router).Customers, 1)

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fifo-settlement", decode[ScenarioDTO](t, rec).ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	router := newTestAPI(t, store.NewMemory(), "")
	loadScenario(t, router, "corner-shop")

	rec := doJSON(t, router, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, listCustomers(t, router).Customers)
	rec = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

