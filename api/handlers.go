/*
handlers.go - HTTP API handlers for the TrackPay ledger

PURPOSE:
  Exposes customers, purchases, payments and account transactions via a
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the ledger package.

ENDPOINTS:
  Customers:
    GET    /api/customers                        List (q= search) with portfolio totals
    POST   /api/customers                        Create customer
    GET    /api/customers/{id}                   Customer with purchases and totals
    GET    /api/customers/{id}/purchases         Paginated purchases (month= filter)
    POST   /api/customers/{id}/purchases         Add purchase
    PUT    /api/customers/{id}/purchases/{pid}   Patch paid/description
    POST   /api/customers/{id}/payments          Settle a payment (FIFO or one purchase)

  Transactions:
    GET    /api/transactions                     List (startDate, endDate)
    POST   /api/transactions                     Record income/expense
    DELETE /api/transactions/{id}                Delete
    GET    /api/transactions/summary             Totals, breakdown and chart slices
    GET    /api/categories                       Default categories

  Scenarios:
    GET    /api/scenarios                        List demo scenarios
    POST   /api/scenarios/load                   Load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (ledger input types)
  3. Call the store or the Settler
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON {error, code, details}:
  - 400: Validation errors, invalid input
  - 401: Missing or wrong bearer token
  - 404: Customer, purchase or transaction not found
  - 409: Purchase changed while a payment was being applied
  - 422: Payment exceeds what is owed
  - 502: Store failed part-way; details carry the settlement report
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.Store
	Settler *ledger.Settler
	Palette ledger.Palette

	// Now is the clock used for "current month" filters and default dates.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.Store, palette ledger.Palette) *Handler {
	return &Handler{
		Store:   store,
		Settler: ledger.NewSettler(store),
		Palette: palette,
		Now:     time.Now,
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns customers matching q. The summary always covers
// every customer.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeLedgerError(w, "Failed to list customers", err)
		return
	}

	totals := ledger.SummarizeCustomers(customers)
	matched := ledger.SearchCustomers(customers, r.URL.Query().Get("q"))

	dtos := make([]CustomerDTO, len(matched))
	for i, c := range matched {
		dtos[i] = ToCustomerDTO(c)
	}

	writeJSON(w, http.StatusOK, CustomerListResponse{
		Customers: dtos,
		Summary: PortfolioDTO{
			Customers:    totals.Customers,
			TotalAmount:  totals.TotalAmount,
			TotalPaid:    totals.TotalPaid,
			TotalPending: totals.TotalPending,
		},
	})
}

// CreateCustomer creates a new customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	c, err := h.Store.CreateCustomer(r.Context(), ledger.NewCustomer{
		Name:     strings.TrimSpace(req.Name),
		Phone:    strings.TrimSpace(req.Phone),
		Location: strings.TrimSpace(req.Location),
	})
	if err != nil {
		writeLedgerError(w, "Failed to create customer", err)
		return
	}

	logger.Log.Info().
		Str("customer_id", string(c.ID)).
		Str("phone", logger.MaskPhone(c.Phone)).
		Msg("Customer created")

	writeJSON(w, http.StatusCreated, ToCustomerDTO(*c))
}

// GetCustomer returns a customer with purchases and totals.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))

	c, err := h.Store.GetCustomer(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to get customer", err)
		return
	}

	writeJSON(w, http.StatusOK, ToCustomerDTO(*c))
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// ListPurchases returns a page of purchases in insertion order.
//
// Query: month=current|YYYY-MM, page (1-based), per_page.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	c, err := h.Store.GetCustomer(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to get customer", err)
		return
	}

	purchases := c.Purchases
	if month := q.Get("month"); month != "" {
		period, err := h.monthPeriod(month)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "Invalid month (use current or YYYY-MM)", err)
			return
		}
		purchases = ledger.PurchasesInPeriod(purchases, period)
	}

	page := ledger.Paginate(purchases, atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("per_page"), ledger.DefaultPerPage))

	writeJSON(w, http.StatusOK, PurchasePageDTO{
		Purchases:  toPurchaseDTOs(page.Items),
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

// AddPurchase records a credit sale for a customer.
func (h *Handler) AddPurchase(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))

	var req CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	date, err := h.parseDateOrToday(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	np := ledger.NewPurchase{
		Amount:      req.Amount,
		Paid:        ledger.Zero,
		Description: req.Description,
		Date:        date,
	}
	if req.Paid != nil {
		np.Paid = *req.Paid
	}

	p, err := h.Store.AddPurchase(r.Context(), id, np)
	if err != nil {
		writeLedgerError(w, "Failed to add purchase", err)
		return
	}

	logger.Log.Info().
		Str("customer_id", string(id)).
		Str("purchase_id", string(p.ID)).
		Str("amount", p.Amount.String()).
		Str("description", logger.SanitizeText(p.Description)).
		Msg("Purchase added")

	writeJSON(w, http.StatusCreated, ToPurchaseDTO(*p))
}

// UpdatePurchase patches a purchase. paid is the new absolute value.
func (h *Handler) UpdatePurchase(w http.ResponseWriter, r *http.Request) {
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))
	purchaseID := ledger.PurchaseID(chi.URLParam(r, "pid"))

	var req UpdatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	p, err := h.Store.UpdatePurchase(r.Context(), customerID, purchaseID, ledger.PurchasePatch{
		Paid:         req.Paid,
		Description:  req.Description,
		ExpectedPaid: req.ExpectedPaid,
	})
	if err != nil {
		writeLedgerError(w, "Failed to update purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, ToPurchaseDTO(*p))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// SettlePayment applies a payment and returns the settlement report with
// the reloaded customer.
func (h *Handler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	customerID := ledger.CustomerID(chi.URLParam(r, "id"))

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	var (
		report *ledger.SettlementReport
		err    error
	)
	if req.PurchaseID != "" {
		report, err = h.Settler.SettleOne(ctx, customerID, ledger.PurchaseID(req.PurchaseID), req.Amount)
	} else {
		report, err = h.Settler.Settle(ctx, customerID, req.Amount)
	}
	if err != nil {
		writeLedgerError(w, "Failed to apply payment", err)
		return
	}

	dto := ToSettlementDTO(report)
	if c, err := h.Store.GetCustomer(ctx, customerID); err == nil {
		cd := ToCustomerDTO(*c)
		dto.Customer = &cd
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns transactions in [startDate, endDate], or all.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeLedgerError(w, "Invalid date range", err)
		return
	}

	txs, err := h.Store.ListTransactions(r.Context(), window)
	if err != nil {
		writeLedgerError(w, "Failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateTransaction records an income or expense.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
		return
	}

	date, err := h.parseDateOrToday(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	txType := ledger.TransactionType(strings.ToLower(req.Type))
	if req.Type == "" {
		txType = ledger.TxExpense
	}

	tx, err := h.Store.CreateTransaction(r.Context(), ledger.NewTransaction{
		Type:        txType,
		Amount:      req.Amount,
		Category:    strings.TrimSpace(req.Category),
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, ToTransactionDTO(*tx))
}

// DeleteTransaction removes a transaction.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteTransaction(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": string(id)})
}

// GetSummary returns totals, the category breakdown and chart slices.
// Without startDate/endDate it covers the current month; all=true covers
// every transaction. type=income breaks down income instead of expenses.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, err := parseWindow(r)
	if err != nil {
		writeLedgerError(w, "Invalid date range", err)
		return
	}
	if window == nil && q.Get("all") != "true" {
		month := ledger.MonthPeriod(h.Now())
		window = &month
	}

	breakdownType := ledger.TxExpense
	if t := q.Get("type"); t != "" {
		breakdownType = ledger.TransactionType(strings.ToLower(t))
		if !breakdownType.Valid() {
			writeError(w, http.StatusBadRequest, CodeValidation, "Invalid type (use income or expense)", nil)
			return
		}
	}

	ctx := r.Context()
	summary, err := h.Store.GetTransactionSummary(ctx, window)
	if err != nil {
		writeLedgerError(w, "Failed to summarize transactions", err)
		return
	}

	if breakdownType == ledger.TxIncome {
		txs, err := h.Store.ListTransactions(ctx, window)
		if err != nil {
			writeLedgerError(w, "Failed to list transactions", err)
			return
		}
		summary.CategoryBreakdown = ledger.CategoryBreakdown(txs, ledger.TxIncome, window)
	}

	writeJSON(w, http.StatusOK, ToSummaryDTO(summary, window, h.Palette))
}

// ListCategories returns the categories offered when recording a transaction.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledger.DefaultCategories)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	var gwErr *ledger.GatewayError

	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, message, err)
	case errors.As(err, &gwErr) && gwErr.Report != nil:
		// Partial write: the report tells the client what was persisted
		status, code := http.StatusBadGateway, CodeGateway
		if errors.Is(err, ledger.ErrConcurrentModification) {
			status, code = http.StatusConflict, CodeConflict
		}
		writeJSON(w, status, ErrorResponse{
			Error:   message + ": " + err.Error(),
			Code:    code,
			Details: ToSettlementDTO(gwErr.Report),
		})
	case errors.Is(err, ledger.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, CodeCustomerNotFound, message, err)
	case errors.Is(err, ledger.ErrPurchaseNotFound):
		writeError(w, http.StatusNotFound, CodePurchaseNotFound, message, err)
	case errors.Is(err, ledger.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, CodeTransactionNotFound, message, err)
	case errors.Is(err, ledger.ErrOverpayment):
		writeError(w, http.StatusUnprocessableEntity, CodeOverpayment, message, err)
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, message, err)
	case errors.Is(err, ledger.ErrConcurrentModification):
		writeError(w, http.StatusConflict, CodeConflict, message, err)
	case errors.Is(err, ledger.ErrGateway):
		writeError(w, http.StatusBadGateway, CodeGateway, message, err)
	default:
		logger.Log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, CodeInternal, message, err)
	}
}

// parseWindow reads startDate/endDate. Both absent means no window.
func parseWindow(r *http.Request) (*ledger.Period, error) {
	q := r.URL.Query()
	start, end := q.Get("startDate"), q.Get("endDate")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, &ledger.ValidationError{Field: "startDate", Message: "startDate and endDate must be given together"}
	}

	s, err := ledger.ParseDate(start)
	if err != nil {
		return nil, &ledger.ValidationError{Field: "startDate", Message: "use YYYY-MM-DD"}
	}
	e, err := ledger.ParseDate(end)
	if err != nil {
		return nil, &ledger.ValidationError{Field: "endDate", Message: "use YYYY-MM-DD"}
	}

	p := ledger.Period{Start: s, End: e}
	if !p.Valid() {
		return nil, &ledger.ValidationError{Field: "endDate", Message: "endDate is before startDate"}
	}
	return &p, nil
}

func (h *Handler) monthPeriod(month string) (ledger.Period, error) {
	if month == "current" {
		return ledger.MonthPeriod(h.Now()), nil
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return ledger.Period{}, err
	}
	return ledger.MonthPeriod(t), nil
}

func (h *Handler) parseDateOrToday(s string) (time.Time, error) {
	if s == "" {
		return h.Now(), nil
	}
	return ledger.ParseDate(s)
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// resetter is implemented by every store that supports demo resets.
type resetter interface {
	Reset(ctx context.Context) error
}
