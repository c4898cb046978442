/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the wire contract. The remote client decodes the
  same types, so the server and client cannot drift apart.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Customers:
    CustomerDTO, CustomerListResponse, CreateCustomerRequest

  Purchases:
    PurchaseDTO, PurchasePageDTO, CreatePurchaseRequest, UpdatePurchaseRequest

  Payments:
    PaymentRequest, SettlementDTO, AllocationStepDTO

  Transactions:
    TransactionDTO, CreateTransactionRequest, SummaryDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  ledger.Money marshals as a JSON number with two decimals and accepts
  either a number or a string on input.

VALIDATION:
  Validation is done by the ledger input types (NewPurchase.Validate and
  friends), not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - remote/client.go: Decodes these types on the client side
*/
package api

import (
	"fmt"
	"time"

	"github.com/warp/trackpay/ledger"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerDTO represents a customer in API responses.
type CustomerDTO struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Phone     string            `json:"phone"`
	Location  string            `json:"location,omitempty"`
	Purchases []PurchaseDTO     `json:"purchases"`
	Totals    PurchaseTotalsDTO `json:"totals"`
	CreatedAt string            `json:"created_at,omitempty"`
}

// PurchaseTotalsDTO is the per-customer aggregate.
type PurchaseTotalsDTO struct {
	TotalAmount ledger.Money `json:"total_amount"`
	TotalPaid   ledger.Money `json:"total_paid"`
	Pending     ledger.Money `json:"pending"`
	Overpaid    bool         `json:"overpaid,omitempty"`
}

// PortfolioDTO sums every listed customer.
type PortfolioDTO struct {
	Customers    int          `json:"customers"`
	TotalAmount  ledger.Money `json:"total_amount"`
	TotalPaid    ledger.Money `json:"total_paid"`
	TotalPending ledger.Money `json:"total_pending"`
}

// CustomerListResponse is returned by GET /api/customers.
type CustomerListResponse struct {
	Customers []CustomerDTO `json:"customers"`
	Summary   PortfolioDTO  `json:"summary"`
}

// CreateCustomerRequest is the request to create a customer.
type CreateCustomerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Location string `json:"location,omitempty"`
}

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseDTO represents a purchase. Balance is derived.
type PurchaseDTO struct {
	ID          string       `json:"id"`
	CustomerID  string       `json:"customer_id"`
	Amount      ledger.Money `json:"amount"`
	Paid        ledger.Money `json:"paid"`
	Balance     ledger.Money `json:"balance"`
	Description string       `json:"description,omitempty"`
	Date        string       `json:"date"`
	CreatedAt   string       `json:"created_at,omitempty"`
}

// PurchasePageDTO is one page of a customer's purchases.
type PurchasePageDTO struct {
	Purchases  []PurchaseDTO `json:"purchases"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// CreatePurchaseRequest adds a purchase. Date defaults to today.
type CreatePurchaseRequest struct {
	Amount      ledger.Money  `json:"amount"`
	Paid        *ledger.Money `json:"paid,omitempty"`
	Description string        `json:"description,omitempty"`
	Date        string        `json:"date,omitempty"`
}

// UpdatePurchaseRequest patches a purchase. Paid is absolute. When
// expected_paid is set the update is refused with 409 unless the stored
// paid still equals it.
type UpdatePurchaseRequest struct {
	Paid         *ledger.Money `json:"paid,omitempty"`
	Description  *string       `json:"description,omitempty"`
	ExpectedPaid *ledger.Money `json:"expected_paid,omitempty"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest settles a payment. Without purchase_id the payment is
// spread oldest first over every outstanding purchase.
type PaymentRequest struct {
	Amount     ledger.Money `json:"amount"`
	PurchaseID string       `json:"purchase_id,omitempty"`
}

// AllocationStepDTO is the change applied to one purchase.
type AllocationStepDTO struct {
	PurchaseID    string       `json:"purchase_id"`
	PreviousPaid  ledger.Money `json:"previous_paid"`
	Delta         ledger.Money `json:"delta"`
	NewPaid       ledger.Money `json:"new_paid"`
	BalanceBefore ledger.Money `json:"balance_before"`
	BalanceAfter  ledger.Money `json:"balance_after"`
}

// SettlementDTO reports what a payment changed.
type SettlementDTO struct {
	CustomerID   string              `json:"customer_id"`
	Payment      ledger.Money        `json:"payment"`
	TotalPending ledger.Money        `json:"total_pending"`
	Applied      []AllocationStepDTO `json:"applied"`
	Remaining    []AllocationStepDTO `json:"remaining,omitempty"`
	Failed       *AllocationStepDTO  `json:"failed,omitempty"`
	Batched      bool                `json:"batched"`
	Complete     bool                `json:"complete"`
	Customer     *CustomerDTO        `json:"customer,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents an income or expense entry.
type TransactionDTO struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Amount      ledger.Money `json:"amount"`
	Category    string       `json:"category"`
	Description string       `json:"description,omitempty"`
	Date        string       `json:"date"`
	CreatedAt   string       `json:"created_at,omitempty"`
}

// CreateTransactionRequest records a transaction. Date defaults to today.
type CreateTransactionRequest struct {
	Type        string       `json:"type"`
	Amount      ledger.Money `json:"amount"`
	Category    string       `json:"category"`
	Description string       `json:"description,omitempty"`
	Date        string       `json:"date,omitempty"`
}

// CategoryTotalDTO is one entry of the breakdown, in discovery order.
type CategoryTotalDTO struct {
	Name  string       `json:"name"`
	Value ledger.Money `json:"value"`
	Index int          `json:"index"`
}

// SliceDTO is one pie chart wedge.
type SliceDTO struct {
	Name  string       `json:"name"`
	Value ledger.Money `json:"value"`
	Color string       `json:"color"`
}

// SummaryDTO is returned by GET /api/transactions/summary. The breakdown
// is an array because its order is meaningful.
type SummaryDTO struct {
	StartDate         string             `json:"start_date,omitempty"`
	EndDate           string             `json:"end_date,omitempty"`
	Income            ledger.Money       `json:"income"`
	Expense           ledger.Money       `json:"expense"`
	Balance           ledger.Money       `json:"balance"`
	CategoryBreakdown []CategoryTotalDTO `json:"category_breakdown"`
	Chart             []SliceDTO         `json:"chart"`
	Overview          []SliceDTO         `json:"overview"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response. Code is machine readable
// and lets clients map the failure back to a ledger error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation          = "validation"
	CodeOverpayment         = "overpayment"
	CodeCustomerNotFound    = "customer_not_found"
	CodePurchaseNotFound    = "purchase_not_found"
	CodeTransactionNotFound = "transaction_not_found"
	CodeConflict            = "conflict"
	CodeUnauthorized        = "unauthorized"
	CodeGateway             = "gateway"
	CodeInternal            = "internal"
)

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func ToPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:          string(p.ID),
		CustomerID:  string(p.CustomerID),
		Amount:      p.Amount,
		Paid:        p.Paid,
		Balance:     p.Balance(),
		Description: p.Description,
		Date:        p.Date.Format(ledger.DateLayout),
		CreatedAt:   formatTimestamp(p.CreatedAt),
	}
}

func toPurchaseDTOs(purchases []ledger.Purchase) []PurchaseDTO {
	dtos := make([]PurchaseDTO, len(purchases))
	for i, p := range purchases {
		dtos[i] = ToPurchaseDTO(p)
	}
	return dtos
}

// Purchase converts back to the ledger model.
func (d PurchaseDTO) Purchase() (ledger.Purchase, error) {
	date, err := ledger.ParseDate(d.Date)
	if err != nil {
		return ledger.Purchase{}, fmt.Errorf("purchase %s date: %w", d.ID, err)
	}
	return ledger.Purchase{
		ID:          ledger.PurchaseID(d.ID),
		CustomerID:  ledger.CustomerID(d.CustomerID),
		Amount:      d.Amount,
		Paid:        d.Paid,
		Description: d.Description,
		Date:        date,
		CreatedAt:   parseTimestamp(d.CreatedAt),
	}, nil
}

func ToCustomerDTO(c ledger.Customer) CustomerDTO {
	totals := ledger.SummarizePurchases(c.Purchases)
	return CustomerDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Phone:     c.Phone,
		Location:  c.Location,
		Purchases: toPurchaseDTOs(c.Purchases),
		Totals: PurchaseTotalsDTO{
			TotalAmount: totals.TotalAmount,
			TotalPaid:   totals.TotalPaid,
			Pending:     totals.Pending,
			Overpaid:    totals.Overpaid(),
		},
		CreatedAt: formatTimestamp(c.CreatedAt),
	}
}

// Customer converts back to the ledger model, keeping purchase order.
func (d CustomerDTO) Customer() (*ledger.Customer, error) {
	c := &ledger.Customer{
		ID:        ledger.CustomerID(d.ID),
		Name:      d.Name,
		Phone:     d.Phone,
		Location:  d.Location,
		CreatedAt: parseTimestamp(d.CreatedAt),
	}
	for _, pd := range d.Purchases {
		p, err := pd.Purchase()
		if err != nil {
			return nil, err
		}
		c.Purchases = append(c.Purchases, p)
	}
	return c, nil
}

func ToTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Type:        string(tx.Type),
		Amount:      tx.Amount,
		Category:    tx.Category,
		Description: tx.Description,
		Date:        tx.Date.Format(ledger.DateLayout),
		CreatedAt:   formatTimestamp(tx.CreatedAt),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = ToTransactionDTO(tx)
	}
	return dtos
}

// Transaction converts back to the ledger model.
func (d TransactionDTO) Transaction() (ledger.Transaction, error) {
	date, err := ledger.ParseDate(d.Date)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s date: %w", d.ID, err)
	}
	return ledger.Transaction{
		ID:          ledger.TransactionID(d.ID),
		Type:        ledger.TransactionType(d.Type),
		Amount:      d.Amount,
		Category:    d.Category,
		Description: d.Description,
		Date:        date,
		CreatedAt:   parseTimestamp(d.CreatedAt),
	}, nil
}

func toStepDTO(s ledger.AllocationStep) AllocationStepDTO {
	return AllocationStepDTO{
		PurchaseID:    string(s.PurchaseID),
		PreviousPaid:  s.PreviousPaid,
		Delta:         s.Delta,
		NewPaid:       s.NewPaid,
		BalanceBefore: s.BalanceBefore,
		BalanceAfter:  s.BalanceAfter,
	}
}

func toStepDTOs(steps []ledger.AllocationStep) []AllocationStepDTO {
	dtos := make([]AllocationStepDTO, len(steps))
	for i, s := range steps {
		dtos[i] = toStepDTO(s)
	}
	return dtos
}

func ToSettlementDTO(r *ledger.SettlementReport) SettlementDTO {
	dto := SettlementDTO{
		CustomerID: string(r.CustomerID),
		Applied:    toStepDTOs(r.Applied),
		Batched:    r.Batched,
		Complete:   r.Complete(),
	}
	if r.Plan != nil {
		dto.Payment = r.Plan.Payment
		dto.TotalPending = r.Plan.TotalPending
	}
	if len(r.Remaining) > 0 {
		dto.Remaining = toStepDTOs(r.Remaining)
	}
	if r.Failed != nil {
		failed := toStepDTO(*r.Failed)
		dto.Failed = &failed
	}
	return dto
}

// ToSummaryDTO renders a summary with chart slices colored by palette.
func ToSummaryDTO(s *ledger.TransactionSummary, window *ledger.Period, palette ledger.Palette) SummaryDTO {
	dto := SummaryDTO{
		Income:            s.Income,
		Expense:           s.Expense,
		Balance:           s.Balance,
		CategoryBreakdown: make([]CategoryTotalDTO, len(s.CategoryBreakdown)),
		Chart:             toSliceDTOs(ledger.ChartSlices(s.CategoryBreakdown, palette)),
		Overview: toSliceDTOs(ledger.OverviewSlices(ledger.Totals{
			Income:  s.Income,
			Expense: s.Expense,
			Balance: s.Balance,
		})),
	}
	for i, g := range s.CategoryBreakdown {
		dto.CategoryBreakdown[i] = CategoryTotalDTO{Name: g.Name, Value: g.Value, Index: g.Index}
	}
	if window != nil {
		dto.StartDate = window.Start.Format(ledger.DateLayout)
		dto.EndDate = window.End.Format(ledger.DateLayout)
	}
	return dto
}

// TransactionSummary converts back to the ledger model.
func (d SummaryDTO) TransactionSummary() *ledger.TransactionSummary {
	s := &ledger.TransactionSummary{
		Income:  d.Income,
		Expense: d.Expense,
		Balance: d.Balance,
	}
	for _, g := range d.CategoryBreakdown {
		s.CategoryBreakdown = append(s.CategoryBreakdown, ledger.CategoryTotal{Name: g.Name, Value: g.Value, Index: g.Index})
	}
	return s
}

func toSliceDTOs(slices []ledger.Slice) []SliceDTO {
	dtos := make([]SliceDTO, len(slices))
	for i, s := range slices {
		dtos[i] = SliceDTO{Name: s.Name, Value: s.Value, Color: s.Color}
	}
	return dtos
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
