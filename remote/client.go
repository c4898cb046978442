/*
Package remote implements the ledger gateway against a TrackPay REST API.

PURPOSE:
  Lets the Settler and the settle CLI work on a ledger that lives behind
  another TrackPay server. The wire types are the api package DTOs, so the
  client decodes exactly what the server encodes.

SESSION:
  The bearer token lives in an explicit *Session owned by the caller. A
  401 response clears it; the caller decides how to log in again.

ERRORS:
  Error responses carry a machine readable code which is mapped back to
  the ledger sentinels, so errors.Is(err, ledger.ErrCustomerNotFound)
  works the same against a remote gateway as against a local store.
  Transport failures and unexpected statuses wrap ledger.ErrGateway.

ATOMICITY:
  The API has no batch endpoint, so Client does not implement
  ledger.BatchUpdater and the Settler persists step by step.

SEE ALSO:
  - api/dto.go: Wire types
  - ledger/settlement.go: Stepwise persistence and Resume
*/
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/warp/trackpay/api"
	"github.com/warp/trackpay/ledger"
)

var (
	_ ledger.Gateway   = (*Client)(nil)
	_ ledger.Directory = (*Client)(nil)
)

// =============================================================================
// SESSION
// =============================================================================

// Session holds the bearer token shared by every request of a Client.
type Session struct {
	mu    sync.RWMutex
	token string
}

func NewSession(token string) *Session {
	return &Session{token: token}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear drops the token after the server rejected it.
func (s *Session) Clear() {
	s.SetToken("")
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a ledger.Gateway backed by the TrackPay REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

// NewClient creates a client for the API rooted at baseURL. A nil session
// sends no Authorization header.
func NewClient(baseURL string, session *Session, timeout time.Duration) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if session == nil {
		session = NewSession("")
	}

	return &Client{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		session: session,
	}
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// =============================================================================
// CUSTOMERS & PURCHASES
// =============================================================================

func (c *Client) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	var dto api.CustomerDTO
	if err := c.do(ctx, http.MethodGet, customerPath(id), nil, nil, &dto); err != nil {
		return nil, err
	}
	return dto.Customer()
}

func (c *Client) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	var resp api.CustomerListResponse
	if err := c.do(ctx, http.MethodGet, "/api/customers", nil, nil, &resp); err != nil {
		return nil, err
	}

	customers := make([]ledger.Customer, 0, len(resp.Customers))
	for _, dto := range resp.Customers {
		cust, err := dto.Customer()
		if err != nil {
			return nil, err
		}
		customers = append(customers, *cust)
	}
	return customers, nil
}

func (c *Client) CreateCustomer(ctx context.Context, nc ledger.NewCustomer) (*ledger.Customer, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	req := api.CreateCustomerRequest{Name: nc.Name, Phone: nc.Phone, Location: nc.Location}

	var dto api.CustomerDTO
	if err := c.do(ctx, http.MethodPost, "/api/customers", nil, req, &dto); err != nil {
		return nil, err
	}
	return dto.Customer()
}

func (c *Client) AddPurchase(ctx context.Context, customerID ledger.CustomerID, np ledger.NewPurchase) (*ledger.Purchase, error) {
	if err := np.Validate(); err != nil {
		return nil, err
	}

	paid := np.Paid
	req := api.CreatePurchaseRequest{
		Amount:      np.Amount,
		Paid:        &paid,
		Description: np.Description,
	}
	if !np.Date.IsZero() {
		req.Date = np.Date.Format(ledger.DateLayout)
	}

	var dto api.PurchaseDTO
	if err := c.do(ctx, http.MethodPost, customerPath(customerID)+"/purchases", nil, req, &dto); err != nil {
		return nil, err
	}
	p, err := dto.Purchase()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePurchase sends the patch as absolute values. ExpectedPaid travels
// with it, so the server refuses the write if the purchase moved on.
func (c *Client) UpdatePurchase(ctx context.Context, customerID ledger.CustomerID, purchaseID ledger.PurchaseID, patch ledger.PurchasePatch) (*ledger.Purchase, error) {
	req := api.UpdatePurchaseRequest{Paid: patch.Paid, Description: patch.Description, ExpectedPaid: patch.ExpectedPaid}
	path := customerPath(customerID) + "/purchases/" + url.PathEscape(string(purchaseID))

	var dto api.PurchaseDTO
	if err := c.do(ctx, http.MethodPut, path, nil, req, &dto); err != nil {
		return nil, err
	}
	p, err := dto.Purchase()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (c *Client) ListTransactions(ctx context.Context, window *ledger.Period) ([]ledger.Transaction, error) {
	var dtos []api.TransactionDTO
	if err := c.do(ctx, http.MethodGet, "/api/transactions", windowQuery(window), nil, &dtos); err != nil {
		return nil, err
	}

	txs := make([]ledger.Transaction, 0, len(dtos))
	for _, dto := range dtos {
		tx, err := dto.Transaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// GetTransactionSummary asks for every transaction when window is nil;
// the server would otherwise default to the current month.
func (c *Client) GetTransactionSummary(ctx context.Context, window *ledger.Period) (*ledger.TransactionSummary, error) {
	q := windowQuery(window)
	if window == nil {
		q = url.Values{"all": {"true"}}
	}

	var dto api.SummaryDTO
	if err := c.do(ctx, http.MethodGet, "/api/transactions/summary", q, nil, &dto); err != nil {
		return nil, err
	}
	return dto.TransactionSummary(), nil
}

func (c *Client) CreateTransaction(ctx context.Context, nt ledger.NewTransaction) (*ledger.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return nil, err
	}

	req := api.CreateTransactionRequest{
		Type:        string(nt.Type),
		Amount:      nt.Amount,
		Category:    nt.Category,
		Description: nt.Description,
	}
	if !nt.Date.IsZero() {
		req.Date = nt.Date.Format(ledger.DateLayout)
	}

	var dto api.TransactionDTO
	if err := c.do(ctx, http.MethodPost, "/api/transactions", nil, req, &dto); err != nil {
		return nil, err
	}
	tx, err := dto.Transaction()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	return c.do(ctx, http.MethodDelete, "/api/transactions/"+url.PathEscape(string(id)), nil, nil, nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// APIError is a non-2xx response. It unwraps to the ledger sentinel named
// by Code, or to ledger.ErrGateway for codes the client does not know.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("trackpay API returned status %d", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case api.CodeValidation:
		return ledger.ErrValidation
	case api.CodeOverpayment:
		return ledger.ErrOverpayment
	case api.CodeCustomerNotFound:
		return ledger.ErrCustomerNotFound
	case api.CodePurchaseNotFound:
		return ledger.ErrPurchaseNotFound
	case api.CodeTransactionNotFound:
		return ledger.ErrTransactionNotFound
	case api.CodeConflict:
		return ledger.ErrConcurrentModification
	case api.CodeUnauthorized:
		return ledger.ErrUnauthorized
	}
	if e.Status == http.StatusUnauthorized {
		return ledger.ErrUnauthorized
	}
	return ledger.ErrGateway
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ledger.ErrGateway, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Clear()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w: %w", method, path, ledger.ErrGateway, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return apiErr
	}
	apiErr.Code = payload.Code
	apiErr.Message = payload.Error
	if details, ok := payload.Details.(string); ok {
		apiErr.Details = details
	}
	return apiErr
}

func customerPath(id ledger.CustomerID) string {
	return "/api/customers/" + url.PathEscape(string(id))
}

func windowQuery(window *ledger.Period) url.Values {
	if window == nil {
		return nil
	}
	return url.Values{
		"startDate": {window.Start.Format(ledger.DateLayout)},
		"endDate":   {window.End.Format(ledger.DateLayout)},
	}
}

// IsSessionExpired reports whether err means the session token was rejected.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ledger.ErrUnauthorized)
}
