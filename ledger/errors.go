/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - bad input, rejected before any gateway call
  2. Overpayment errors - payment larger than what is owed, also rejected
     before any gateway call
  3. Gateway errors - persistence failed after zero or more steps were
     written; they carry a SettlementReport naming what was persisted

USAGE:
  report, err := settler.Settle(ctx, customerID, payment)
  var gwErr *ledger.GatewayError
  if errors.As(err, &gwErr) {
      // gwErr.Report.Applied were persisted, gwErr.Report.Remaining were not
  }

SEE ALSO:
  - settlement.go: Produces GatewayError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrOverpayment is returned when a payment exceeds what is owed.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	// ErrGateway is returned when the gateway fails during a read or write.
	ErrGateway = errors.New("gateway failure")

	ErrCustomerNotFound    = errors.New("customer not found")
	ErrPurchaseNotFound    = errors.New("purchase not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConcurrentModification is returned when a purchase changed between
	// planning and persisting a settlement.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnauthorized is returned when the session token is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OverpaymentError provides details about a rejected payment.
// PurchaseID is empty when the aggregate outstanding balance was exceeded.
type OverpaymentError struct {
	PurchaseID  PurchaseID
	Requested   Money
	Outstanding Money
}

func (e *OverpaymentError) Error() string {
	if e.PurchaseID != "" {
		return fmt.Sprintf("payment %s exceeds balance %s of purchase %s",
			e.Requested, e.Outstanding, e.PurchaseID)
	}
	return fmt.Sprintf("payment %s exceeds total outstanding balance %s",
		e.Requested, e.Outstanding)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// GatewayError wraps a gateway failure. Report is nil when the failure
// happened before any write was attempted.
type GatewayError struct {
	Op         string
	PurchaseID PurchaseID
	Report     *SettlementReport
	Err        error
}

func (e *GatewayError) Error() string {
	msg := "gateway " + e.Op + " failed"
	if e.PurchaseID != "" {
		msg += " for purchase " + string(e.PurchaseID)
	}
	if e.Report != nil {
		msg += fmt.Sprintf(" (%d of %d updates applied)", len(e.Report.Applied), len(e.Report.Plan.Steps))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrGateway and the underlying cause.
func (e *GatewayError) Unwrap() []error {
	return []error{ErrGateway, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrOverpayment)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGateway) && !IsNotFound(err) && !errors.Is(err, ErrUnauthorized) &&
		!errors.Is(err, ErrConcurrentModification)
}
