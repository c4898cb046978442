package ledger

import (
	"strings"
)

// =============================================================================
// CUSTOMER VIEWS - Search, period filter, pagination
// =============================================================================

// SearchCustomers matches query case-insensitively against name and
// location, and as a plain substring against phone. An empty query
// returns every customer.
func SearchCustomers(customers []Customer, query string) []Customer {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return customers
	}

	var out []Customer
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Location), q) ||
			strings.Contains(c.Phone, strings.TrimSpace(query)) {
			out = append(out, c)
		}
	}
	return out
}

// PurchasesInPeriod keeps purchases dated inside period, preserving order.
func PurchasesInPeriod(purchases []Purchase, period Period) []Purchase {
	var out []Purchase
	for _, p := range purchases {
		if period.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}

// Page is one page of a list. Page numbers start at 1.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// DefaultPerPage matches the purchase list of the mobile app.
const DefaultPerPage = 10

// Paginate slices items into pages. A page past the end yields no items.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	out := Page[T]{
		Items:      []T{},
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}

	start := (page - 1) * perPage
	if start >= total {
		return out
	}
	end := min(start+perPage, total)
	out.Items = items[start:end]
	return out
}
