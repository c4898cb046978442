package ledger

// =============================================================================
// CATEGORY BREAKDOWN
// =============================================================================

// Uncategorized names transactions recorded without a category.
const Uncategorized = "Uncategorized"

// CategoryTotal is the summed amount of one category.
type CategoryTotal struct {
	Name  string
	Value Money

	// Index is the discovery position of the category before empty
	// groups were dropped. Chart colors cycle on it.
	Index int
}

// CategoryBreakdown groups transactions of txType inside window by
// category. Groups appear in the order their first transaction was seen,
// not sorted by value. Zero-valued groups are dropped; a blank category is
// reported as Uncategorized so the values still add up to the total.
func CategoryBreakdown(txs []Transaction, txType TransactionType, window *Period) []CategoryTotal {
	var groups []CategoryTotal
	index := make(map[string]int)

	for _, tx := range txs {
		if tx.Type != txType || !inWindow(window, tx.Date) {
			continue
		}
		name := tx.Category
		if name == "" {
			name = Uncategorized
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, CategoryTotal{Name: name, Value: Zero, Index: i})
		}
		groups[i].Value = groups[i].Value.Add(tx.Amount)
	}

	out := make([]CategoryTotal, 0, len(groups))
	for _, g := range groups {
		if !g.Value.IsPositive() {
			continue
		}
		out = append(out, g)
	}
	return out
}

// =============================================================================
// TRANSACTION SUMMARY
// =============================================================================

// TransactionSummary is what the dashboard shows for a window.
// CategoryBreakdown covers expenses.
type TransactionSummary struct {
	Income            Money
	Expense           Money
	Balance           Money
	CategoryBreakdown []CategoryTotal
}

// Summarize builds the totals and the expense breakdown for window.
func Summarize(txs []Transaction, window *Period) *TransactionSummary {
	totals := SummarizeTransactions(txs, window)
	return &TransactionSummary{
		Income:            totals.Income,
		Expense:           totals.Expense,
		Balance:           totals.Balance,
		CategoryBreakdown: CategoryBreakdown(txs, TxExpense, window),
	}
}

// =============================================================================
// CHART COLORS
// =============================================================================

const (
	ColorIncome  = "#4CAF50"
	ColorExpense = "#f44336"
)

// Palette maps categories to display colors.
type Palette struct {
	Known    map[string]string
	Fallback []string
}

// DefaultPalette matches the business categories used by the mobile app.
func DefaultPalette() Palette {
	return Palette{
		Known: map[string]string{
			"Customer Payment": "#4CAF50",
			"Debt Recovery":    "#8BC34A",
			"Salary":           "#2196F3",
			"Food":             "#FF6384",
		},
		Fallback: []string{"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0"},
	}
}

// Color is a pure function of name, the known table and index.
func (p Palette) Color(name string, index int) string {
	if c, ok := p.Known[name]; ok {
		return c
	}
	if len(p.Fallback) == 0 {
		return "#9E9E9E"
	}
	if index < 0 {
		index = -index
	}
	return p.Fallback[index%len(p.Fallback)]
}

// Slice is one wedge of a pie chart.
type Slice struct {
	Name  string
	Value Money
	Color string
}

// ChartSlices colors a breakdown.
func ChartSlices(breakdown []CategoryTotal, palette Palette) []Slice {
	slices := make([]Slice, 0, len(breakdown))
	for _, g := range breakdown {
		slices = append(slices, Slice{Name: g.Name, Value: g.Value, Color: palette.Color(g.Name, g.Index)})
	}
	return slices
}

// OverviewSlices is the income vs expense chart, empty sides dropped.
func OverviewSlices(t Totals) []Slice {
	var slices []Slice
	if t.Income.IsPositive() {
		slices = append(slices, Slice{Name: "Income", Value: t.Income, Color: ColorIncome})
	}
	if t.Expense.IsPositive() {
		slices = append(slices, Slice{Name: "Expense", Value: t.Expense, Color: ColorExpense})
	}
	return slices
}
