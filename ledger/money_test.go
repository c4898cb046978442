package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/shopspring/decimal"
	"github.com/warp/trackpay/ledger"
)

func TestMoney_Arithmetic(t *testing.T) {
	// 0.1 + 0.2 is exactly 0.30, unlike float64
	sum := ledger.MustParseMoney("0.10").Add(ledger.MustParseMoney("0.20"))
	assert.Equal(t, "0.30", sum.String())
	assert.True(t, sum.Equal(ledger.NewMoneyFromCents(30)))

	assert.Equal(t, "-5.00", ledger.MustParseMoney("10").Sub(ledger.MustParseMoney("15")).String())
	assert.Equal(t, int64(1999), ledger.MustParseMoney("19.99").Cents())
	assert.Equal(t, "19.99", ledger.MustParseMoney("19.99").Min(ledger.MustParseMoney("20")).String())
	assert.Equal(t, "20.00", ledger.MustParseMoney("19.99").Max(ledger.MustParseMoney("20")).String())
}

func TestMoney_Constructors(t *testing.T) {
	assert.Equal(t, "12.35", ledger.NewMoney(decimal.RequireFromString("12.345")).String())
	assert.Equal(t, "12.00", ledger.NewMoneyFromInt(12).String())
	assert.True(t, ledger.NewMoneyFromInt(12).Equal(ledger.NewMoneyFromCents(1200)))
	assert.Equal(t, int64(-300), ledger.NewMoneyFromInt(-3).Cents())
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"120", "120.00"},
		{"99.5", "99.50"},
		{" 1,250.00 ", "1250.00"},
		{"0.005", "0.01"},
		{"-3", "-3.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ledger.ParseMoney(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}

	_, err := ledger.ParseMoney("")
	require.Error(t, err)
	_, err = ledger.ParseMoney("twelve")
	require.Error(t, err)
}

func TestMoney_Grouped(t *testing.T) {
	assert.Equal(t, "0.00", ledger.Zero.Grouped())
	assert.Equal(t, "999.00", ledger.MustParseMoney("999").Grouped())
	assert.Equal(t, "1,250.00", ledger.MustParseMoney("1250").Grouped())
	assert.Equal(t, "1,234,567.89", ledger.MustParseMoney("1234567.89").Grouped())
	assert.Equal(t, "-12,000.50", ledger.MustParseMoney("-12000.5").Grouped())
}

func TestMoney_JSON(t *testing.T) {
	type payload struct {
		Amount ledger.Money `json:"amount"`
	}

	out, err := json.Marshal(payload{Amount: ledger.MustParseMoney("12.5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount": 12.50}`, string(out))

	// Both numbers and strings are accepted
	var fromNumber, fromString payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 120}`), &fromNumber))
	require.NoError(t, json.Unmarshal([]byte(`{"amount": "1,250.75"}`), &fromString))
	assert.Equal(t, "120.00", fromNumber.Amount.String())
	assert.Equal(t, "1250.75", fromString.Amount.String())

	var bad payload
	require.Error(t, json.Unmarshal([]byte(`{"amount": "abc"}`), &bad))
}

func TestParseDate(t *testing.T) {
	d, err := ledger.ParseDate("2026-03-31")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-31", d.Format(ledger.DateLayout))

	ts, err := ledger.ParseDate("2026-03-31T18:45:00Z")
	require.NoError(t, err)
	assert.Equal(t, 18, ts.Hour())

	_, err = ledger.ParseDate("31/03/2026")
	require.Error(t, err)
}

func TestPeriod_InclusiveByDay(t *testing.T) {
	march := ledger.MonthPeriod(day("2026-03-15"))
	assert.Equal(t, "[2026-03-01, 2026-03-31]", march.String())

	lastEvening, err := ledger.ParseDate("2026-03-31T23:30:00Z")
	require.NoError(t, err)
	assert.True(t, march.Contains(day("2026-03-01")))
	assert.True(t, march.Contains(lastEvening))
	assert.False(t, march.Contains(day("2026-04-01")))
	assert.False(t, march.Contains(day("2026-02-28")))

	assert.True(t, march.Valid())
	assert.False(t, ledger.Period{Start: day("2026-03-02"), End: day("2026-03-01")}.Valid())
}

func TestDayOf(t *testing.T) {
	evening := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), ledger.DayOf(evening))
	assert.Equal(t, ledger.DayOf(evening), ledger.DayOf(ledger.DayOf(evening)))
}
