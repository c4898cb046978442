package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/ledger/store/storetest"
	"github.com/warp/trackpay/store/postgres"
)

func TestPostgres(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		return postgres.TestStore(t)
	})
}

func TestPostgres_MigrateIsRepeatable(t *testing.T) {
	store := postgres.TestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func TestPostgres_DecimalRoundTrip(t *testing.T) {
	// GIVEN: A purchase of 10
	store := postgres.TestStore(t)
	ctx := context.Background()

	c, err := store.CreateCustomer(ctx, ledger.NewCustomer{Name: "Amina", Phone: "1"})
	require.NoError(t, err)
	p, err := store.AddPurchase(ctx, c.ID, ledger.NewPurchase{Amount: ledger.MustParseMoney("10")})
	require.NoError(t, err)

	// WHEN: It is paid off in a batch
	_, err = store.UpdatePurchases(ctx, c.ID, []ledger.PurchaseUpdate{{PurchaseID: p.ID, Paid: ledger.MustParseMoney("10")}})
	require.NoError(t, err)

	// THEN: Amounts round-trip through DECIMAL(12, 2) exactly
	got, err := store.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Purchases, 1)
	assert.Equal(t, "10.00", got.Purchases[0].Paid.String())
	assert.True(t, got.Purchases[0].IsSettled())
}

func TestPostgres_Reset(t *testing.T) {
	store := postgres.TestStore(t)
	ctx := context.Background()

	_, err := store.CreateCustomer(ctx, ledger.NewCustomer{Name: "Amina", Phone: "1"})
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))

	all, err := store.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
