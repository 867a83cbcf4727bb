package cart_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-atelier/internal/cart"
	"github.com/noah-isme/backend-atelier/internal/pricing"
)

func newReconciler(store *memStore) *cart.Reconciler {
	logger := zerolog.Nop()
	return &cart.Reconciler{
		Store:   store,
		Manager: &cart.SnapshotManager{Store: store, Logger: logger},
		FX:      pricing.NewConverter(nil),
		Logger:  logger,
	}
}

// A detached item whose snapshot has neither a breakdown nor an EUR price
// cannot be rebuilt in the new currency; it must come back exactly as it was.
func TestReconcileFallsBackWithoutBreakdown(t *testing.T) {
	store := newMemStore()
	store.addRegion("us", "USD", "us")
	c, err := store.CreateCart(context.Background(), "us", "web")
	require.NoError(t, err)

	item := cart.LineItem{
		CartID:       c.ID,
		Title:        "Custom print",
		Quantity:     1,
		UnitPrice:    29670,
		CurrencyCode: "PLN",
	}
	require.NoError(t, store.AddLineItem(context.Background(), &item))

	snaps := []cart.LineItemSnapshot{{
		ID:            item.ID,
		Quantity:      1,
		UnitPrice:     int64Ref(29670),
		CurrencyCode:  "PLN",
		IsCustomPrice: true,
	}}
	got, err := newReconciler(store).Reconcile(context.Background(), c.ID, snaps, nil, pricing.USD)
	require.NoError(t, err)

	restored := got.Item(item.ID)
	require.NotNil(t, restored)
	require.True(t, restored.IsCustomPrice)
	require.Equal(t, int64(29670), restored.UnitPrice)
	require.Equal(t, "PLN", restored.CurrencyCode)
}

// Without a breakdown, an EUR-priced snapshot is close enough: the old unit
// price is the EUR total.
func TestReconcileRebuildsFromEURUnitPrice(t *testing.T) {
	store := newMemStore()
	store.addRegion("us", "USD", "us")
	c, err := store.CreateCart(context.Background(), "us", "web")
	require.NoError(t, err)

	item := cart.LineItem{
		CartID:       c.ID,
		Title:        "Custom print",
		Quantity:     2,
		UnitPrice:    6900,
		CurrencyCode: "EUR",
	}
	require.NoError(t, store.AddLineItem(context.Background(), &item))

	snaps := []cart.LineItemSnapshot{{
		ID:            item.ID,
		Quantity:      2,
		UnitPrice:     int64Ref(6900),
		CurrencyCode:  "EUR",
		IsCustomPrice: true,
	}}
	got, err := newReconciler(store).Reconcile(context.Background(), c.ID, snaps, nil, pricing.USD)
	require.NoError(t, err)

	restored := got.Item(item.ID)
	require.NotNil(t, restored)
	require.True(t, restored.IsCustomPrice)
	require.Equal(t, int64(7452), restored.UnitPrice)
	require.Equal(t, "USD", restored.CurrencyCode)
	require.Equal(t, "USD", cart.MetadataCurrency(restored.Metadata))
}

// The merge only fills what the region change blanked; buyer edits made since
// the snapshot win, and region-owned fields never come from the snapshot.
func TestReconcileAddressMergeKeepsCurrentValues(t *testing.T) {
	store := newMemStore()
	store.addRegion("us", "USD", "us")
	c, err := store.CreateCart(context.Background(), "us", "web")
	require.NoError(t, err)
	require.NoError(t, store.UpdateCart(context.Background(), c.ID, cart.CartUpdate{
		ShippingAddress: &cart.Address{CountryCode: "us", City: "Austin"},
	}))

	snap := &cart.Address{City: "Berlin", Phone: "+49 30 1234567", CountryCode: "de"}
	got, err := newReconciler(store).Reconcile(context.Background(), c.ID, nil, snap, pricing.USD)
	require.NoError(t, err)

	require.NotNil(t, got.ShippingAddress)
	require.Equal(t, "Austin", got.ShippingAddress.City)
	require.Equal(t, "+49 30 1234567", got.ShippingAddress.Phone)
	require.Equal(t, "us", got.ShippingAddress.CountryCode)
}
