package orders

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceOrder/internal/session"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func testOrder(id string, status Status) Order {
	return Order{
		ID:          id,
		SessionID:   "sess-" + id,
		TableNumber: "4",
		Items: []session.Item{
			{MenuItemID: "burger", Name: "Classic Burger", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
			{MenuItemID: "fries", Name: "French Fries", UnitPrice: decimal.RequireFromString("4.00"), Quantity: 1, Modifications: "extra salt"},
		},
		Subtotal:  decimal.RequireFromString("24.00"),
		Tax:       decimal.RequireFromString("1.92"),
		Total:     decimal.RequireFromString("25.92"),
		Status:    status,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadActive(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFinal(ctx, testOrder("o1", StatusPending)))
	require.NoError(t, store.SaveFinal(ctx, testOrder("o2", StatusCompleted)))

	active, err := store.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	o := active[0]
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "sess-o1", o.SessionID)
	assert.Equal(t, "4", o.TableNumber)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("25.92")))
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Classic Burger", o.Items[0].Name)
	assert.Equal(t, "extra salt", o.Items[1].Modifications)
}

func TestSetStatus(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFinal(ctx, testOrder("o1", StatusPending)))

	require.NoError(t, store.SetStatus(ctx, "o1", StatusReady))

	active, err := store.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, StatusReady, active[0].Status)

	// completing removes it from the active set
	require.NoError(t, store.SetStatus(ctx, "o1", StatusCompleted))
	active, err = store.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSetStatusUnknownOrder(t *testing.T) {
	store := testStore(t)
	err := store.SetStatus(context.Background(), "ghost", StatusReady)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusRejectsInvalid(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveFinal(ctx, testOrder("o1", StatusPending)))

	err := store.SetStatus(ctx, "o1", Status("launched"))
	require.Error(t, err)
}

func TestActiveOrdersAdapter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveFinal(ctx, testOrder("o1", StatusPending)))

	payload, err := store.ActiveOrders(ctx)
	require.NoError(t, err)

	list, ok := payload.([]Order)
	require.True(t, ok)
	assert.Len(t, list, 1)
}
