package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceOrder/internal/order"
	"VoiceOrder/internal/pricing"
	"VoiceOrder/internal/session"
)

type mockProcessor struct {
	created []CreateIntentRequest
	intent  Intent
	err     error
}

func (m *mockProcessor) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	m.created = append(m.created, req)
	if m.err != nil {
		return Intent{}, m.err
	}
	return m.intent, nil
}

func (m *mockProcessor) GetIntent(ctx context.Context, id string) (Intent, error) {
	if m.err != nil {
		return Intent{}, m.err
	}
	return m.intent, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBridge(proc Processor) (*Bridge, *session.Store) {
	logger := discardLogger()
	sessions := session.NewStore(logger)
	svc := pricing.NewService(pricing.DefaultTaxRate)
	return NewBridge(sessions, svc, proc, nil, logger), sessions
}

func addItem(sess *session.Session, name, price string, qty int) {
	sess.Lock()
	sess.Items = append(sess.Items, session.Item{
		MenuItemID: name,
		Name:       name,
		UnitPrice:  decimal.RequireFromString(price),
		Quantity:   qty,
	})
	sess.Unlock()
}

func TestCreateIntentChargesRecomputedTotal(t *testing.T) {
	proc := &mockProcessor{intent: Intent{ID: "pi_1", ClientSecret: "secret_1", Status: "requires_payment_method"}}
	bridge, sessions := testBridge(proc)

	sess := sessions.Create("s1")
	addItem(sess, "Burger", "10.00", 2)
	addItem(sess, "Fries", "4.00", 1)

	result, err := bridge.CreateIntent(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "pi_1", result.PaymentIntentID)
	assert.Equal(t, "secret_1", result.ClientSecret)
	assert.Equal(t, "25.92", result.Total.StringFixed(2))

	require.Len(t, proc.created, 1)
	req := proc.created[0]
	assert.Equal(t, int64(2592), req.Amount)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "2x Burger, 1x Fries", req.ItemSummary)
}

func TestCreateIntentUnknownSession(t *testing.T) {
	proc := &mockProcessor{}
	bridge, _ := testBridge(proc)

	_, err := bridge.CreateIntent(context.Background(), "ghost")
	require.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, proc.created)
}

func TestCreateIntentEmptyOrder(t *testing.T) {
	proc := &mockProcessor{}
	bridge, sessions := testBridge(proc)
	sessions.Create("s1")

	_, err := bridge.CreateIntent(context.Background(), "s1")
	require.ErrorIs(t, err, order.ErrEmptyOrder)
	assert.Empty(t, proc.created, "no processor call may happen for an empty order")
}

func TestCreateIntentProcessorFailure(t *testing.T) {
	proc := &mockProcessor{err: errors.New("stripe down")}
	bridge, sessions := testBridge(proc)

	sess := sessions.Create("s1")
	addItem(sess, "Burger", "10.00", 1)

	_, err := bridge.CreateIntent(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe down")
}

func TestConfirmSucceededDeletesSession(t *testing.T) {
	proc := &mockProcessor{intent: Intent{
		ID:       "pi_1",
		Status:   "succeeded",
		Metadata: map[string]string{"session_id": "s1"},
	}}
	bridge, sessions := testBridge(proc)

	sess := sessions.Create("s1")
	addItem(sess, "Burger", "10.00", 1)

	result, err := bridge.Confirm(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "s1", result.SessionID)

	_, ok := sessions.Get("s1")
	assert.False(t, ok, "confirmed payment consumes the session")
}

func TestConfirmPendingReturnsStatus(t *testing.T) {
	proc := &mockProcessor{intent: Intent{
		ID:       "pi_1",
		Status:   "processing",
		Metadata: map[string]string{"session_id": "s1"},
	}}
	bridge, sessions := testBridge(proc)
	sessions.Create("s1")

	result, err := bridge.Confirm(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "processing", result.Status)

	_, ok := sessions.Get("s1")
	assert.True(t, ok, "unconfirmed payment leaves the session alone")
}

func TestConfirmProcessorFailure(t *testing.T) {
	proc := &mockProcessor{err: errors.New("timeout")}
	bridge, _ := testBridge(proc)

	_, err := bridge.Confirm(context.Background(), "pi_1")
	require.Error(t, err)
}

func TestAmountRounding(t *testing.T) {
	tests := []struct {
		name       string
		price      string
		qty        int
		wantAmount int64
	}{
		{name: "round half up", price: "1.99", qty: 3, wantAmount: 645}, // 5.97 * 1.08 = 6.4476
		{name: "exact cents", price: "10.00", qty: 1, wantAmount: 1080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{intent: Intent{ID: "pi", ClientSecret: "cs"}}
			bridge, sessions := testBridge(proc)

			sess := sessions.Create("s1")
			addItem(sess, "Item", tt.price, tt.qty)

			_, err := bridge.CreateIntent(context.Background(), "s1")
			require.NoError(t, err)
			require.Len(t, proc.created, 1)
			assert.Equal(t, tt.wantAmount, proc.created[0].Amount)
		})
	}
}
