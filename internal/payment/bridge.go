package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"VoiceOrder/internal/order"
	"VoiceOrder/internal/orders"
	"VoiceOrder/internal/pricing"
	"VoiceOrder/internal/session"
)

// IntentResult is returned to the client after intent creation. Total
// is the server-computed charge, rounded to cents.
type IntentResult struct {
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Total           decimal.Decimal `json:"total"`
}

// ConfirmResult reports the outcome of an intent confirmation check
type ConfirmResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Bridge turns an order session into an authoritative charge request.
// The charged amount is always recomputed from the session's items;
// nothing the client sends is ever read for the amount.
type Bridge struct {
	sessions  *session.Store
	pricing   *pricing.Service
	processor Processor
	orders    *orders.Store
	logger    *slog.Logger
}

// NewBridge creates a payment bridge. The orders store may be nil if
// finalized orders are not persisted.
func NewBridge(sessions *session.Store, pricingSvc *pricing.Service, processor Processor, ordersStore *orders.Store, logger *slog.Logger) *Bridge {
	return &Bridge{
		sessions:  sessions,
		pricing:   pricingSvc,
		processor: processor,
		orders:    ordersStore,
		logger:    logger,
	}
}

// CreateIntent recomputes the session's total and asks the processor
// for a payment intent in minor units. Fails before any processor
// call when the session is missing or empty, or the total is not
// positive.
func (b *Bridge) CreateIntent(ctx context.Context, sessionID string) (IntentResult, error) {
	sess, ok := b.sessions.Get(sessionID)
	if !ok {
		return IntentResult{}, session.ErrNotFound
	}

	items := sess.SnapshotItems()
	if len(items) == 0 {
		return IntentResult{}, order.ErrEmptyOrder
	}

	totals := b.pricing.TotalsForItems(items)
	if !totals.Total.IsPositive() {
		return IntentResult{}, order.ErrInvalidTotal
	}

	amount := totals.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	intent, err := b.processor.CreateIntent(ctx, CreateIntentRequest{
		Amount:      amount,
		Currency:    "usd",
		SessionID:   sess.ID,
		ItemSummary: summarize(items),
	})
	if err != nil {
		return IntentResult{}, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return IntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Total:           totals.Total.Round(2),
	}, nil
}

// Confirm queries the processor for an intent's status. On success the
// session recovered from intent metadata is finalized and deleted; any
// other status is returned raw for the caller to handle.
func (b *Bridge) Confirm(ctx context.Context, intentID string) (ConfirmResult, error) {
	intent, err := b.processor.GetIntent(ctx, intentID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("failed to fetch payment intent: %w", err)
	}

	if intent.Status != "succeeded" {
		return ConfirmResult{Success: false, Status: intent.Status}, nil
	}

	sessionID := intent.Metadata["session_id"]
	if sess, ok := b.sessions.Get(sessionID); ok {
		if err := b.finalize(ctx, sess); err != nil {
			b.logger.Error("failed to finalize paid order", "session_id", sessionID, "error", err)
		} else {
			b.sessions.Delete(sessionID)
		}
	}

	b.logger.Info("payment confirmed", "intent_id", intentID, "session_id", sessionID)
	return ConfirmResult{Success: true, SessionID: sessionID}, nil
}

func (b *Bridge) finalize(ctx context.Context, sess *session.Session) error {
	if b.orders == nil {
		return nil
	}

	items := sess.SnapshotItems()
	totals := b.pricing.TotalsForItems(items)
	return b.orders.SaveFinal(ctx, orders.Order{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		TableNumber: sess.TableNumber,
		Items:       items,
		Subtotal:    totals.Subtotal,
		Tax:         totals.Tax,
		Total:       totals.Total,
		Status:      orders.StatusPending,
		CreatedAt:   time.Now(),
	})
}

// summarize renders the item list for intent metadata
func summarize(items []session.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%dx %s", it.Quantity, it.Name)
	}
	return strings.Join(parts, ", ")
}
