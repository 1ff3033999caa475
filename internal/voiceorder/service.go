package voiceorder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"VoiceOrder/internal/cache"
	"VoiceOrder/internal/hub"
	"VoiceOrder/internal/menu"
	"VoiceOrder/internal/nlu"
	"VoiceOrder/internal/order"
	"VoiceOrder/internal/orders"
	"VoiceOrder/internal/pricing"
	"VoiceOrder/internal/session"
)

// fallbackMessage is spoken when the interpreter fails. A misheard
// utterance never mutates the order and never surfaces as an error.
const fallbackMessage = "Sorry, I didn't catch that. Could you say it again?"

// OrderLine is the presentation form of one order item
type OrderLine struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	Modifications string `json:"modifications,omitempty"`
}

// ProcessResult answers one processed utterance
type ProcessResult struct {
	SessionID     string      `json:"session_id"`
	Message       string      `json:"message"`
	CurrentOrder  []OrderLine `json:"current_order"`
	Total         string      `json:"total"`
	OrderComplete bool        `json:"order_complete"`
}

// CompleteResult answers an explicit order completion
type CompleteResult struct {
	OrderID string `json:"order_id"`
	Total   string `json:"total"`
	Message string `json:"message"`
}

// Service orchestrates the order conversation: it loads the session,
// asks the interpreter what the customer meant, applies the mutation,
// and reports recomputed totals.
type Service struct {
	sessions *session.Store
	catalog  menu.Catalog
	machine  *order.Machine
	pricing  *pricing.Service
	interp   nlu.Interpreter
	replies  *cache.Cache
	orders   *orders.Store
	hub      *hub.Hub
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
}

// New creates the order service. replies, orders, and h may be nil to
// disable reply caching, persistence, and kitchen broadcasts.
func New(
	sessions *session.Store,
	catalog menu.Catalog,
	machine *order.Machine,
	pricingSvc *pricing.Service,
	interp nlu.Interpreter,
	replies *cache.Cache,
	ordersStore *orders.Store,
	h *hub.Hub,
	logger *slog.Logger,
	tracer trace.Tracer,
	meter metric.Meter,
) *Service {
	return &Service{
		sessions: sessions,
		catalog:  catalog,
		machine:  machine,
		pricing:  pricingSvc,
		interp:   interp,
		replies:  replies,
		orders:   ordersStore,
		hub:      h,
		logger:   logger,
		tracer:   tracer,
		meter:    meter,
	}
}

// Process handles one customer utterance for a session, creating the
// session on first contact. The interpreter is consulted without any
// session lock held; on interpreter failure the reply falls back to a
// clarification prompt with no order mutation.
func (s *Service) Process(ctx context.Context, transcript, sessionID, tableNumber string) (ProcessResult, error) {
	ctx, span := s.tracer.Start(ctx, "process_utterance")
	defer span.End()

	sess := s.sessions.Create(sessionID)
	if tableNumber != "" {
		sess.Lock()
		sess.TableNumber = tableNumber
		sess.Unlock()
	}

	items := sess.SnapshotItems()
	history := sess.SnapshotMessages()

	menuItems, err := s.catalog.Items(ctx)
	if err != nil {
		s.logger.Error("failed to load menu", "session_id", sess.ID, "error", err)
		return s.fallback(sess, transcript), nil
	}

	reply, ok := s.interpret(ctx, nlu.Request{
		Transcript: transcript,
		Menu:       menuItems,
		Order:      items,
		History:    history,
	})
	if !ok {
		return s.fallback(sess, transcript), nil
	}

	message := reply.Message
	if reply.Action != nil {
		cmd, valid := commandFromAction(reply.Action)
		if valid {
			matched := s.machine.Apply(sess, cmd, menuItems)
			if !matched {
				if _, isAdd := cmd.(order.AddItem); isAdd {
					message = fmt.Sprintf("I couldn't find %q on the menu. Could you pick something else?", reply.Action.Item)
				}
			}
		}
	}

	now := s.sessions.Now()
	sess.Lock()
	sess.AddMessage("user", transcript, now)
	sess.AddMessage("assistant", message, now)
	sess.Touch(now)
	sess.Unlock()

	s.count(ctx, "voiceorder.utterances")

	totals := s.pricing.Totals(sess).Rounded()
	return ProcessResult{
		SessionID:     sess.ID,
		Message:       message,
		CurrentOrder:  toLines(sess.SnapshotItems()),
		Total:         totals.Total.StringFixed(2),
		OrderComplete: reply.OrderComplete,
	}, nil
}

// Complete finalizes a session: persists the order with freshly
// computed totals, deletes the session, and notifies kitchen displays.
func (s *Service) Complete(ctx context.Context, sessionID string) (CompleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "complete_order")
	defer span.End()

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return CompleteResult{}, session.ErrNotFound
	}

	items := sess.SnapshotItems()
	if len(items) == 0 {
		return CompleteResult{}, order.ErrEmptyOrder
	}

	totals := s.pricing.TotalsForItems(items)
	final := orders.Order{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		TableNumber: sess.TableNumber,
		Items:       items,
		Subtotal:    totals.Subtotal,
		Tax:         totals.Tax,
		Total:       totals.Total,
		Status:      orders.StatusPending,
		CreatedAt:   s.sessions.Now(),
	}

	if s.orders != nil {
		if err := s.orders.SaveFinal(ctx, final); err != nil {
			return CompleteResult{}, fmt.Errorf("failed to persist order: %w", err)
		}
	}

	s.sessions.Delete(sess.ID)
	s.count(ctx, "voiceorder.orders_completed")

	if s.hub != nil {
		s.hub.Broadcast(hub.NewEnvelope("new-order", final), "kitchen")
	}

	total := totals.Total.Round(2)
	return CompleteResult{
		OrderID: final.ID,
		Total:   total.StringFixed(2),
		Message: fmt.Sprintf("Order placed! Your total is $%s.", total.StringFixed(2)),
	}, nil
}

// interpret consults the reply cache, then the interpreter. The bool
// is false on collaborator failure.
func (s *Service) interpret(ctx context.Context, req nlu.Request) (nlu.Reply, bool) {
	key := ""
	if s.replies != nil {
		key = cacheKey(req)
		if reply, hit := s.replies.Get(key); hit {
			s.logger.Info("interpreter cache hit", "key", key[:16])
			return reply, true
		}
	}

	reply, err := s.interp.Interpret(ctx, req)
	if err != nil {
		s.logger.Warn("interpreter failed, using fallback", "error", err)
		return nlu.Reply{}, false
	}

	if s.replies != nil {
		s.replies.Put(key, reply)
	}
	return reply, true
}

// fallback records the failed exchange and reports current state
// unchanged.
func (s *Service) fallback(sess *session.Session, transcript string) ProcessResult {
	now := s.sessions.Now()
	sess.Lock()
	sess.AddMessage("user", transcript, now)
	sess.AddMessage("assistant", fallbackMessage, now)
	sess.Touch(now)
	sess.Unlock()

	totals := s.pricing.Totals(sess).Rounded()
	return ProcessResult{
		SessionID:    sess.ID,
		Message:      fallbackMessage,
		CurrentOrder: toLines(sess.SnapshotItems()),
		Total:        totals.Total.StringFixed(2),
	}
}

func (s *Service) count(ctx context.Context, name string) {
	counter, err := s.meter.Int64Counter(name)
	if err != nil {
		return
	}
	counter.Add(ctx, 1)
}

// commandFromAction maps an interpreter action onto a state machine
// command. Unknown actions are dropped rather than erroring, matching
// the silent no-op policy for misheard input.
func commandFromAction(a *nlu.OrderAction) (order.Command, bool) {
	switch a.Action {
	case nlu.ActionAdd:
		return order.AddItem{Name: a.Item, Quantity: a.Quantity, Modifications: a.Modifications}, true
	case nlu.ActionRemove:
		return order.RemoveItem{Name: a.Item}, true
	case nlu.ActionClear:
		return order.Clear{}, true
	}
	return nil, false
}

func toLines(items []session.Item) []OrderLine {
	lines := make([]OrderLine, len(items))
	for i, it := range items {
		lines[i] = OrderLine{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.StringFixed(2),
			Modifications: it.Modifications,
		}
	}
	return lines
}

// cacheKey derives a stable key from everything that influences the
// interpreter's answer.
func cacheKey(req nlu.Request) string {
	parts := []string{req.Transcript}
	for _, it := range req.Order {
		parts = append(parts, it.MenuItemID, strconv.Itoa(it.Quantity), it.Modifications)
	}
	for _, m := range req.History {
		parts = append(parts, m.Role, m.Content)
	}
	var menuNames []string
	for _, it := range req.Menu {
		menuNames = append(menuNames, it.ID, it.Price.String())
	}
	parts = append(parts, strings.Join(menuNames, "|"))
	return cache.Key(parts...)
}
