package voiceorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"VoiceOrder/internal/cache"
	"VoiceOrder/internal/menu"
	"VoiceOrder/internal/nlu"
	"VoiceOrder/internal/order"
	"VoiceOrder/internal/pricing"
	"VoiceOrder/internal/session"
)

type scriptedInterpreter struct {
	replies  []nlu.Reply
	err      error
	requests []nlu.Request
}

func (s *scriptedInterpreter) Interpret(ctx context.Context, req nlu.Request) (nlu.Reply, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nlu.Reply{}, s.err
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

func testService(interp nlu.Interpreter, replies *cache.Cache) (*Service, *session.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewStore(logger)
	catalog := menu.NewStaticCatalog([]menu.Item{
		{ID: "burger", Name: "Classic Burger", Price: decimal.RequireFromString("10.00"), Available: true},
		{ID: "fries", Name: "French Fries", Price: decimal.RequireFromString("4.00"), Available: true},
	})
	svc := New(
		sessions,
		catalog,
		order.NewMachine(logger),
		pricing.NewService(pricing.DefaultTaxRate),
		interp,
		replies,
		nil,
		nil,
		logger,
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
	)
	return svc, sessions
}

func TestProcessAddsItemAndReportsTotal(t *testing.T) {
	interp := &scriptedInterpreter{replies: []nlu.Reply{{
		Message: "One burger, coming up. Anything else?",
		Action:  &nlu.OrderAction{Action: nlu.ActionAdd, Item: "burger", Quantity: 2},
	}}}
	svc, sessions := testService(interp, nil)

	result, err := svc.Process(context.Background(), "two burgers please", "s1", "7")
	require.NoError(t, err)

	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, "One burger, coming up. Anything else?", result.Message)
	require.Len(t, result.CurrentOrder, 1)
	assert.Equal(t, "Classic Burger", result.CurrentOrder[0].Name)
	assert.Equal(t, 2, result.CurrentOrder[0].Quantity)
	assert.Equal(t, "21.60", result.Total) // 20.00 + 8% tax
	assert.False(t, result.OrderComplete)

	sess, ok := sessions.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "7", sess.TableNumber)
	assert.Len(t, sess.SnapshotMessages(), 2)
}

func TestProcessCreatesSessionOnFirstUtterance(t *testing.T) {
	interp := &scriptedInterpreter{replies: []nlu.Reply{{Message: "Welcome! What can I get you?"}}}
	svc, sessions := testService(interp, nil)

	result, err := svc.Process(context.Background(), "hi", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)

	_, ok := sessions.Get(result.SessionID)
	assert.True(t, ok)
}

func TestProcessInterpreterFailureFallsBack(t *testing.T) {
	interp := &scriptedInterpreter{err: errors.New("model unavailable")}
	svc, sessions := testService(interp, nil)

	sess := sessions.Create("s1")
	sess.Lock()
	sess.Items = append(sess.Items, session.Item{
		Name: "Classic Burger", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1,
	})
	sess.Unlock()

	result, err := svc.Process(context.Background(), "mumble mumble", "s1", "")
	require.NoError(t, err, "interpreter failure must not surface as an error")

	assert.Equal(t, fallbackMessage, result.Message)
	assert.Len(t, result.CurrentOrder, 1, "fallback must not mutate the order")
	assert.Equal(t, "10.80", result.Total)
}

func TestProcessUnmatchedAddAsksForClarification(t *testing.T) {
	interp := &scriptedInterpreter{replies: []nlu.Reply{{
		Message: "Added the sushi.",
		Action:  &nlu.OrderAction{Action: nlu.ActionAdd, Item: "sushi", Quantity: 1},
	}}}
	svc, _ := testService(interp, nil)

	result, err := svc.Process(context.Background(), "sushi please", "s1", "")
	require.NoError(t, err)

	assert.Empty(t, result.CurrentOrder)
	assert.Contains(t, result.Message, "couldn't find")
	assert.Contains(t, result.Message, "sushi")
}

func TestProcessRemoveAndClear(t *testing.T) {
	interp := &scriptedInterpreter{replies: []nlu.Reply{
		{Message: "Added.", Action: &nlu.OrderAction{Action: nlu.ActionAdd, Item: "burger", Quantity: 1}},
		{Message: "Added.", Action: &nlu.OrderAction{Action: nlu.ActionAdd, Item: "fries", Quantity: 1}},
		{Message: "Removed the fries.", Action: &nlu.OrderAction{Action: nlu.ActionRemove, Item: "fries"}},
		{Message: "Starting over.", Action: &nlu.OrderAction{Action: nlu.ActionClear}},
	}}
	svc, _ := testService(interp, nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, "a burger", "s1", "")
	require.NoError(t, err)
	_, err = svc.Process(ctx, "and fries", "s1", "")
	require.NoError(t, err)

	result, err := svc.Process(ctx, "actually no fries", "s1", "")
	require.NoError(t, err)
	require.Len(t, result.CurrentOrder, 1)
	assert.Equal(t, "Classic Burger", result.CurrentOrder[0].Name)

	result, err = svc.Process(ctx, "scrap all of it", "s1", "")
	require.NoError(t, err)
	assert.Empty(t, result.CurrentOrder)
	assert.Equal(t, "0.00", result.Total)
}

func TestProcessUsesReplyCache(t *testing.T) {
	interp := &scriptedInterpreter{replies: []nlu.Reply{{Message: "Hello!"}}}
	svc, _ := testService(interp, cache.New(time.Minute))
	ctx := context.Background()

	_, err := svc.Process(ctx, "hi", "s1", "")
	require.NoError(t, err)
	require.Len(t, interp.requests, 1)

	// the second identical utterance against identical state is served
	// from cache; history differs after the first exchange, so reset it
	_, err = svc.Process(ctx, "hi", "s2", "")
	require.NoError(t, err)
	assert.Len(t, interp.requests, 1, "identical context must hit the cache")
}

func TestCompleteRequiresNonEmptySession(t *testing.T) {
	interp := &scriptedInterpreter{}
	svc, sessions := testService(interp, nil)

	_, err := svc.Complete(context.Background(), "ghost")
	require.ErrorIs(t, err, session.ErrNotFound)

	sessions.Create("s1")
	_, err = svc.Complete(context.Background(), "s1")
	require.ErrorIs(t, err, order.ErrEmptyOrder)
}

func TestCompleteDeletesSessionAndReportsTotal(t *testing.T) {
	interp := &scriptedInterpreter{}
	svc, sessions := testService(interp, nil)

	sess := sessions.Create("s1")
	sess.Lock()
	sess.Items = append(sess.Items,
		session.Item{Name: "Classic Burger", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
		session.Item{Name: "French Fries", UnitPrice: decimal.RequireFromString("4.00"), Quantity: 1},
	)
	sess.Unlock()

	result, err := svc.Complete(context.Background(), "s1")
	require.NoError(t, err)

	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, "25.92", result.Total)
	assert.Contains(t, result.Message, "$25.92")

	_, ok := sessions.Get("s1")
	assert.False(t, ok)
}
