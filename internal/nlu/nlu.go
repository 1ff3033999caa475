package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"VoiceOrder/internal/config"
	"VoiceOrder/internal/menu"
	"VoiceOrder/internal/session"
)

// Action values the interpreter may return
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionClear  = "clear"
)

// Request carries everything the interpreter needs: the new
// transcript plus the context it is interpreted against.
type Request struct {
	Transcript string
	Menu       []menu.Item
	Order      []session.Item
	History    []session.Message
}

// OrderAction is the structured mutation extracted from an utterance
type OrderAction struct {
	Action        string `json:"action"`
	Item          string `json:"item,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	Modifications string `json:"modifications,omitempty"`
}

// Reply is the interpreter's answer: a spoken response, an optional
// order mutation, and whether the customer is done ordering.
type Reply struct {
	Message       string       `json:"message"`
	Action        *OrderAction `json:"order_action"`
	OrderComplete bool         `json:"order_complete"`
}

// Interpreter turns a transcript into a structured reply
type Interpreter interface {
	Interpret(ctx context.Context, req Request) (Reply, error)
}

// LLMInterpreter implements Interpreter over an LLM chat API
// (Anthropic, OpenAI, or a local Ollama).
type LLMInterpreter struct {
	backend    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewLLMInterpreter creates an interpreter for the configured backend.
// The HTTP client carries a hard timeout so a hung model call surfaces
// as a collaborator failure instead of blocking the session.
func NewLLMInterpreter(cfg config.Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *LLMInterpreter {
	return &LLMInterpreter{
		backend:    cfg.Backend,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// Interpret sends the transcript and context to the backend and parses
// the structured reply.
func (i *LLMInterpreter) Interpret(ctx context.Context, req Request) (Reply, error) {
	system := buildSystemPrompt(req.Menu, req.Order)
	messages := buildMessages(req.History, req.Transcript)

	var raw string
	var err error
	switch i.backend {
	case config.BackendAnthropic:
		raw, err = i.callAnthropic(ctx, system, messages)
	case config.BackendOpenAI:
		raw, err = i.callOpenAI(ctx, system, messages)
	case config.BackendOllama:
		raw, err = i.callOllama(ctx, system, messages)
	default:
		return Reply{}, fmt.Errorf("unknown backend: %s", i.backend)
	}
	if err != nil {
		return Reply{}, err
	}

	reply, err := ParseReply(raw)
	if err != nil {
		i.logger.Warn("unparseable interpreter output", "backend", i.backend, "error", err)
		return Reply{}, err
	}
	return reply, nil
}

// buildSystemPrompt describes the menu, the current order, and the
// strict JSON output contract the model must follow.
func buildSystemPrompt(items []menu.Item, order []session.Item) string {
	var b strings.Builder
	b.WriteString("You are a drive-thru order taker. Interpret each customer utterance against the menu and current order.\n\n")

	b.WriteString("MENU:\n")
	for _, it := range items {
		if !it.Available {
			continue
		}
		fmt.Fprintf(&b, "- %s ($%s)", it.Name, it.Price.StringFixed(2))
		if it.Description != "" {
			fmt.Fprintf(&b, ": %s", it.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCURRENT ORDER:\n")
	if len(order) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, it := range order {
		fmt.Fprintf(&b, "- %dx %s", it.Quantity, it.Name)
		if it.Modifications != "" {
			fmt.Fprintf(&b, " (%s)", it.Modifications)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with ONLY a JSON object, no other text:
{"message": "<what you say back to the customer>", "order_action": {"action": "add|remove|clear", "item": "<item name>", "quantity": <n>, "modifications": "<notes>"} or null, "order_complete": <true if the customer is done ordering>}
`)
	return b.String()
}

func buildMessages(history []session.Message, transcript string) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: transcript})
	return msgs
}

// ParseReply extracts the JSON reply from raw model output. Models
// sometimes wrap the JSON in prose or code fences; everything outside
// the outermost object is ignored.
func ParseReply(raw string) (Reply, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Reply{}, fmt.Errorf("no JSON object in model output")
	}

	var reply Reply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return Reply{}, fmt.Errorf("failed to unmarshal model output: %w", err)
	}
	if reply.Message == "" {
		return Reply{}, fmt.Errorf("model output missing message")
	}
	if reply.Action != nil {
		switch reply.Action.Action {
		case ActionAdd, ActionRemove, ActionClear:
		default:
			return Reply{}, fmt.Errorf("unknown order action: %q", reply.Action.Action)
		}
	}
	return reply, nil
}
