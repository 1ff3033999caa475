package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Intent is the processor's view of an authorized-but-unsettled charge
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Metadata     map[string]string `json:"metadata"`
}

// CreateIntentRequest describes a charge to authorize. Amount is in
// minor units (cents).
type CreateIntentRequest struct {
	Amount      int64
	Currency    string
	SessionID   string
	ItemSummary string
}

// Processor is the external payment collaborator
type Processor interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
}

// StripeProcessor implements Processor against the Stripe API
type StripeProcessor struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewStripeProcessor creates a Stripe-backed processor. The secret key
// is read from STRIPE_SECRET_KEY at call time.
func NewStripeProcessor(logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *StripeProcessor {
	return &StripeProcessor{
		baseURL:    "https://api.stripe.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}
}

// CreateIntent creates a payment intent for the given amount
func (p *StripeProcessor) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	ctx, span := p.tracer.Start(ctx, "stripe_create_intent")
	defer span.End()

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("metadata[session_id]", req.SessionID)
	form.Set("metadata[items]", req.ItemSummary)

	var intent Intent
	if err := p.call(ctx, "POST", "/v1/payment_intents", form, &intent); err != nil {
		return Intent{}, err
	}

	p.logger.Info("created payment intent", "intent_id", intent.ID, "amount", req.Amount, "session_id", req.SessionID)
	return intent, nil
}

// GetIntent fetches a payment intent by id
func (p *StripeProcessor) GetIntent(ctx context.Context, id string) (Intent, error) {
	ctx, span := p.tracer.Start(ctx, "stripe_get_intent")
	defer span.End()

	var intent Intent
	if err := p.call(ctx, "GET", "/v1/payment_intents/"+url.PathEscape(id), nil, &intent); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// call sends one form-encoded request to the Stripe API and decodes
// the JSON response.
func (p *StripeProcessor) call(ctx context.Context, method, path string, form url.Values, result interface{}) error {
	start := time.Now()

	apiKey := os.Getenv("STRIPE_SECRET_KEY")
	if apiKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY not set")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment API error: %s - %s", resp.Status, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	histogram, err := p.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	return nil
}
