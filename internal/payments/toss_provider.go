package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTossTimeout = 10 * time.Second
	tossRetryDelay     = 500 * time.Millisecond
)

// TossLogger defines the logging contract for Toss provider operations.
type TossLogger func(ctx context.Context, event string, fields map[string]any)

// TossProviderConfig configures the TossProvider.
type TossProviderConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	Client    *http.Client
	Logger    TossLogger
	Clock     func() time.Time
}

// TossProvider implements Processor and Parser against the Toss payments REST API.
type TossProvider struct {
	baseURL string
	auth    string
	client  *http.Client
	logger  TossLogger
	clock   func() time.Time
}

// NewTossProvider constructs a Toss provider using the given configuration.
func NewTossProvider(cfg TossProviderConfig) (*TossProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("toss: base url is required")
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("toss: secret key is required")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTossTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &TossProvider{
		baseURL: baseURL,
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":")),
		client:  client,
		logger:  logger,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

// Approve confirms a payment at Toss. Transient failures are retried once
// under the same idempotency key so the gateway deduplicates the capture.
func (p *TossProvider) Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error) {
	if p == nil {
		return nil, errors.New("toss: provider is nil")
	}

	body := map[string]any{
		"paymentKey": req.PaymentKey,
		"orderId":    req.OrderUUID,
		"amount":     req.Amount,
	}

	payload, err := p.post(ctx, p.baseURL+"/confirm", body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	p.logger(ctx, "payments.toss.approved", map[string]any{
		"orderUuid":  req.OrderUUID,
		"paymentKey": req.PaymentKey,
		"amount":     req.Amount,
	})
	return payload, nil
}

// Cancel voids a captured payment.
func (p *TossProvider) Cancel(ctx context.Context, req CancelRequest) error {
	if p == nil {
		return errors.New("toss: provider is nil")
	}

	body := map[string]any{
		"cancelReason": req.Reason,
	}
	if req.Amount > 0 {
		body["cancelAmount"] = req.Amount
	}

	url := fmt.Sprintf("%s/%s/cancel", p.baseURL, req.PaymentKey)
	if _, err := p.post(ctx, url, body, req.IdempotencyKey); err != nil {
		return err
	}

	p.logger(ctx, "payments.toss.cancelled", map[string]any{
		"paymentKey": req.PaymentKey,
		"amount":     req.Amount,
	})
	return nil
}

// Parse extracts the approval fields from a Toss confirm response.
func (p *TossProvider) Parse(_ context.Context, payload json.RawMessage) (Approval, error) {
	var response struct {
		PaymentKey  string `json:"paymentKey"`
		TotalAmount int64  `json:"totalAmount"`
		RequestedAt string `json:"requestedAt"`
		ApprovedAt  string `json:"approvedAt"`
	}
	if err := json.Unmarshal(payload, &response); err != nil {
		return Approval{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if response.PaymentKey == "" {
		return Approval{}, fmt.Errorf("%w: missing payment key", ErrMalformedResponse)
	}

	now := p.clock()
	requestedAt := parseTossTime(response.RequestedAt, now)
	approvedAt := parseTossTime(response.ApprovedAt, now)

	return Approval{
		PaymentKey:  response.PaymentKey,
		Amount:      response.TotalAmount,
		RequestedAt: requestedAt,
		ApprovedAt:  approvedAt,
	}, nil
}

func (p *TossProvider) post(ctx context.Context, url string, body map[string]any, idempotencyKey string) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("toss: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(tossRetryDelay):
			}
		}

		payload, retryable, err := p.doOnce(ctx, url, data, idempotencyKey)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (p *TossProvider) doOnce(ctx context.Context, url string, data []byte, idempotencyKey string) (json.RawMessage, bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("toss: build request: %w", err)
	}
	request.Header.Set("Authorization", p.auth)
	request.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		request.Header.Set("Idempotency-Key", key)
	}

	response, err := p.client.Do(request)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrGatewayFailure, err)
	}

	if response.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: status %d", ErrGatewayFailure, response.StatusCode)
	}
	if response.StatusCode >= 400 {
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrGatewayFailure, response.StatusCode, tossErrorMessage(payload))
	}
	return payload, false, nil
}

func tossErrorMessage(payload []byte) string {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		return "unknown error"
	}
	if body.Code != "" {
		return body.Code + ": " + body.Message
	}
	return body.Message
}

func parseTossTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
