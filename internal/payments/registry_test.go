package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domain "github.com/ink3-shop/api/internal/domain"
)

type stubProcessor struct {
	approveFn func(ctx context.Context, req ApproveRequest) (json.RawMessage, error)
	cancelFn  func(ctx context.Context, req CancelRequest) error
}

func (s *stubProcessor) Approve(ctx context.Context, req ApproveRequest) (json.RawMessage, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, req)
	}
	return json.RawMessage(`{}`), nil
}

func (s *stubProcessor) Cancel(ctx context.Context, req CancelRequest) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, req)
	}
	return nil
}

type stubParser struct {
	parseFn func(ctx context.Context, payload json.RawMessage) (Approval, error)
}

func (s *stubParser) Parse(ctx context.Context, payload json.RawMessage) (Approval, error) {
	if s.parseFn != nil {
		return s.parseFn(ctx, payload)
	}
	return Approval{}, nil
}

func TestNewRegistryRejectsIncompleteStrategy(t *testing.T) {
	_, err := NewRegistry(map[domain.PaymentType]Strategy{
		domain.PaymentTypeToss: {Processor: &stubProcessor{}},
	})
	if err == nil {
		t.Fatal("expected error for strategy without parser")
	}
}

func TestRegistryResolve(t *testing.T) {
	registry, err := NewRegistry(map[domain.PaymentType]Strategy{
		domain.PaymentTypePoint: {Processor: &stubProcessor{}, Parser: &stubParser{}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := registry.Resolve(domain.PaymentTypePoint); err != nil {
		t.Fatalf("Resolve(point): %v", err)
	}

	_, err = registry.Resolve(domain.PaymentTypeToss)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Resolve(toss) = %v, want ErrUnsupportedType", err)
	}
}

func TestPointProviderRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	provider := NewPointProvider(func() time.Time { return now })

	payload, err := provider.Approve(context.Background(), ApproveRequest{
		OrderUUID: "ord-uuid-1",
		Amount:    12000,
	})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	approval, err := provider.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if approval.Amount != 12000 {
		t.Fatalf("amount = %d, want 12000", approval.Amount)
	}
	if approval.PaymentKey != "" {
		t.Fatalf("payment key = %q, want empty", approval.PaymentKey)
	}
	if !approval.ApprovedAt.Equal(now) {
		t.Fatalf("approvedAt = %v, want %v", approval.ApprovedAt, now)
	}
}

func TestPointProviderCancelIsNoop(t *testing.T) {
	provider := NewPointProvider(nil)
	if err := provider.Cancel(context.Background(), CancelRequest{}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}
