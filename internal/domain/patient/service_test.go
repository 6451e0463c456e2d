package patient

import (
	"context"
	"testing"

	"github.com/ehr/triage/internal/platform/apperr"
)

func TestGetOrCreateByPhone(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	p, err := svc.GetOrCreateByPhone(ctx, " +2348000000001 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := svc.GetOrCreateByPhone(ctx, "+2348000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != again.ID {
		t.Error("expected the same patient on second lookup")
	}
	if p.Credits != 0 {
		t.Errorf("expected zero credits, got %d", p.Credits)
	}
}

func TestGetOrCreateByPhone_Empty(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.GetOrCreateByPhone(context.Background(), "  "); !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestAcceptTerms_KeepsFirstTimestamp(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	p, _ := svc.GetOrCreateByPhone(ctx, "+1")

	if err := svc.AcceptTerms(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := *p.TermsAcceptedAt
	svc.AcceptTerms(ctx, p)
	if !p.TermsAcceptedAt.Equal(first) {
		t.Error("expected acceptance timestamp to be kept")
	}
}

func TestCredits(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	p, _ := svc.GetOrCreateByPhone(ctx, "+1")

	if err := svc.DeductCredit(ctx, p); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict with zero balance, got %v", err)
	}
	if _, err := svc.AddCredits(ctx, p.ID, 0); !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error for zero credits, got %v", err)
	}
	balance, err := svc.AddCredits(ctx, p.ID, 2)
	if err != nil || balance != 2 {
		t.Fatalf("expected balance 2, got %d (%v)", balance, err)
	}
	if err := svc.DeductCredit(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Credits != 1 {
		t.Errorf("expected 1 credit left, got %d", p.Credits)
	}
}
