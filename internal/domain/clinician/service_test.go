package clinician

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/apperr"
)

type countingDrainer struct {
	calls int
}

func (d *countingDrainer) AssignBacklog(context.Context) (int, error) {
	d.calls++
	return 2, nil
}

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func mustCreate(t *testing.T, svc *Service, phone, status string) *Clinician {
	t.Helper()
	c := &Clinician{Phone: phone, Name: "Dr " + phone, Status: status}
	if err := svc.Create(context.Background(), c); err != nil {
		t.Fatalf("create clinician: %v", err)
	}
	return c
}

func TestSelect_LeastLoadedWithStableTieBreak(t *testing.T) {
	a := &Clinician{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Status: StatusAvailable, CurrentPatientCount: 2}
	b := &Clinician{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Status: StatusOnCall, CurrentPatientCount: 1}
	c := &Clinician{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000c"), Status: StatusAvailable, CurrentPatientCount: 1}
	busy := &Clinician{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Status: StatusBusy}

	got := Select([]*Clinician{a, c, busy, b})
	if got != b {
		t.Errorf("expected clinician b, got %v", got.ID)
	}
	if Select([]*Clinician{busy}) != nil {
		t.Error("expected nil when nobody is assignable")
	}
	if Select(nil) != nil {
		t.Error("expected nil for empty candidates")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Create(ctx, &Clinician{Name: "x"}); !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error for missing phone, got %v", err)
	}
	if err := svc.Create(ctx, &Clinician{Phone: "+1", Name: "x", Status: "sleeping"}); !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error for bad status, got %v", err)
	}
	c := &Clinician{Phone: "+1", Name: "x"}
	if err := svc.Create(ctx, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusOffline {
		t.Errorf("expected default status OFFLINE, got %s", c.Status)
	}
}

func TestReserveAndRelease(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if got, err := svc.Reserve(ctx); err != nil || got != nil {
		t.Fatalf("expected no clinician, got %v (%v)", got, err)
	}

	c := mustCreate(t, svc, "+1", StatusAvailable)
	got, err := svc.Reserve(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("expected %s, got %s", c.ID, got.ID)
	}
	stored, _ := repo.GetByID(ctx, c.ID)
	if stored.CurrentPatientCount != 1 {
		t.Errorf("expected load 1, got %d", stored.CurrentPatientCount)
	}

	svc.Release(ctx, c.ID)
	svc.Release(ctx, c.ID)
	stored, _ = repo.GetByID(ctx, c.ID)
	if stored.CurrentPatientCount != 0 {
		t.Errorf("expected load floored at 0, got %d", stored.CurrentPatientCount)
	}
}

func TestReserve_SpreadsLoad(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	mustCreate(t, svc, "+1", StatusAvailable)
	mustCreate(t, svc, "+2", StatusAvailable)

	first, _ := svc.Reserve(ctx)
	second, _ := svc.Reserve(ctx)
	if first.ID == second.ID {
		t.Error("expected second reservation to go to the less loaded clinician")
	}
}

func TestSetStatus_DrainsBacklog(t *testing.T) {
	svc, _ := newTestService()
	d := &countingDrainer{}
	svc.SetDrainer(d)
	ctx := context.Background()
	c := mustCreate(t, svc, "+1", StatusOffline)

	n, err := svc.SetStatus(ctx, c.ID, "available")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || d.calls != 1 {
		t.Errorf("expected drain to run once and assign 2, got n=%d calls=%d", n, d.calls)
	}

	svc.SetStatus(ctx, c.ID, StatusBusy)
	if d.calls != 1 {
		t.Error("expected no drain when becoming busy")
	}
	if _, err := svc.SetStatus(ctx, uuid.New(), StatusAvailable); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
