package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/websocket"
)

func newTestService() (*Service, *MemoryRepo, *audit.Memory) {
	repo := NewMemoryRepo()
	mem := &audit.Memory{}
	svc := NewService(repo, NewMemoryReviewRepo(), db.NoopTransactor{}, mem, websocket.Nop, zerolog.Nop())
	return svc, repo, mem
}

func pendingAssessment(t *testing.T, svc *Service) *Assessment {
	t.Helper()
	c := sampleContent()
	a := &Assessment{
		SessionID:       uuid.New(),
		PatientID:       uuid.New(),
		ChiefComplaint:  "headache",
		Medications:     c.Medications,
		Recommendations: c.Recommendations,
		Monitoring:      c.Monitoring,
		Status:          StatusGenerated,
	}
	ctx := context.Background()
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Transition(ctx, a, StatusPendingReview, "system"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	return a
}

func TestCreate_RejectsBadStart(t *testing.T) {
	svc, _, _ := newTestService()
	a := &Assessment{SessionID: uuid.New(), PatientID: uuid.New(), Status: StatusApproved}
	if err := svc.Create(context.Background(), a); !apperr.IsKind(err, apperr.KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestTransition_AuditsOncePerChange(t *testing.T) {
	svc, _, mem := newTestService()
	a := pendingAssessment(t, svc)

	if mem.Count(audit.ActionAssessmentCreated) != 1 || mem.Count(audit.ActionAssessmentQueued) != 1 {
		t.Errorf("expected one created and one queued entry, got %+v", mem.Entries)
	}
	err := svc.Transition(context.Background(), a, StatusSent, "x")
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict for PENDING_REVIEW -> SENT, got %v", err)
	}
}

func TestApproveThenReject(t *testing.T) {
	svc, repo, mem := newTestService()
	a := pendingAssessment(t, svc)
	ctx := context.Background()
	clin := uuid.New()

	if _, err := svc.Approve(ctx, a, clin, "looks right"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stored, _ := repo.GetByID(ctx, a.ID)
	if stored.Status != StatusApproved {
		t.Errorf("expected APPROVED, got %s", stored.Status)
	}
	if _, err := svc.Reject(ctx, a, clin, "wrong"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.Approve(ctx, a, clin, ""); !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict approving a rejected assessment, got %v", err)
	}
	if mem.Count(audit.ActionAssessmentRejected) != 1 {
		t.Error("expected one rejection audit entry")
	}
}

func TestRecordModification_FinalContent(t *testing.T) {
	svc, _, _ := newTestService()
	a := pendingAssessment(t, svc)
	ctx := context.Background()

	edited := a.Content()
	edited.Recommendations.Items = append(edited.Recommendations.Items, "Sleep 8 hours")
	if _, err := svc.RecordModification(ctx, a, uuid.New(), edited, "Call me if worse"); err != nil {
		t.Fatalf("record: %v", err)
	}
	edited.Recommendations.Items[0] = "mutated after save"

	content, notes, review, err := svc.FinalContent(ctx, a)
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if review == nil || notes != "Call me if worse" {
		t.Errorf("expected modification review with notes, got %v %q", review, notes)
	}
	if len(content.Recommendations.Items) != 3 || content.Recommendations.Items[0] != "Rest" {
		t.Errorf("expected stored review to be immune to caller edits, got %v", content.Recommendations.Items)
	}
}

func TestExpireIfStale(t *testing.T) {
	svc, repo, mem := newTestService()
	svc.SetTTL(72 * time.Hour)
	a := pendingAssessment(t, svc)
	ctx := context.Background()

	if expired, _ := svc.ExpireIfStale(ctx, a); expired {
		t.Fatal("fresh assessment must not expire")
	}
	repo.Backdate(a.ID, 73*time.Hour)
	a, _ = repo.GetByID(ctx, a.ID)
	expired, err := svc.ExpireIfStale(ctx, a)
	if err != nil || !expired {
		t.Fatalf("expected expiry, got %v (%v)", expired, err)
	}
	if mem.Count(audit.ActionAssessmentExpired) != 1 {
		t.Error("expected one expiry audit entry")
	}
}

func TestMarkSent(t *testing.T) {
	svc, _, _ := newTestService()
	a := pendingAssessment(t, svc)
	ctx := context.Background()

	if err := svc.MarkSent(ctx, a, "x"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict sending an unapproved assessment, got %v", err)
	}
	svc.Approve(ctx, a, uuid.New(), "")
	if err := svc.MarkSent(ctx, a, "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusSent || a.SentAt == nil {
		t.Errorf("expected SENT_TO_PATIENT with timestamp, got %s", a.Status)
	}
}
