package assessment

import (
	"testing"
	"time"
)

func sampleContent() Content {
	return Content{
		Medications: MedicationBlock{Version: BlockVersion, Items: []Medication{
			{Name: "Paracetamol", Dosage: "500mg", Frequency: "3-4 times daily"},
		}},
		Recommendations: RecommendationBlock{Version: BlockVersion, Items: []string{"Rest", "Drink 2L of water daily"}},
		Monitoring: MonitoringBlock{
			Version:        BlockVersion,
			WhatToMonitor:  []string{"Temperature"},
			WhenToSeekHelp: []string{"Difficulty breathing or chest pain"},
		},
	}
}

func TestContent_CloneIsIndependent(t *testing.T) {
	orig := sampleContent()
	cp := orig.Clone()
	if !cp.Equal(orig) {
		t.Fatal("expected clone to equal original")
	}
	cp.Medications.Items[0].Dosage = "1000mg"
	cp.Recommendations.Items[0] = "Exercise"
	cp.Monitoring.WhenToSeekHelp = append(cp.Monitoring.WhenToSeekHelp, "Confusion")

	if orig.Medications.Items[0].Dosage != "500mg" {
		t.Error("medication edit leaked into original")
	}
	if orig.Recommendations.Items[0] != "Rest" {
		t.Error("recommendation edit leaked into original")
	}
	if len(orig.Monitoring.WhenToSeekHelp) != 1 {
		t.Error("monitoring edit leaked into original")
	}
	if cp.Equal(orig) {
		t.Error("expected edited clone to differ")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ReviewStatus
		want     bool
	}{
		{StatusDraft, StatusGenerated, true},
		{StatusGenerated, StatusPendingReview, true},
		{StatusPendingReview, StatusApproved, true},
		{StatusPendingReview, StatusSent, false},
		{StatusApproved, StatusSent, true},
		{StatusModified, StatusModified, true},
		{StatusRejected, StatusApproved, false},
		{StatusSent, StatusModified, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestReviewMerge(t *testing.T) {
	orig := sampleContent()
	recs := RecommendationBlock{Version: BlockVersion, Items: []string{"Sleep 8 hours"}}
	r := &Review{Action: ActionModified, Recommendations: &recs}

	merged := r.Merge(orig)
	if !merged.Medications.Equal(orig.Medications) {
		t.Error("expected unmodified medications to fall back to original")
	}
	if !merged.Recommendations.Equal(recs) {
		t.Error("expected modified recommendations")
	}

	approved := &Review{Action: ActionApproved, Recommendations: &recs}
	if !approved.Merge(orig).Equal(orig) {
		t.Error("expected approval to keep original content")
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	a := &Assessment{Status: StatusPendingReview, GeneratedAt: now.Add(-73 * time.Hour)}
	if !a.Expired(72*time.Hour, now) {
		t.Error("expected assessment older than ttl to be expired")
	}
	a.Status = StatusSent
	if a.Expired(72*time.Hour, now) {
		t.Error("sent assessment must not expire lazily")
	}
	a.Status = StatusApproved
	if a.Expired(0, now) {
		t.Error("zero ttl disables expiry")
	}
}
