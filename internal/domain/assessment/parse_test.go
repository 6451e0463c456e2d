package assessment

import (
	"testing"

	"github.com/ehr/triage/internal/platform/apperr"
)

const generatedJSON = "```json\n" + `{
  "symptoms_overview": {"primary_symptoms": ["headache", "fever"], "severity_rating": "6", "duration": "2 days"},
  "key_observations": {"likely_condition": "Viral fever", "observations": ["mild dehydration"]},
  "preliminary_recommendations": {"lifestyle_changes": ["Rest", "Drink 2-3L water daily"]},
  "otc_suggestions": {"medications": [{"name": "Paracetamol", "dosage": "500mg", "frequency": "3-4 times daily"}, "Oral rehydration salts"]},
  "monitoring_advice": {"what_to_monitor": ["Temperature"], "when_to_seek_help": ["Difficulty breathing or chest pain"]},
  "red_flags_detected": [],
  "confidence_score": 1.4
}` + "\n```"

func TestParseGenerated(t *testing.T) {
	a, err := ParseGenerated(generatedJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Observations.LikelyCondition != "Viral fever" {
		t.Errorf("expected Viral fever, got %q", a.Observations.LikelyCondition)
	}
	if a.Symptoms.Severity != 6 {
		t.Errorf("expected severity 6, got %d", a.Symptoms.Severity)
	}
	if len(a.Observations.Differentials) != 1 {
		t.Errorf("expected observations to fill differentials, got %v", a.Observations.Differentials)
	}
	if len(a.Medications.Items) != 2 || a.Medications.Items[1].Name != "Oral rehydration salts" {
		t.Errorf("expected string medication to be accepted, got %+v", a.Medications.Items)
	}
	if a.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", a.Confidence)
	}
	if a.Medications.Version != BlockVersion {
		t.Errorf("expected block version %d, got %d", BlockVersion, a.Medications.Version)
	}
}

func TestParseGenerated_Malformed(t *testing.T) {
	for _, raw := range []string{"", "```\n```", "not json", `{"red_flags_detected": []}`} {
		if _, err := ParseGenerated(raw); !apperr.IsKind(err, apperr.KindGenerator) {
			t.Errorf("ParseGenerated(%q): expected generator error, got %v", raw, err)
		}
	}
}
