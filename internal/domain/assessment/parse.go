package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/triage/internal/platform/apperr"
)

// generated mirrors the JSON document the text generator is asked to return.
type generated struct {
	SymptomsOverview struct {
		PrimarySymptoms []string `json:"primary_symptoms"`
		SeverityRating  flexInt  `json:"severity_rating"`
		Duration        string   `json:"duration"`
	} `json:"symptoms_overview"`
	KeyObservations struct {
		LikelyCondition       string   `json:"likely_condition"`
		DifferentialDiagnoses []string `json:"differential_diagnoses"`
		Observations          []string `json:"observations"`
		Notes                 string   `json:"notes"`
	} `json:"key_observations"`
	PreliminaryRecommendations struct {
		LifestyleChanges []string `json:"lifestyle_changes"`
	} `json:"preliminary_recommendations"`
	OTCSuggestions struct {
		Medications []json.RawMessage `json:"medications"`
	} `json:"otc_suggestions"`
	MonitoringAdvice struct {
		WhatToMonitor  []string `json:"what_to_monitor"`
		WhenToSeekHelp []string `json:"when_to_seek_help"`
	} `json:"monitoring_advice"`
	RedFlagsDetected []string  `json:"red_flags_detected"`
	ConfidenceScore  flexFloat `json:"confidence_score"`
}

// flexInt accepts 7, 7.0 and "7".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*f = flexInt(v)
	return nil
}

// flexFloat accepts 0.8 and "0.8".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// ParseGenerated turns raw generator output into an unsaved Assessment. The
// output may be wrapped in a Markdown code fence. Malformed or empty output
// is a Generator error.
func ParseGenerated(raw string) (*Assessment, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, apperr.Generator("parse assessment", errors.New("empty output"))
	}
	var g generated
	if err := json.Unmarshal([]byte(body), &g); err != nil {
		return nil, apperr.Generator("parse assessment", err)
	}
	if g.KeyObservations.LikelyCondition == "" && len(g.SymptomsOverview.PrimarySymptoms) == 0 {
		return nil, apperr.Generator("parse assessment", errors.New("no condition or symptoms"))
	}

	meds, err := parseMedications(g.OTCSuggestions.Medications)
	if err != nil {
		return nil, apperr.Generator("parse assessment", err)
	}

	differentials := g.KeyObservations.DifferentialDiagnoses
	if len(differentials) == 0 {
		differentials = g.KeyObservations.Observations
	}

	return &Assessment{
		Symptoms: SymptomOverview{
			PrimarySymptoms: cloneStrings(g.SymptomsOverview.PrimarySymptoms),
			Severity:        clampSeverity(int(g.SymptomsOverview.SeverityRating)),
			Duration:        g.SymptomsOverview.Duration,
		},
		Observations: Observations{
			LikelyCondition: g.KeyObservations.LikelyCondition,
			Differentials:   cloneStrings(differentials),
			Notes:           g.KeyObservations.Notes,
		},
		Recommendations: RecommendationBlock{Version: BlockVersion, Items: cloneStrings(g.PreliminaryRecommendations.LifestyleChanges)},
		Medications:     MedicationBlock{Version: BlockVersion, Items: meds},
		Monitoring: MonitoringBlock{
			Version:        BlockVersion,
			WhatToMonitor:  cloneStrings(g.MonitoringAdvice.WhatToMonitor),
			WhenToSeekHelp: cloneStrings(g.MonitoringAdvice.WhenToSeekHelp),
		},
		RedFlags:   cloneStrings(g.RedFlagsDetected),
		Confidence: clampConfidence(float64(g.ConfidenceScore)),
	}, nil
}

func parseMedications(raws []json.RawMessage) ([]Medication, error) {
	meds := make([]Medication, 0, len(raws))
	for _, r := range raws {
		r = bytes.TrimSpace(r)
		if len(r) == 0 {
			continue
		}
		if r[0] == '"' {
			var name string
			if err := json.Unmarshal(r, &name); err != nil {
				return nil, fmt.Errorf("medication: %w", err)
			}
			if name = strings.TrimSpace(name); name != "" {
				meds = append(meds, Medication{Name: name})
			}
			continue
		}
		var m Medication
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("medication: %w", err)
		}
		if m.Name != "" {
			meds = append(meds, m)
		}
	}
	return meds, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clampSeverity(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
