package assessment

// BlockVersion is the schema version stamped on every content block.
const BlockVersion = 1

// Medication is one medication suggestion.
type Medication struct {
	Name      string `json:"name" yaml:"name"`
	Dosage    string `json:"dosage" yaml:"dosage"`
	Frequency string `json:"frequency" yaml:"frequency"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// MedicationBlock is the ordered medication list.
type MedicationBlock struct {
	Version int          `json:"version" yaml:"version"`
	Items   []Medication `json:"medications" yaml:"medications"`
}

func (b MedicationBlock) Clone() MedicationBlock {
	items := make([]Medication, len(b.Items))
	copy(items, b.Items)
	return MedicationBlock{Version: b.Version, Items: items}
}

func (b MedicationBlock) Equal(o MedicationBlock) bool {
	if len(b.Items) != len(o.Items) {
		return false
	}
	for i := range b.Items {
		if b.Items[i] != o.Items[i] {
			return false
		}
	}
	return true
}

// RecommendationBlock is the ordered list of lifestyle recommendations.
type RecommendationBlock struct {
	Version int      `json:"version" yaml:"version"`
	Items   []string `json:"lifestyle_changes" yaml:"lifestyle_changes"`
}

func (b RecommendationBlock) Clone() RecommendationBlock {
	return RecommendationBlock{Version: b.Version, Items: cloneStrings(b.Items)}
}

func (b RecommendationBlock) Equal(o RecommendationBlock) bool {
	return equalStrings(b.Items, o.Items)
}

// MonitoringBlock holds what to watch and when to seek help.
type MonitoringBlock struct {
	Version        int      `json:"version" yaml:"version"`
	WhatToMonitor  []string `json:"what_to_monitor" yaml:"what_to_monitor"`
	WhenToSeekHelp []string `json:"when_to_seek_help" yaml:"when_to_seek_help"`
}

func (b MonitoringBlock) Clone() MonitoringBlock {
	return MonitoringBlock{
		Version:        b.Version,
		WhatToMonitor:  cloneStrings(b.WhatToMonitor),
		WhenToSeekHelp: cloneStrings(b.WhenToSeekHelp),
	}
}

func (b MonitoringBlock) Equal(o MonitoringBlock) bool {
	return equalStrings(b.WhatToMonitor, o.WhatToMonitor) && equalStrings(b.WhenToSeekHelp, o.WhenToSeekHelp)
}

// SymptomOverview summarises what the patient reported.
type SymptomOverview struct {
	PrimarySymptoms []string `json:"primary_symptoms" yaml:"primary_symptoms"`
	Severity        int      `json:"severity_rating" yaml:"severity_rating"`
	Duration        string   `json:"duration" yaml:"duration"`
}

// Observations is the generator's reading of the case.
type Observations struct {
	LikelyCondition string   `json:"likely_condition" yaml:"likely_condition"`
	Differentials   []string `json:"differential_diagnoses" yaml:"differential_diagnoses"`
	Notes           string   `json:"notes" yaml:"notes"`
}

// Content is the set of blocks a clinician may modify.
type Content struct {
	Medications     MedicationBlock     `json:"medications" yaml:"medications"`
	Recommendations RecommendationBlock `json:"recommendations" yaml:"recommendations"`
	Monitoring      MonitoringBlock     `json:"monitoring" yaml:"monitoring"`
}

func (c Content) Clone() Content {
	return Content{
		Medications:     c.Medications.Clone(),
		Recommendations: c.Recommendations.Clone(),
		Monitoring:      c.Monitoring.Clone(),
	}
}

func (c Content) Equal(o Content) bool {
	return c.Medications.Equal(o.Medications) &&
		c.Recommendations.Equal(o.Recommendations) &&
		c.Monitoring.Equal(o.Monitoring)
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
