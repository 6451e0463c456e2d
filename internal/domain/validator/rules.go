package validator

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// DosageLimit is the highest known safe single dose of a drug.
type DosageLimit struct {
	Name        string  `yaml:"name"`
	MaxMg       float64 `yaml:"max_mg"`
	Recommended string  `yaml:"recommended"`
}

// SafeCadence lists acceptable dosing frequencies for a drug. The first
// entry is offered as the suggestion.
type SafeCadence struct {
	Name     string   `yaml:"name"`
	Cadences []string `yaml:"cadences"`
}

// ConditionMedications maps a condition keyword to the drugs that suit it.
type ConditionMedications struct {
	Condition   string   `yaml:"condition"`
	Medications []string `yaml:"medications"`
}

// Rules holds every fixed reference table the validator consults. Lists are
// ordered so that output is stable across runs.
type Rules struct {
	DoseTolerance float64       `yaml:"dose_tolerance"`
	DosageLimits  []DosageLimit `yaml:"dosage_limits"`
	Frequency     struct {
		Dangerous []string      `yaml:"dangerous"`
		Safe      []SafeCadence `yaml:"safe"`
	} `yaml:"frequency"`
	Interactions    [][2]string            `yaml:"interactions"`
	Conditions      []ConditionMedications `yaml:"conditions"`
	SafeOTC         []string               `yaml:"safe_otc"`
	Recommendations struct {
		Vague     []string    `yaml:"vague"`
		Conflicts [][2]string `yaml:"conflicts"`
	} `yaml:"recommendations"`
	Monitoring struct {
		MinLength        int      `yaml:"min_length"`
		CriticalKeywords []string `yaml:"critical_keywords"`
	} `yaml:"monitoring"`
	Notes struct {
		MaxLength int      `yaml:"max_length"`
		Informal  []string `yaml:"informal"`
	} `yaml:"notes"`
	MinFilledSections int `yaml:"min_filled_sections"`
}

// LoadRules parses a rules document.
func LoadRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse validator rules: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.normalize()
	return &r, nil
}

var (
	defaultOnce sync.Once
	defaultSet  *Rules
)

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	defaultOnce.Do(func() {
		r, err := LoadRules(defaultRules)
		if err != nil {
			panic(err)
		}
		defaultSet = r
	})
	return defaultSet
}

func (r *Rules) validate() error {
	if r.DoseTolerance <= 0 {
		return fmt.Errorf("validator rules: dose_tolerance must be positive")
	}
	for _, d := range r.DosageLimits {
		if d.Name == "" || d.MaxMg <= 0 {
			return fmt.Errorf("validator rules: invalid dosage limit %q", d.Name)
		}
	}
	if r.Monitoring.MinLength < 0 || r.Notes.MaxLength <= 0 {
		return fmt.Errorf("validator rules: invalid length thresholds")
	}
	return nil
}

func (r *Rules) normalize() {
	for i := range r.DosageLimits {
		r.DosageLimits[i].Name = strings.ToLower(r.DosageLimits[i].Name)
	}
	for i := range r.Frequency.Safe {
		r.Frequency.Safe[i].Name = strings.ToLower(r.Frequency.Safe[i].Name)
	}
	for i := range r.Interactions {
		r.Interactions[i][0] = strings.ToLower(r.Interactions[i][0])
		r.Interactions[i][1] = strings.ToLower(r.Interactions[i][1])
	}
	lowerAll(r.SafeOTC)
	lowerAll(r.Frequency.Dangerous)
	lowerAll(r.Recommendations.Vague)
	lowerAll(r.Monitoring.CriticalKeywords)
	lowerAll(r.Notes.Informal)
}

func lowerAll(s []string) {
	for i := range s {
		s[i] = strings.ToLower(s[i])
	}
}

// dosageLimit finds the limit whose drug name appears in med.
func (r *Rules) dosageLimit(med string) (DosageLimit, bool) {
	for _, d := range r.DosageLimits {
		if med == d.Name || containsWord(med, d.Name) {
			return d, true
		}
	}
	return DosageLimit{}, false
}

func (r *Rules) safeCadence(med string) (SafeCadence, bool) {
	for _, s := range r.Frequency.Safe {
		if med == s.Name || containsWord(med, s.Name) {
			return s, true
		}
	}
	return SafeCadence{}, false
}

func (r *Rules) isSafeOTC(med string) bool {
	for _, s := range r.SafeOTC {
		if med == s {
			return true
		}
	}
	return false
}
