// Package validator checks clinician-edited assessment content against fixed
// safety rules before it may be sent to a patient. Validation is a pure
// function of its inputs and is recomputed for every send attempt.
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ehr/triage/internal/domain/assessment"
)

// Severity of a single finding or of a whole result.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityOK:       0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities from OK (0) to CRITICAL (4).
func (s Severity) Rank() int { return severityRank[s] }

// Recommendation is the routing decision derived from severity.
type Recommendation string

const (
	RecommendSend      Recommendation = "SEND"
	RecommendReview    Recommendation = "REVIEW"
	RecommendDoNotSend Recommendation = "DO_NOT_SEND"
)

// RecommendationFor maps a severity to its routing decision.
func RecommendationFor(s Severity) Recommendation {
	switch s {
	case SeverityCritical:
		return RecommendDoNotSend
	case SeverityHigh, SeverityMedium:
		return RecommendReview
	default:
		return RecommendSend
	}
}

// Finding categories.
const (
	CategoryMedication   = "medication_safety"
	CategoryConsistency  = "consistency"
	CategoryCompleteness = "completeness"
	CategoryQuality      = "quality"
)

// Issue is one finding.
type Issue struct {
	Category   string   `json:"type" yaml:"type"`
	Severity   Severity `json:"severity" yaml:"severity"`
	Message    string   `json:"message" yaml:"message"`
	Suggestion string   `json:"suggestion" yaml:"suggestion"`
}

// Result is the outcome of one validation run.
type Result struct {
	Severity       Severity       `json:"severity" yaml:"severity"`
	Recommendation Recommendation `json:"recommendation" yaml:"recommendation"`
	Issues         []Issue        `json:"issues" yaml:"issues"`
}

// Valid reports whether no HIGH or CRITICAL finding was raised.
func (r Result) Valid() bool {
	return r.Severity.Rank() < SeverityHigh.Rank()
}

// Count returns the number of findings at exactly severity s.
func (r Result) Count(s Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}

type Validator struct {
	rules *Rules
}

// New returns a validator over rules, or the embedded defaults when nil.
func New(rules *Rules) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// Validate checks the content that would be sent for a given its latest
// review. A nil review validates the original content unchanged.
func (v *Validator) Validate(a *assessment.Assessment, r *assessment.Review) Result {
	content, notes := assessment.Final(a, r)
	return v.Check(a, content, notes)
}

// Check validates proposed content and notes against the original
// assessment.
func (v *Validator) Check(a *assessment.Assessment, proposed assessment.Content, notes string) Result {
	var issues []Issue
	issues = append(issues, v.medications(a, proposed.Medications.Items)...)
	issues = append(issues, v.recommendations(a, proposed.Recommendations.Items)...)
	issues = append(issues, v.monitoring(proposed.Monitoring.WhenToSeekHelp)...)
	issues = append(issues, v.notes(notes)...)
	issues = append(issues, v.crossSection(a, proposed)...)

	sev := SeverityOK
	for _, i := range issues {
		if i.Severity.Rank() > sev.Rank() {
			sev = i.Severity
		}
	}
	if issues == nil {
		issues = []Issue{}
	}
	return Result{Severity: sev, Recommendation: RecommendationFor(sev), Issues: issues}
}

func (v *Validator) medications(a *assessment.Assessment, meds []assessment.Medication) []Issue {
	var issues []Issue
	condition := strings.ToLower(a.Observations.LikelyCondition)

	original := make(map[string]bool, len(a.Medications.Items))
	for _, m := range a.Medications.Items {
		original[normalizeName(m.Name)] = true
	}

	for _, m := range meds {
		name := normalizeName(m.Name)
		if name == "" {
			continue
		}
		if dosage := strings.TrimSpace(m.Dosage); dosage != "" {
			issues = append(issues, v.dosage(name, dosage)...)
		}
		if freq := strings.ToLower(strings.TrimSpace(m.Frequency)); freq != "" {
			issues = append(issues, v.frequency(name, m.Frequency, freq)...)
		}
		if condition != "" {
			issues = append(issues, v.appropriateness(name, a.Observations.LikelyCondition, condition)...)
		}
		if !original[name] && !v.rules.isSafeOTC(name) {
			target := a.Observations.LikelyCondition
			if target == "" {
				target = "patient condition"
			}
			issues = append(issues, Issue{
				Category:   CategoryMedication,
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("'%s' is a new medication not in original assessment", name),
				Suggestion: fmt.Sprintf("Verify '%s' is appropriate for %s", name, target),
			})
		}
	}
	return append(issues, v.interactions(meds)...)
}

var doseRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mcg|µg|mg|g)?\b`)

// parseDoseMg extracts the first quantity in dosage, in milligrams. A bare
// number is taken to be milligrams.
func parseDoseMg(dosage string) (float64, bool) {
	m := doseRe.FindStringSubmatch(strings.ToLower(dosage))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "g":
		n *= 1000
	case "mcg", "µg":
		n /= 1000
	}
	return n, true
}

func (v *Validator) dosage(name, dosage string) []Issue {
	limit, ok := v.rules.dosageLimit(name)
	if !ok {
		return nil
	}
	mg, ok := parseDoseMg(dosage)
	if !ok || mg <= limit.MaxMg*v.rules.DoseTolerance {
		return nil
	}
	suggestion := "Recommended: " + limit.Recommended
	if sc, ok := v.rules.safeCadence(name); ok && len(sc.Cadences) > 0 {
		suggestion += ", frequency: " + sc.Cadences[0]
	}
	return []Issue{{
		Category:   CategoryMedication,
		Severity:   SeverityHigh,
		Message:    fmt.Sprintf("%s dosage of %s may be too high", name, dosage),
		Suggestion: suggestion,
	}}
}

func (v *Validator) frequency(name, raw, freq string) []Issue {
	sc, ok := v.rules.safeCadence(name)
	if !ok {
		return nil
	}
	for _, p := range v.rules.Frequency.Dangerous {
		if strings.Contains(freq, p) {
			suggestion := "Use a standard daily schedule"
			if len(sc.Cadences) > 0 {
				suggestion = "Use: " + sc.Cadences[0]
			}
			return []Issue{{
				Category:   CategoryMedication,
				Severity:   SeverityCritical,
				Message:    fmt.Sprintf("Frequency '%s' for %s is dangerously high", raw, name),
				Suggestion: suggestion,
			}}
		}
	}
	return nil
}

// interactions reports each interacting pair once, in rule order.
func (v *Validator) interactions(meds []assessment.Medication) []Issue {
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		if n := normalizeName(m.Name); n != "" {
			names = append(names, n)
		}
	}
	var issues []Issue
	for _, pair := range v.rules.Interactions {
		if hasMatch(names, pair[0]) && hasMatch(names, pair[1]) {
			issues = append(issues, Issue{
				Category:   CategoryMedication,
				Severity:   SeverityHigh,
				Message:    fmt.Sprintf("Potential interaction: %s + %s", pair[0], pair[1]),
				Suggestion: "Remove one of the conflicting medications or space them out",
			})
		}
	}
	return issues
}

func hasMatch(names []string, drug string) bool {
	for _, n := range names {
		if strings.Contains(n, drug) {
			return true
		}
	}
	return false
}

func (v *Validator) appropriateness(name, rawCondition, condition string) []Issue {
	var suitable []string
	for _, c := range v.rules.Conditions {
		if strings.Contains(condition, c.Condition) {
			suitable = append(suitable, c.Medications...)
		}
	}
	if len(suitable) == 0 {
		return nil
	}
	for _, s := range suitable {
		if strings.Contains(name, s) {
			return nil
		}
	}
	consider := suitable
	if len(consider) > 2 {
		consider = consider[:2]
	}
	return []Issue{{
		Category:   CategoryConsistency,
		Severity:   SeverityMedium,
		Message:    fmt.Sprintf("'%s' may not be ideal for %s", name, rawCondition),
		Suggestion: "Consider: " + strings.Join(consider, ", "),
	}}
}

func (v *Validator) recommendations(a *assessment.Assessment, recs []string) []Issue {
	var issues []Issue
	if len(recs) == 0 {
		target := a.Observations.LikelyCondition
		if target == "" {
			target = "patient recovery"
		}
		return []Issue{{
			Category:   CategoryCompleteness,
			Severity:   SeverityMedium,
			Message:    "No lifestyle recommendations provided",
			Suggestion: "Add at least 2-3 recommendations for " + target,
		}}
	}

	lower := make([]string, len(recs))
	for i, r := range recs {
		lower[i] = strings.ToLower(r)
	}
	for i, r := range lower {
		for _, vague := range v.rules.Recommendations.Vague {
			if strings.Contains(r, vague) {
				issues = append(issues, Issue{
					Category:   CategoryQuality,
					Severity:   SeverityLow,
					Message:    fmt.Sprintf("Recommendation #%d is vague: '%s'", i+1, recs[i]),
					Suggestion: "Be specific with actions. E.g., 'Take 2-3L water daily' instead of 'Stay hydrated'",
				})
				break
			}
		}
	}
	for _, pair := range v.rules.Recommendations.Conflicts {
		first := indexContaining(lower, pair[0])
		if first < 0 || indexContaining(lower, pair[1]) < 0 {
			continue
		}
		issues = append(issues, Issue{
			Category:   CategoryConsistency,
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("Contradictory recommendations: '%s' conflicts with other advice", recs[first]),
			Suggestion: "Remove or clarify conflicting advice",
		})
	}
	return issues
}

func indexContaining(items []string, phrase string) int {
	for i, s := range items {
		if strings.Contains(s, phrase) {
			return i
		}
	}
	return -1
}

func (v *Validator) monitoring(warnings []string) []Issue {
	if len(warnings) == 0 {
		return []Issue{{
			Category:   CategoryCompleteness,
			Severity:   SeverityHigh,
			Message:    "No emergency warning signs provided",
			Suggestion: "Add at least 2-3 critical warning signs to seek immediate help",
		}}
	}
	var issues []Issue
	for i, w := range warnings {
		if len([]rune(strings.TrimSpace(w))) < v.rules.Monitoring.MinLength {
			issues = append(issues, Issue{
				Category:   CategoryQuality,
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("Warning #%d is too brief: '%s'", i+1, w),
				Suggestion: "Be specific: 'Fever above 39C lasting 3+ days' instead of 'High fever'",
			})
		}
	}
	first := strings.ToLower(warnings[0])
	for _, k := range v.rules.Monitoring.CriticalKeywords {
		if strings.Contains(first, k) {
			return issues
		}
	}
	return append(issues, Issue{
		Category:   CategoryCompleteness,
		Severity:   SeverityMedium,
		Message:    "First warning sign should be a critical symptom",
		Suggestion: "Start with most urgent warning: e.g., 'Difficulty breathing or chest pain'",
	})
}

func (v *Validator) notes(notes string) []Issue {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil
	}
	var issues []Issue
	words := tokenize(notes)
	for _, w := range v.rules.Notes.Informal {
		if words[w] {
			issues = append(issues, Issue{
				Category:   CategoryQuality,
				Severity:   SeverityLow,
				Message:    "Note contains informal language",
				Suggestion: "Use professional medical language. E.g., 'not recommended' instead of 'ain't'",
			})
			break
		}
	}
	if n := len([]rune(notes)); n > v.rules.Notes.MaxLength {
		issues = append(issues, Issue{
			Category:   CategoryQuality,
			Severity:   SeverityLow,
			Message:    fmt.Sprintf("Note is quite long (%d chars), may overwhelm patient", n),
			Suggestion: "Keep notes brief and actionable. Aim for 100-300 characters",
		})
	}
	return issues
}

func (v *Validator) crossSection(a *assessment.Assessment, proposed assessment.Content) []Issue {
	var issues []Issue
	filled := 0
	for _, n := range []int{
		len(proposed.Medications.Items),
		len(proposed.Recommendations.Items),
		len(proposed.Monitoring.WhenToSeekHelp),
	} {
		if n > 0 {
			filled++
		}
	}
	if filled < v.rules.MinFilledSections {
		issues = append(issues, Issue{
			Category:   CategoryCompleteness,
			Severity:   SeverityMedium,
			Message:    "Some sections are empty (medications, recommendations, or warnings)",
			Suggestion: "Ensure all sections have appropriate content",
		})
	}
	if proposed.Equal(a.Content()) {
		issues = append(issues, Issue{
			Category:   CategoryQuality,
			Severity:   SeverityLow,
			Message:    "No modifications detected - assessment is identical to original",
			Suggestion: "Either modify content or proceed without changes",
		})
	}
	return issues
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize returns the set of lowercase words in s with apostrophes dropped,
// so "ain't" and "aint" match alike.
func tokenize(s string) map[string]bool {
	s = strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(s))
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = true
	}
	return out
}

// containsWord reports whether word appears in s on word boundaries.
func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := rune(s[i])
	return !unicode.IsLetter(c) && !unicode.IsDigit(c)
}
