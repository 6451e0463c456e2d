// Package redflag scans free text for possible medical emergencies, explicit
// requests for a human clinician, and questions that need clinical judgement.
package redflag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Keywords that indicate a possible emergency. Matching is case-insensitive
// and a phrase must start on a word boundary, so "strokes" matches "stroke"
// and "heatstroke" does not.
var Keywords = []string{
	"chest pain",
	"chest tightness",
	"crushing chest",
	"difficulty breathing",
	"can't breathe",
	"cannot breathe",
	"shortness of breath",
	"struggling to breathe",
	"unconscious",
	"passed out",
	"fainted",
	"seizure",
	"convulsion",
	"stroke",
	"face drooping",
	"slurred speech",
	"arm weakness",
	"severe bleeding",
	"bleeding heavily",
	"won't stop bleeding",
	"vomiting blood",
	"coughing blood",
	"blood in stool",
	"suicidal",
	"suicide",
	"kill myself",
	"end my life",
	"overdose",
	"poisoning",
	"severe allergic",
	"anaphylaxis",
	"throat closing",
	"swollen tongue",
	"severe headache",
	"worst headache",
	"stiff neck",
	"heart attack",
	"not breathing",
	"blue lips",
}

// HumanRequests are phrases a patient uses to ask for a clinician.
var HumanRequests = []string{
	"connect me",
	"talk to doctor",
	"talk to a doctor",
	"see a doctor",
	"speak to doctor",
	"speak to a doctor",
	"need a doctor",
	"want a doctor",
	"talk to clinician",
	"talk to a clinician",
	"see clinician",
	"connect to doctor",
	"get a doctor",
	"consult doctor",
	"doctor please",
	"real doctor",
	"human doctor",
	"actual doctor",
	"real person",
	"talk to a human",
	"speak to a human",
}

// humanWords match only when they are the whole message.
var humanWords = map[string]bool{
	"doctor":    true,
	"clinician": true,
	"human":     true,
}

// ClinicalTriggers mark AI-only questions that need a clinician to answer.
var ClinicalTriggers = []string{
	"diagnose",
	"diagnosis",
	"what do i have",
	"is it",
	"do i have",
	"prescription",
	"prescribe",
	"medication for",
	"treatment for",
	"how long",
	"when should i",
	"is this serious",
	"should i worry",
	"broken",
	"fracture",
	"injury",
	"accident",
	"bleeding",
	"pain",
	"severe",
	"urgent",
	"emergency",
}

// Detect reports whether text contains a red-flag keyword and returns the
// first one matched.
func Detect(text string) (bool, string) {
	return match(text, Keywords)
}

// RequestsHuman reports whether text explicitly asks for a clinician.
func RequestsHuman(text string) bool {
	if humanWords[strings.Trim(normalize(text), ".!? ")] {
		return true
	}
	ok, _ := match(text, HumanRequests)
	return ok
}

// NeedsClinician reports whether an AI-only question needs clinical judgement.
func NeedsClinician(text string) bool {
	ok, _ := match(text, ClinicalTriggers)
	return ok
}

func match(text string, phrases []string) (bool, string) {
	lower := normalize(text)
	if lower == "" {
		return false, ""
	}
	for _, p := range phrases {
		if containsWordPrefix(lower, p) {
			return true, p
		}
	}
	return false, ""
}

// containsWordPrefix reports whether phrase occurs in s starting at the
// beginning of a word.
func containsWordPrefix(s, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); start == 0 || !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		i = start + 1
	}
}

// normalize lowercases text, folds typographic apostrophes and collapses
// whitespace so "Can’t  breathe" matches "can't breathe".
func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(text), " ")
}
