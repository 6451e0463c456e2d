package conversation

import (
	"fmt"
	"strings"

	"github.com/ehr/triage/internal/domain/assessment"
)

// patientSummary is the preliminary summary a patient receives while the
// assessment waits for review. paid adds the payment confirmation header
// and the assignment line.
func patientSummary(a *assessment.Assessment, paid, assigned bool) string {
	var b strings.Builder
	if paid {
		b.WriteString("*PAYMENT CONFIRMED*\n\n")
	}
	b.WriteString("*YOUR HEALTH SUMMARY*\n")
	b.WriteString("_(To be reviewed by Doctor)_\n\n")
	fmt.Fprintf(&b, "Hey, looks like you've got a %s going on. ", strings.ToLower(a.Condition()))
	fmt.Fprintf(&b, "Symptoms include %s%s. ", joinSymptoms(a.Symptoms.PrimarySymptoms), noteContext(a.Observations.Notes))
	fmt.Fprintf(&b, "Severity is %s (%d/10). ", severityWord(a.Symptoms.Severity), a.Symptoms.Severity)
	b.WriteString("The doctor is reviewing your case and will get back to you with a prescription or advice.\n")
	if paid && assigned {
		b.WriteString("*A doctor has been assigned to your case.*\n")
	}
	b.WriteString("Anything else to add? Just reply to this message, and the doctor will see it.")
	return b.String()
}

func joinSymptoms(items []string) string {
	switch len(items) {
	case 0:
		return "the symptoms you reported"
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func severityWord(score int) string {
	switch {
	case score <= 3:
		return "mild"
	case score <= 7:
		return "moderate"
	default:
		return "high"
	}
}

// noteContext keeps the first sentence of the generator notes.
func noteContext(notes string) string {
	first := strings.TrimSpace(strings.SplitN(notes, ".", 2)[0])
	if first == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(first), "patient") {
		return ", and " + strings.ToLower(first)
	}
	return " (" + first + ")"
}
