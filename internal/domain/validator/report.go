package validator

import (
	"fmt"
	"strings"
)

var reportGroups = []struct {
	severity Severity
	title    string
	shown    int
}{
	{SeverityCritical, "CRITICAL ISSUES", 2},
	{SeverityHigh, "HIGH PRIORITY", 2},
	{SeverityMedium, "WARNINGS", 2},
	{SeverityLow, "NOTES", 1},
}

// Report renders r as a short text message for the reviewing clinician.
func (r Result) Report() string {
	var b strings.Builder
	b.WriteString("*VALIDATION REPORT*\n\n")
	if len(r.Issues) == 0 {
		b.WriteString("All checks passed.\nSafe to send to patient.\n")
		return b.String()
	}
	for _, g := range reportGroups {
		var msgs []string
		for _, i := range r.Issues {
			if i.Severity == g.severity {
				msgs = append(msgs, i.Message)
			}
		}
		if len(msgs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "*%s* (%d)\n", g.title, len(msgs))
		for k, m := range msgs {
			if k == g.shown {
				fmt.Fprintf(&b, "  ... +%d more\n", len(msgs)-g.shown)
				break
			}
			fmt.Fprintf(&b, "  - %s\n", m)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Severity: %s\nRecommendation: %s", r.Severity, r.Recommendation)
	return b.String()
}
