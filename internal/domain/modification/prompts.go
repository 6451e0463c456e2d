package modification

import (
	"fmt"
	"strings"

	"github.com/ehr/triage/internal/domain/assessment"
)

const contentHelp = "Reply:\n" +
	"*keep* - keep this list and continue\n" +
	"*add <item>* - add an entry\n" +
	"*remove <n>* - remove entry n\n" +
	"*remove all* - clear the list and continue\n" +
	"*cancel* - discard all edits"

const medicationHelp = "Reply:\n" +
	"*keep* - keep this list and continue\n" +
	"*add <name> / <dosage> / <frequency>* - add a medication\n" +
	"*remove <n>* - remove medication n\n" +
	"*remove all* - clear the list and continue\n" +
	"*cancel* - discard all edits"

const monitoringHelp = "Reply:\n" +
	"*keep* - keep this list and continue\n" +
	"*add <item>* - add a warning sign\n" +
	"*add watch <item>* - add something to monitor\n" +
	"*remove <n>* - remove entry n\n" +
	"*remove all* - clear the list and continue\n" +
	"*cancel* - discard all edits"

// prompt renders the current step with the blocks as they stand.
func prompt(s *Session, original assessment.Content) string {
	current := s.Content(original)
	var b strings.Builder
	switch s.Step {
	case StepMedications:
		fmt.Fprintf(&b, "*MODIFY %s* (1/5)\n\n*MEDICATIONS*\n", s.Ref())
		writeMedications(&b, current.Medications.Items)
		b.WriteString("\n" + medicationHelp)
	case StepRecommendations:
		b.WriteString("*RECOMMENDATIONS* (2/5)\n")
		writeList(&b, current.Recommendations.Items, 0)
		b.WriteString("\n" + contentHelp)
	case StepMonitoring:
		b.WriteString("*MONITORING* (3/5)\n")
		writeMonitoring(&b, current.Monitoring)
		b.WriteString("\n" + monitoringHelp)
	case StepNotes:
		b.WriteString("*NOTES* (4/5)\n\nSend a note for the patient, or *skip*.")
	case StepConfirm:
		b.WriteString("*CONFIRM* (5/5)\n\n")
		b.WriteString(summary(s, original))
		b.WriteString("\nReply *confirm* to save or *cancel* to discard.")
	}
	return b.String()
}

func writeMedications(b *strings.Builder, items []assessment.Medication) {
	if len(items) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for i, m := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, formatMedication(m))
	}
}

func formatMedication(m assessment.Medication) string {
	parts := []string{m.Name}
	if m.Dosage != "" {
		parts = append(parts, m.Dosage)
	}
	line := strings.Join(parts, " ")
	if m.Frequency != "" {
		line += ", " + m.Frequency
	}
	if m.Duration != "" {
		line += " for " + m.Duration
	}
	return line
}

func writeList(b *strings.Builder, items []string, offset int) {
	if len(items) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", offset+i+1, item)
	}
}

// writeMonitoring numbers what-to-monitor entries first, then warning signs,
// matching the indexes remove accepts.
func writeMonitoring(b *strings.Builder, m assessment.MonitoringBlock) {
	b.WriteString("Monitor:\n")
	writeList(b, m.WhatToMonitor, 0)
	b.WriteString("Seek help if:\n")
	writeList(b, m.WhenToSeekHelp, len(m.WhatToMonitor))
}

func summary(s *Session, original assessment.Content) string {
	var b strings.Builder
	changed := func(name string, edited bool) {
		state := "unchanged"
		if edited {
			state = "edited"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, state)
	}
	current := s.Content(original)
	changed("Medications", !current.Medications.Equal(original.Medications))
	changed("Recommendations", !current.Recommendations.Equal(original.Recommendations))
	changed("Monitoring", !current.Monitoring.Equal(original.Monitoring))
	if s.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", s.Notes)
	} else {
		b.WriteString("- Notes: none\n")
	}
	return b.String()
}
