package finalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/patient"
)

// message is the patient-facing WhatsApp text for a reviewed assessment.
func message(a *assessment.Assessment, p *patient.Patient, c *clinician.Clinician, content assessment.Content, notes string) string {
	var b strings.Builder
	b.WriteString("*Assessment Complete*\n\n")
	fmt.Fprintf(&b, "Hi %s,\n\n", p.DisplayName())
	fmt.Fprintf(&b, "%s has reviewed your assessment.\n\n", doctorName(c))

	b.WriteString("*YOUR SYMPTOMS:*\n")
	bullets(&b, a.Symptoms.PrimarySymptoms, 3)
	fmt.Fprintf(&b, "\n*LIKELY CAUSE:*\n%s\n\n", a.Condition())

	b.WriteString("*MEDICATIONS:*\n")
	meds := make([]string, 0, len(content.Medications.Items))
	for _, m := range content.Medications.Items {
		meds = append(meds, strings.TrimSpace(fmt.Sprintf("%s: %s %s", m.Name, m.Dosage, m.Frequency)))
	}
	bullets(&b, meds, 0)

	b.WriteString("\n*WHAT TO DO:*\n")
	bullets(&b, content.Recommendations.Items, 0)

	b.WriteString("\n*SEEK HELP IF:*\n")
	bullets(&b, content.Monitoring.WhenToSeekHelp, 0)

	if notes != "" {
		fmt.Fprintf(&b, "\n*DOCTOR'S NOTE:*\n%s\n", notes)
	}
	b.WriteString("\nReply here to message your doctor.")
	return b.String()
}

// document renders the consultation summary stored alongside the send.
func document(a *assessment.Assessment, p *patient.Patient, c *clinician.Clinician, content assessment.Content, notes string, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("CONSULTATION SUMMARY\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Reference:   %s\n", strings.ToUpper(a.ID.String()[:8]))
	fmt.Fprintf(&b, "Date:        %s\n", at.UTC().Format("January 02, 2006 15:04 MST"))
	fmt.Fprintf(&b, "Patient:     %s\n", p.DisplayName())
	fmt.Fprintf(&b, "Phone:       %s\n", p.Phone)
	if a.PatientAge != nil {
		fmt.Fprintf(&b, "Age:         %d years\n", *a.PatientAge)
	}
	if a.PatientGender != nil {
		fmt.Fprintf(&b, "Gender:      %s\n", *a.PatientGender)
	}

	b.WriteString("\nDIAGNOSIS\n")
	fmt.Fprintf(&b, "Chief complaint:   %s\n", a.ChiefComplaint)
	fmt.Fprintf(&b, "Primary diagnosis: %s\n", a.Condition())
	if len(a.Symptoms.PrimarySymptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms:          %s\n", strings.Join(a.Symptoms.PrimarySymptoms, ", "))
	}

	b.WriteString("\nMEDICATIONS\n")
	if len(content.Medications.Items) == 0 {
		b.WriteString("  none\n")
	}
	for i, m := range content.Medications.Items {
		fmt.Fprintf(&b, "  %d. %s  %s  %s", i+1, m.Name, m.Dosage, m.Frequency)
		if m.Duration != "" {
			fmt.Fprintf(&b, "  for %s", m.Duration)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nINSTRUCTIONS\n")
	bullets(&b, content.Recommendations.Items, 0)
	b.WriteString("\nMONITOR\n")
	bullets(&b, content.Monitoring.WhatToMonitor, 0)
	b.WriteString("\nSEEK HELP IF\n")
	bullets(&b, content.Monitoring.WhenToSeekHelp, 0)
	if notes != "" {
		fmt.Fprintf(&b, "\nDOCTOR'S NOTE\n  %s\n", notes)
	}

	b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "Reviewed by %s\n", doctorName(c))
	b.WriteString("Valid for 30 days from issue date.\n")
	return []byte(b.String())
}

func doctorName(c *clinician.Clinician) string {
	if c == nil || c.Name == "" {
		return "Your doctor"
	}
	return "Dr " + c.Name
}

// bullets writes up to limit items, all of them when limit is 0.
func bullets(b *strings.Builder, items []string, limit int) {
	if len(items) == 0 {
		b.WriteString("  none\n")
		return
	}
	for i, item := range items {
		if limit > 0 && i == limit {
			break
		}
		fmt.Fprintf(b, "- %s\n", item)
	}
}
