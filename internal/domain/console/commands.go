package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/conversation"
	"github.com/ehr/triage/internal/platform/apperr"
)

const maxListed = 10

func (c *Console) pending(ctx context.Context, r *request) (string, error) {
	sessions, err := c.machine.ListForClinician(ctx, r.clinician.ID)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, s := range sessions {
		a, err := c.assessments.GetBySession(ctx, s.ID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if !a.Status.Reviewable() {
			continue
		}
		lines = append(lines, fmt.Sprintf("• *%s* %s (%s)\n   %s", shortID(a.ID), a.Condition(), a.Status, complaint(s)))
	}
	if len(lines) == 0 {
		return "No assessments waiting for review.", nil
	}
	return listReply("PENDING REVIEW", lines) + "\n\nReply *approve <id>*, *modify <id>* or *reject <id>*.", nil
}

func (c *Console) patients(ctx context.Context, r *request) (string, error) {
	sessions, err := c.machine.ListForClinician(ctx, r.clinician.ID)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "You have no open conversations.", nil
	}
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("• *%s* %s\n   %s", s.Ref(), stateLabel(s.State), complaint(s)))
	}
	return listReply("YOUR PATIENTS", lines), nil
}

func (c *Console) listEscalations(ctx context.Context, r *request) (string, error) {
	alerts, err := c.visibleAlerts(ctx, r.clinician.ID)
	if err != nil {
		return "", err
	}
	if len(alerts) == 0 {
		return "No open escalations.", nil
	}
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("• *%s* %s %s\n   %s", a.Ref(), a.Severity, strings.ToLower(a.Status), truncate(a.Message, 80)))
	}
	return listReply("OPEN ESCALATIONS", lines) + "\n\nReply *ack <id>* or *handle <id> [notes]*.", nil
}

func (c *Console) approve(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.assessments.Approve(ctx, a, r.clinician.ID, r.tail(1)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Approved %s. Reply *send %s* to validate and send it to the patient.", shortID(a.ID), shortID(a.ID)), nil
}

func (c *Console) reject(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.assessments.Reject(ctx, a, r.clinician.ID, r.tail(1)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Rejected %s. Reply *message %s <text>* to write to the patient directly.", shortID(a.ID), shortID(a.SessionID)), nil
}

func (c *Console) modify(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	out, err := c.modifications.Start(ctx, r.clinician.ID, a)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (c *Console) send(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	prep, err := c.finalizer.Prepare(ctx, r.clinician.ID, a.ID)
	if err != nil {
		return "", err
	}
	return prep.Reply, nil
}

func (c *Console) confirm(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.finalizer.Confirm(ctx, r.clinician.ID, a.ID); err != nil {
		return "", err
	}
	return sentReply(a), nil
}

func (c *Console) override(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAssessment(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.finalizer.Override(ctx, r.clinician.ID, a.ID, r.tail(1)); err != nil {
		return "", err
	}
	return sentReply(a), nil
}

func (c *Console) message(ctx context.Context, r *request) (string, error) {
	s, err := c.resolveSession(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.machine.SendFromClinician(ctx, r.clinician.ID, s.ID, r.tail(1)); err != nil {
		return "", err
	}
	return "Delivered to " + s.Ref() + ".", nil
}

func (c *Console) status(ctx context.Context, r *request) (string, error) {
	status := strings.ToUpper(r.args[0])
	n, err := c.clinicians.SetStatus(ctx, r.clinician.ID, status)
	if err != nil {
		return "", err
	}
	out := "Status set to " + status + "."
	if n > 0 {
		out += fmt.Sprintf(" %d waiting patient(s) assigned.", n)
	}
	return out, nil
}

func (c *Console) ack(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAlert(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.escalations.Acknowledge(ctx, a.ID, r.clinician.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Escalation %s acknowledged. Reply *handle %s [notes]* once resolved.", a.Ref(), a.Ref()), nil
}

func (c *Console) handle(ctx context.Context, r *request) (string, error) {
	a, err := c.resolveAlert(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	if _, err := c.escalations.Handle(ctx, a.ID, r.clinician.ID, r.tail(1)); err != nil {
		return "", err
	}
	return "Escalation " + a.Ref() + " handled.", nil
}

func (c *Console) close(ctx context.Context, r *request) (string, error) {
	s, err := c.resolveSession(ctx, r.clinician, r.args[0])
	if err != nil {
		return "", err
	}
	id := r.clinician.ID
	if _, err := c.machine.Close(ctx, s.ID, "clinician:"+id.String(), &id); err != nil {
		return "", err
	}
	return "Conversation " + s.Ref() + " closed.", nil
}

func sentReply(a *assessment.Assessment) string {
	return fmt.Sprintf("Assessment %s sent to the patient. Reply *message %s <text>* to follow up.", shortID(a.ID), shortID(a.SessionID))
}

func listReply(title string, lines []string) string {
	more := 0
	if len(lines) > maxListed {
		more = len(lines) - maxListed
		lines = lines[:maxListed]
	}
	out := "*" + title + "*\n\n" + strings.Join(lines, "\n")
	if more > 0 {
		out += fmt.Sprintf("\n...and %d more", more)
	}
	return out
}

func complaint(s *conversation.Session) string {
	if s.ChiefComplaint == "" {
		return "no complaint recorded"
	}
	return truncate(s.ChiefComplaint, 60)
}

func stateLabel(st conversation.State) string {
	switch st {
	case conversation.StatePendingClinicianReview:
		return "awaiting review"
	case conversation.StateDirectMessaging:
		return "direct messaging"
	case conversation.StateEscalated:
		return "escalated"
	default:
		return strings.ToLower(strings.ReplaceAll(string(st), "_", " "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
