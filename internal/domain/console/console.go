package console

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/conversation"
	"github.com/ehr/triage/internal/domain/escalation"
	"github.com/ehr/triage/internal/domain/finalizer"
	"github.com/ehr/triage/internal/domain/modification"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/lock"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
)

// MinRefLength is the shortest id prefix a clinician may type.
const MinRefLength = 6

const fallbackReply = "Sorry, something went wrong handling that. Please try again."

// request is one parsed clinician command.
type request struct {
	clinician *clinician.Clinician
	args      []string
	text      string
}

// tail returns the raw text after the first n arguments, inner spacing kept.
func (r *request) tail(n int) string {
	rest := strings.TrimSpace(r.text)
	for i := 0; i <= n && rest != ""; i++ {
		idx := strings.IndexAny(rest, " \t\n")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

type command struct {
	usage   string
	summary string
	minArgs int
	run     func(ctx context.Context, r *request) (string, error)
}

type Deps struct {
	Machine       *conversation.Machine
	Assessments   *assessment.Service
	Clinicians    *clinician.Service
	Escalations   *escalation.Service
	Modifications *modification.Service
	Finalizer     *finalizer.Service
	Messages      clinician.MessageLog
	Locker        lock.Locker
	Channel       messaging.Channel
	Logger        zerolog.Logger
}

// Console turns clinician messages into review, send and escalation
// operations and answers over the messaging channel.
type Console struct {
	machine       *conversation.Machine
	assessments   *assessment.Service
	clinicians    *clinician.Service
	escalations   *escalation.Service
	modifications *modification.Service
	finalizer     *finalizer.Service
	messages      clinician.MessageLog
	locker        lock.Locker
	channel       messaging.Channel
	logger        zerolog.Logger
	commands      map[string]command
}

func New(d Deps) *Console {
	if d.Messages == nil {
		d.Messages = clinician.NewMemoryMessageLog()
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	c := &Console{
		machine:       d.Machine,
		assessments:   d.Assessments,
		clinicians:    d.Clinicians,
		escalations:   d.Escalations,
		modifications: d.Modifications,
		finalizer:     d.Finalizer,
		messages:      d.Messages,
		locker:        d.Locker,
		channel:       d.Channel,
		logger:        d.Logger,
	}
	c.commands = map[string]command{
		"help":        {usage: "help", summary: "this list", run: c.help},
		"pending":     {usage: "pending", summary: "assessments waiting for your review", run: c.pending},
		"patients":    {usage: "patients", summary: "your open conversations", run: c.patients},
		"escalations": {usage: "escalations", summary: "open escalation alerts", run: c.listEscalations},
		"approve":     {usage: "approve <id> [notes]", summary: "approve an assessment", minArgs: 1, run: c.approve},
		"reject":      {usage: "reject <id> [reason]", summary: "reject an assessment", minArgs: 1, run: c.reject},
		"modify":      {usage: "modify <id>", summary: "edit an assessment step by step", minArgs: 1, run: c.modify},
		"send":        {usage: "send <id>", summary: "validate a reviewed assessment before sending", minArgs: 1, run: c.send},
		"confirm":     {usage: "confirm <id>", summary: "send after validation", minArgs: 1, run: c.confirm},
		"override":    {usage: "override <id> <reason>", summary: "send despite validation warnings", minArgs: 2, run: c.override},
		"message":     {usage: "message <session> <text>", summary: "write to a patient", minArgs: 2, run: c.message},
		"status":      {usage: "status <available|on_call|busy|offline>", summary: "set your availability", minArgs: 1, run: c.status},
		"ack":         {usage: "ack <alert>", summary: "acknowledge an escalation", minArgs: 1, run: c.ack},
		"handle":      {usage: "handle <alert> [notes]", summary: "resolve an escalation", minArgs: 1, run: c.handle},
		"close":       {usage: "close <session>", summary: "end a conversation", minArgs: 1, run: c.close},
	}
	return c
}

// HandleInbound answers one message from a registered clinician phone. The
// clinician lock is held until the reply is sent, so a clinician's messages
// are handled one at a time. A re-delivered provider message id is ignored.
func (c *Console) HandleInbound(ctx context.Context, in messaging.Inbound) error {
	cl, err := c.clinicians.GetByPhone(ctx, in.SenderID)
	if err != nil {
		return err
	}
	unlock, err := c.locker.Lock(ctx, lock.ClinicianKey(cl.ID.String()))
	if err != nil {
		return fmt.Errorf("lock clinician: %w", err)
	}
	defer unlock()

	err = c.messages.Record(ctx, &clinician.InboundMessage{
		ClinicianID:       cl.ID,
		Body:              strings.TrimSpace(in.Text),
		ProviderMessageID: in.MessageID,
	})
	if apperr.IsKind(err, apperr.KindDuplicate) {
		metrics.RecordDuplicate()
		c.logger.Info().Str("clinician_id", cl.ID.String()).Str("message_id", in.MessageID).Msg("duplicate console message ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record console message: %w", err)
	}

	reply, err := c.Handle(ctx, cl, in.Text)
	if err != nil {
		c.logger.Error().Err(err).Str("clinician_id", cl.ID.String()).Msg("console command failed")
		reply = fallbackReply
	}
	if err := c.channel.Send(ctx, cl.Phone, reply); err != nil {
		return fmt.Errorf("send console reply: %w", err)
	}
	return nil
}

// Handle routes text to the open modification session or to a command and
// returns the reply. Errors the clinician can act on become the reply;
// anything else is returned.
func (c *Console) Handle(ctx context.Context, cl *clinician.Clinician, text string) (string, error) {
	text = strings.TrimSpace(text)
	prefix := ""

	sess, expired, err := c.modifications.Active(ctx, cl.ID)
	switch {
	case err == nil:
		return c.continueModification(ctx, cl, sess, text)
	case expired:
		prefix = "Your modification session expired and was discarded.\n\n"
	case !apperr.IsKind(err, apperr.KindNotFound):
		return "", err
	}

	args := strings.Fields(text)
	if len(args) == 0 {
		return prefix + "Reply *help* for the list of commands.", nil
	}
	name := strings.ToLower(args[0])
	cmd, ok := c.commands[name]
	if !ok {
		return prefix + fmt.Sprintf("Unknown command %q. Reply *help* for the list of commands.", args[0]), nil
	}
	if len(args)-1 < cmd.minArgs {
		return prefix + "Usage: *" + cmd.usage + "*", nil
	}

	out, err := cmd.run(ctx, &request{clinician: cl, args: args[1:], text: text})
	if err != nil {
		if !userFacing(err) {
			return "", err
		}
		c.logger.Debug().Err(err).Str("command", name).Str("clinician_id", cl.ID.String()).Msg("console command refused")
		out = refusal(err)
	}
	return prefix + out, nil
}

func (c *Console) continueModification(ctx context.Context, cl *clinician.Clinician, sess *modification.Session, text string) (string, error) {
	out, err := c.modifications.Handle(ctx, sess, text)
	if err != nil {
		return "", err
	}
	if out.Review == nil {
		return out.Reply, nil
	}
	prep, err := c.finalizer.Prepare(ctx, cl.ID, out.Assessment.ID)
	if err != nil {
		if !userFacing(err) {
			return "", err
		}
		return out.Reply + "\n\n" + refusal(err), nil
	}
	return out.Reply + "\n\n" + prep.Reply, nil
}

func userFacing(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindInput, apperr.KindNotFound, apperr.KindConflict, apperr.KindValidationBlock:
		return true
	}
	return false
}

func refusal(err error) string {
	if apperr.IsKind(err, apperr.KindNotFound) {
		return "Nothing with that id is assigned to you."
	}
	return apperr.UserMessage(err)
}

func (c *Console) help(context.Context, *request) (string, error) {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("*COMMANDS*\n")
	for _, name := range names {
		cmd := c.commands[name]
		fmt.Fprintf(&b, "\n*%s* - %s", cmd.usage, cmd.summary)
	}
	b.WriteString("\n\nIds can be shortened to their first 6 characters.")
	return b.String(), nil
}

// resolveSession finds the caller's session whose id starts with ref.
func (c *Console) resolveSession(ctx context.Context, cl *clinician.Clinician, ref string) (*conversation.Session, error) {
	ref, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}
	sessions, err := c.machine.ListForClinician(ctx, cl.ID)
	if err != nil {
		return nil, err
	}
	var found *conversation.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID.String(), ref) {
			if found != nil {
				return nil, apperr.Inputf("%s matches more than one conversation, type more characters", ref)
			}
			found = s
		}
	}
	if found == nil {
		return nil, apperr.NotFound("conversation " + ref)
	}
	return found, nil
}

// resolveAssessment accepts an assessment or session prefix, limited to the
// caller's sessions.
func (c *Console) resolveAssessment(ctx context.Context, cl *clinician.Clinician, ref string) (*assessment.Assessment, error) {
	ref, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}
	sessions, err := c.machine.ListForClinician(ctx, cl.ID)
	if err != nil {
		return nil, err
	}
	var found *assessment.Assessment
	for _, s := range sessions {
		a, err := c.assessments.GetBySession(ctx, s.ID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(a.ID.String(), ref) && !strings.HasPrefix(s.ID.String(), ref) {
			continue
		}
		if found != nil && found.ID != a.ID {
			return nil, apperr.Inputf("%s matches more than one assessment, type more characters", ref)
		}
		found = a
	}
	if found == nil {
		return nil, apperr.NotFound("assessment " + ref)
	}
	return found, nil
}

// resolveAlert matches open alerts that are unassigned or assigned to the
// caller.
func (c *Console) resolveAlert(ctx context.Context, cl *clinician.Clinician, ref string) (*escalation.Alert, error) {
	ref, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}
	alerts, err := c.visibleAlerts(ctx, cl.ID)
	if err != nil {
		return nil, err
	}
	var found *escalation.Alert
	for _, a := range alerts {
		if strings.HasPrefix(a.ID.String(), ref) {
			if found != nil {
				return nil, apperr.Inputf("%s matches more than one alert, type more characters", ref)
			}
			found = a
		}
	}
	if found == nil {
		return nil, apperr.NotFound("escalation " + ref)
	}
	return found, nil
}

func (c *Console) visibleAlerts(ctx context.Context, clinicianID uuid.UUID) ([]*escalation.Alert, error) {
	open, err := c.escalations.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*escalation.Alert, 0, len(open))
	for _, a := range open {
		if a.ClinicianID == nil || *a.ClinicianID == clinicianID {
			out = append(out, a)
		}
	}
	return out, nil
}

func normalizeRef(ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) < MinRefLength {
		return "", apperr.Inputf("ids need at least %d characters", MinRefLength)
	}
	return ref, nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
