package inbound

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/middleware"
)

// Roles used as metric labels.
const (
	RolePatient   = "patient"
	RoleClinician = "clinician"
	RoleDropped   = "dropped"
)

const fallbackText = "Sorry, we hit a problem processing your message. Please try again in a moment."

const transcribeTimeout = 30 * time.Second

// Handler consumes one inbound message.
type Handler interface {
	HandleInbound(ctx context.Context, in messaging.Inbound) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in messaging.Inbound) error

func (f HandlerFunc) HandleInbound(ctx context.Context, in messaging.Inbound) error {
	return f(ctx, in)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

type Directory interface {
	GetByPhone(ctx context.Context, phone string) (*clinician.Clinician, error)
}

type Deps struct {
	Clinicians  Directory
	Console     Handler
	Patients    Handler
	Transcriber Transcriber
	Limiter     *middleware.KeyedLimiter
	Channel     messaging.Channel
	Logger      zerolog.Logger
}

// Dispatcher routes provider messages to the clinician console or the
// patient conversation by sender phone.
type Dispatcher struct {
	clinicians  Directory
	console     Handler
	patients    Handler
	transcriber Transcriber
	limiter     *middleware.KeyedLimiter
	channel     messaging.Channel
	logger      zerolog.Logger
}

func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		clinicians:  d.Clinicians,
		console:     d.Console,
		patients:    d.Patients,
		transcriber: d.Transcriber,
		limiter:     d.Limiter,
		channel:     d.Channel,
		logger:      d.Logger,
	}
}

// Dispatch handles one inbound message. A panic below this point is
// recovered, counted and answered with a fallback text.
func (d *Dispatcher) Dispatch(ctx context.Context, in messaging.Inbound) (err error) {
	in.SenderID = NormalizeSender(in.SenderID)
	if in.SenderID == "" {
		return apperr.Input("sender is required")
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPanic()
			d.logger.Error().
				Str("sender", in.SenderID).
				Str("message_id", in.MessageID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("inbound handler panicked")
			if sendErr := d.channel.Send(ctx, in.SenderID, fallbackText); sendErr != nil {
				d.logger.Error().Err(sendErr).Str("sender", in.SenderID).Msg("send fallback failed")
			}
			err = fmt.Errorf("inbound panic: %v", r)
		}
	}()

	if d.limiter != nil && !d.limiter.Allow(in.SenderID) {
		metrics.RecordInbound(RoleDropped)
		d.logger.Warn().Str("sender", in.SenderID).Str("message_id", in.MessageID).Msg("inbound rate limited")
		return nil
	}

	if in.IsAudio() {
		in.Text = d.transcribe(ctx, in)
	}

	c, err := d.clinicians.GetByPhone(ctx, in.SenderID)
	switch {
	case err == nil:
		metrics.RecordInbound(RoleClinician)
		d.logger.Debug().Str("clinician_id", c.ID.String()).Str("message_id", in.MessageID).Msg("inbound routed to console")
		return d.console.HandleInbound(ctx, in)
	case apperr.IsKind(err, apperr.KindNotFound):
		metrics.RecordInbound(RolePatient)
		return d.patients.HandleInbound(ctx, in)
	default:
		return fmt.Errorf("look up sender: %w", err)
	}
}

// transcribe turns a voice note into text. Failures yield empty text, which
// the conversation answers with its usual prompt.
func (d *Dispatcher) transcribe(ctx context.Context, in messaging.Inbound) string {
	if d.transcriber == nil {
		return in.Text
	}
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()
	text, err := d.transcriber.Transcribe(ctx, in.MediaRef)
	if err != nil {
		d.logger.Warn().Err(err).Str("message_id", in.MessageID).Msg("voice note transcription failed")
		return ""
	}
	return strings.TrimSpace(text)
}

// NormalizeSender strips provider channel prefixes such as "whatsapp:".
func NormalizeSender(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
