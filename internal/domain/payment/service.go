package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
)

// Resumer continues a conversation that was parked waiting for credits.
type Resumer interface {
	ResumeAfterPayment(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

type Deps struct {
	Repo     Repository
	Patients *patient.Service
	Resumer  Resumer
	Channel  messaging.Channel
	Tx       db.Transactor
	Audit    audit.Sink
	Logger   zerolog.Logger
	// CheckoutURL is the hosted payment page; the reference and amount are
	// appended as query parameters.
	CheckoutURL string
	Packages    []Package
}

type Service struct {
	repo        Repository
	patients    *patient.Service
	resumer     Resumer
	channel     messaging.Channel
	tx          db.Transactor
	audit       audit.Sink
	logger      zerolog.Logger
	checkoutURL string
	packages    []Package
}

func NewService(d Deps) *Service {
	if d.Tx == nil {
		d.Tx = db.NoopTransactor{}
	}
	if len(d.Packages) == 0 {
		d.Packages = DefaultPackages
	}
	return &Service{
		repo:        d.Repo,
		patients:    d.Patients,
		resumer:     d.Resumer,
		channel:     d.Channel,
		tx:          d.Tx,
		audit:       d.Audit,
		logger:      d.Logger,
		checkoutURL: d.CheckoutURL,
		packages:    d.Packages,
	}
}

// Menu is the numbered package list sent to a patient without credits.
func (s *Service) Menu(_ context.Context) (string, error) {
	var b strings.Builder
	b.WriteString("*CONSULTATION CREDITS REQUIRED*\n\n")
	b.WriteString("You have 0 credits. Please purchase a bundle to continue:\n\n")
	for i, p := range s.packages {
		unit := "Sessions"
		if p.Credits == 1 {
			unit = "Session"
		}
		fmt.Fprintf(&b, "*%d. %s*\n   %d %s @ %s\n", i+1, p.Name, p.Credits, unit, formatAmount(p.AmountMinor, p.Currency))
		if p.Description != "" {
			fmt.Fprintf(&b, "   _(%s)_\n", p.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with the number (e.g. 2) to purchase.")
	return b.String(), nil
}

// Checkout opens a PENDING transaction for the numbered package and returns
// the patient-facing text with the payment link.
func (s *Service) Checkout(ctx context.Context, p *patient.Patient, sessionID uuid.UUID, choice string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(choice))
	if err != nil || n < 1 || n > len(s.packages) {
		return "", apperr.Inputf("unknown package %q", choice)
	}
	pkg := s.packages[n-1]
	t := &Transaction{
		TxRef:       newTxRef(),
		PatientID:   p.ID,
		SessionID:   sessionID,
		PackageCode: pkg.Code,
		Credits:     pkg.Credits,
		AmountMinor: pkg.AmountMinor,
		Currency:    pkg.Currency,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	link, err := s.link(t)
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Str("tx_ref", t.TxRef).
		Str("patient_id", p.ID.String()).
		Str("package", pkg.Code).
		Msg("checkout started")
	return fmt.Sprintf("*BUY %s*\n\nClick to pay %s:\n%s", strings.ToUpper(pkg.Name), formatAmount(pkg.AmountMinor, pkg.Currency), link), nil
}

func (s *Service) link(t *Transaction) (string, error) {
	u, err := url.Parse(s.checkoutURL)
	if err != nil || s.checkoutURL == "" {
		return "", fmt.Errorf("invalid checkout url %q", s.checkoutURL)
	}
	q := u.Query()
	q.Set("tx_ref", t.TxRef)
	q.Set("amount", strconv.FormatInt(t.AmountMinor, 10))
	q.Set("currency", t.Currency)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Confirm settles a transaction and credits the patient. Confirming an
// already settled reference is a no-op. A conversation waiting for payment
// resumes; otherwise the patient gets a receipt.
func (s *Service) Confirm(ctx context.Context, txRef string) (*Transaction, error) {
	var (
		t       *Transaction
		settled bool
		balance int
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		t, settled, err = s.repo.Settle(ctx, txRef)
		if err != nil || !settled {
			return err
		}
		if balance, err = s.patients.AddCredits(ctx, t.PatientID, t.Credits); err != nil {
			return err
		}
		if s.audit != nil {
			desc := fmt.Sprintf("%d credits for %s", t.Credits, formatAmount(t.AmountMinor, t.Currency))
			return s.audit.Record(ctx, audit.New("payment:"+txRef, audit.ActionPaymentSettled, "PaymentTransaction", t.ID.String(), desc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !settled {
		s.logger.Debug().Str("tx_ref", txRef).Msg("payment already settled")
		return t, nil
	}
	metrics.RecordPaymentSettled()
	s.logger.Info().Str("tx_ref", txRef).Int("credits", t.Credits).Msg("payment settled")

	resumed := false
	if s.resumer != nil {
		resumed, err = s.resumer.ResumeAfterPayment(ctx, t.SessionID)
		if err != nil {
			// the credits stay; the patient's next message finalizes the session
			s.logger.Error().Err(err).Str("tx_ref", txRef).Str("session_id", t.SessionID.String()).Msg("resume after payment failed")
		}
	}
	if !resumed {
		s.sendReceipt(ctx, t, balance)
	}
	return t, nil
}

func (s *Service) sendReceipt(ctx context.Context, t *Transaction, balance int) {
	p, err := s.patients.Get(ctx, t.PatientID)
	if err != nil {
		s.logger.Error().Err(err).Str("tx_ref", t.TxRef).Msg("load patient for receipt")
		return
	}
	name := t.PackageCode
	for _, pkg := range s.packages {
		if pkg.Code == t.PackageCode {
			name = pkg.Name
		}
	}
	text := fmt.Sprintf("*PAYMENT SUCCESSFUL*\n\nYou bought: %s\nCredits added: +%d\n*Total balance: %d credits*\n\nReply *Hi* to start your consultation (1 credit will be used).",
		name, t.Credits, balance)
	if err := s.channel.Send(ctx, p.Phone, text); err != nil {
		s.logger.Error().Err(err).Str("tx_ref", t.TxRef).Msg("send payment receipt")
	}
}

func (s *Service) Get(ctx context.Context, txRef string) (*Transaction, error) {
	return s.repo.GetByRef(ctx, txRef)
}
