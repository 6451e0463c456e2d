package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/db"
)

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

const sessionCols = `id, patient_id, state, mode, clinician_id, chief_complaint, patient_age, patient_gender,
	escalated, escalation_reason, questions_asked, created_at, updated_at, triage_completed_at,
	clinician_assigned_at, first_clinician_response_at, closed_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.PatientID, &s.State, &s.Mode, &s.ClinicianID, &s.ChiefComplaint,
		&s.PatientAge, &s.PatientGender, &s.Escalated, &s.EscalationReason, &s.QuestionsAsked,
		&s.CreatedAt, &s.UpdatedAt, &s.TriageCompletedAt, &s.ClinicianAssignedAt,
		&s.FirstClinicianResponseAt, &s.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("session")
	}
	return &s, err
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO conversation_session (id, patient_id, state, mode)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (patient_id) WHERE state <> 'CLOSED' DO NOTHING
		RETURNING created_at, updated_at`,
		s.ID, s.PatientID, s.State, s.Mode).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("patient already has an active session")
	}
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM conversation_session WHERE id = $1`, id))
}

func (r *sessionRepoPG) ActiveForPatient(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	return r.scanSession(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM conversation_session WHERE patient_id = $1 AND state <> 'CLOSED'`, patientID))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE conversation_session SET state=$2, mode=$3, clinician_id=$4, chief_complaint=$5,
			patient_age=$6, patient_gender=$7, escalated=$8, escalation_reason=$9, questions_asked=$10,
			triage_completed_at=$11, clinician_assigned_at=$12, first_clinician_response_at=$13,
			closed_at=$14, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.State, s.Mode, s.ClinicianID, s.ChiefComplaint, s.PatientAge, s.PatientGender,
		s.Escalated, s.EscalationReason, s.QuestionsAsked, s.TriageCompletedAt,
		s.ClinicianAssignedAt, s.FirstClinicianResponseAt, s.ClosedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session")
	}
	return nil
}

func (r *sessionRepoPG) ListUnassigned(ctx context.Context) ([]*Session, error) {
	return r.query(ctx, `
		SELECT `+sessionCols+` FROM conversation_session
		WHERE clinician_id IS NULL AND state IN ('PENDING_CLINICIAN_REVIEW', 'ESCALATED')
		ORDER BY created_at ASC`)
}

func (r *sessionRepoPG) ListByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*Session, error) {
	return r.query(ctx, `
		SELECT `+sessionCols+` FROM conversation_session
		WHERE clinician_id = $1 AND state <> 'CLOSED'
		ORDER BY updated_at DESC`, clinicianID)
}

func (r *sessionRepoPG) List(ctx context.Context, state State, limit, offset int) ([]*Session, int, error) {
	where := ""
	args := []interface{}{}
	if state != "" {
		where = " WHERE state = $1"
		args = append(args, state)
	}
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM conversation_session`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	items, err := r.query(ctx, `SELECT `+sessionCols+` FROM conversation_session`+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	return items, total, err
}

func (r *sessionRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Session, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// =========== Exchange Repository ===========

type exchangeRepoPG struct{ pool *pgxpool.Pool }

func NewExchangeRepoPG(pool *pgxpool.Pool) ExchangeRepository {
	return &exchangeRepoPG{pool: pool}
}

const exchangeCols = `id, session_id, order_index, question, response, asked_at, answered_at`

func (r *exchangeRepoPG) scanExchange(row pgx.Row) (*Exchange, error) {
	var e Exchange
	err := row.Scan(&e.ID, &e.SessionID, &e.OrderIndex, &e.Question, &e.Response, &e.AskedAt, &e.AnsweredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("triage exchange")
	}
	return &e, err
}

func (r *exchangeRepoPG) Create(ctx context.Context, e *Exchange) error {
	e.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO triage_exchange (id, session_id, order_index, question)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id, order_index) DO NOTHING
		RETURNING asked_at`,
		e.ID, e.SessionID, e.OrderIndex, e.Question).Scan(&e.AskedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate(fmt.Sprintf("question %d already asked", e.OrderIndex))
	}
	return err
}

func (r *exchangeRepoPG) Answer(ctx context.Context, id uuid.UUID, response string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE triage_exchange SET response=$2, answered_at=NOW()
		WHERE id = $1 AND response IS NULL`, id, response)
	if err != nil {
		return fmt.Errorf("answer exchange: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Duplicate("question already answered")
	}
	return nil
}

func (r *exchangeRepoPG) Pending(ctx context.Context, sessionID uuid.UUID) (*Exchange, error) {
	return r.scanExchange(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+exchangeCols+` FROM triage_exchange
		WHERE session_id = $1 AND response IS NULL
		ORDER BY order_index ASC LIMIT 1`, sessionID))
}

func (r *exchangeRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Exchange, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+exchangeCols+` FROM triage_exchange
		WHERE session_id = $1 ORDER BY order_index ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Exchange
	for rows.Next() {
		e, err := r.scanExchange(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	var providerID *string
	if m.ProviderMessageID != "" {
		providerID = &m.ProviderMessageID
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO conversation_message (id, session_id, direction, sender_role, body, media_ref, provider_message_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (provider_message_id) DO NOTHING
		RETURNING created_at`,
		m.ID, m.SessionID, m.Direction, m.SenderRole, m.Body, m.MediaRef, providerID).Scan(&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("message " + m.ProviderMessageID + " already received")
	}
	return err
}

func (r *messageRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Message, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, session_id, direction, sender_role, body, media_ref,
			COALESCE(provider_message_id, ''), created_at
		FROM (
			SELECT * FROM conversation_message WHERE session_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.SenderRole, &m.Body, &m.MediaRef,
			&m.ProviderMessageID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
