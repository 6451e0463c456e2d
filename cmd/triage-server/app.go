package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/assessment"
	"github.com/ehr/triage/internal/domain/clinician"
	"github.com/ehr/triage/internal/domain/console"
	"github.com/ehr/triage/internal/domain/conversation"
	"github.com/ehr/triage/internal/domain/escalation"
	"github.com/ehr/triage/internal/domain/finalizer"
	"github.com/ehr/triage/internal/domain/inbound"
	"github.com/ehr/triage/internal/domain/modification"
	"github.com/ehr/triage/internal/domain/patient"
	"github.com/ehr/triage/internal/domain/payment"
	"github.com/ehr/triage/internal/domain/validator"
	"github.com/ehr/triage/internal/platform/audit"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/blobstore"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/lock"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/middleware"
	"github.com/ehr/triage/internal/platform/notification"
	"github.com/ehr/triage/internal/platform/websocket"
)

const version = "0.1.0"

// storage is the persistence the services run on. Production uses Postgres;
// tests and local runs without a database use the in-memory repositories.
type storage struct {
	patients      patient.Repository
	clinicians    clinician.Repository
	consoleLog    clinician.MessageLog
	assessments   assessment.Repository
	reviews       assessment.ReviewRepository
	sessions      conversation.SessionRepository
	exchanges     conversation.ExchangeRepository
	messages      conversation.MessageRepository
	escalations   escalation.Repository
	modifications modification.Repository
	attempts      finalizer.Repository
	payments      payment.Repository
	tx            db.Transactor
	locker        lock.Locker
	audit         audit.Sink
}

func postgresStorage(pool *pgxpool.Pool, lockMode string, sink audit.Sink) storage {
	var locker lock.Locker = lock.NewKeyedMutex()
	if lockMode == "advisory" {
		locker = lock.NewAdvisory(pool)
	}
	return storage{
		patients:      patient.NewRepoPG(pool),
		clinicians:    clinician.NewRepoPG(pool),
		consoleLog:    clinician.NewMessageLogPG(pool),
		assessments:   assessment.NewRepoPG(pool),
		reviews:       assessment.NewReviewRepoPG(pool),
		sessions:      conversation.NewSessionRepoPG(pool),
		exchanges:     conversation.NewExchangeRepoPG(pool),
		messages:      conversation.NewMessageRepoPG(pool),
		escalations:   escalation.NewRepoPG(pool),
		modifications: modification.NewRepoPG(pool),
		attempts:      finalizer.NewRepoPG(pool),
		payments:      payment.NewRepoPG(pool),
		tx:            db.NewTransactor(pool),
		locker:        locker,
		audit:         sink,
	}
}

func memoryStorage(sink audit.Sink) storage {
	store := conversation.NewMemoryStore()
	return storage{
		patients:      patient.NewMemoryRepo(),
		clinicians:    clinician.NewMemoryRepo(),
		consoleLog:    clinician.NewMemoryMessageLog(),
		assessments:   assessment.NewMemoryRepo(),
		reviews:       assessment.NewMemoryReviewRepo(),
		sessions:      store.Sessions(),
		exchanges:     store.Exchanges(),
		messages:      store.Messages(),
		escalations:   escalation.NewMemoryRepo(),
		modifications: modification.NewMemoryRepo(),
		attempts:      finalizer.NewMemoryRepo(),
		payments:      payment.NewMemoryRepo(),
		tx:            db.NoopTransactor{},
		locker:        lock.NewKeyedMutex(),
		audit:         sink,
	}
}

// auditSink builds the configured sink. Every choice also logs, so audit
// lines reach the log pipeline even when the primary store is down.
func auditSink(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (audit.Sink, func(), error) {
	logSink := audit.NewLogSink(logger.With().Str("component", "audit").Logger())
	switch cfg.AuditSink {
	case "postgres":
		return audit.Multi{audit.NewPGSink(pool), logSink}, func() {}, nil
	case "esdb":
		es, err := audit.NewESDBSink(cfg.ESDBURL)
		if err != nil {
			return nil, nil, err
		}
		return audit.Multi{es, logSink}, func() { _ = es.Close() }, nil
	default:
		return logSink, func() {}, nil
	}
}

// externals are the outside services the app talks to.
type externals struct {
	channel     messaging.Channel
	generator   conversation.Generator
	transcriber inbound.Transcriber
}

type app struct {
	echo     *echo.Echo
	hub      *websocket.Hub
	machine  *conversation.Machine
	console  *console.Console
	payments *payment.Service
	limiters []*middleware.KeyedLimiter
}

func newApp(cfg *config.Config, st storage, ext externals, logger zerolog.Logger) (*app, error) {
	rules := validator.DefaultRules()
	hub := websocket.NewHub(logger)
	notifier := notification.NewNotifier(ext.channel, notification.NewTemplateEngine(), logger)
	blobs := blobstore.NewInMemoryBlobStore()

	patients := patient.NewService(st.patients)
	clinicians := clinician.NewService(st.clinicians, logger)
	assessments := assessment.NewService(st.assessments, st.reviews, st.tx, st.audit, hub, logger)
	assessments.SetTTL(cfg.AssessmentTTL)
	escalations := escalation.NewService(st.escalations, clinicians, notifier, st.tx, st.audit, hub, logger)

	machine := conversation.NewMachine(conversation.Deps{
		Sessions:    st.sessions,
		Exchanges:   st.exchanges,
		Messages:    st.messages,
		Patients:    patients,
		Clinicians:  clinicians,
		Assessments: assessments,
		Escalations: escalations,
		Generator:   ext.generator,
		Channel:     ext.channel,
		Notifier:    notifier,
		Locker:      st.locker,
		Tx:          st.tx,
		Audit:       st.audit,
		Events:      hub,
		Logger:      logger,
	}, conversation.MachineConfig{
		MaxQuestions:     cfg.MaxTriageQuestions,
		GeneratorTimeout: cfg.GeneratorTimeout,
	})
	clinicians.SetDrainer(machine)

	payments := payment.NewService(payment.Deps{
		Repo:        st.payments,
		Patients:    patients,
		Resumer:     machine,
		Channel:     ext.channel,
		Tx:          st.tx,
		Audit:       st.audit,
		Logger:      logger,
		CheckoutURL: cfg.PaymentCheckoutURL,
	})
	machine.SetPaymentGate(payments)

	modifications := modification.NewService(st.modifications, assessments, st.tx, logger)
	modifications.SetTTL(cfg.ModificationTTL)

	sender := finalizer.NewService(finalizer.Deps{
		Attempts:      st.attempts,
		Assessments:   assessments,
		Validator:     validator.New(rules),
		Conversations: machine,
		Patients:      patients,
		Clinicians:    clinicians,
		Channel:       ext.channel,
		Blobs:         blobs,
		MediaBaseURL:  cfg.PublicBaseURL,
		Tx:            st.tx,
		Audit:         st.audit,
		Events:        hub,
		Logger:        logger,
	})

	cons := console.New(console.Deps{
		Machine:       machine,
		Assessments:   assessments,
		Clinicians:    clinicians,
		Escalations:   escalations,
		Modifications: modifications,
		Finalizer:     sender,
		Messages:      st.consoleLog,
		Locker:        st.locker,
		Channel:       ext.channel,
		Logger:        logger,
	})

	senderLimiter := middleware.NewKeyedLimiter(cfg.SenderRateRPS, cfg.SenderRateBurst)
	dispatcher := inbound.NewDispatcher(inbound.Deps{
		Clinicians:  clinicians,
		Console:     cons,
		Patients:    machine,
		Transcriber: ext.transcriber,
		Limiter:     senderLimiter,
		Channel:     ext.channel,
		Logger:      logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.BodyLimit("2M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", metrics.Handler())

	// Provider callbacks authenticate by signature, not by token.
	inbound.NewHandler(dispatcher, cfg.MessagingWebhookSecret).RegisterWebhook(e)
	paymentHandler := payment.NewHandler(payments, cfg.PaymentWebhookSecret)
	paymentHandler.RegisterWebhook(e)
	blobHandler := blobstore.NewBlobHandler(blobs)
	blobHandler.RegisterPublicRoutes(e)

	apiLimiter := middleware.NewKeyedLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(apiLimiter))
	if cfg.AuthJWTSecret != "" {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: "triage", SigningKey: []byte(cfg.AuthJWTSecret)}))
	} else if cfg.IsDev() {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; dashboard API runs with development identity")
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required outside development")
	}

	clinician.NewHandler(clinicians).RegisterRoutes(apiV1)
	assessment.NewHandler(assessments).RegisterRoutes(apiV1)
	escalation.NewHandler(escalations).RegisterRoutes(apiV1)
	conversation.NewHandler(machine).RegisterRoutes(apiV1)
	finalizer.NewHandler(sender).RegisterRoutes(apiV1)
	paymentHandler.RegisterRoutes(apiV1)
	blobHandler.RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	return &app{
		echo:     e,
		hub:      hub,
		machine:  machine,
		console:  cons,
		payments: payments,
		limiters: []*middleware.KeyedLimiter{senderLimiter, apiLimiter},
	}, nil
}

// sweepLimiters drops idle per-key limiters until ctx is done.
func (a *app) sweepLimiters(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, l := range a.limiters {
				l.Sweep(idle)
			}
		}
	}
}

// drainBacklog assigns sessions left waiting from before a restart.
func (a *app) drainBacklog(ctx context.Context, logger zerolog.Logger) {
	n, err := a.machine.AssignBacklog(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("initial backlog drain failed")
		return
	}
	if n > 0 {
		logger.Info().Int("assigned", n).Msg("assigned waiting sessions")
	}
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
