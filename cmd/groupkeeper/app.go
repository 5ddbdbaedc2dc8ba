package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/services"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/config"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/database"
	httpPlatform "github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/http"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/queue"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/whatsapp"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/auditlog"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/logger"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/report"
	storagepkg "github.com/faeln1/go-whatsapp-groupkeeper/pkg/storage"
	minioStorage "github.com/faeln1/go-whatsapp-groupkeeper/pkg/storage/minio"
)

const connectTimeout = 45 * time.Second

// app owns every long-lived dependency of one command invocation.
type app struct {
	cfg  *config.AppConfig
	logs *logger.Logger
	log  waLog.Logger

	db    *database.Handles
	redis *redis.Client

	members     repositories.MemberRepository
	comms       repositories.CommunicationRepository
	memberships repositories.MembershipRepository
	addRequests repositories.AddRequestRepository
	messages    repositories.MessageRepository

	removeQueue queue.Queue
	addQueue    queue.Queue

	notifier  *services.WebhookNotifier
	audit     *auditlog.Writer
	reports   *report.Writer
	protected *services.ProtectedSet

	session   *whatsapp.Session
	messenger *whatsapp.Messenger
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logs := logger.New(cfg.LogLevel)
	a := &app{cfg: cfg, logs: logs, log: logs.App}

	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openQueues(ctx); err != nil {
		a.close()
		return nil, err
	}

	protected, err := cfg.ProtectedList()
	if err != nil {
		a.close()
		return nil, err
	}
	a.protected = services.NewProtectedSet(protected)
	a.log.Infof("%d protected phone(s) loaded", a.protected.Len())

	a.notifier = services.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WarningWebhookURL, cfg.Notify.WebhookToken,
		&http.Client{Timeout: 15 * time.Second}, a.log.Sub("Notify"))

	if cfg.Report.AuditLogPath != "" {
		a.audit, err = auditlog.Open(cfg.Report.AuditLogPath)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	var uploader storagepkg.Service
	if cfg.Storage.Enabled() {
		store, err := minioStorage.New(ctx, minioStorage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("storage initialization: %w", err)
		}
		uploader = store
		a.log.Infof("report uploads enabled bucket=%s endpoint=%s", cfg.Storage.Bucket, cfg.Storage.Endpoint)
	}
	a.reports = report.NewWriter(cfg.Report.Dir, cfg.Report.XLSX, uploader, a.log.Sub("Report"))
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.DBDriver {
	case "postgres":
		a.log.Infof("using postgres datastore")
		h, err := database.Open(a.cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		a.db = h
		a.members = repositories.NewPostgresMemberRepo(h.SQL)
		if a.comms, err = repositories.NewPostgresCommunicationRepo(h.SQL); err != nil {
			return err
		}
		if a.addRequests, err = repositories.NewPostgresAddRequestRepo(h.SQL); err != nil {
			return err
		}
		if a.messages, err = repositories.NewPostgresMessageRepo(h.SQL); err != nil {
			return err
		}
		if a.memberships, err = repositories.NewGormMembershipRepo(h.Gorm); err != nil {
			return err
		}
	default:
		a.log.Warnf("using in-memory datastore; nothing survives this process")
		a.members = repositories.NewInMemoryMemberRepo()
		a.comms = repositories.NewInMemoryCommunicationRepo()
		a.addRequests = repositories.NewInMemoryAddRequestRepo()
		a.messages = repositories.NewInMemoryMessageRepo()
		a.memberships = repositories.NewInMemoryMembershipRepo()
	}
	return nil
}

func (a *app) openQueues(ctx context.Context) error {
	q := a.cfg.Queue
	if !q.UsesRedis() {
		a.log.Warnf("REDIS_URL not set; queues live in memory")
		a.removeQueue = queue.NewMemory(q.Name("remove"))
		a.addQueue = queue.NewMemory(q.Name("add"))
		return nil
	}
	client, err := queue.Connect(ctx, q.RedisURL, q.RedisTLSInsecure)
	if err != nil {
		return err
	}
	a.redis = client
	qlog := a.log.Sub("Queue")
	a.removeQueue = queue.NewRedis(client, q.Name("remove"), qlog)
	a.addQueue = queue.NewRedis(client, q.Name("add"), qlog)
	return nil
}

// connect opens the paired WhatsApp session. Handlers are registered before
// the socket comes up so no early event is missed.
func (a *app) connect(ctx context.Context, handlers ...func(evt any)) error {
	factory := whatsapp.NewStoreFactory(a.cfg.DataDir, a.log.Sub("Store"))
	sess, err := whatsapp.OpenSession(ctx, factory, a.cfg.BotInstance, a.logs.Client, a.log.Sub("WA"))
	if err != nil {
		return err
	}
	a.session = sess
	for _, h := range handlers {
		sess.AddEventHandler(h)
	}
	if err := sess.Connect(ctx, connectTimeout); err != nil {
		return err
	}
	a.messenger = whatsapp.NewMessenger(sess.Client, a.cfg.ClientCallsPerMinute, a.log.Sub("Client"))
	return nil
}

func (a *app) producers(pass string) *services.Producers {
	p := a.cfg.Policy
	resolver := services.NewStatusResolver(p.JuniorThresholdAge, p.AdultAge)
	gate := services.NewEscalationGate(a.comms, a.notifier, p.WaitingPeriod, p.RewarnAfter, a.log.Sub("Gate"))
	return services.NewProducers(services.ProducerDeps{
		Messenger:        a.messenger,
		Members:          a.members,
		AddRequests:      a.addRequests,
		Resolver:         resolver,
		Rules:            services.NewRuleEngine(services.DefaultRules(p.JuniorThresholdAge), a.protected),
		Protected:        a.protected,
		Gate:             gate,
		RemoveQueue:      a.removeQueue,
		AddQueue:         a.addQueue,
		Reports:          a.reports,
		Audit:            a.actionLog(),
		Alerts:           a.notifier,
		SanityCheckPhone: p.SanityCheckPhone,
		MaxAddAttempts:   p.MaxAddAttempts,
		Log:              a.log.Sub(pass),
	})
}

func (a *app) worker(q queue.Queue, delay *services.Delay, name string) *services.Worker {
	w := a.cfg.Worker
	return services.NewWorker(services.WorkerDeps{
		Messenger:   a.messenger,
		Queue:       q,
		Members:     a.members,
		AddRequests: a.addRequests,
		Memberships: a.memberships,
		Protected:   a.protected,
		Alerts:      a.notifier,
		Audit:       a.actionLog(),
		Delay:       delay,
		Retry:       services.RetryPolicy{Attempts: w.RetryAttempts, Initial: w.RetryInitial},
		IdlePoll:    w.IdlePoll,
		Log:         a.log.Sub(name),
	})
}

// actionLog avoids handing a typed nil *auditlog.Writer to an interface field.
func (a *app) actionLog() services.ActionLog {
	if a.audit == nil {
		return nil
	}
	return a.audit
}

// serveMetrics starts the metrics endpoint in the background when METRICS_ADDR is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	checks := map[string]httpPlatform.Check{
		"whatsapp": func(context.Context) error {
			if a.session == nil || !a.session.Client.IsConnected() {
				return whatsapp.ErrClientUnavailable
			}
			return nil
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.db != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.db.SQL.PingContext(ctx) }
	}
	log := a.log.Sub("HTTP")
	go func() {
		if err := httpPlatform.Serve(ctx, a.cfg.MetricsAddr, httpPlatform.NewRouter(checks, log), log); err != nil {
			log.Errorf("metrics server: %v", err)
		}
	}()
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warnf("closing audit log: %v", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warnf("closing database: %v", err)
		}
	}
}
