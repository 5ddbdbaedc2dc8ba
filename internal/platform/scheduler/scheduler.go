// Package scheduler triggers the producer passes on cron schedules through asynq.
package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Pass runs one producer pass.
type Pass func(ctx context.Context) error

type Config struct {
	RedisURL    string
	TLSInsecure bool
	Queue       string
	ScanCron    string
	AddCron     string
	PassTimeout time.Duration
}

type Scheduler struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	cfg       Config
	log       waLog.Logger
}

// New registers the cron entries and the task handlers. A nil pass leaves its cron unregistered.
func New(cfg Config, scan, add Pass, log waLog.Logger) (*Scheduler, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	if log == nil {
		log = waLog.Noop
	}
	opt, err := redisClientOpt(cfg.RedisURL, cfg.TLSInsecure)
	if err != nil {
		return nil, err
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 2 * time.Hour
	}

	alog := asynqLogger{log: log.Sub("Asynq")}
	s := &Scheduler{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: alog, LogLevel: asynq.WarnLevel}),
		server: asynq.NewServer(opt, asynq.Config{
			// Passes share one WhatsApp account and must not overlap.
			Concurrency: 1,
			Queues:      map[string]int{cfg.Queue: 1},
			Logger:      alog,
			LogLevel:    asynq.WarnLevel,
		}),
		mux: newMux(scan, add, log),
		cfg: cfg,
		log: log,
	}

	if err := s.register(TaskScan, cfg.ScanCron, scan); err != nil {
		return nil, err
	}
	if err := s.register(TaskAdd, cfg.AddCron, add); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register(taskType, cron string, pass Pass) error {
	if pass == nil || cron == "" {
		return nil
	}
	task, err := NewPassTask(taskType, "cron")
	if err != nil {
		return err
	}
	id, err := s.scheduler.Register(cron, task,
		asynq.Queue(s.cfg.Queue),
		asynq.MaxRetry(0),
		asynq.Timeout(s.cfg.PassTimeout),
		asynq.Unique(s.cfg.PassTimeout),
	)
	if err != nil {
		return fmt.Errorf("register %s (%s): %w", taskType, cron, err)
	}
	s.log.Infof("registered %s on %q as %s", taskType, cron, id)
	return nil
}

func newMux(scan, add Pass, log waLog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if scan != nil {
		mux.HandleFunc(TaskScan, passHandler(scan, log))
	}
	if add != nil {
		mux.HandleFunc(TaskAdd, passHandler(add, log))
	}
	return mux
}

// passHandler never asks asynq to retry: the next cron tick is the retry.
func passHandler(pass Pass, log waLog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParsePassPayload(task)
		if err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		log.Infof("%s triggered by %s", task.Type(), payload.Trigger)
		if err := pass(ctx); err != nil {
			log.Errorf("%s failed: %v", task.Type(), err)
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return nil
	}
}

// Run blocks until ctx is cancelled, then stops the scheduler and drains the server.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := s.server.Start(s.mux); err != nil {
		s.scheduler.Shutdown()
		if errors.Is(err, asynq.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("start task server: %w", err)
	}
	<-ctx.Done()
	s.scheduler.Shutdown()
	s.server.Shutdown()
	return nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

type asynqLogger struct {
	log waLog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debugf("%s", fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Infof("%s", fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warnf("%s", fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Errorf("%s", fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Errorf("fatal: %s", fmt.Sprint(args...)) }
