package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/scheduler"
)

func runSchedule(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		a.serveMetrics(ctx)

		scan := func(ctx context.Context) error {
			_, err := a.producers("Scan").Scan(ctx)
			return err
		}
		add := func(ctx context.Context) error {
			_, err := a.producers("Add").Add(ctx)
			return err
		}
		q := a.cfg.Queue
		s := a.cfg.Schedule
		sched, err := scheduler.New(scheduler.Config{
			RedisURL:    q.RedisURL,
			TLSInsecure: q.RedisTLSInsecure,
			Queue:       s.Queue,
			ScanCron:    s.ScanCron,
			AddCron:     s.AddCron,
		}, scan, add, a.log.Sub("Schedule"))
		if err != nil {
			return err
		}
		a.log.Infof("scheduler running: scan=%q add=%q", s.ScanCron, s.AddCron)
		return sched.Run(ctx)
	})
}
