package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/services"
)

func runWork(cmd *cobra.Command, _ []string) error {
	switch workType {
	case "remove", "add", "all":
	default:
		return fmt.Errorf("unknown --type %q (want remove, add or all)", workType)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		a.serveMetrics(ctx)

		cfg := a.cfg.Worker
		var delays []*services.Delay
		g, gctx := errgroup.WithContext(ctx)
		if workType == "remove" || workType == "all" {
			d := services.NewDelay(cfg.DelayBase, cfg.DelayOffset)
			delays = append(delays, d)
			w := a.worker(a.removeQueue, d, "RemoveWorker")
			g.Go(func() error { return w.Run(gctx, workUntilEmpty) })
		}
		if workType == "add" || workType == "all" {
			d := services.NewDelay(cfg.DelayBase, cfg.DelayOffset)
			delays = append(delays, d)
			w := a.worker(a.addQueue, d, "AddWorker")
			g.Go(func() error { return w.Run(gctx, workUntilEmpty) })
		}

		go skipOnSignal(gctx, delays)
		if workSkipOnEnter {
			go skipOnEnter(gctx, delays)
		}

		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			a.log.Infof("workers stopped")
			return nil
		}
		return err
	})
}

// skipOnSignal cuts the current delay short on SIGUSR1.
func skipOnSignal(ctx context.Context, delays []*services.Delay) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			skipAll(delays)
		}
	}
}

func skipOnEnter(ctx context.Context, delays []*services.Delay) {
	lines := bufio.NewScanner(os.Stdin)
	for lines.Scan() {
		if ctx.Err() != nil {
			return
		}
		skipAll(delays)
	}
}

func skipAll(delays []*services.Delay) {
	for _, d := range delays {
		d.Skip()
	}
}
