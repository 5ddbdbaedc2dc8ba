package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/services"
)

func runFetch(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		collector := services.NewMessageCollector(a.messages, a.log.Sub("Fetch"))
		if err := a.connect(ctx, collector.HandleEvent); err != nil {
			return err
		}
		a.log.Infof("collecting group messages for %s", a.cfg.FetchDuration)

		timer := time.NewTimer(a.cfg.FetchDuration)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			a.log.Infof("interrupted, storing what was collected")
		}

		// Flush on a fresh context so an interrupt still persists the buffer.
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := collector.Flush(flushCtx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d new message(s)\n", n)
		return nil
	})
}
