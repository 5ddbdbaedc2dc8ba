package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/whatsapp"
)

func runLogin(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		factory := whatsapp.NewStoreFactory(a.cfg.DataDir, a.log.Sub("Store"))
		sess, err := whatsapp.OpenSession(ctx, factory, a.cfg.BotInstance, a.logs.Client, a.log.Sub("WA"))
		if err != nil {
			return err
		}
		a.session = sess
		if err := sess.Login(ctx, cmd.OutOrStdout()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "device paired, session stored in %s\n", factory.Path(a.cfg.BotInstance))
		return nil
	})
}
