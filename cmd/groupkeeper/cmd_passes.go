package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func runScan(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		sum, err := a.producers("Scan").Scan(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum.String())
		return nil
	})
}

func runReport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		sum, err := a.producers("Report").Report(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sum.PassSummary.String())
		if sum.Output != nil {
			fmt.Fprintf(out, "report: %s\n", sum.Output.YAMLPath)
			if sum.Output.XLSXPath != "" {
				fmt.Fprintf(out, "spreadsheet: %s\n", sum.Output.XLSXPath)
			}
			for _, u := range sum.Output.URLs {
				fmt.Fprintf(out, "uploaded: %s\n", u)
			}
		}
		return nil
	})
}

func runAdd(cmd *cobra.Command, _ []string) error {
	registration := strings.TrimSpace(addRegistration)
	groupID := strings.TrimSpace(addGroup)
	phoneArg := strings.TrimSpace(addPhone)
	if (registration != "" || phoneArg != "") && groupID == "" {
		return fmt.Errorf("--group is required with --registration or --phone")
	}
	if registration != "" && phoneArg != "" {
		return fmt.Errorf("use either --registration or --phone, not both")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		out := cmd.OutOrStdout()
		if phoneArg != "" {
			pushed, err := a.producers("Add").EnqueueAddPhone(ctx, groupID, phoneArg)
			if err != nil {
				return err
			}
			if pushed {
				fmt.Fprintf(out, "queued add of %s to %s\n", phoneArg, groupID)
			} else {
				fmt.Fprintf(out, "add of %s to %s already queued\n", phoneArg, groupID)
			}
			return nil
		}
		if registration != "" {
			if err := a.producers("Add").RequestAdd(ctx, registration, groupID); err != nil {
				return err
			}
			fmt.Fprintf(out, "add request recorded for registration %s in %s\n", registration, groupID)
		}

		if err := a.connect(ctx); err != nil {
			return err
		}
		sum, err := a.producers("Add").Add(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, sum.String())
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.connect(ctx); err != nil {
			return err
		}
		sum, err := a.producers("Remove").Remove(ctx, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum.String())
		return nil
	})
}
