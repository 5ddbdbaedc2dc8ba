package main

import (
	"github.com/spf13/cobra"
)

var (
	logLevel string

	addRegistration string
	addGroup        string
	addPhone        string

	workType        string
	workUntilEmpty  bool
	workSkipOnEnter bool

	rootCmd = &cobra.Command{
		Use:   "groupkeeper",
		Short: "Keeps WhatsApp group membership in line with the member database",
		Long: `groupkeeper scans the groups a bot account administers, decides who should
leave or join them, queues those actions and works the queues at a human pace.`,
		SilenceUsage: true,
	}

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Pair the bot device by scanning a QR code",
		RunE:  runLogin,
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Evaluate every group and queue removals",
		RunE:  runScan,
	}
	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Write a report of what a scan would flag, without queueing anything",
		RunE:  runReport,
	}
	addCmd = &cobra.Command{
		Use:   "add",
		Short: "Queue pending add requests, or record a new one",
		Long: `Without flags, queues every pending add request for the groups the bot is in.
With --registration and --group, records an add request first.
With --phone and --group, queues a direct add for that phone.`,
		RunE: runAdd,
	}
	removeCmd = &cobra.Command{
		Use:   "remove [phone...]",
		Short: "Queue removal of the given phones from every group they are in",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRemove,
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch",
		Short: "Capture group messages for a while and store the new ones",
		RunE:  runFetch,
	}
	workCmd = &cobra.Command{
		Use:   "work",
		Short: "Execute queued actions one at a time",
		RunE:  runWork,
	}
	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Run scan and add passes on their cron schedules",
		RunE:  runSchedule,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	addCmd.Flags().StringVar(&addRegistration, "registration", "", "registration id to add")
	addCmd.Flags().StringVar(&addGroup, "group", "", "target group jid")
	addCmd.Flags().StringVar(&addPhone, "phone", "", "phone to add directly")

	workCmd.Flags().StringVar(&workType, "type", "all", "queue to work: remove, add or all")
	workCmd.Flags().BoolVar(&workUntilEmpty, "until-empty", false, "stop when the queue is empty")
	workCmd.Flags().BoolVar(&workSkipOnEnter, "skip-on-enter", true, "pressing Enter skips the current delay")

	rootCmd.AddCommand(loginCmd, scanCmd, reportCmd, addCmd, removeCmd, fetchCmd, workCmd, scheduleCmd)
}
