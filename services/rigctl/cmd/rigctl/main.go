package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"printrig/services/rigctl"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiBase string

	cmd := &cobra.Command{
		Use:           "rigctl",
		Short:         "Control a printrig test daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&apiBase, "api", defaultAPIBase(), "Base URL of the rigd API")

	cmd.AddCommand(newStatusCommand(&apiBase))
	cmd.AddCommand(newPrintersCommand(&apiBase))
	cmd.AddCommand(newStartCommand(&apiBase))
	cmd.AddCommand(newStopCommand(&apiBase))
	cmd.AddCommand(newRunsCommand(&apiBase))
	cmd.AddCommand(newWatchCommand(&apiBase))
	return cmd
}

func defaultAPIBase() string {
	if v := os.Getenv("RIGCTL_API"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newStatusCommand(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show rig status and active runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rigctl.NewClient(*apiBase).Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("system: %s (%d printers)\n", status.SystemState, len(status.Printers))
			for _, run := range status.Runs {
				fmt.Printf("  run %s  %s  %s  cycle %d image %d\n",
					run.RunID, run.DeviceID, run.State, run.Cycle, run.ImageIndex)
			}
			return nil
		},
	}
}

func newPrintersCommand(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List attached printers",
		RunE: func(cmd *cobra.Command, args []string) error {
			printers, err := rigctl.NewClient(*apiBase).Printers(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tQUEUE\tRUN")
			for _, p := range printers {
				runState := "-"
				if p.Run != nil {
					runState = string(p.Run.State)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Model, p.QueueName, runState)
			}
			return w.Flush()
		},
	}
}

func newStartCommand(apiBase *string) *cobra.Command {
	var deviceID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a print test on a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := rigctl.NewClient(*apiBase).StartTest(cmd.Context(), deviceID)
			if err != nil {
				return err
			}
			fmt.Printf("started run %s\n", runID)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "Device ID to test")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func newStopCommand(apiBase *string) *cobra.Command {
	var runIDArg string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running print test",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(runIDArg)
			if err != nil {
				return fmt.Errorf("invalid run id %q", runIDArg)
			}
			if err := rigctl.NewClient(*apiBase).StopTest(cmd.Context(), runID); err != nil {
				return err
			}
			fmt.Printf("stop requested for run %s\n", runID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runIDArg, "run", "", "Run ID to stop")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newRunsCommand(apiBase *string) *cobra.Command {
	var deviceID string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := rigctl.NewClient(*apiBase).Runs(cmd.Context(), deviceID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDEVICE\tSTATUS\tCYCLES\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					run.ID, run.DeviceName, run.Status, run.Cycles,
					run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "Filter by device ID")
	return cmd
}

func newWatchCommand(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live run events",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			return rigctl.NewClient(*apiBase).Watch(cmd.Context(), func(frame rigctl.Frame) error {
				return enc.Encode(frame)
			})
		},
	}
}
