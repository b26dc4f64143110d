package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		report, correlation, err := cli.Health(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to check health")
		}

		fmt.Println(bold("\n── Embedgate Health ──"))
		if !report.Healthy() {
			fmt.Printf("  %s:  %s\n", faint("Status"), red(report.Status))
			fmt.Printf("  %s:   %s\n", faint("Error"), report.Error)
			return errors.New("broker is unhealthy")
		}
		fmt.Printf("  %s:  %s\n", faint("Status"), green(report.Status))
		fmt.Printf("  %s:    %s\n", faint("Time"), report.Timestamp.Format(time.RFC3339))
		for name, state := range report.Services {
			fmt.Printf("  %s: %s\n", faint(fmt.Sprintf("%-8s", name)), green(state))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
