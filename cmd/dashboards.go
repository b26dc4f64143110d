package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// dashboardsCmd represents the dashboards command
var dashboardsCmd = &cobra.Command{
	Use:   "dashboards",
	Short: "List the published dashboards of a running broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching dashboards...")
		dashboards, correlation, err := cli.Dashboards(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list dashboards")
		}

		log.Info().Msgf("Retrieved %d dashboards", len(dashboards))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"ID", "UUID", "Title", "URL",
		})

		for _, d := range dashboards {
			t.AppendRow(table.Row{
				d.ID,
				d.UUID,
				bold(truncate(d.Title, 40)),
				faint(d.URL),
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardsCmd)
}
