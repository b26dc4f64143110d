package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yunqiqiliang/embedgate/pkg/client"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token <dashboard-id>",
	Short: "Request a guest token from a running broker",
	Long: `Requests a guest token for one dashboard and prints it to stdout.
Only the token is written to stdout so it can be piped into other tools.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user-id")
		username, _ := cmd.Flags().GetString("username")

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		resp, correlation, err := cli.GuestToken(cmd.Context(), args[0], client.GuestTokenOptions{
			UserID:   userID,
			Username: username,
		})
		if err != nil {
			return logError(err, correlation, "failed to request guest token")
		}

		log.Info().
			Str("correlation_id", correlation).
			Int("expires_in", resp.ExpiresIn).
			Msg("Guest token issued")
		fmt.Println(resp.Token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("user-id", "", "Requester id restricting the visible rows")
	tokenCmd.Flags().String("username", "", "Display name embedded in the guest token")
}
