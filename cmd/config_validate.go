package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long:  "Checks flags, environment and configuration file and lists every missing required setting.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := f.LoadConfig(); err != nil {
			log.Error().Err(err).Msg("Configuration is invalid.")
			return err
		}
		log.Info().Msg("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
