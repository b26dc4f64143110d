package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yunqiqiliang/embedgate/internal/buildinfo"
	"github.com/yunqiqiliang/embedgate/internal/config"
	"github.com/yunqiqiliang/embedgate/internal/logging"
)

// global flags
var (
	cfgFile string
	f       = NewFactory()
)

var rootCmd = &cobra.Command{
	Use:   "embedgate",
	Short: fmt.Sprintf("Embedgate guest token broker (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `Embedgate issues short-lived guest tokens for embedded analytics dashboards.
	It logs in to the analytics platform with a fixed administrator identity,
	caches the session credential and mints one scoped guest token per request.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init(nil)
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Configuration file (default is ./embedgate.yaml or $HOME/.config/embedgate/embedgate.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	bindFlag(rootCmd.PersistentFlags(), logging.LevelKey, "log-level")

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	bindFlag(rootCmd.PersistentFlags(), logging.FormatKey, "log-format")

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	bindFlag(rootCmd.PersistentFlags(), logging.NoColorKey, "no-color")

	rootCmd.PersistentFlags().StringVar(&f.RemoteAddr, "server", "", "Address of a running Embedgate broker")
	bindFlag(rootCmd.PersistentFlags(), RemoteAddrKey, "server")

	rootCmd.PersistentFlags().StringVar(&f.Origin, "origin", "", "Origin header sent to the broker")
	bindFlag(rootCmd.PersistentFlags(), RemoteOriginKey, "origin")

	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for requests to the broker (default 15s)")
	bindFlag(rootCmd.PersistentFlags(), RemoteTimeoutKey, "timeout")

	viper.SetEnvPrefix("EMBEDGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		config, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(config + "/embedgate")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("embedgate")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}

// bindFlag binds a flag to a viper key. Unknown flag names are a programming error.
func bindFlag(fs *pflag.FlagSet, key, name string) {
	fl := fs.Lookup(name)
	if fl == nil {
		panic(fmt.Sprintf("flag %q is not defined", name))
	}
	if err := viper.BindPFlag(key, fl); err != nil {
		panic(err)
	}
}
