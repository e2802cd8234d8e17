package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/mindvault/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mindvault",
		Short:        "MindVault study notes service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newServeCommand(),
		newExportCommand(),
		newImportCommand(),
		newOrganizeCommand(),
		newChatCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed by CORS (all when empty)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("legacy-path", defaults.GetString("legacy.path"), "Legacy key/value dump migrated on first start")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("quiet-period", defaults.GetDuration("editor.quiet_period"), "Editor quiet period before a buffered edit is saved")
	cmd.PersistentFlags().Duration("organize-delay", defaults.GetDuration("organize.delay"), "Pause between classification calls")
	cmd.PersistentFlags().String("genai-model", defaults.GetString("genai.model"), "Gemini model name")
	cmd.PersistentFlags().String("genai-api-key", "", "Gemini API key (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "API token signing secret; enables authentication when set")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "API token TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "legacy.path", "legacy-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "editor.quiet_period", "quiet-period")
	bindFlag(cmd, "organize.delay", "organize-delay")
	bindFlag(cmd, "genai.model", "genai-model")
	bindFlag(cmd, "genai.api_key", "genai-api-key")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mindvault")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
