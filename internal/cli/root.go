// Package cli is the command line of the assistant: the HTTP server plus
// the maintenance commands that share its configuration.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-rag-backend/internal/config"
	"github.com/tbourn/go-rag-backend/internal/observability"
	"github.com/tbourn/go-rag-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

// configFile is the --config flag; it wins over CONFIG_FILE.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Document question answering with cited sources",
	Long: `ragd ingests documents, indexes their chunks and answers questions
over them with a language model, citing the passages it used.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (environment variables still override it)")
}

// Execute runs the command named by os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	observability.SetupLogger(cfg.LogLevel, cfg.LogPretty, sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, rootCmd.Name()), cmd.ErrOrStderr())
	return cfg, nil
}
