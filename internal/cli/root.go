package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/totemic/internal/config"
	"github.com/lazypower/totemic/internal/logger"
)

var (
	configDir string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "totemic",
	Short: "Totem engagement and decay scoring",
	Long:  "Totemic tracks who endorses which totems on an answer, scores how fresh those endorsements are, and relates totems across similar answers.",

	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default ~/.totemic)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd, statusCmd)
	rootCmd.AddCommand(likeCmd, unlikeCmd, refreshCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(rescoreCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads config for the current invocation.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return config.Config{}, err
	}
	if debug {
		cfg.Log.Debug = true
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *zap.Logger {
	return logger.NewWithWriters(cfg.Log.Debug, cfg.Log.JSON)
}
