// Command powertoken runs the WEconnect to Fitbit sync worker and its
// maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/willtech3/powertoken/internal/config"
	"github.com/willtech3/powertoken/internal/logger"
)

var (
	envFile string
	cfg     *config.Config
	log     zerolog.Logger

	rootCmd = &cobra.Command{
		Use:           "powertoken",
		Short:         "Mirror WEconnect recovery progress to Fitbit step counts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
			c, err := config.New()
			if err != nil {
				return err
			}
			cfg = c
			log = logger.NewWithLevel("powertoken", cfg.LogLevel)
			zlog.Logger = log
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading POWERTOKEN_* variables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
