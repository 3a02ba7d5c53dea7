package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "matchclock",
		Short: "Live match clock scheduler",
		Long:  "Drives live match clocks from one shared tick loop and streams their state to viewers.",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			bootstrap(cmd, ".env")
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the viewer gateway",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the match schema",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Insert scheduled matches",
		RunE:  runSeed,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path (MATCHCLOCK_CONFIG)")
	seedCmd.Flags().Int("count", 1, "number of matches to insert")
	seedCmd.Flags().Int("duration", 90, "match duration in minutes")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads .env files ahead of logging so LOG_LEVEL may come from them,
// then reports the load through the configured logger. MATCHCLOCK_CONFIG
// applies unless --config was given.
func bootstrap(cmd *cobra.Command, envFiles ...string) {
	envErr := loadEnv(envFiles...)
	setupLogging()
	if envErr != nil {
		log.Warn().Err(envErr).Msg("could not load .env file")
	}

	if !cmd.Flags().Changed("config") {
		cfgFile = getEnv("MATCHCLOCK_CONFIG", cfgFile)
	}
	log.Debug().Str("config", cfgFile).Msg("using config file")
}

// loadEnv reads the given files into the environment. Missing files are skipped.
func loadEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
