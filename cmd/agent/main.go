package main

import (
	"os"

	envload "github.com/fieldtrack/agent/internal"
	"github.com/fieldtrack/agent/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fieldagent",
	Short: "Field-device telemetry agent",
	Long: `fieldagent samples a tracked asset's position, filters low-quality fixes,
and delivers them to a remote collector, queueing offline. Shift membership is
polled from the collector; tracking starts and stops with the shift.`,
}

func init() {
	if config.Bool("AGENT_LOG_JSON", false) {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
	rootCmd.AddCommand(newRunCmd())
	_ = envload.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("fieldagent command failed")
	}
}
