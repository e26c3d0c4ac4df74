package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	agent "github.com/fieldtrack/agent"
	"github.com/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/agent/pkg/collector"
	"github.com/fieldtrack/agent/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		collectorURL string
		feedPath     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if collectorURL == "" {
				collectorURL = config.String("COLLECTOR_BASE_URL", "")
			}
			if collectorURL == "" {
				return errors.New("collector base url required (--collector or COLLECTOR_BASE_URL)")
			}
			if feedPath == "" {
				feedPath = config.String("SAMPLE_FEED_PATH", "")
			}
			if feedPath == "" {
				return errors.New("location feed required (--feed or SAMPLE_FEED_PATH)")
			}
			return runAgent(cmd.Context(), collectorURL, feedPath)
		},
	}
	cmd.Flags().StringVar(&collectorURL, "collector", "", "collector base URL, overrides COLLECTOR_BASE_URL")
	cmd.Flags().StringVar(&feedPath, "feed", "", "JSONL location feed path, overrides SAMPLE_FEED_PATH")
	return cmd
}

func runAgent(parent context.Context, collectorURL, feedPath string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open()
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Str("db", db.Path()).Msg("local store opened")

	client, err := collector.NewClient(collectorURL)
	if err != nil {
		return err
	}

	provider := agent.NewReplayProvider(
		feedPath,
		config.Duration("FOREGROUND_SAMPLE_INTERVAL", 5*time.Second),
		config.Bool("REPLAY_FOREGROUND_ONLY", false),
	)

	tracker, err := agent.NewTracker(agent.TrackerConfig{
		Store:        db,
		Deliverer:    client,
		Connectivity: client,
		Provider:     provider,
	})
	if err != nil {
		return err
	}

	session, err := agent.NewSessionAgent(agent.SessionConfig{
		Store:    db,
		Client:   client,
		Tracker:  tracker,
		DeviceID: agent.DeviceID(),
	})
	if err != nil {
		return err
	}

	// Drain display updates into the log; a real UI would subscribe here.
	go func() {
		for update := range tracker.Updates() {
			event := log.Debug()
			if !update.Accepted {
				event = log.Info().Bool("signal_degraded", true)
			}
			event.
				Float64("lat", update.Sample.Latitude).
				Float64("lon", update.Sample.Longitude).
				Time("captured_at", update.Sample.CapturedAt).
				Msg("position update")
		}
	}()

	log.Info().Str("collector", client.BaseURL()).Msg("starting field agent")
	return session.Run(ctx)
}
