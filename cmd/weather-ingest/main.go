package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weather-ingest",
	Short: "Scrapes weather stations, webcams and soundings",
	Long: `weather-ingest polls third-party weather station, webcam and sounding
providers on a schedule, normalizes what they report, stores it and raises
alerts when stations stop reporting.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("weather-ingest failed")
		os.Exit(1)
	}
}
