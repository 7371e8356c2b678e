// Command spa-bridge decodes a spa control panel bus and bridges it to MQTT
// and a local web page.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "spa-bridge",
	Short: "Spa control panel bus decoder and MQTT bridge",
	Long: `spa-bridge sits between a spa's main board and its control panel, decodes
the display and LED frames on the panel bus and publishes them to MQTT.
Commands received over MQTT, the web console or the WebSocket feed are
turned into simulated button presses.

Panel transports:
  GPIO:   --chip gpiochip0 --pin-clock 17 --pin-latch 27 --pin-data-in 22 --pin-data-out 23
  Serial: --serial /dev/ttyUSB0 [--baud 115200]`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel, logPretty, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human readable console logs instead of JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string, pretty bool, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}
