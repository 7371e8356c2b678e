package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/mqtt"
	"github.com/sweeney/spa-bridge/internal/spa"
	"github.com/sweeney/spa-bridge/internal/status"
)

var stateOpts struct {
	transport transportFlags
	listen    time.Duration
	json      bool
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Listen to the panel briefly, print the decoded state and exit",
	Long: `Decode the panel bus for --listen and print what was learned. No buttons
are pressed, so the target temperature is only known if the panel blinked it
while listening.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		tr, err := stateOpts.transport.open(ctx)
		if err != nil {
			return err
		}
		defer tr.Close()

		engine := spa.New(tr.Panel, spa.WithTargetPriming(0))
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.After(stateOpts.listen)
	listen:
		for {
			select {
			case <-ticker.C:
				engine.Loop()
			case <-deadline:
				break listen
			}
		}
		return printState(cmd.OutOrStdout(), engine.State(), stateOpts.json)
	},
}

func init() {
	addTransportFlags(stateCmd, &stateOpts.transport)
	stateCmd.Flags().DurationVar(&stateOpts.listen, "listen", 3*time.Second, "How long to decode before printing")
	stateCmd.Flags().BoolVar(&stateOpts.json, "json", false, "Print JSON instead of text")
	rootCmd.AddCommand(stateCmd)
}

// printState writes one "attribute: value" line per attribute, using the
// same formatting as the MQTT topics.
func printState(w io.Writer, st spa.State, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(status.BuildSpa(status.Snapshot{Spa: st}), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	for _, c := range spa.ChangeTypes() {
		v, ok := mqtt.FormatValue(c, st)
		if !ok {
			v = "unknown"
		}
		if c == spa.ChangeErrorCode && v == "" {
			v = "none"
		}
		if _, err := fmt.Fprintf(w, "%-16s %s\n", c.String()+":", v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%-16s %d digit, %d led, %d button, %d unknown\n", "frames:",
		st.Frames.Digits, st.Frames.LEDs, st.Frames.Buttons, st.Frames.Unknown)
	return err
}
