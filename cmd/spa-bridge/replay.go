package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/capture"
	"github.com/sweeney/spa-bridge/internal/mqtt"
	"github.com/sweeney/spa-bridge/internal/spa"
)

var replayStep time.Duration

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a capture file and print every state change",
	Long: `Feed a recorded capture through the decoder on a virtual clock, printing
each change with its offset from the start of the recording.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return replayCapture(f, cmd.OutOrStdout(), replayStep)
	},
}

func init() {
	replayCmd.Flags().DurationVar(&replayStep, "step", 5*time.Millisecond, "Virtual main loop interval")
	rootCmd.AddCommand(replayCmd)
}

func replayCapture(r io.Reader, out io.Writer, step time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("step must be positive")
	}
	rd, err := capture.NewReader(r)
	if err != nil {
		return err
	}
	recs, err := rd.ReadAll()
	if err != nil {
		if len(recs) == 0 {
			return err
		}
		log.Warn().Err(err).Int("records", len(recs)).Msg("capture truncated, replaying what was read")
	}

	h := rd.Header()
	player := capture.NewPlayer(h, recs)
	engine := spa.New(player, spa.WithClock(player.Now), spa.WithTargetPriming(0))
	start := h.StartTime()
	engine.AddListener(spa.ListenerFunc(func(ev spa.ChangeEvent) {
		v, ok := mqtt.FormatValue(ev.Type, engine.State())
		if !ok {
			v = "unknown"
		}
		fmt.Fprintf(out, "%10.3fs  %s=%s\n", player.Now().Sub(start).Seconds(), ev.Type, v)
	}))

	for !player.Done() {
		engine.Loop()
		player.Advance(step)
	}
	engine.Loop()

	fc := engine.State().Frames
	_, err = fmt.Fprintf(out, "%d words: %d digit, %d led, %d button, %d unknown\n",
		len(recs), fc.Digits, fc.LEDs, fc.Buttons, fc.Unknown)
	return err
}
