package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/capture"
	"github.com/sweeney/spa-bridge/internal/spa"
)

var recordOpts struct {
	transport transportFlags
	out       string
	duration  time.Duration
	note      string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record raw bus words to a capture file",
	Long: `Capture every word on the panel bus to a CBOR file for later replay. Runs
for --duration, or until interrupted when --duration is 0.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if recordOpts.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, recordOpts.duration)
			defer cancel()
		}

		tr, err := recordOpts.transport.open(ctx)
		if err != nil {
			return err
		}
		defer tr.Close()

		f, err := os.Create(recordOpts.out)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()

		bw := bufio.NewWriter(f)
		w, err := capture.NewWriter(bw, capture.Header{
			Transport: tr.Kind,
			Device:    tr.Device,
			Note:      recordOpts.note,
		}, time.Now())
		if err != nil {
			return err
		}

		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		log.Info().Str("file", recordOpts.out).Msg("recording")
		if err := recordWords(ctx, tr.Panel, w, time.Now, ticker.C); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("flush capture: %w", err)
		}
		stats := tr.Stats()
		log.Info().
			Int("words", w.Count()).
			Uint32("dropped", stats.Dropped).
			Msg("recording finished")
		return nil
	},
}

func init() {
	addTransportFlags(recordCmd, &recordOpts.transport)
	recordCmd.Flags().StringVarP(&recordOpts.out, "out", "o", "spa.cbor", "Capture file to write")
	recordCmd.Flags().DurationVar(&recordOpts.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	recordCmd.Flags().StringVar(&recordOpts.note, "note", "", "Free text stored in the file header")
	rootCmd.AddCommand(recordCmd)
}

// recordWords drains panel into w on every tick until ctx is done.
func recordWords(ctx context.Context, panel spa.Panel, w *capture.Writer, now func() time.Time, tick <-chan time.Time) error {
	drain := func() error {
		for {
			word, ok := panel.Pop()
			if !ok {
				return nil
			}
			if err := w.Write(now(), word); err != nil {
				return err
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return drain()
		case <-tick:
			if err := drain(); err != nil {
				return err
			}
		}
	}
}
