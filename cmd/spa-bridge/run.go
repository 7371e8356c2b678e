package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/spa-bridge/internal/airtemp"
	"github.com/sweeney/spa-bridge/internal/capture"
	"github.com/sweeney/spa-bridge/internal/mqtt"
	"github.com/sweeney/spa-bridge/internal/spa"
	"github.com/sweeney/spa-bridge/internal/status"
	"github.com/sweeney/spa-bridge/internal/web"
)

type runFlags struct {
	transport   transportFlags
	broker      string
	name        string
	heartbeat   time.Duration
	poll        time.Duration
	httpAddr    string
	w1Device    string
	airInterval time.Duration
	prime       bool
	recordPath  string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge daemon",
	Long: `Decode the panel bus continuously, publish state changes to MQTT, serve the
status page and accept commands from MQTT, the web console and WebSocket
clients.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(runOpts)
	},
}

func init() {
	addTransportFlags(runCmd, &runOpts.transport)
	fl := runCmd.Flags()
	fl.StringVar(&runOpts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	fl.StringVar(&runOpts.name, "name", mqtt.DefaultName, "MQTT topic prefix")
	fl.DurationVar(&runOpts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fl.DurationVar(&runOpts.poll, "poll", 5*time.Millisecond, "Main loop interval")
	fl.StringVar(&runOpts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	fl.StringVar(&runOpts.w1Device, "w1-device", "auto", `DS18B20 id or w1_slave path for air temperature ("auto" discovers, "off" disables)`)
	fl.DurationVar(&runOpts.airInterval, "air-interval", airtemp.DefaultInterval, "Air temperature read interval")
	fl.BoolVar(&runOpts.prime, "prime", true, "Press down once after start-up so the panel shows the target temperature")
	fl.StringVar(&runOpts.recordPath, "record", "", "Also record every bus word to this capture file")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(f runFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := f.transport.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Error().Err(err).Msg("transport close")
		}
	}()

	panel := tr.Panel
	if f.recordPath != "" {
		tap, closeRec, err := openTap(panel, f.recordPath, tr.Kind, tr.Device)
		if err != nil {
			return err
		}
		defer closeRec()
		panel = tap
	}

	intents := make(chan spa.Intent, 16)

	publisher := mqtt.NewRealPublisher(mqtt.Config{
		Broker:  f.broker,
		Name:    f.name,
		Intents: intents,
	})
	defer publisher.Close()

	air, sensorName := startAirSensor(ctx, f.w1Device, f.airInterval)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      f.poll.Milliseconds(),
		HeartbeatMs: f.heartbeat.Milliseconds(),
		Broker:      f.broker,
		Name:        f.name,
		HTTPAddr:    f.httpAddr,
		Transport:   tr.Kind,
		Device:      tr.Device,
		AirSensor:   sensorName,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var notify func(string)
	if f.httpAddr != "" {
		srv := web.New(f.httpAddr, tracker, intents)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		notify = srv.Notify
		log.Info().Str("addr", f.httpAddr).Msg("http status server listening")
	}

	primeAfter := time.Duration(0)
	if f.prime {
		primeAfter = spa.DefaultPrimeAfter
	}

	log.Info().
		Str("transport", tr.Kind).
		Str("device", tr.Device).
		Str("broker", f.broker).
		Dur("poll", f.poll).
		Dur("heartbeat", f.heartbeat).
		Msg("started")

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		Panel:      panel,
		Stats:      tr.Stats,
		Publisher:  publisher,
		MQTTStatus: publisher,
		Tracker:    tracker,
		Notify:     notify,
		Heartbeat:  f.heartbeat,
		PrimeAfter: primeAfter,
		Now:        time.Now,
	}, ticker.C, sigCh, intents, air)
}

// startAirSensor starts polling the DS18B20 named by device. It returns a nil
// channel when no sensor is configured or found.
func startAirSensor(ctx context.Context, device string, interval time.Duration) (<-chan physic.Temperature, string) {
	switch device {
	case "", "off":
		return nil, ""
	case "auto":
		id, err := airtemp.Discover(airtemp.DefaultBase)
		if err != nil {
			log.Info().Err(err).Msg("air temperature sensor disabled")
			return nil, ""
		}
		device = id
	}
	sensor := airtemp.NewSensor(device)
	out := make(chan physic.Temperature, 1)
	go airtemp.Poll(ctx, sensor, interval, out)
	log.Info().Str("sensor", sensor.Path()).Dur("interval", interval).Msg("air temperature sensor enabled")
	return out, device
}

// openTap wraps panel so every dequeued word is written to path.
func openTap(panel spa.Panel, path, kind, device string) (*capture.Tap, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create capture: %w", err)
	}
	bw := bufio.NewWriter(f)
	w, err := capture.NewWriter(bw, capture.Header{Transport: kind, Device: device}, time.Now())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	tap := capture.NewTap(panel, w, time.Now)
	closeFn := func() {
		if err := tap.Err(); err != nil {
			log.Error().Err(err).Msg("capture stopped early")
		}
		if err := bw.Flush(); err != nil {
			log.Error().Err(err).Str("file", path).Msg("capture flush failed")
		}
		log.Info().Int("words", w.Count()).Str("file", path).Msg("capture closed")
		f.Close()
	}
	return tap, closeFn, nil
}
