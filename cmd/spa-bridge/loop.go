package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/spa-bridge/internal/bus"
	"github.com/sweeney/spa-bridge/internal/mqtt"
	"github.com/sweeney/spa-bridge/internal/spa"
	"github.com/sweeney/spa-bridge/internal/status"
)

// loopDeps are the collaborators of the main loop.
type loopDeps struct {
	Panel      spa.Panel
	Stats      func() bus.Stats // nil reports zero counters
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus // may be nil
	Tracker    *status.Tracker
	Notify     func(attribute string) // web push, may be nil
	Heartbeat  time.Duration          // 0 disables
	PrimeAfter time.Duration          // 0 disables target priming
	Now        func() time.Time
}

// runLoop owns the Engine. Every tick drains the panel and advances the
// command queue; intents and air readings are applied between ticks. It
// returns after publishing SHUTDOWN when a signal arrives.
func runLoop(d loopDeps, tick <-chan time.Time, sig <-chan os.Signal, intents <-chan spa.Intent, air <-chan physic.Temperature) error {
	configRequested := false
	opts := []spa.Option{
		spa.WithClock(d.Now),
		spa.WithConfigRequest(func() { configRequested = true }),
		spa.WithTargetPriming(d.PrimeAfter),
	}
	engine := spa.New(d.Panel, opts...)

	bridge := mqtt.NewBridge(d.Publisher, engine.State, d.Now)
	engine.AddListener(bridge)

	var changed []spa.ChangeType
	engine.AddListener(spa.ListenerFunc(func(ev spa.ChangeEvent) {
		changed = append(changed, ev.Type)
	}))

	stats := d.Stats
	if stats == nil {
		stats = func() bus.Stats { return bus.Stats{} }
	}

	// refresh pushes engine state to the tracker, then to web clients.
	refresh := func() {
		d.Tracker.Update(engine.State(), stats())
		if d.MQTTStatus != nil {
			d.Tracker.SetMQTTConnected(d.MQTTStatus.IsConnected())
		}
		if d.Notify != nil {
			for _, c := range changed {
				d.Notify(c.String())
			}
		}
		changed = changed[:0]
	}

	systemEvent := func(event, reason string, retained bool) {
		refresh()
		snap := d.Tracker.Snapshot()
		ev := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      event,
			Reason:     reason,
			Retained:   retained,
			RawPayload: status.FormatStatusEvent(snap, event, reason),
		}
		if err := d.Publisher.PublishSystem(ev); err != nil {
			log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
			return
		}
		log.Info().Str("event", event).Msg("published system event")
	}

	lastHeartbeat := d.Now()
	synced := false
	systemEvent("STARTUP", "", true)

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Info().Str("signal", name).Msg("shutting down")
			systemEvent("SHUTDOWN", name, true)
			return nil

		case in := <-intents:
			log.Info().Stringer("intent", in).Msg("command received")
			engine.Submit(in)
			refresh()

		case t := <-air:
			engine.SetAirTemperature(t)
			refresh()

		case <-tick:
			engine.Loop()

			// Booleans only emit on change, so retained topics left by an
			// earlier run are overwritten once the panel has been heard.
			if !synced {
				if st := engine.State(); st.Frames.Digits > 0 && st.Frames.LEDs >= 2 {
					synced = true
					log.Info().Msg("panel in sync, publishing full state")
					bridge.PublishAll()
				}
			}

			if configRequested {
				configRequested = false
				log.Warn().Msg("configuration requested from the panel")
				systemEvent("CONFIG_REQUEST", "", false)
			}

			if now := d.Now(); d.Heartbeat > 0 && now.Sub(lastHeartbeat) >= d.Heartbeat {
				lastHeartbeat = now
				if net := readNetworkInfo(); net != nil {
					d.Tracker.SetNetwork(net)
				}
				st := engine.State()
				log.Info().
					Bool("power", st.Power).
					Int("temp", st.CurrentTemp).
					Uint32("frames", stats().Frames).
					Uint32("dropped", stats().Dropped).
					Msg("heartbeat")
				systemEvent("HEARTBEAT", "", false)
			}

			refresh()
		}
	}
}
