// Command duckd attaches to a running JACK (or PipeWire-JACK) server and
// ducks a secondary stereo stream under a primary one: when the primary
// carries signal above the threshold, the secondary is attenuated with
// smoothed attack/release ramps. A small HTTP API with a WebSocket push
// channel exposes settings, status and live metering.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/carpi-audio/duckd/pkg/api"
	"github.com/carpi-audio/duckd/pkg/ducker"
	"github.com/carpi-audio/duckd/pkg/host"
)

var version = "dev"

type cli struct {
	Settings         string           `help:"Path to the persisted settings file." default:"~/.config/duckd/settings.json" type:"path"`
	Listen           string           `help:"Control-plane HTTP listen address." default:":8080"`
	ClientName       string           `help:"JACK client name." default:"AudioDucker"`
	LogLevel         string           `help:"Log level." default:"info" enum:"debug,info,warn,error"`
	LogJSON          bool             `help:"Emit logs as JSON."`
	MetricsInterval  time.Duration    `help:"Metering publication interval." default:"10ms"`
	StatusInterval   time.Duration    `help:"Status publication interval." default:"1s"`
	WatchdogInterval time.Duration    `help:"Port-routing watchdog interval." default:"10s"`
	Version          kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var flags cli
	kong.Parse(&flags,
		kong.Name("duckd"),
		kong.Description("Real-time audio ducking daemon for JACK/PipeWire."),
		kong.Vars{"version": version},
	)

	log := logrus.New()
	if flags.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(flags.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	store := ducker.NewStore(flags.Settings, log)

	client, err := host.OpenJack(flags.ClientName, log)
	if err != nil {
		// No audio server is an expected condition on boot; exit cleanly so
		// the service manager retries on its own schedule instead of
		// treating the unit as failed.
		log.WithError(err).Error("Audio server unavailable")
		os.Exit(0)
	}

	router := host.NewRouter(client, host.DefaultConnections(flags.ClientName), log)
	hub := api.NewHub(log)

	duck, err := ducker.New(ducker.Config{
		Host:            client,
		Store:           store,
		Router:          router,
		Log:             log,
		MetricsInterval: flags.MetricsInterval,
		StatusInterval:  flags.StatusInterval,
		WatchInterval:   flags.WatchdogInterval,
		Hooks: ducker.Hooks{
			OnMetrics: func(s ducker.Snapshot) { hub.Broadcast("metrics", s) },
			OnStatus:  func(s ducker.Status) { hub.Broadcast("status", s) },
		},
	})
	if err != nil {
		log.WithError(err).Error("Could not build ducker")
		client.Close()
		os.Exit(1)
	}

	if err := duck.Start(); err != nil {
		log.WithError(err).Error("Could not start ducker")
		client.Close()
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    flags.Listen,
		Handler: api.NewServer(store, duck, router, hub, log),
	}
	go func() {
		log.WithField("listen", flags.Listen).Info("Control-plane API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.WithField("signal", received.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP shutdown did not complete")
	}

	if err := duck.Stop(); err != nil {
		log.WithError(err).Warn("Stop failed")
	}
}
