package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Foundation42/SystemX/internal/config"
	"github.com/Foundation42/SystemX/internal/federation"
	"github.com/Foundation42/SystemX/internal/heartbeat"
	"github.com/Foundation42/SystemX/internal/logbroadcast"
	"github.com/Foundation42/SystemX/internal/logging"
	"github.com/Foundation42/SystemX/internal/router"
	"github.com/Foundation42/SystemX/internal/transport"
	"github.com/Foundation42/SystemX/internal/wake"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides SYSTEMX_HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides SYSTEMX_LOG_LEVEL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("systemx %s (commit=%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel)
	log.Info().Str("version", version).Str("commit", commit).Msg("systemx starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerCfg := router.Config{
		CallRingingTimeout:        cfg.CallRingingTimeout,
		HeartbeatInterval:         cfg.HeartbeatInterval,
		HeartbeatTimeout:          cfg.HeartbeatTimeout,
		DialRateMaxAttempts:       cfg.DialRateMaxAttempts,
		DialRateWindow:            cfg.DialRateWindow,
		DefaultSleepPendingWindow: cfg.DefaultSleepPendingWindow,
	}
	executor := wake.NewDispatcher(log.With().Str("component", "wake").Logger())
	r := router.New(routerCfg, log.With().Str("component", "router").Logger(), executor)
	defer r.Shutdown()

	sweeper := heartbeat.New(cfg.HeartbeatInterval, cfg.HeartbeatTimeout, r.Registry(), r, log.With().Str("component", "heartbeat").Logger())
	go sweeper.Run()
	defer sweeper.Stop()

	if cfg.LogBroadcastEnabled {
		sink := logbroadcast.New(r, cfg.LogBroadcastAddress, 0)
		defer sink.Close()
		log = zerolog.New(logging.NewFanOut(os.Stdout, sink)).With().Timestamp().Logger().Level(log.GetLevel())
		log.Info().Str("address", cfg.LogBroadcastAddress).Msg("log broadcast enabled")
	}

	peers, err := loadFederationPeers(cfg.FederationPeersFile)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load federation peers file; continuing without federation")
	}
	var activePeers []*federation.Peer
	for _, pc := range peers {
		p := federation.New(pc, r, log.With().Str("component", "federation").Logger())
		activePeers = append(activePeers, p)
		go p.Run()
	}
	defer func() {
		for _, p := range activePeers {
			p.Stop()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/signal", func(w http.ResponseWriter, req *http.Request) {
		transport.Serve(r, log, w, req)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("signaling server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("signaling server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func loadFederationPeers(path string) ([]federation.Config, error) {
	if path == "" {
		return nil, nil
	}
	return federation.LoadPeersFile(path)
}
