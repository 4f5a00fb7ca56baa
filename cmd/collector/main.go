package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/collector"
	"github.com/pior/collector/internal/logging"
	"github.com/pior/collector/internal/promexporter"
	"github.com/pior/collector/internal/report"
	"github.com/pior/collector/wire"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML configuration file")
		addr        = flag.String("addr", "", "Listen address, overrides the configuration")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address, overrides the configuration")
		grace       = flag.Duration("shutdown-timeout", 10*time.Second, "Time allowed for connections to drain on shutdown")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *addr, *metricsAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New("collector", cfg.Log)

	if err := run(cfg, logger, *grace); err != nil {
		logger.Error().Err(err).Msg("collector failed")
		os.Exit(1)
	}
}

func loadConfig(path, addr, metricsAddr string) (collector.Config, error) {
	cfg := collector.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = collector.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, cfg.Validate()
}

func newMux(agg *report.Aggregator) *collector.Mux {
	mux := collector.NewMux()
	mux.HandleFunc(wire.CmdPing, func(_ context.Context, req *collector.Request) error {
		seq, _ := req.Message.Value(wire.KeySeq)
		return req.Reply(wire.CmdPong, wire.KeySeq, seq)
	})
	mux.Handle(wire.CmdReport, agg)
	return mux
}

func run(cfg collector.Config, logger zerolog.Logger, grace time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := report.NewAggregator()

	var srv *collector.Server
	exporter := promexporter.NewExporter(func() collector.ServerStats { return srv.Stats() })
	exporter.Registry().MustRegister(agg)

	srv, err := collector.NewServer(cfg, newMux(agg),
		collector.WithLogger(logger),
		collector.WithBreakerListener(func(_ string, from, to gobreaker.State) {
			exporter.ServerMetrics().RecordBreakerTransition(from.String(), to.String())
		}),
	)
	if err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
			if err := exporter.ListenAndServe(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	// Signals go through Shutdown so that connections can drain.
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe(context.WithoutCancel(ctx)) }()

	select {
	case err := <-served:
		if !errors.Is(err, collector.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("connections force-closed")
	}

	stats := srv.Stats()
	logger.Info().
		Uint64("accepted", stats.AcceptedConns).
		Uint64("messages", stats.Messages).
		Uint64("malformed", stats.Malformed).
		Int("sources", len(agg.Sources())).
		Msg("collector stopped")
	return nil
}
