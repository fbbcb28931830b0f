// Command ledger-api serves the account ledger REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"account-ledger/pkg/api"
	"account-ledger/pkg/config"
	"account-ledger/pkg/events"
	"account-ledger/pkg/events/kafka"
	"account-ledger/pkg/events/nats"
	"account-ledger/pkg/events/redis"
	"account-ledger/pkg/ledger"
	"account-ledger/pkg/ledger/memory"
	"account-ledger/pkg/logging"
	"account-ledger/pkg/metrics"
	memorycollector "account-ledger/pkg/metrics/memory"
	promcollector "account-ledger/pkg/metrics/prometheus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $LEDGER_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger-api: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger-api: logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("ledger-api stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, serverConfig, err := setupMetrics(cfg)
	if err != nil {
		return err
	}

	accounts := memory.NewAccountStore(memory.AccountStoreConfig{MaxAccounts: cfg.Ledger.MaxAccounts})
	transactions := memory.NewTransactionLedger(memory.TransactionLedgerConfig{MaxTransactions: cfg.Ledger.MaxTransactions})
	defer accounts.Close()
	defer transactions.Close()

	dispatcher, err := setupEvents(cfg.Events, collector, logger)
	if err != nil {
		return err
	}

	coreConfig := ledger.CoreConfig{
		StrictOpening: cfg.Ledger.StrictOpening,
		Metrics:       collector,
		Logger:        logger.Named("ledger"),
	}
	if dispatcher != nil {
		coreConfig.Observer = dispatcher
	}
	core := ledger.NewCore(accounts, transactions, coreConfig)

	server := api.NewServer(core, collector, logger, serverConfig)

	logger.Info("ledger-api starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("events_sink", cfg.Events.Sink),
		zap.Bool("strict_opening", cfg.Ledger.StrictOpening),
		zap.Bool("prometheus", cfg.Metrics.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	serveErr := g.Wait()

	if dispatcher != nil {
		if err := dispatcher.Flush(cfg.Events.Dispatcher.FlushTimeout); err != nil {
			logger.Warn("event flush incomplete", zap.Error(err), zap.Int64("in_flight", dispatcher.Stats().InFlight()))
		}
		if err := dispatcher.Close(); err != nil {
			logger.Warn("event dispatcher close", zap.Error(err))
		}
	}

	logger.Info("ledger-api stopped",
		zap.Int("accounts", accounts.Len()),
		zap.Int("transactions", transactions.Len()),
	)
	return serveErr
}

// setupMetrics picks the collector and builds the server config around it.
func setupMetrics(cfg config.Config) (metrics.MetricsCollector, api.ServerConfig, error) {
	serverConfig := api.ServerConfig{
		Address:        cfg.Server.Addr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		EnablePprof:    cfg.Server.EnablePprof,
	}

	if !cfg.Metrics.Enabled {
		return memorycollector.NewMemoryCollector(), serverConfig, nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := promcollector.NewPrometheusCollector(cfg.Metrics.Namespace)
	if err := collector.Register(registry); err != nil {
		return nil, api.ServerConfig{}, fmt.Errorf("register metrics: %w", err)
	}
	serverConfig.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	return collector, serverConfig, nil
}

// setupEvents builds sink -> circuit breaker -> dispatcher. Sink "none"
// returns a nil dispatcher.
func setupEvents(cfg config.EventsConfig, collector metrics.MetricsCollector, logger *logging.Logger) (*events.Dispatcher, error) {
	var (
		sink events.Publisher
		err  error
	)

	switch cfg.Sink {
	case config.SinkNone:
		logger.Info("transaction events disabled")
		return nil, nil
	case config.SinkLog:
		sink = events.NewLogPublisher(logger.Named("events"))
	case config.SinkKafka:
		sink, err = kafka.NewPublisher(cfg.Kafka)
	case config.SinkNATS:
		sink, err = nats.NewPublisher(cfg.NATS)
	case config.SinkRedis:
		sink, err = redis.NewPublisher(cfg.Redis)
	default:
		err = errors.New("unknown sink")
	}
	if err != nil {
		return nil, fmt.Errorf("events sink %s: %w", cfg.Sink, err)
	}

	resilient := events.NewResilientPublisher(sink, cfg.Resilience, collector)

	dispatcherConfig := cfg.DispatcherSettings()
	dispatcherConfig.Metrics = collector
	dispatcherConfig.Logger = logger.Named("events")
	return events.NewDispatcher(resilient, dispatcherConfig), nil
}
