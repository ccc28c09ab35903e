package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"rtdrelay/internal/application/port"
	"rtdrelay/internal/application/usecase/relay"
	"rtdrelay/internal/infrastructure/config"
	"rtdrelay/internal/infrastructure/logger"
	"rtdrelay/internal/infrastructure/provider/bridge"
	"rtdrelay/internal/interfaces/console"
)

const workerJoinTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := relay.NewSnapshotQueue()

	opts := relay.Options{
		InitialHeartbeat: cfg.InitialHeartbeat(),
		SteadyHeartbeat:  cfg.SteadyHeartbeat(),
		UpdateInterval:   cfg.UpdateInterval(),
		PollYield:        cfg.PollYield(),
		SettleDelay:      cfg.SettleDelay(),
		RetryAttempts:    cfg.Timing.RetryAttempts,
		RetryDelay:       cfg.RetryDelay(),
		DerivativeFields: relay.DerivativeFieldSet(
			cfg.Fields.Delta, cfg.Fields.Vega, cfg.Fields.Theta, cfg.Fields.Volume),
	}

	worker := relay.NewWorker(relay.WorkerDeps{
		NewProvider: func() port.Provider {
			return bridge.New(bridge.Config{
				URL:          cfg.Provider.BridgeURL,
				DialTimeout:  cfg.DialTimeout(),
				WriteTimeout: cfg.WriteTimeout(),
				CallTimeout:  cfg.CallTimeout(),
			})
		},
		Sink:    queue,
		Options: opts,
	})

	// The worker owns its session on a dedicated goroutine; the consumer runs
	// on this one.
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Start(ctx, cfg.Symbols.List)
	}()

	if err := console.NewConsumer(queue).Run(ctx); err != nil {
		log.Error().Err(err).Msg("consumer stopped")
	}

	// Bounded join: proceed with best-effort cleanup rather than hang on a
	// wedged provider.
	select {
	case <-done:
	case <-time.After(workerJoinTimeout):
		log.Warn().Msg("worker did not stop in time")
	}
}
