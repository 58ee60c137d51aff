// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nexus-ware/internal/pkg/bootstrap"
	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/mq"
	"nexus-ware/internal/pkg/tracing"
)

const (
	serviceName  = "delay-scheduler"
	pollInterval = time.Second
)

// delay-scheduler 为每个延迟级别启动一个轮询器，把到期消息转投到 real-topic
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		logger.Init(serviceName, "info")
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level)
	log := logger.Ctx(context.Background())

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 所有级别共用一个不绑定 Topic 的 writer
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, "")

	var wg sync.WaitGroup
	for level, delay := range mq.DelayLevels {
		reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, level, serviceName+"-group-"+level)
		scheduler := mq.NewDelayScheduler(level, delay, reader, writer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx, pollInterval)
		}()
	}

	log.Info().Int("levels", len(mq.DelayLevels)).Msg("All polling schedulers are running.")
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close kafka writer")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}
	log.Info().Msg("Delay scheduler stopped.")
}
