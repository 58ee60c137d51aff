package interfaces

import (
	"context"
	"sync"
	"sync/atomic"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/metrics"
	"nexus-ware/internal/pkg/mq"

	"github.com/segmentio/kafka-go"
)

// DltConsumerAdapter 监听死信队列并记录日志
type DltConsumerAdapter struct {
	reader  MessageReader
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewDltConsumerAdapter(reader MessageReader) *DltConsumerAdapter {
	return &DltConsumerAdapter{reader: reader}
}

func (a *DltConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ DLT Consumer Adapter started.")
		for {
			if a.stopped.Load() {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					logger.Ctx(ctx).Info().Msg("🛑 DLT Consumer Adapter shutting down.")
					return
				}
				continue
			}

			logDeadLetter(ctx, msg)

			// DLT 中的消息记录日志后即视为已处理
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit dead letter")
			}
		}
	}()
	return nil
}

func (a *DltConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ DLT Consumer Adapter stopped.")
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	originalTopic := mq.GetHeader(msg.Headers, mq.HeaderOriginalTopic)
	metrics.DeadLettersTotal.WithLabelValues(originalTopic).Inc()

	logger.Ctx(mq.ExtractTraceContext(ctx, msg.Headers)).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", originalTopic).
		Str("original_partition", mq.GetHeader(msg.Headers, mq.HeaderOriginalPartition)).
		Str("original_offset", mq.GetHeader(msg.Headers, mq.HeaderOriginalOffset)).
		Str("exception_fqcn", mq.GetHeader(msg.Headers, mq.HeaderExceptionFqcn)).
		Str("exception_message", mq.GetHeader(msg.Headers, mq.HeaderExceptionMessage)).
		Str("retry_count", mq.GetHeader(msg.Headers, mq.HeaderRetryCount)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
}
