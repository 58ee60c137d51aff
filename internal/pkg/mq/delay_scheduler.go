package mq

import (
	"context"
	"time"

	"nexus-ware/internal/pkg/logger"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DelayLevels 是支持的延迟级别和对应的延迟主题
var DelayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_10m": 10 * time.Minute,
}

// DelayReader 是延迟调度器依赖的 kafka.Reader 子集
type DelayReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DelayScheduler 轮询一个延迟主题，消息到期 (msg.Time + delay) 后按 real-topic 头投递到真实主题。
// 同一分区内消息按时间有序，队头未到期时后面的消息也不会到期。
type DelayScheduler struct {
	level  string
	delay  time.Duration
	reader DelayReader
	writer MessageWriter
	tracer trace.Tracer
	now    func() time.Time

	// pending 是已取出但尚未投递的队头消息，下次轮询优先处理
	pending *kafka.Message
}

// NewDelayScheduler writer 不应绑定固定 Topic
func NewDelayScheduler(level string, delay time.Duration, reader DelayReader, writer MessageWriter) *DelayScheduler {
	return &DelayScheduler{
		level:  level,
		delay:  delay,
		reader: reader,
		writer: writer,
		tracer: otel.Tracer("delay-scheduler"),
		now:    time.Now,
	}
}

// Run 按 interval 轮询，直到 ctx 结束
func (s *DelayScheduler) Run(ctx context.Context, interval time.Duration) {
	logger.Ctx(ctx).Info().Str("level", s.level).Dur("interval", interval).Msg("✅ Polling scheduler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.reader.Close()

	for {
		select {
		case <-ticker.C:
			s.CheckAndPublish(ctx, interval)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Str("level", s.level).Msg("🛑 Shutting down polling scheduler")
			return
		}
	}
}

// CheckAndPublish 投递所有已到期的消息，遇到未到期的队头或投递失败时返回。
// fetchTimeout 限制一次拉取的等待时间，主题为空时不会一直阻塞。
func (s *DelayScheduler) CheckAndPublish(ctx context.Context, fetchTimeout time.Duration) {
	for {
		msg, ok := s.next(ctx, fetchTimeout)
		if !ok {
			return
		}

		deliveryTime := msg.Time.Add(s.delay)
		if s.now().Before(deliveryTime) {
			s.pending = &msg
			return
		}

		if !s.deliver(ctx, msg) {
			s.pending = &msg
			return
		}
		s.pending = nil
	}
}

func (s *DelayScheduler) next(ctx context.Context, fetchTimeout time.Duration) (kafka.Message, bool) {
	if s.pending != nil {
		return *s.pending, true
	}
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	msg, err := s.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("Failed to fetch delayed message")
		}
		return kafka.Message{}, false
	}
	return msg, true
}

// deliver 投递并提交一条到期消息，返回 false 表示需要下次重试
func (s *DelayScheduler) deliver(parentCtx context.Context, msg kafka.Message) bool {
	ctx, span := s.tracer.Start(ExtractTraceContext(parentCtx, msg.Headers), "scheduler.CheckAndPublish", trace.WithAttributes(
		attribute.String("delay.level", s.level),
		attribute.String("msg.time", msg.Time.Format(time.DateTime)),
	))
	defer span.End()
	log := logger.Ctx(ctx).With().Str("level", s.level).Int64("offset", msg.Offset).Logger()

	realTopic := GetHeader(msg.Headers, HeaderRealTopic)
	if realTopic == "" {
		// 无法投递的消息也要提交，否则会一直被重复消费
		log.Error().Msg("'real-topic' header missing, skipping message")
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to commit message after skipping")
			return false
		}
		return true
	}

	// 保留除 real-topic 外的所有头，重试次数和事件 ID 随消息一起到达真实主题
	publishMsg := kafka.Message{
		Topic:   realTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: CloneHeaders(msg.Headers, HeaderRealTopic),
	}
	InjectTraceContext(ctx, &publishMsg.Headers)

	if err := s.writer.WriteMessages(ctx, publishMsg); err != nil {
		log.Error().Err(err).Str("real_topic", realTopic).Msg("Failed to publish to real topic")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish to real topic")
		return false
	}
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		// 已经投递成功，下游按明细状态去重，重复投递无害
		log.Error().Err(err).Msg("Failed to commit message after successful publish")
		span.RecordError(err)
	}
	span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
	log.Info().Str("real_topic", realTopic).Msg("Delayed message published")
	return true
}
