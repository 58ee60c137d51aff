package interfaces

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/mq"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrMalformedEvent 表示消息体无法解析，重试没有意义，直接进入死信
var ErrMalformedEvent = errors.New("malformed event payload")

// IsRetryable 供 FailureHandler 判断错误是否值得重试
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrMalformedEvent)
}

// MessageReader 是消费者依赖的 kafka.Reader 子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// FailureHandler 接收处理失败的消息，转发到重试或死信主题
type FailureHandler interface {
	Handle(ctx context.Context, msg kafka.Message, cause error) error
}

const (
	defaultForwardBackoff = 500 * time.Millisecond
	maxForwardBackoff     = 30 * time.Second
)

// consumerLoop 是所有业务消费者共用的拉取循环：
// 提取 trace 上下文，处理失败交给 FailureHandler，移交成功后才提交 Offset。
type consumerLoop struct {
	name           string
	reader         MessageReader
	failureHandler FailureHandler
	process        func(ctx context.Context, msg kafka.Message) error
	// forwardBackoff 是转发失败后的首次等待时间，之后翻倍，为 0 时使用默认值
	forwardBackoff time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
	cancel  context.CancelFunc
}

func (c *consumerLoop) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("consumer", c.name).Str("topic", c.reader.Config().Topic).Msg("✅ Kafka Consumer Adapter started.")
		for {
			if c.stopped.Load() {
				return
			}
			// 使用 FetchMessage 而不是 ReadMessage，以便自己控制提交
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || c.stopped.Load() {
					logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("🛑 Kafka Consumer Adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("Could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}
			c.handle(ctx, msg)
		}
	}()
	return nil
}

func (c *consumerLoop) handle(ctx context.Context, msg kafka.Message) {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)

	if processingErr := c.process(msgCtx, msg); processingErr != nil {
		if !c.forward(msgCtx, msg, processingErr) {
			return
		}
	}

	// 处理成功或已移交到重试/死信主题后才提交 Offset
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(msgCtx).Error().Err(err).Str("consumer", c.name).Msg("Failed to commit messages")
	}
}

// forward 把失败消息交给 FailureHandler，失败时退避重试同一条消息，不去拉取后续消息。
// 后续消息的提交会越过这条消息的 Offset，所以移交成功之前不能继续消费。
// 只有 ctx 结束时返回 false，此时不提交，消息在重平衡或重启后重新投递。
func (c *consumerLoop) forward(ctx context.Context, msg kafka.Message, cause error) bool {
	backoff := c.forwardBackoff
	if backoff <= 0 {
		backoff = defaultForwardBackoff
	}
	for attempt := 1; ; attempt++ {
		err := c.failureHandler.Handle(ctx, msg, cause)
		if err == nil {
			return true
		}
		logger.Ctx(ctx).Error().Err(err).
			Str("consumer", c.name).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Failure handler could not forward message, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
		if backoff *= 2; backoff > maxForwardBackoff {
			backoff = maxForwardBackoff
		}
	}
}

func (c *consumerLoop) Stop(ctx context.Context) {
	c.stopped.Store(true)
	if c.cancel != nil {
		c.cancel()
	}
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("✅ Kafka Consumer Adapter stopped.")
}
