package mq

import (
	"context"
	"fmt"
	"strconv"

	"nexus-ware/internal/pkg/logger"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// DLTSuffix 是死信主题的后缀，<topic>.dlt
const DLTSuffix = ".dlt"

// FailureHandler 处理消费失败的消息：可重试的错误经延迟主题重新投递，
// 超过最大重试次数或不可重试的错误进入死信主题。
type FailureHandler struct {
	writer      MessageWriter
	retryTopic  string
	maxRetries  int
	isRetryable func(err error) bool
}

// NewFailureHandler 创建失败处理器。writer 不应绑定固定 Topic。
// isRetryable 为 nil 时所有错误都视为可重试。
func NewFailureHandler(writer MessageWriter, retryTopic string, maxRetries int, isRetryable func(err error) bool) *FailureHandler {
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}
	return &FailureHandler{
		writer:      writer,
		retryTopic:  retryTopic,
		maxRetries:  maxRetries,
		isRetryable: isRetryable,
	}
}

// Handle 将失败的消息转发到重试或死信主题
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) error {
	retries := RetryCount(msg.Headers)
	log := logger.Ctx(ctx).With().
		Str("topic", msg.Topic).
		Int64("offset", msg.Offset).
		Int("retries", retries).
		Logger()

	if h.isRetryable(cause) && retries < h.maxRetries && h.retryTopic != "" {
		retryMsg := kafka.Message{
			Topic:   h.retryTopic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: CloneHeaders(msg.Headers, HeaderRealTopic, HeaderRetryCount),
		}
		SetHeader(&retryMsg.Headers, HeaderRealTopic, msg.Topic)
		SetHeader(&retryMsg.Headers, HeaderRetryCount, strconv.Itoa(retries+1))
		if err := h.writer.WriteMessages(ctx, retryMsg); err != nil {
			log.Error().Err(err).Msg("Failed to schedule retry")
			return errors.Wrap(err, "schedule retry")
		}
		log.Warn().Err(cause).Str("retry_topic", h.retryTopic).Msg("Message scheduled for retry")
		return nil
	}

	dltMsg := kafka.Message{
		Topic:   msg.Topic + DLTSuffix,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: CloneHeaders(msg.Headers, HeaderRealTopic),
	}
	SetHeader(&dltMsg.Headers, HeaderOriginalTopic, msg.Topic)
	SetHeader(&dltMsg.Headers, HeaderOriginalPartition, strconv.Itoa(msg.Partition))
	SetHeader(&dltMsg.Headers, HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	SetHeader(&dltMsg.Headers, HeaderExceptionFqcn, fmt.Sprintf("%T", errors.Cause(cause)))
	SetHeader(&dltMsg.Headers, HeaderExceptionMessage, cause.Error())
	if err := h.writer.WriteMessages(ctx, dltMsg); err != nil {
		log.Error().Err(err).Msg("Failed to publish to DLT")
		return errors.Wrap(err, "publish dead letter")
	}
	log.Error().Err(cause).Str("dlt_topic", dltMsg.Topic).Msg("Message moved to DLT")
	return nil
}
