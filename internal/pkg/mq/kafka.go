package mq

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// 消息头约定
const (
	HeaderRealTopic  = "real-topic"   // 延迟主题中的消息到期后投递的目标主题
	HeaderRetryCount = "x-retry-count" // 已重试次数
	HeaderEventID    = "x-event-id"

	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
)

// MessageWriter 是 *kafka.Writer 的最小抽象，便于测试替换
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter 创建一个 writer。topic 为空时由每条消息自己指定 Topic。
// 按 Key 哈希分区，保证同一订单的消息有序。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewKafkaReader 创建一个消费组 reader，offset 由调用方手动提交
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

// KafkaHeaderCarrier 让 otel propagator 可以读写 Kafka 消息头
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

// InjectTraceContext 将 ctx 中的追踪上下文写入消息头
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	*headers = carrier
}

// ExtractTraceContext 从消息头中恢复追踪上下文
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// GetHeader 读取消息头，不存在时返回空串
func GetHeader(headers []kafka.Header, key string) string {
	c := KafkaHeaderCarrier(headers)
	return c.Get(key)
}

// SetHeader 设置消息头，已存在时覆盖
func SetHeader(headers *[]kafka.Header, key, value string) {
	c := KafkaHeaderCarrier(*headers)
	c.Set(key, value)
	*headers = c
}

// RetryCount 读取消息已重试的次数
func RetryCount(headers []kafka.Header) int {
	n, err := strconv.Atoi(GetHeader(headers, HeaderRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// CloneHeaders 复制消息头，跳过 skip 中列出的 key
func CloneHeaders(headers []kafka.Header, skip ...string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
outer:
	for _, h := range headers {
		for _, k := range skip {
			if h.Key == k {
				continue outer
			}
		}
		out = append(out, kafka.Header{Key: h.Key, Value: append([]byte(nil), h.Value...)})
	}
	return out
}
