package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"nexus-ware/internal/pkg/mq"
	"nexus-ware/internal/service/ware/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// StockEventTopics 描述事件的真实主题和承载延迟的延迟主题。
// 延迟主题为空时直接写入真实主题。
type StockEventTopics struct {
	StockLocked       string
	StockLockedDelay  string
	ReleaseCheck      string
	ReleaseCheckDelay string
}

// StockEventKafkaAdapter 实现了 port.StockEventPublisher 和 port.ReleaseScheduler。
// 消息先写入延迟主题，由 delay-scheduler 到期后按 real-topic 头转投。
type StockEventKafkaAdapter struct {
	writer mq.MessageWriter
	topics StockEventTopics
}

// NewStockEventKafkaAdapter writer 不绑定 Topic，每条消息自带目标主题
func NewStockEventKafkaAdapter(writer mq.MessageWriter, topics StockEventTopics) *StockEventKafkaAdapter {
	return &StockEventKafkaAdapter{writer: writer, topics: topics}
}

func (a *StockEventKafkaAdapter) PublishStockLocked(ctx context.Context, event domain.StockLocked) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return a.send(ctx, a.topics.StockLocked, a.topics.StockLockedDelay, event.OrderSn, event.EventID, event)
}

func (a *StockEventKafkaAdapter) ScheduleReleaseCheck(ctx context.Context, orderSn string) error {
	event := domain.StockReleaseCheck{EventID: uuid.NewString(), OrderSn: orderSn}
	return a.send(ctx, a.topics.ReleaseCheck, a.topics.ReleaseCheckDelay, orderSn, event.EventID, event)
}

func (a *StockEventKafkaAdapter) send(ctx context.Context, realTopic, delayTopic, key, eventID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal stock event")
	}

	msg := kafka.Message{
		Topic: realTopic,
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: mq.HeaderEventID, Value: []byte(eventID)},
		},
	}
	if delayTopic != "" {
		msg.Topic = delayTopic
		mq.SetHeader(&msg.Headers, mq.HeaderRealTopic, realTopic)
		mq.SetHeader(&msg.Headers, mq.HeaderRetryCount, strconv.Itoa(0))
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", msg.Topic)
	}
	return nil
}
