package interfaces

import (
	"context"
	"encoding/json"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/service/ware/application"
	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ReleaseCheckConsumer 监听按订单的兜底对账信号
type ReleaseCheckConsumer struct {
	consumerLoop
	reconciler *application.Reconciler
}

func NewReleaseCheckConsumer(reader MessageReader, reconciler *application.Reconciler, failureHandler FailureHandler) *ReleaseCheckConsumer {
	c := &ReleaseCheckConsumer{reconciler: reconciler}
	c.consumerLoop = consumerLoop{
		name:           "release-check",
		reader:         reader,
		failureHandler: failureHandler,
		process:        c.processMessage,
	}
	return c
}

func (c *ReleaseCheckConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.StockReleaseCheck
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrapf(ErrMalformedEvent, "release check event: %v", err)
	}
	if event.OrderSn == "" {
		return errors.Wrap(ErrMalformedEvent, "release check event without order sn")
	}

	summary, err := c.reconciler.UnlockOrder(ctx, event.OrderSn)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Str("order_sn", summary.OrderSn).
		Int("released", summary.Released).
		Int("kept", summary.Kept).
		Int("skipped", summary.Skipped).
		Msg("Release check completed")
	return nil
}
