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

// StockLockedConsumer 监听到期的库存锁定事件，对单条明细做对账
type StockLockedConsumer struct {
	consumerLoop
	reconciler *application.Reconciler
}

func NewStockLockedConsumer(reader MessageReader, reconciler *application.Reconciler, failureHandler FailureHandler) *StockLockedConsumer {
	c := &StockLockedConsumer{reconciler: reconciler}
	c.consumerLoop = consumerLoop{
		name:           "stock-locked",
		reader:         reader,
		failureHandler: failureHandler,
		process:        c.processMessage,
	}
	return c
}

func (c *StockLockedConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.StockLocked
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrapf(ErrMalformedEvent, "stock locked event: %v", err)
	}
	if event.DetailID <= 0 {
		return errors.Wrap(ErrMalformedEvent, "stock locked event without detail id")
	}

	outcome, err := c.reconciler.ReconcileDetail(ctx, event)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Str("order_sn", event.OrderSn).
		Int64("detail_id", event.DetailID).
		Str("outcome", string(outcome)).
		Msg("Stock locked event reconciled")
	return nil
}
