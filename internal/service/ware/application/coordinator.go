package application

import (
	"context"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/metrics"
	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ReservationCoordinator 为一个订单的多行商品在多个仓库中锁定库存。
// 每行选择第一个预占成功的仓库；某行失败时已锁定的行保持 LOCKED，由订单级对账统一释放。
type ReservationCoordinator struct {
	ledger    domain.Ledger
	journal   domain.Journal
	publisher port.StockEventPublisher
	scheduler port.ReleaseScheduler
	tracer    trace.Tracer
}

// NewReservationCoordinator scheduler 可以为 nil，此时不安排兜底对账
func NewReservationCoordinator(ledger domain.Ledger, journal domain.Journal, publisher port.StockEventPublisher, scheduler port.ReleaseScheduler, tracer trace.Tracer) *ReservationCoordinator {
	return &ReservationCoordinator{ledger: ledger, journal: journal, publisher: publisher, scheduler: scheduler, tracer: tracer}
}

// LockStock 锁定订单的全部商品行。
// 返回的 LockResult 在失败时也会带上工作单和已锁定的明细。
func (c *ReservationCoordinator) LockStock(ctx context.Context, req domain.LockRequest) (*LockResult, error) {
	ctx, span := c.tracer.Start(ctx, "app.LockStock", trace.WithAttributes(
		attribute.String("order.sn", req.OrderSn),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer span.End()
	log := logger.Ctx(ctx).With().Str("order_sn", req.OrderSn).Logger()

	if err := req.Validate(); err != nil {
		metrics.StockLockTotal.WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 1. 无论之后能否锁成功，都先保留一张工作单用于审计
	wo, err := c.journal.OpenWorkOrder(ctx, req.OrderSn)
	if err != nil {
		return nil, c.fail(span, err)
	}
	result := &LockResult{TaskID: wo.ID, OrderSn: req.OrderSn}
	span.SetAttributes(attribute.Int64("ware.task_id", wo.ID))

	// 2. 兜底对账：即使后续锁定事件丢失，也能按订单释放
	if c.scheduler != nil {
		if err := c.scheduler.ScheduleReleaseCheck(ctx, req.OrderSn); err != nil {
			log.Warn().Err(err).Msg("Failed to schedule release check, relying on stock-locked events")
		}
	}

	// 3. 并发查询每个 SKU 的候选仓库
	candidates, err := c.candidatesOf(ctx, req.Lines)
	if err != nil {
		return result, c.fail(span, err)
	}

	// 4. 逐行锁定，第一个预占成功的仓库胜出
	for _, line := range req.Lines {
		detail, err := c.lockLine(ctx, wo.ID, req.OrderSn, line, candidates[line.SkuID])
		if err != nil {
			if skuID, ok := domain.IsNoStock(err); ok {
				metrics.StockLockTotal.WithLabelValues("no_stock").Inc()
				span.SetAttributes(attribute.Int64("ware.no_stock_sku", skuID))
				span.SetStatus(codes.Error, err.Error())
				log.Info().Int64("sku_id", skuID).Int("locked_lines", len(result.Details)).Msg("No stock for order line")
				return result, err
			}
			return result, c.fail(span, err)
		}
		result.Details = append(result.Details, *detail)
	}

	metrics.StockLockTotal.WithLabelValues("success").Inc()
	log.Info().Int64("task_id", wo.ID).Int("lines", len(result.Details)).Msg("Order stock locked")
	return result, nil
}

func (c *ReservationCoordinator) candidatesOf(ctx context.Context, lines []domain.LockLine) (map[int64][]int64, error) {
	skus := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.SkuID] {
			seen[l.SkuID] = true
			skus = append(skus, l.SkuID)
		}
	}

	found := make([][]int64, len(skus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, skuID := range skus {
		i, skuID := i, skuID
		g.Go(func() error {
			wares, err := c.ledger.CandidateWarehouses(gctx, skuID)
			found[i] = wares
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int64][]int64, len(skus))
	for i, skuID := range skus {
		out[skuID] = found[i]
	}
	return out, nil
}

func (c *ReservationCoordinator) lockLine(ctx context.Context, taskID int64, orderSn string, line domain.LockLine, wares []int64) (*domain.WorkOrderDetail, error) {
	if len(wares) == 0 {
		return nil, &domain.NoStockError{SkuID: line.SkuID}
	}

	for _, wareID := range wares {
		ok, err := c.ledger.Reserve(ctx, line.SkuID, wareID, line.Count)
		if err != nil {
			metrics.ReserveAttemptsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if !ok {
			// 候选列表是快照，这里被并发订单抢先了，试下一个仓库
			metrics.ReserveAttemptsTotal.WithLabelValues("insufficient").Inc()
			continue
		}
		metrics.ReserveAttemptsTotal.WithLabelValues("reserved").Inc()

		detail, err := c.journal.RecordLock(ctx, domain.WorkOrderDetail{
			TaskID:  taskID,
			SkuID:   line.SkuID,
			SkuName: line.SkuName,
			WareID:  wareID,
			SkuNum:  line.Count,
		})
		if err != nil {
			// 没有明细的预占永远不会被对账释放，这里立即归还
			if rerr := c.ledger.Release(ctx, line.SkuID, wareID, line.Count); rerr != nil {
				logger.Ctx(ctx).Error().Err(rerr).Int64("sku_id", line.SkuID).Int64("ware_id", wareID).
					Msg("CRITICAL: failed to release reservation after journal write failure")
			}
			return nil, err
		}

		event := domain.StockLocked{
			TaskID:   taskID,
			DetailID: detail.ID,
			OrderSn:  orderSn,
			SkuID:    detail.SkuID,
			WareID:   detail.WareID,
			SkuNum:   detail.SkuNum,
		}
		if err := c.publisher.PublishStockLocked(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("detail_id", detail.ID).
				Msg("Failed to publish stock-locked event, release check will cover it")
		}
		return detail, nil
	}
	return nil, &domain.NoStockError{SkuID: line.SkuID}
}

func (c *ReservationCoordinator) fail(span trace.Span, err error) error {
	metrics.StockLockTotal.WithLabelValues("error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
