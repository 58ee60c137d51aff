package application

import (
	"context"
	"fmt"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/metrics"
	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/domain/port"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	triggerEvent = "event"
	triggerOrder = "order"
)

// Reconciler 根据订单服务的权威状态决定释放或保留预占。
// 事件触发和兜底触发走同一套判定，并且都在订单级互斥区内执行，重复投递不会重复释放。
type Reconciler struct {
	ledger        domain.Ledger
	journal       domain.Journal
	orders        port.OrderService
	policy        port.ReleasePolicy
	locker        port.Locker
	lookupTimeout time.Duration
	tracer        trace.Tracer
}

func NewReconciler(ledger domain.Ledger, journal domain.Journal, orders port.OrderService, policy port.ReleasePolicy, locker port.Locker, lookupTimeout time.Duration, tracer trace.Tracer) *Reconciler {
	return &Reconciler{
		ledger:        ledger,
		journal:       journal,
		orders:        orders,
		policy:        policy,
		locker:        locker,
		lookupTimeout: lookupTimeout,
		tracer:        tracer,
	}
}

// ReconcileDetail 处理一条 stock-locked 事件。明细以日志中的记录为准，事件只提供 detailID。
func (r *Reconciler) ReconcileDetail(ctx context.Context, event domain.StockLocked) (Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "app.ReconcileDetail", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.Int64("ware.detail_id", event.DetailID)))
	defer span.End()

	detail, err := r.journal.FindDetail(ctx, event.DetailID)
	if errors.Is(err, domain.ErrDetailNotFound) {
		// 明细不存在说明锁库存的本地事务没有落库，没有需要释放的预占
		r.observe(triggerEvent, OutcomeSkipped)
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", r.fail(span, err)
	}
	if !detail.IsLocked() {
		r.observe(triggerEvent, OutcomeSkipped)
		return OutcomeSkipped, nil
	}

	wo, err := r.journal.FindWorkOrder(ctx, detail.TaskID)
	if err != nil {
		return "", r.fail(span, err)
	}
	span.SetAttributes(attribute.String("order.sn", wo.OrderSn))

	var outcome Outcome
	err = r.withOrderLock(ctx, wo.OrderSn, func(ctx context.Context) error {
		// 拿到锁后重新读取，另一条路径可能刚刚释放过
		current, err := r.journal.FindDetail(ctx, detail.ID)
		if err != nil {
			return err
		}
		if !current.IsLocked() {
			outcome = OutcomeSkipped
			return nil
		}
		snapshot, err := r.lookupOrder(ctx, wo.OrderSn)
		if err != nil {
			return err
		}
		outcome, err = r.settle(ctx, *current, snapshot)
		return err
	})
	if err != nil {
		return "", r.fail(span, err)
	}

	r.observe(triggerEvent, outcome)
	span.SetAttributes(attribute.String("ware.outcome", string(outcome)))
	return outcome, nil
}

// UnlockOrder 对订单的所有工作单中仍为 LOCKED 的明细执行对账，允许 LOCKED / UNLOCKED 混合存在。
func (r *Reconciler) UnlockOrder(ctx context.Context, orderSn string) (*UnlockSummary, error) {
	ctx, span := r.tracer.Start(ctx, "app.UnlockOrder", trace.WithAttributes(attribute.String("order.sn", orderSn)))
	defer span.End()

	summary := &UnlockSummary{OrderSn: orderSn}
	if orderSn == "" {
		return summary, domain.ErrInvalidLockRequest
	}

	err := r.withOrderLock(ctx, orderSn, func(ctx context.Context) error {
		workOrders, err := r.journal.ListWorkOrdersByOrderSn(ctx, orderSn)
		if err != nil {
			return err
		}
		var locked []domain.WorkOrderDetail
		for _, wo := range workOrders {
			details, err := r.journal.ListLocked(ctx, wo.ID)
			if err != nil {
				return err
			}
			locked = append(locked, details...)
		}
		if len(locked) == 0 {
			return nil
		}

		// 同一订单只查询一次状态，查询失败时不做任何变更
		snapshot, err := r.lookupOrder(ctx, orderSn)
		if err != nil {
			return err
		}
		for _, d := range locked {
			outcome, err := r.settle(ctx, d, snapshot)
			if err != nil {
				return err
			}
			summary.add(outcome)
			r.observe(triggerOrder, outcome)
		}
		return nil
	})
	if err != nil {
		return summary, r.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int("ware.released", summary.Released),
		attribute.Int("ware.kept", summary.Kept),
	)
	if summary.Released > 0 {
		logger.Ctx(ctx).Info().Str("order_sn", orderSn).Int("released", summary.Released).Msg("Order stock released")
	}
	return summary, nil
}

// settle 对一条 LOCKED 明细做出决定：先归还台账，再标记明细
func (r *Reconciler) settle(ctx context.Context, detail domain.WorkOrderDetail, snapshot domain.OrderSnapshot) (Outcome, error) {
	if !detail.IsLocked() {
		return OutcomeSkipped, nil
	}
	// 已付款或履约中的订单一律保留，不受释放规则配置影响
	if snapshot.Found && snapshot.Status.Committed() {
		return OutcomeKept, nil
	}
	release, err := r.policy.ShouldRelease(snapshot)
	if err != nil {
		return "", err
	}
	if !release {
		return OutcomeKept, nil
	}

	if err := r.ledger.Release(ctx, detail.SkuID, detail.WareID, detail.SkuNum); err != nil {
		return "", err
	}
	changed, err := r.journal.MarkUnlocked(ctx, detail.ID)
	if err != nil {
		return "", err
	}
	if !changed {
		logger.Ctx(ctx).Warn().Int64("detail_id", detail.ID).Msg("Detail was already unlocked while holding the order lock")
	}
	logger.Ctx(ctx).Info().
		Str("order_sn", snapshot.OrderSn).
		Int64("detail_id", detail.ID).
		Int64("sku_id", detail.SkuID).
		Int64("ware_id", detail.WareID).
		Int("sku_num", detail.SkuNum).
		Bool("order_found", snapshot.Found).
		Str("order_status", string(snapshot.Status)).
		Msg("Stock reservation released")
	return OutcomeReleased, nil
}

func (r *Reconciler) lookupOrder(ctx context.Context, orderSn string) (domain.OrderSnapshot, error) {
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}
	snapshot, err := r.orders.GetOrderStatus(ctx, orderSn)
	if err != nil {
		metrics.OrderLookupFailuresTotal.Inc()
		if !errors.Is(err, domain.ErrOrderLookup) {
			err = fmt.Errorf("%w: %v", domain.ErrOrderLookup, err)
		}
		return snapshot, err
	}
	snapshot.OrderSn = orderSn
	return snapshot, nil
}

func (r *Reconciler) withOrderLock(ctx context.Context, orderSn string, fn func(ctx context.Context) error) error {
	unlock, err := r.locker.Acquire(ctx, "order:"+orderSn)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

func (r *Reconciler) observe(trigger string, outcome Outcome) {
	metrics.StockReleaseTotal.WithLabelValues(trigger, string(outcome)).Inc()
}

func (r *Reconciler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
