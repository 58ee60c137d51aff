package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/infrastructure/adapter"
	"nexus-ware/internal/service/ware/infrastructure/rule"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockSku100 锁定 SKU 100 三件：W1 只有 1 件，W2 有 5 件，预期落在 W2
func lockSku100(t *testing.T, f *fixture, orderSn string) (*LockResult, domain.StockLocked) {
	t.Helper()
	f.ledger.Seed(100, 1, 1, 0)
	f.ledger.Seed(100, 2, 5, 0)
	res, err := f.coordinator.LockStock(context.Background(), lockReq(orderSn, domain.LockLine{SkuID: 100, Count: 3}))
	require.NoError(t, err)
	require.Len(t, f.publisher.events, 1)
	return res, f.publisher.events[0]
}

func TestReconcileDetail_CancelledOrderReleases(t *testing.T) {
	f := newFixture(t)
	res, event := lockSku100(t, f, "SN-100")
	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)

	f.orders.set("SN-100", domain.OrderStatusCancelled)
	outcome, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, outcome)

	assert.Equal(t, 0, f.record(t, 100, 2).StockLocked)
	d, err := f.journal.FindDetail(context.Background(), res.Details[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusUnlocked, d.LockStatus)
}

func TestReconcileDetail_PaidOrderKeeps(t *testing.T) {
	f := newFixture(t)
	res, event := lockSku100(t, f, "SN-101")

	f.orders.set("SN-101", domain.OrderStatusPaid)
	outcome, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeKept, outcome)

	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
	d, err := f.journal.FindDetail(context.Background(), res.Details[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, d.LockStatus)
}

func TestReconcileDetail_AbsentOrderReleases(t *testing.T) {
	f := newFixture(t)
	_, event := lockSku100(t, f, "SN-102")

	outcome, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, outcome)
	assert.Equal(t, 0, f.record(t, 100, 2).StockLocked)
}

func TestReconcileDetail_RedeliveryDoesNotDoubleRelease(t *testing.T) {
	f := newFixture(t)
	_, event := lockSku100(t, f, "SN-103")
	// 同仓另一笔未受影响的预占，用来发现重复释放
	ok, err := f.ledger.Reserve(context.Background(), 100, 2, 1)
	require.NoError(t, err)
	require.True(t, ok)

	f.orders.set("SN-103", domain.OrderStatusCancelled)
	first, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, first)

	calls := f.orders.calls
	second, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second)
	assert.Equal(t, calls, f.orders.calls, "unlocked detail must not trigger an order lookup")
	assert.Equal(t, 1, f.record(t, 100, 2).StockLocked)
}

func TestReconcileDetail_LookupFailureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	res, event := lockSku100(t, f, "SN-104")

	f.orders.fail(errors.New("connection refused"))
	_, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderLookup)

	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
	d, err := f.journal.FindDetail(context.Background(), res.Details[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, d.LockStatus)
}

// hangingOrders 模拟无响应的订单服务，直到 ctx 结束才返回
type hangingOrders struct{}

func (hangingOrders) GetOrderStatus(ctx context.Context, _ string) (domain.OrderSnapshot, error) {
	<-ctx.Done()
	return domain.OrderSnapshot{}, ctx.Err()
}

func TestReconcileDetail_LookupTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	res, event := lockSku100(t, f, "SN-106")

	policy, err := rule.NewCELReleasePolicy("")
	require.NoError(t, err)
	reconciler := NewReconciler(f.ledger, f.journal, hangingOrders{}, policy, adapter.NewLocalLocker(), 50*time.Millisecond, testTracer)

	start := time.Now()
	_, err = reconciler.ReconcileDetail(context.Background(), event)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderLookup)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
	d, err := f.journal.FindDetail(context.Background(), res.Details[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, d.LockStatus)
}

func TestReconcileDetail_CommittedOrderIsKeptWhateverThePolicy(t *testing.T) {
	releaseAll, err := rule.NewCELReleasePolicy("true")
	require.NoError(t, err)

	for _, status := range []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusReceived} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.reconciler = NewReconciler(f.ledger, f.journal, f.orders, releaseAll, adapter.NewLocalLocker(), time.Second, testTracer)
			_, event := lockSku100(t, f, "SN-107")
			f.orders.set("SN-107", status)

			outcome, err := f.reconciler.ReconcileDetail(context.Background(), event)
			require.NoError(t, err)
			assert.Equal(t, OutcomeKept, outcome)
			assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
		})
	}

	f := newFixture(t)
	f.reconciler = NewReconciler(f.ledger, f.journal, f.orders, releaseAll, adapter.NewLocalLocker(), time.Second, testTracer)
	_, event := lockSku100(t, f, "SN-108")
	f.orders.set("SN-108", domain.OrderStatusNew)
	outcome, err := f.reconciler.ReconcileDetail(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReleased, outcome, "other statuses still follow the policy")
}

func TestReconcileDetail_MissingDetailIsNoop(t *testing.T) {
	f := newFixture(t)
	outcome, err := f.reconciler.ReconcileDetail(context.Background(), domain.StockLocked{DetailID: 999, TaskID: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.orders.calls)
}

func TestReconcileDetail_ConcurrentTriggersReleaseOnce(t *testing.T) {
	f := newFixture(t)
	_, event := lockSku100(t, f, "SN-105")
	ok, err := f.ledger.Reserve(context.Background(), 100, 2, 2)
	require.NoError(t, err)
	require.True(t, ok)
	f.orders.set("SN-105", domain.OrderStatusCancelled)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.reconciler.ReconcileDetail(context.Background(), event)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.reconciler.UnlockOrder(context.Background(), "SN-105")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, f.record(t, 100, 2).StockLocked)
}

func TestUnlockOrder_MixedDetails(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(1, 1, 10, 0)
	f.ledger.Seed(2, 1, 10, 0)
	f.ledger.Seed(3, 1, 10, 0)

	res, err := f.coordinator.LockStock(context.Background(), lockReq("SN-200",
		domain.LockLine{SkuID: 1, Count: 1},
		domain.LockLine{SkuID: 2, Count: 2},
		domain.LockLine{SkuID: 3, Count: 3},
	))
	require.NoError(t, err)

	// 第一条明细先被事件路径释放
	f.orders.set("SN-200", domain.OrderStatusCancelled)
	_, err = f.reconciler.ReconcileDetail(context.Background(), f.publisher.events[0])
	require.NoError(t, err)

	summary, err := f.reconciler.UnlockOrder(context.Background(), "SN-200")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Released)
	assert.Equal(t, 0, summary.Kept)

	for _, sku := range []int64{1, 2, 3} {
		assert.Equal(t, 0, f.record(t, sku, 1).StockLocked, "sku %d", sku)
	}
	locked, err := f.journal.ListLocked(context.Background(), res.TaskID)
	require.NoError(t, err)
	assert.Empty(t, locked)
}

func TestUnlockOrder_CoversEveryWorkOrderOfTheOrder(t *testing.T) {
	f := newFixture(t)
	f.ledger.Seed(1, 1, 10, 0)

	// 同一订单重试下单，产生两张工作单
	_, err := f.coordinator.LockStock(context.Background(), lockReq("SN-201", domain.LockLine{SkuID: 1, Count: 2}))
	require.NoError(t, err)
	_, err = f.coordinator.LockStock(context.Background(), lockReq("SN-201", domain.LockLine{SkuID: 1, Count: 3}))
	require.NoError(t, err)
	assert.Equal(t, 5, f.record(t, 1, 1).StockLocked)

	summary, err := f.reconciler.UnlockOrder(context.Background(), "SN-201")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Released)
	assert.Equal(t, 0, f.record(t, 1, 1).StockLocked)
}

func TestUnlockOrder_PaidOrderKeepsEverything(t *testing.T) {
	f := newFixture(t)
	lockSku100(t, f, "SN-202")
	f.orders.set("SN-202", domain.OrderStatusPaid)

	summary, err := f.reconciler.UnlockOrder(context.Background(), "SN-202")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Kept)
	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
}

func TestUnlockOrder_LookupFailureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	lockSku100(t, f, "SN-203")
	f.orders.fail(errors.New("timeout"))

	_, err := f.reconciler.UnlockOrder(context.Background(), "SN-203")
	assert.ErrorIs(t, err, domain.ErrOrderLookup)
	assert.Equal(t, 3, f.record(t, 100, 2).StockLocked)
}

func TestUnlockOrder_UnknownOrderIsNoop(t *testing.T) {
	f := newFixture(t)
	summary, err := f.reconciler.UnlockOrder(context.Background(), "SN-404")
	require.NoError(t, err)
	assert.Equal(t, UnlockSummary{OrderSn: "SN-404"}, *summary)
	assert.Zero(t, f.orders.calls)
}
