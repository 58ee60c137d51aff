package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/infrastructure"
	"nexus-ware/internal/service/ware/infrastructure/adapter"
	"nexus-ware/internal/service/ware/infrastructure/rule"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var testTracer = noop.NewTracerProvider().Tracer("ware-test")

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StockLocked
	err    error
}

func (p *recordingPublisher) PublishStockLocked(_ context.Context, e domain.StockLocked) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type recordingScheduler struct {
	mu       sync.Mutex
	orderSns []string
	err      error
}

func (s *recordingScheduler) ScheduleReleaseCheck(_ context.Context, orderSn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSns = append(s.orderSns, orderSn)
	return s.err
}

// fakeOrders 模拟订单服务，未登记的订单视为不存在
type fakeOrders struct {
	mu       sync.Mutex
	statuses map[string]domain.OrderStatus
	err      error
	calls    int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{statuses: make(map[string]domain.OrderStatus)}
}

func (o *fakeOrders) set(orderSn string, status domain.OrderStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[orderSn] = status
}

func (o *fakeOrders) fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *fakeOrders) GetOrderStatus(_ context.Context, orderSn string) (domain.OrderSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return domain.OrderSnapshot{}, o.err
	}
	status, ok := o.statuses[orderSn]
	return domain.OrderSnapshot{OrderSn: orderSn, Found: ok, Status: status}, nil
}

type fakeCatalog struct {
	names map[int64]string
	err   error
}

func (c *fakeCatalog) GetSkuName(_ context.Context, skuID int64) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	name, ok := c.names[skuID]
	if !ok {
		return "", errors.Errorf("sku %d not found", skuID)
	}
	return name, nil
}

// fixture 组装一套基于内存存储的协调器和对账器
type fixture struct {
	ledger      *infrastructure.MemoryLedger
	journal     *infrastructure.MemoryJournal
	publisher   *recordingPublisher
	scheduler   *recordingScheduler
	orders      *fakeOrders
	coordinator *ReservationCoordinator
	reconciler  *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	policy, err := rule.NewCELReleasePolicy("")
	require.NoError(t, err)

	f := &fixture{
		ledger:    infrastructure.NewMemoryLedger(),
		journal:   infrastructure.NewMemoryJournal(),
		publisher: &recordingPublisher{},
		scheduler: &recordingScheduler{},
		orders:    newFakeOrders(),
	}
	f.coordinator = NewReservationCoordinator(f.ledger, f.journal, f.publisher, f.scheduler, testTracer)
	f.reconciler = NewReconciler(f.ledger, f.journal, f.orders, policy, adapter.NewLocalLocker(), time.Second, testTracer)
	return f
}

func (f *fixture) record(t *testing.T, skuID, wareID int64) domain.InventoryRecord {
	t.Helper()
	rec, err := f.ledger.Get(context.Background(), skuID, wareID)
	require.NoError(t, err)
	return *rec
}

func lockReq(orderSn string, lines ...domain.LockLine) domain.LockRequest {
	return domain.LockRequest{OrderSn: orderSn, Lines: lines}
}
