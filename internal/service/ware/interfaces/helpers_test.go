package interfaces

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexus-ware/internal/service/ware/application"
	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/infrastructure"
	"nexus-ware/internal/service/ware/infrastructure/adapter"
	"nexus-ware/internal/service/ware/infrastructure/rule"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type nopPublisher struct{}

func (nopPublisher) PublishStockLocked(context.Context, domain.StockLocked) error { return nil }
func (nopPublisher) ScheduleReleaseCheck(context.Context, string) error        { return nil }

type stubOrders struct {
	mu       sync.Mutex
	statuses map[string]domain.OrderStatus
	err      error
}

func (o *stubOrders) GetOrderStatus(_ context.Context, orderSn string) (domain.OrderSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return domain.OrderSnapshot{}, o.err
	}
	status, ok := o.statuses[orderSn]
	return domain.OrderSnapshot{OrderSn: orderSn, Found: ok, Status: status}, nil
}

type stubCatalog struct{}

func (stubCatalog) GetSkuName(_ context.Context, _ int64) (string, error) { return "测试商品", nil }

type app struct {
	ledger      *infrastructure.MemoryLedger
	journal     *infrastructure.MemoryJournal
	orders      *stubOrders
	coordinator *application.ReservationCoordinator
	reconciler  *application.Reconciler
	stock       *application.StockService
}

func newApp(t *testing.T) *app {
	t.Helper()
	policy, err := rule.NewCELReleasePolicy("")
	require.NoError(t, err)
	tracer := noop.NewTracerProvider().Tracer("ware-test")

	a := &app{
		ledger:  infrastructure.NewMemoryLedger(),
		journal: infrastructure.NewMemoryJournal(),
		orders:  &stubOrders{statuses: map[string]domain.OrderStatus{}},
	}
	a.coordinator = application.NewReservationCoordinator(a.ledger, a.journal, nopPublisher{}, nopPublisher{}, tracer)
	a.reconciler = application.NewReconciler(a.ledger, a.journal, a.orders, policy, adapter.NewLocalLocker(), time.Second, tracer)
	a.stock = application.NewStockService(a.ledger, a.journal, stubCatalog{}, tracer)
	return a
}

func (a *app) locked(t *testing.T, skuID, wareID int64) int {
	t.Helper()
	rec, err := a.ledger.Get(context.Background(), skuID, wareID)
	require.NoError(t, err)
	return rec.StockLocked
}

// fakeReader 按顺序返回预置消息，取完后阻塞直到 Close 或 ctx 结束
type fakeReader struct {
	topic     string
	msgs      chan kafka.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	committed []kafka.Message
}

func newFakeReader(topic string, msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{topic: topic, msgs: make(chan kafka.Message, len(msgs)), closed: make(chan struct{})}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-r.closed:
		return kafka.Message{}, context.Canceled
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Config() kafka.ReaderConfig { return kafka.ReaderConfig{Topic: r.topic} }

func (r *fakeReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

// recordingFailures 记录移交的消息；failTimes > 0 时前 failTimes 次返回 err，否则每次都返回 err
type recordingFailures struct {
	mu        sync.Mutex
	causes    []error
	offsets   []int64
	err       error
	failTimes int
}

func (f *recordingFailures) Handle(_ context.Context, msg kafka.Message, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.causes = append(f.causes, cause)
	f.offsets = append(f.offsets, msg.Offset)
	if f.failTimes > 0 && len(f.causes) > f.failTimes {
		return nil
	}
	return f.err
}

func (f *recordingFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.causes)
}
