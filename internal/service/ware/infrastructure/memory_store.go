package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"nexus-ware/internal/service/ware/domain"
)

type skuWareKey struct {
	skuID  int64
	wareID int64
}

// MemoryLedger 是进程内的台账实现，所有条件更新在同一把锁内完成。
// 用于本地开发（ledgerDriver=memory）和单元测试。
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  int64
	records map[skuWareKey]*domain.InventoryRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[skuWareKey]*domain.InventoryRecord)}
}

// Seed 直接写入一条台账，仅用于初始化数据
func (l *MemoryLedger) Seed(skuID, wareID int64, stock, locked int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.records[skuWareKey{skuID, wareID}] = &domain.InventoryRecord{
		ID: l.nextID, SkuID: skuID, WareID: wareID, Stock: stock, StockLocked: locked,
	}
}

func (l *MemoryLedger) Reserve(_ context.Context, skuID, wareID int64, count int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[skuWareKey{skuID, wareID}]
	if !ok || !rec.CanReserve(count) {
		return false, nil
	}
	rec.StockLocked += count
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, skuID, wareID int64, count int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[skuWareKey{skuID, wareID}]
	if !ok {
		return nil
	}
	rec.StockLocked -= count
	if rec.StockLocked < 0 {
		rec.StockLocked = 0
	}
	return nil
}

func (l *MemoryLedger) CandidateWarehouses(_ context.Context, skuID int64) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var wares []int64
	for k, rec := range l.records {
		if k.skuID == skuID && rec.Available() > 0 {
			wares = append(wares, k.wareID)
		}
	}
	sort.Slice(wares, func(i, j int) bool { return wares[i] < wares[j] })
	return wares, nil
}

func (l *MemoryLedger) HasStock(ctx context.Context, skuID int64) (bool, error) {
	wares, err := l.CandidateWarehouses(ctx, skuID)
	return len(wares) > 0, err
}

func (l *MemoryLedger) AddStock(_ context.Context, skuID, wareID int64, count int, skuName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := skuWareKey{skuID, wareID}
	if rec, ok := l.records[k]; ok {
		rec.Stock += count
		return nil
	}
	l.nextID++
	l.records[k] = &domain.InventoryRecord{ID: l.nextID, SkuID: skuID, WareID: wareID, Stock: count, SkuName: skuName}
	return nil
}

func (l *MemoryLedger) Exists(_ context.Context, skuID, wareID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[skuWareKey{skuID, wareID}]
	return ok, nil
}

func (l *MemoryLedger) Get(_ context.Context, skuID, wareID int64) (*domain.InventoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[skuWareKey{skuID, wareID}]
	if !ok {
		return nil, domain.ErrInventoryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (l *MemoryLedger) List(_ context.Context, filter domain.InventoryFilter, page domain.PageQuery) (*domain.InventoryPage, error) {
	page = page.Normalize()
	l.mu.Lock()
	var all []domain.InventoryRecord
	for _, rec := range l.records {
		if filter.SkuID != 0 && rec.SkuID != filter.SkuID {
			continue
		}
		if filter.WareID != 0 && rec.WareID != filter.WareID {
			continue
		}
		all = append(all, *rec)
	}
	l.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page), nil
}

func paginate(all []domain.InventoryRecord, page domain.PageQuery) *domain.InventoryPage {
	out := &domain.InventoryPage{TotalCount: int64(len(all)), Page: page.Page, Limit: page.Limit}
	start := page.Offset()
	if start >= len(all) {
		return out
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	out.Records = all[start:end]
	return out
}

// MemoryJournal 是进程内的工作单日志实现
type MemoryJournal struct {
	mu         sync.Mutex
	nextTaskID int64
	nextID     int64
	workOrders map[int64]domain.WorkOrder
	details    map[int64]*domain.WorkOrderDetail
	now        func() time.Time
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		workOrders: make(map[int64]domain.WorkOrder),
		details:    make(map[int64]*domain.WorkOrderDetail),
		now:        time.Now,
	}
}

func (j *MemoryJournal) OpenWorkOrder(_ context.Context, orderSn string) (*domain.WorkOrder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextTaskID++
	wo := domain.WorkOrder{ID: j.nextTaskID, OrderSn: orderSn, CreatedAt: j.now()}
	j.workOrders[wo.ID] = wo
	return &wo, nil
}

func (j *MemoryJournal) RecordLock(_ context.Context, detail domain.WorkOrderDetail) (*domain.WorkOrderDetail, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.workOrders[detail.TaskID]; !ok {
		return nil, domain.ErrWorkOrderNotFound
	}
	j.nextID++
	detail.ID = j.nextID
	detail.LockStatus = domain.LockStatusLocked
	stored := detail
	j.details[detail.ID] = &stored
	return &detail, nil
}

func (j *MemoryJournal) MarkUnlocked(_ context.Context, detailID int64) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	d, ok := j.details[detailID]
	if !ok {
		return false, domain.ErrDetailNotFound
	}
	if d.LockStatus != domain.LockStatusLocked {
		return false, nil
	}
	d.LockStatus = domain.LockStatusUnlocked
	return true, nil
}

func (j *MemoryJournal) FindDetail(_ context.Context, detailID int64) (*domain.WorkOrderDetail, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	d, ok := j.details[detailID]
	if !ok {
		return nil, domain.ErrDetailNotFound
	}
	cp := *d
	return &cp, nil
}

func (j *MemoryJournal) FindWorkOrder(_ context.Context, taskID int64) (*domain.WorkOrder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	wo, ok := j.workOrders[taskID]
	if !ok {
		return nil, domain.ErrWorkOrderNotFound
	}
	return &wo, nil
}

func (j *MemoryJournal) ListLocked(ctx context.Context, taskID int64) ([]domain.WorkOrderDetail, error) {
	all, err := j.ListDetails(ctx, taskID)
	if err != nil {
		return nil, err
	}
	locked := all[:0]
	for _, d := range all {
		if d.IsLocked() {
			locked = append(locked, d)
		}
	}
	return locked, nil
}

func (j *MemoryJournal) ListDetails(_ context.Context, taskID int64) ([]domain.WorkOrderDetail, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.WorkOrderDetail
	for _, d := range j.details {
		if d.TaskID == taskID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (j *MemoryJournal) GetWorkOrderByOrderSn(ctx context.Context, orderSn string) (*domain.WorkOrder, error) {
	all, _ := j.ListWorkOrdersByOrderSn(ctx, orderSn)
	if len(all) == 0 {
		return nil, domain.ErrWorkOrderNotFound
	}
	latest := all[len(all)-1]
	return &latest, nil
}

func (j *MemoryJournal) ListWorkOrdersByOrderSn(_ context.Context, orderSn string) ([]domain.WorkOrder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.WorkOrder
	for _, wo := range j.workOrders {
		if wo.OrderSn == orderSn {
			out = append(out, wo)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
