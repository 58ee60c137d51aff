package domain

import "context"

// Ledger 是库存台账。Reserve / Release 必须是存储层的原子条件更新。
type Ledger interface {
	// Reserve 当且仅当 locked+count <= stock 时把 locked 加 count。容量不足返回 false，不是错误。
	Reserve(ctx context.Context, skuID, wareID int64, count int) (bool, error)
	// Release 把 locked 减 count，结果不低于 0
	Release(ctx context.Context, skuID, wareID int64, count int) error
	// CandidateWarehouses 返回可用量大于 0 的仓库，按 wareID 升序
	CandidateWarehouses(ctx context.Context, skuID int64) ([]int64, error)
	HasStock(ctx context.Context, skuID int64) (bool, error)

	// AddStock 入库：记录不存在时以 skuName 新建，否则 stock += count
	AddStock(ctx context.Context, skuID, wareID int64, count int, skuName string) error
	// Exists 判断 (skuID, wareID) 是否已有台账记录
	Exists(ctx context.Context, skuID, wareID int64) (bool, error)
	Get(ctx context.Context, skuID, wareID int64) (*InventoryRecord, error)
	List(ctx context.Context, filter InventoryFilter, page PageQuery) (*InventoryPage, error)
}

// Journal 是工作单日志，是“某笔预占是否仍未释放”的唯一事实来源
type Journal interface {
	OpenWorkOrder(ctx context.Context, orderSn string) (*WorkOrder, error)
	RecordLock(ctx context.Context, detail WorkOrderDetail) (*WorkOrderDetail, error)
	// MarkUnlocked 把明细从 LOCKED 改为 UNLOCKED，返回是否真的发生了变更；对已解锁的明细是无副作用的空操作
	MarkUnlocked(ctx context.Context, detailID int64) (bool, error)

	FindDetail(ctx context.Context, detailID int64) (*WorkOrderDetail, error)
	FindWorkOrder(ctx context.Context, taskID int64) (*WorkOrder, error)
	ListLocked(ctx context.Context, taskID int64) ([]WorkOrderDetail, error)
	ListDetails(ctx context.Context, taskID int64) ([]WorkOrderDetail, error)
	// GetWorkOrderByOrderSn 返回该订单最近一次打开的工作单
	GetWorkOrderByOrderSn(ctx context.Context, orderSn string) (*WorkOrder, error)
	ListWorkOrdersByOrderSn(ctx context.Context, orderSn string) ([]WorkOrder, error)
}
