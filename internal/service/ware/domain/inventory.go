package domain

// InventoryRecord 是某个 SKU 在某个仓库的库存台账，以 (SkuID, WareID) 唯一。
// 不变式：0 <= StockLocked <= Stock。
type InventoryRecord struct {
	ID          int64
	SkuID       int64
	WareID      int64
	Stock       int
	StockLocked int
	SkuName     string
}

// Available 返回可锁定的数量
func (r InventoryRecord) Available() int {
	return r.Stock - r.StockLocked
}

// CanReserve 判断是否还能再锁定 count 件
func (r InventoryRecord) CanReserve(count int) bool {
	return count > 0 && r.StockLocked+count <= r.Stock
}

// InventoryFilter 是台账列表的查询条件，0 表示不过滤
type InventoryFilter struct {
	SkuID  int64
	WareID int64
}

// PageQuery 分页参数，Page 从 1 开始
type PageQuery struct {
	Page  int
	Limit int
}

// Normalize 修正非法的分页参数
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return q
}

// Offset 返回当前页的起始位置
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// InventoryPage 是一页台账记录
type InventoryPage struct {
	Records    []InventoryRecord
	TotalCount int64
	Page       int
	Limit      int
}

// SkuStock 是单个 SKU 的有货结果
type SkuStock struct {
	SkuID    int64
	HasStock bool
}
