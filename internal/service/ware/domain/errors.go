package domain

import (
	"errors"
	"fmt"
)

// NoStockCode 是无库存的业务错误码，与下单方约定
const NoStockCode = 21000

var (
	ErrInvalidLockRequest = errors.New("invalid stock lock request")
	ErrInvalidStockIntake = errors.New("invalid stock intake")
	ErrWorkOrderNotFound  = errors.New("work order not found")
	ErrDetailNotFound     = errors.New("work order detail not found")
	ErrInventoryNotFound  = errors.New("inventory record not found")

	// ErrOrderLookup 表示订单服务查询失败，调用方应稍后重试，本次不做任何变更
	ErrOrderLookup = errors.New("order status lookup failed")
)

// NoStockError 表示某个 SKU 在所有候选仓库都无法锁定
type NoStockError struct {
	SkuID int64
}

func (e *NoStockError) Error() string {
	return fmt.Sprintf("商品id：%d；没有足够的库存了", e.SkuID)
}

// IsNoStock 判断 err 链中是否有 NoStockError，并返回对应的 SKU
func IsNoStock(err error) (int64, bool) {
	var ns *NoStockError
	if errors.As(err, &ns) {
		return ns.SkuID, true
	}
	return 0, false
}
