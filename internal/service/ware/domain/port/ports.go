package port

import (
	"context"

	"nexus-ware/internal/service/ware/domain"
)

// CatalogService 是商品服务的出站端口，只用于补全 SKU 名称，失败不影响主流程。
type CatalogService interface {
	GetSkuName(ctx context.Context, skuID int64) (string, error)
}

// OrderService 是订单服务的出站端口，对账时以它的结果为准。
// 查询失败必须返回 error，不能被解释为“订单已取消”。
type OrderService interface {
	GetOrderStatus(ctx context.Context, orderSn string) (domain.OrderSnapshot, error)
}

// StockEventPublisher 发布“库存已锁定”事件
type StockEventPublisher interface {
	PublishStockLocked(ctx context.Context, event domain.StockLocked) error
}

// ReleaseScheduler 安排一次延迟的按订单兜底对账
type ReleaseScheduler interface {
	ScheduleReleaseCheck(ctx context.Context, orderSn string) error
}

// Locker 提供跨实例的互斥区，返回的 unlock 必须被调用
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// ReleasePolicy 根据订单快照判断预占是否应当释放
type ReleasePolicy interface {
	ShouldRelease(snapshot domain.OrderSnapshot) (bool, error)
}
