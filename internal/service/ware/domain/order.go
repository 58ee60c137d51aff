package domain

// OrderStatus 是订单服务返回的订单状态
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusInvalid   OrderStatus = "INVALID"
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
)

// OrderStatusFromCode 将订单服务的数字状态码转换为 OrderStatus
func OrderStatusFromCode(code int) OrderStatus {
	switch code {
	case 0:
		return OrderStatusNew
	case 1:
		return OrderStatusPaid
	case 2:
		return OrderStatusShipped
	case 3:
		return OrderStatusReceived
	case 4:
		return OrderStatusCancelled
	case 5:
		return OrderStatusInvalid
	default:
		return OrderStatusUnknown
	}
}

// Committed 表示订单已付款或已进入履约，对应的预占不能释放
func (s OrderStatus) Committed() bool {
	switch s {
	case OrderStatusPaid, OrderStatusShipped, OrderStatusReceived:
		return true
	default:
		return false
	}
}

// OrderSnapshot 是一次订单状态查询的结果，Found=false 表示订单不存在（例如下单事务已回滚）
type OrderSnapshot struct {
	OrderSn string
	Found   bool
	Status  OrderStatus
}

// LockLine 是待锁定的一行：某个 SKU 锁 Count 件
type LockLine struct {
	SkuID   int64
	SkuName string
	Count   int
}

// LockRequest 是一次订单锁库存请求
type LockRequest struct {
	OrderSn string
	Lines   []LockLine
}

// Validate 在触碰台账之前校验请求
func (r LockRequest) Validate() error {
	if r.OrderSn == "" || len(r.Lines) == 0 {
		return ErrInvalidLockRequest
	}
	for _, l := range r.Lines {
		if l.Count <= 0 || l.SkuID <= 0 {
			return ErrInvalidLockRequest
		}
	}
	return nil
}
