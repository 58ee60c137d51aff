package domain

import (
	"fmt"
	"time"
)

// LockStatus 是工作单明细的锁定状态，LOCKED -> UNLOCKED 单向且只发生一次
type LockStatus int

const (
	LockStatusLocked   LockStatus = 1
	LockStatusUnlocked LockStatus = 2
)

func (s LockStatus) String() string {
	switch s {
	case LockStatusLocked:
		return "LOCKED"
	case LockStatusUnlocked:
		return "UNLOCKED"
	default:
		return fmt.Sprintf("LockStatus(%d)", int(s))
	}
}

// WorkOrder 是一次订单锁库存尝试的审计头，锁定失败时也会保留
type WorkOrder struct {
	ID        int64
	OrderSn   string
	CreatedAt time.Time
}

// WorkOrderDetail 记录一次成功的单仓预占，LOCKED 的明细与台账上的一笔预占一一对应
type WorkOrderDetail struct {
	ID         int64
	TaskID     int64
	SkuID      int64
	SkuName    string
	WareID     int64
	SkuNum     int
	LockStatus LockStatus
}

// IsLocked 判断这笔预占是否仍未释放
func (d WorkOrderDetail) IsLocked() bool {
	return d.LockStatus == LockStatusLocked
}

// WorkOrderView 是工作单连同明细的审计视图
type WorkOrderView struct {
	WorkOrder
	Details []WorkOrderDetail
}
