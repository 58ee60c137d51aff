package application

import "nexus-ware/internal/service/ware/domain"

// LockResult 是一次 LockStock 调用的结果
type LockResult struct {
	TaskID  int64
	OrderSn string
	Details []domain.WorkOrderDetail
}

// Outcome 是对单条明细对账的结论
type Outcome string

const (
	OutcomeReleased Outcome = "released" // 已释放并标记为 UNLOCKED
	OutcomeKept     Outcome = "kept"     // 订单仍有效，保持锁定
	OutcomeSkipped  Outcome = "skipped"  // 明细不存在或已解锁
)

// UnlockSummary 汇总一次按订单对账的结果
type UnlockSummary struct {
	OrderSn  string
	Released int
	Kept     int
	Skipped  int
}

func (s *UnlockSummary) add(o Outcome) {
	switch o {
	case OutcomeReleased:
		s.Released++
	case OutcomeKept:
		s.Kept++
	default:
		s.Skipped++
	}
}
