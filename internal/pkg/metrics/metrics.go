package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StockLockTotal 按结果统计订单锁库存请求：success / no_stock / invalid / error
	StockLockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ware",
		Name:      "stock_lock_total",
		Help:      "Order stock lock requests by result.",
	}, []string{"result"})

	// ReserveAttemptsTotal 统计单仓预占尝试：reserved / insufficient / error
	ReserveAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ware",
		Name:      "stock_reserve_attempts_total",
		Help:      "Per-warehouse reserve attempts by result.",
	}, []string{"result"})

	// StockReleaseTotal 统计对账结果，trigger: event / order，outcome: released / kept / skipped
	StockReleaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ware",
		Name:      "stock_release_total",
		Help:      "Reconciliation decisions by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	OrderLookupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ware",
		Name:      "order_lookup_failures_total",
		Help:      "Failed order status lookups during reconciliation.",
	})

	// DeadLettersTotal 按原始主题统计进入死信的消息
	DeadLettersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ware",
		Name:      "dead_letters_total",
		Help:      "Dead letter messages received by original topic.",
	}, []string{"topic"})
)
