// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 领券/兑换按结果分类计数，result 取值为业务错误码（ok / out_of_stock / ...）。
var (
	ReceiveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_receive_total",
		Help: "Total receive-coupon requests by result.",
	}, []string{"result"})

	ExchangeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_exchange_total",
		Help: "Total exchange-code redemptions by result.",
	}, []string{"result"})

	// 物化阶段因权威库存守卫失败而被静默丢弃的授予数。
	// 这是预期内的有界超卖补偿，数值持续增长才需要关注。
	GrantsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_grants_dropped_total",
		Help: "Grant intents dropped by the authoritative stock guard.",
	})

	SolverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discount_solver_duration_seconds",
		Help:    "Wall time of one findDiscountSolutions call.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	CodesMintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_codes_minted_total",
		Help: "Exchange codes generated and persisted.",
	})
)
