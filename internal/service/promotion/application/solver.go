// internal/service/promotion/application/solver.go
package application

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"polaris/internal/pkg/metrics"
	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// DiscountService 为结算页计算最优用券方案：
// 粗筛 -> 范围筛 -> 并发评估所有排列 -> 双维度择优。
type DiscountService struct {
	userCoups port.UserCouponRepository
	scopes    port.CouponScopeRepository
	workers   int
	timeout   time.Duration
	tracer    trace.Tracer
}

func NewDiscountService(
	userCoups port.UserCouponRepository,
	scopes port.CouponScopeRepository,
	workers int,
	timeout time.Duration,
	tracer trace.Tracer,
) *DiscountService {
	return &DiscountService{
		userCoups: userCoups,
		scopes:    scopes,
		workers:   workers,
		timeout:   timeout,
		tracer:    tracer,
	}
}

// FindDiscountSolutions 计算用户在给定订单行上所有不被支配的用券方案，
// 按总优惠金额降序返回。订单行是不可变输入，这里不会回写任何状态。
func (s *DiscountService) FindDiscountSolutions(ctx context.Context, userID int64, lines []*OrderLine) ([]*DiscountSolution, error) {
	ctx, span := s.tracer.Start(ctx, "service.FindDiscountSolutions")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("order.lines", len(lines)),
	)
	start := time.Now()
	defer func() { metrics.SolverDuration.Observe(time.Since(start).Seconds()) }()

	if len(lines) == 0 {
		return []*DiscountSolution{}, nil
	}
	orderTotal := 0
	for _, l := range lines {
		orderTotal += l.Price
	}

	// 1. 粗筛：持有的未使用、未过期券里，在订单总额上就能用的
	coupons, err := s.userCoups.ListUsableCoupons(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	coarse := make([]*domain.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if domain.DiscountOf(c.DiscountType).CanApply(orderTotal, c) {
			coarse = append(coarse, c)
		}
	}
	if len(coarse) == 0 {
		return []*DiscountSolution{}, nil
	}

	// 2. 范围筛：算出每张券的可用订单行子集，并在子集小计上重测门槛。
	//    限定范围的券在范围外的订单行上没有任何效力。
	eligible := make(map[int64][]*OrderLine, len(coarse))
	survivors := make([]*domain.Coupon, 0, len(coarse))
	for _, c := range coarse {
		lns, err := s.eligibleLines(ctx, c, lines)
		if err != nil {
			return nil, err
		}
		if len(lns) == 0 {
			continue
		}
		subtotal := 0
		for _, l := range lns {
			subtotal += l.Price
		}
		if !domain.DiscountOf(c.DiscountType).CanApply(subtotal, c) {
			continue
		}
		eligible[c.ID] = lns
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return []*DiscountSolution{}, nil
	}
	span.SetAttributes(attribute.Int("solver.survivors", len(survivors)))

	// 3. 候选栈：全排列（用券顺序影响后续券看到的剩余价格）加上所有单券方案
	candidates := permutations(survivors)
	if len(survivors) > 1 {
		for _, c := range survivors {
			candidates = append(candidates, []*domain.Coupon{c})
		}
	}

	// 4. 有界并发评估 + 单次限时 join：超时只丢弃未完成的候选，
	//    已完成的部分结果照常参与择优，不视为错误。
	evalCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	g, evalCtx := errgroup.WithContext(evalCtx)
	g.SetLimit(s.workers)

	var mu sync.Mutex
	solutions := make([]*DiscountSolution, 0, len(candidates))
	for _, stack := range candidates {
		g.Go(func() error {
			// 超时后剩余候选直接放弃，把超时原因传给 Wait
			if err := evalCtx.Err(); err != nil {
				return err
			}
			if sol := evaluateStack(stack, eligible); sol != nil {
				mu.Lock()
				solutions = append(solutions, sol)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	best := selectBest(solutions)
	span.SetAttributes(attribute.Int("solver.solutions", len(best)))
	return best, nil
}

// eligibleLines 返回一张券在订单里能作用到的订单行。
func (s *DiscountService) eligibleLines(ctx context.Context, c *domain.Coupon, lines []*OrderLine) ([]*OrderLine, error) {
	if !c.Specific {
		return lines, nil
	}
	bizIDs, err := s.scopes.ListBizIDs(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	scoped := make(map[int64]struct{}, len(bizIDs))
	for _, id := range bizIDs {
		scoped[id] = struct{}{}
	}
	out := make([]*OrderLine, 0, len(lines))
	for _, l := range lines {
		if _, ok := scoped[l.CateID]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// evaluateStack 顺序模拟一个用券栈：每张券作用在其可用订单行的
// 当前剩余价格上，门槛在剩余价格上复验，不再满足就跳过该券。
// 单张券的减免按各行剩余价格占比分摊，最后一行吸收舍入余数，
// 保证分摊之和与减免金额严格相等。
func evaluateStack(stack []*domain.Coupon, eligible map[int64][]*OrderLine) *DiscountSolution {
	remaining := make(map[int64]int, 8)
	for _, lns := range eligible {
		for _, l := range lns {
			remaining[l.ID] = l.Price
		}
	}

	sol := &DiscountSolution{Detail: make(map[int64]int)}
	for _, c := range stack {
		lns := eligible[c.ID]
		subtotal := 0
		for _, l := range lns {
			subtotal += remaining[l.ID]
		}
		strat := domain.DiscountOf(c.DiscountType)
		if !strat.CanApply(subtotal, c) {
			continue
		}
		discount := strat.Calculate(subtotal, c)
		if discount <= 0 {
			continue
		}

		apportioned := 0
		for i, l := range lns {
			var share int
			if i == len(lns)-1 {
				share = discount - apportioned
			} else {
				share = remaining[l.ID] * discount / subtotal
			}
			apportioned += share
			remaining[l.ID] -= share
			sol.Detail[l.ID] += share
		}

		sol.IDs = append(sol.IDs, c.ID)
		sol.Rules = append(sol.Rules, strat.Rule(c))
		sol.DiscountAmount += discount
	}

	if sol.DiscountAmount == 0 {
		return nil
	}
	return sol
}

// selectBest 双维度择优：同一张券集合只留优惠最大的顺序，
// 同一优惠金额只留用券最少的方案，取两者交集后按优惠降序。
func selectBest(solutions []*DiscountSolution) []*DiscountSolution {
	bestBySet := make(map[string]*DiscountSolution)
	bestByAmount := make(map[int]*DiscountSolution)
	for _, sol := range solutions {
		key := setKey(sol.IDs)
		if cur, ok := bestBySet[key]; !ok || sol.DiscountAmount > cur.DiscountAmount {
			bestBySet[key] = sol
		}
		if cur, ok := bestByAmount[sol.DiscountAmount]; !ok || len(sol.IDs) < len(cur.IDs) {
			bestByAmount[sol.DiscountAmount] = sol
		}
	}

	best := make([]*DiscountSolution, 0, len(bestBySet))
	for _, sol := range bestBySet {
		if len(sol.IDs) <= len(bestByAmount[sol.DiscountAmount].IDs) {
			best = append(best, sol)
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].DiscountAmount > best[j].DiscountAmount })
	return best
}

// setKey 生成与用券顺序无关的集合签名。
func setKey(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
