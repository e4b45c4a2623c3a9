// internal/service/promotion/application/fakes_test.go
package application

import (
	"context"
	"sync"
	"time"

	"polaris/internal/pkg/lock"
	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// 应用层测试用的内存版端口实现。语义对齐各自的生产实现：
// 条件自增、token 去重、位图置位返回旧值。

type memCouponRepo struct {
	mu      sync.Mutex
	nextID  int64
	coupons map[int64]*domain.Coupon
	// scopeSink 非空时，Create 把范围行连同券一起写入，
	// 模拟生产实现的同事务落库。
	scopeSink *memScopeRepo
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{nextID: 1, coupons: make(map[int64]*domain.Coupon)}
}

func (r *memCouponRepo) Create(ctx context.Context, c *domain.Coupon, scopes []domain.CouponScope) error {
	r.mu.Lock()
	c.ID = r.nextID
	r.nextID++
	clone := *c
	r.coupons[c.ID] = &clone
	r.mu.Unlock()

	if r.scopeSink != nil && len(scopes) > 0 {
		withID := make([]domain.CouponScope, 0, len(scopes))
		for _, s := range scopes {
			s.CouponID = c.ID
			withID = append(withID, s)
		}
		return r.scopeSink.SaveBatch(ctx, withID)
	}
	return nil
}

func (r *memCouponRepo) FindByID(_ context.Context, id int64) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *memCouponRepo) UpdateIssueInfo(_ context.Context, c *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.coupons[c.ID] = &clone
	return nil
}

func (r *memCouponRepo) UpdateStatus(_ context.Context, id int64, status domain.CouponStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *memCouponRepo) IncrIssueNum(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.IssueNum >= c.TotalNum {
		return false, nil
	}
	c.IssueNum++
	return true, nil
}

func (r *memCouponRepo) ListIssuingPublic(_ context.Context) ([]*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Coupon, 0)
	for _, c := range r.coupons {
		if c.Status == domain.StatusIssuing && c.ObtainWay == domain.ObtainPublic {
			clone := *c
			out = append(out, &clone)
		}
	}
	return out, nil
}

type memScopeRepo struct {
	mu     sync.Mutex
	bizIDs map[int64][]int64
}

func newMemScopeRepo() *memScopeRepo {
	return &memScopeRepo{bizIDs: make(map[int64][]int64)}
}

func (r *memScopeRepo) SaveBatch(_ context.Context, scopes []domain.CouponScope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range scopes {
		r.bizIDs[s.CouponID] = append(r.bizIDs[s.CouponID], s.BizID)
	}
	return nil
}

func (r *memScopeRepo) ListBizIDs(_ context.Context, couponID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bizIDs[couponID], nil
}

type memUserCouponRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    []*domain.UserCoupon
	tokens  map[string]struct{}
	coupons *memCouponRepo
}

func newMemUserCouponRepo(coupons *memCouponRepo) *memUserCouponRepo {
	return &memUserCouponRepo{nextID: 1, tokens: make(map[string]struct{}), coupons: coupons}
}

func (r *memUserCouponRepo) Create(_ context.Context, uc *domain.UserCoupon) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tokens[uc.GrantToken]; dup {
		return false, nil
	}
	r.tokens[uc.GrantToken] = struct{}{}
	uc.ID = r.nextID
	r.nextID++
	clone := *uc
	r.rows = append(r.rows, &clone)
	return true, nil
}

func (r *memUserCouponRepo) CountByUserAndCoupon(_ context.Context, userID, couponID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, uc := range r.rows {
		if uc.UserID == userID && uc.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (r *memUserCouponRepo) ListByUserAndCoupons(_ context.Context, userID int64, couponIDs []int64) ([]*domain.UserCoupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[int64]struct{}, len(couponIDs))
	for _, id := range couponIDs {
		wanted[id] = struct{}{}
	}
	out := make([]*domain.UserCoupon, 0)
	for _, uc := range r.rows {
		if uc.UserID != userID {
			continue
		}
		if _, ok := wanted[uc.CouponID]; ok {
			clone := *uc
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memUserCouponRepo) ListUsableCoupons(ctx context.Context, userID int64, now time.Time) ([]*domain.Coupon, error) {
	r.mu.Lock()
	rows := make([]*domain.UserCoupon, 0)
	for _, uc := range r.rows {
		if uc.UserID == userID && uc.IsUsableAt(now) {
			clone := *uc
			rows = append(rows, &clone)
		}
	}
	r.mu.Unlock()

	out := make([]*domain.Coupon, 0, len(rows))
	for _, uc := range rows {
		c, err := r.coupons.FindByID(ctx, uc.CouponID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type memCache struct {
	mu        sync.Mutex
	snaps     map[int64]*domain.CouponSnapshot
	userCount map[[2]int64]int64
}

func newMemCache() *memCache {
	return &memCache{snaps: make(map[int64]*domain.CouponSnapshot), userCount: make(map[[2]int64]int64)}
}

func (c *memCache) Publish(_ context.Context, couponID int64, snap *domain.CouponSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *snap
	c.snaps[couponID] = &clone
	return nil
}

func (c *memCache) Fetch(_ context.Context, couponID int64) (*domain.CouponSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[couponID]
	if !ok {
		return nil, nil
	}
	clone := *snap
	return &clone, nil
}

func (c *memCache) DecrStock(_ context.Context, couponID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[couponID]
	if !ok {
		return 0, nil
	}
	snap.TotalNum--
	return int64(snap.TotalNum), nil
}

func (c *memCache) IncrUserCount(_ context.Context, couponID, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := [2]int64{couponID, userID}
	c.userCount[key]++
	return c.userCount[key], nil
}

func (c *memCache) Remove(_ context.Context, couponID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, couponID)
	return nil
}

type memMark struct {
	mu     sync.Mutex
	serial int64
	bits   map[int64]bool
	ranges map[int64]int64
}

func newMemMark() *memMark {
	return &memMark{bits: make(map[int64]bool), ranges: make(map[int64]int64)}
}

func (m *memMark) ReserveSerials(_ context.Context, count int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serial += int64(count)
	return m.serial, nil
}

func (m *memMark) SetMark(_ context.Context, serial int64, mark bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.bits[serial]
	m.bits[serial] = mark
	return old, nil
}

func (m *memMark) RecordRange(_ context.Context, couponID, maxSerial int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges[couponID] = maxSerial
	return nil
}

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[int64]*domain.ExchangeCode
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[int64]*domain.ExchangeCode)}
}

func (r *memCodeRepo) SaveBatch(_ context.Context, codes []*domain.ExchangeCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range codes {
		clone := *c
		r.codes[c.ID] = &clone
	}
	return nil
}

func (r *memCodeRepo) FindBySerial(_ context.Context, serial int64) (*domain.ExchangeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[serial]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *memCodeRepo) MarkUsed(_ context.Context, serial, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[serial]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = domain.CodeUsed
	c.UserID = userID
	return nil
}

// memGrantStore 在一把互斥锁下模拟生产实现的单事务授予。
type memGrantStore struct {
	mu        sync.Mutex
	coupons   *memCouponRepo
	userCoups *memUserCouponRepo
	codes     *memCodeRepo
}

func newMemGrantStore(coupons *memCouponRepo, userCoups *memUserCouponRepo, codes *memCodeRepo) *memGrantStore {
	return &memGrantStore{coupons: coupons, userCoups: userCoups, codes: codes}
}

func (s *memGrantStore) CreateGrant(ctx context.Context, uc *domain.UserCoupon, opts port.GrantOptions) (port.GrantOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userCoups.mu.Lock()
	_, dup := s.userCoups.tokens[uc.GrantToken]
	s.userCoups.mu.Unlock()
	if dup {
		return port.GrantDuplicate, nil
	}

	if opts.UserLimit > 0 {
		n, err := s.userCoups.CountByUserAndCoupon(ctx, uc.UserID, uc.CouponID)
		if err != nil {
			return 0, err
		}
		if n >= opts.UserLimit {
			return port.GrantLimitExceeded, nil
		}
	}

	ok, err := s.coupons.IncrIssueNum(ctx, uc.CouponID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return port.GrantOutOfStock, nil
	}

	if _, err := s.userCoups.Create(ctx, uc); err != nil {
		return 0, err
	}
	if opts.Serial > 0 {
		if err := s.codes.MarkUsed(ctx, opts.Serial, uc.UserID); err != nil {
			return 0, err
		}
	}
	return port.GrantCreated, nil
}

type memProducer struct {
	mu      sync.Mutex
	intents []*domain.GrantIntent
}

func (p *memProducer) ProduceGrantIntent(_ context.Context, intent *domain.GrantIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *intent
	p.intents = append(p.intents, &clone)
	return nil
}

func (p *memProducer) drain() []*domain.GrantIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.intents
	p.intents = nil
	return out
}

// chanLocker 是测试用的进程内互斥锁，每个名字一个容量 1 的信号量，
// 等待超时返回 ErrLockTimeout，与生产实现的契约一致。
type chanLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newChanLocker() *chanLocker {
	return &chanLocker{slots: make(map[string]chan struct{})}
}

func (l *chanLocker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[name]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[name] = s
	}
	return s
}

func (l *chanLocker) Acquire(ctx context.Context, name string, wait time.Duration) (func(ctx context.Context) error, error) {
	s := l.slot(name)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return func(context.Context) error {
			<-s
			return nil
		}, nil
	case <-timer.C:
		return nil, lock.ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
