// internal/service/promotion/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// GormCouponRepository 是 CouponRepository 的 GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// Create 在同一事务内落库优惠券本体和限定范围，要么都有要么都没有。
func (r *GormCouponRepository) Create(ctx context.Context, coupon *domain.Coupon, scopes []domain.CouponScope) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := fromDomainCoupon(coupon)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		coupon.ID = model.ID
		if len(scopes) == 0 {
			return nil
		}
		scopeModels := make([]CouponScopeModel, 0, len(scopes))
		for _, s := range scopes {
			scopeModels = append(scopeModels, CouponScopeModel{CouponID: model.ID, BizID: s.BizID, Type: s.Type})
		}
		return tx.Create(&scopeModels).Error
	})
}

func (r *GormCouponRepository) FindByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	var model CouponModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainCoupon(&model), nil
}

// UpdateIssueInfo 只更新发放相关字段，避免覆盖并发自增中的 issue_num。
func (r *GormCouponRepository) UpdateIssueInfo(ctx context.Context, coupon *domain.Coupon) error {
	return r.db.WithContext(ctx).Model(&CouponModel{}).
		Where("id = ?", coupon.ID).
		Updates(map[string]interface{}{
			"status":           coupon.Status,
			"issue_begin_time": coupon.IssueBeginTime,
			"issue_end_time":   coupon.IssueEndTime,
			"term_days":        coupon.TermDays,
			"term_begin_time":  coupon.TermBeginTime,
			"term_end_time":    coupon.TermEndTime,
		}).Error
}

func (r *GormCouponRepository) UpdateStatus(ctx context.Context, id int64, status domain.CouponStatus) error {
	return r.db.WithContext(ctx).Model(&CouponModel{}).
		Where("id = ?", id).Update("status", status).Error
}

func (r *GormCouponRepository) ListIssuingPublic(ctx context.Context) ([]*domain.Coupon, error) {
	var models []CouponModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND obtain_way = ?", domain.StatusIssuing, domain.ObtainPublic).
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		out = append(out, toDomainCoupon(&models[i]))
	}
	return out, nil
}

// GormCouponScopeRepository 是 CouponScopeRepository 的 GORM 实现
type GormCouponScopeRepository struct {
	db *gorm.DB
}

func NewGormCouponScopeRepository(db *gorm.DB) *GormCouponScopeRepository {
	return &GormCouponScopeRepository{db: db}
}

func (r *GormCouponScopeRepository) ListBizIDs(ctx context.Context, couponID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&CouponScopeModel{}).
		Where("coupon_id = ?", couponID).
		Pluck("biz_id", &ids).Error
	return ids, err
}

// GormUserCouponRepository 是 UserCouponRepository 的 GORM 实现
type GormUserCouponRepository struct {
	db *gorm.DB
}

func NewGormUserCouponRepository(db *gorm.DB) *GormUserCouponRepository {
	return &GormUserCouponRepository{db: db}
}

func (r *GormUserCouponRepository) Create(ctx context.Context, uc *domain.UserCoupon) (bool, error) {
	model := fromDomainUserCoupon(uc)
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	uc.ID = model.ID
	return true, nil
}

func (r *GormUserCouponRepository) CountByUserAndCoupon(ctx context.Context, userID, couponID int64) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&UserCouponModel{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Count(&n).Error
	return int(n), err
}

func (r *GormUserCouponRepository) ListByUserAndCoupons(ctx context.Context, userID int64, couponIDs []int64) ([]*domain.UserCoupon, error) {
	if len(couponIDs) == 0 {
		return nil, nil
	}
	var models []UserCouponModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coupon_id IN ?", userID, couponIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserCoupon, 0, len(models))
	for i := range models {
		out = append(out, toDomainUserCoupon(&models[i]))
	}
	return out, nil
}

// ListUsableCoupons 联表取用户当前可用的券对应的规则信息，
// 供优惠计算做粗筛输入。
func (r *GormUserCouponRepository) ListUsableCoupons(ctx context.Context, userID int64, now time.Time) ([]*domain.Coupon, error) {
	var models []CouponModel
	err := r.db.WithContext(ctx).Model(&CouponModel{}).
		Joins("JOIN user_coupon uc ON uc.coupon_id = coupon.id").
		Where("uc.user_id = ? AND uc.status = ? AND uc.term_begin_time <= ? AND uc.term_end_time > ?",
			userID, domain.UserCouponUnused, now, now).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Coupon, 0, len(models))
	for i := range models {
		out = append(out, toDomainCoupon(&models[i]))
	}
	return out, nil
}

// GormExchangeCodeRepository 是 ExchangeCodeRepository 的 GORM 实现
type GormExchangeCodeRepository struct {
	db *gorm.DB
}

func NewGormExchangeCodeRepository(db *gorm.DB) *GormExchangeCodeRepository {
	return &GormExchangeCodeRepository{db: db}
}

func (r *GormExchangeCodeRepository) SaveBatch(ctx context.Context, codes []*domain.ExchangeCode) error {
	if len(codes) == 0 {
		return nil
	}
	models := make([]ExchangeCodeModel, 0, len(codes))
	for _, c := range codes {
		models = append(models, *fromDomainExchangeCode(c))
	}
	// 大批量铸码分批写，单批 500 行
	return r.db.WithContext(ctx).CreateInBatches(&models, 500).Error
}

func (r *GormExchangeCodeRepository) FindBySerial(ctx context.Context, serial int64) (*domain.ExchangeCode, error) {
	var model ExchangeCodeModel
	err := r.db.WithContext(ctx).First(&model, serial).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainExchangeCode(&model), nil
}

// GormGrantStore 把一次授予的全部落库动作放进一个事务：
// token 去重、可选限领校验、条件库存自增、插入用户券、可选核销兑换码。
type GormGrantStore struct {
	db *gorm.DB
}

func NewGormGrantStore(db *gorm.DB) *GormGrantStore {
	return &GormGrantStore{db: db}
}

func (s *GormGrantStore) CreateGrant(ctx context.Context, uc *domain.UserCoupon, opts port.GrantOptions) (port.GrantOutcome, error) {
	outcome := port.GrantCreated
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 每人限领校验（同步兑换路径使用；异步领券路径在缓存侧已校验过）
		if opts.UserLimit > 0 {
			var n int64
			if err := tx.Model(&UserCouponModel{}).
				Where("user_id = ? AND coupon_id = ?", uc.UserID, uc.CouponID).
				Count(&n).Error; err != nil {
				return err
			}
			if n >= int64(opts.UserLimit) {
				outcome = port.GrantLimitExceeded
				return nil
			}
		}

		// 2. 权威库存守卫：条件自增失败即已发完
		res := tx.Model(&CouponModel{}).
			Where("id = ? AND issue_num < total_num", uc.CouponID).
			Update("issue_num", gorm.Expr("issue_num + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			outcome = port.GrantOutOfStock
			return nil
		}

		// 3. 插入用户券。grant token 唯一索引把重复投递在这里拦下，
		//    回滚事务即可连带撤销上面的自增。
		model := fromDomainUserCoupon(uc)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		uc.ID = model.ID

		// 4. 兑换路径同事务核销兑换码
		if opts.Serial > 0 {
			if err := tx.Model(&ExchangeCodeModel{}).
				Where("id = ?", opts.Serial).
				Updates(map[string]interface{}{
					"status":  domain.CodeUsed,
					"user_id": uc.UserID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return port.GrantDuplicate, nil
		}
		return 0, err
	}
	return outcome, nil
}
