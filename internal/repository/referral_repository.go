package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/referral-next/internal/constants"
	"github.com/referral-next/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralRepository 推荐记录数据访问接口
type ReferralRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralRepository

	Create(referral *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	GetByReferredUserID(referredUserID uint) (*models.Referral, error)
	GetByOrderNo(orderNo string) (*models.Referral, error)
	ListByReferrer(referrerID uint, limit int) ([]models.Referral, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	AttachOrder(id uint, orderNo string, updatedAt time.Time) (bool, error)
	MarkCompleted(id uint, ratePercent, bonusAmount models.Money, completedAt, updatedAt time.Time) (bool, error)
	MarkCancelled(id uint, reason string, updatedAt time.Time) (bool, error)
	GetStats(referrerID uint) (ReferralStatsAggregate, error)
}

// GormReferralRepository GORM 推荐记录仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐记录仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// Transaction 执行事务
func (r *GormReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建推荐记录
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// GetByID 按ID获取推荐记录
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	if id == 0 {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.Preload("Referrer").Preload("ReferredUser").First(&referral, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetByReferredUserID 按被推荐用户获取推荐记录
func (r *GormReferralRepository) GetByReferredUserID(referredUserID uint) (*models.Referral, error) {
	if referredUserID == 0 {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.Preload("Referrer").Where("referred_user_id = ?", referredUserID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetByOrderNo 按订单号获取推荐记录
func (r *GormReferralRepository) GetByOrderNo(orderNo string) (*models.Referral, error) {
	normalized := strings.TrimSpace(orderNo)
	if normalized == "" {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.Where("order_no = ?", normalized).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// ListByReferrer 查询推荐人名下最近的推荐记录
func (r *GormReferralRepository) ListByReferrer(referrerID uint, limit int) ([]models.Referral, error) {
	if referrerID == 0 {
		return []models.Referral{}, nil
	}
	query := r.db.Model(&models.Referral{}).
		Preload("ReferredUser").
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Referral
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List 查询推荐记录列表
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{}).
		Preload("Referrer").
		Preload("ReferredUser")
	if filter.ReferrerID != 0 {
		query = query.Where("referrals.referrer_id = ?", filter.ReferrerID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("referrals.status = ?", status)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.
			Joins("LEFT JOIN users referrer ON referrer.id = referrals.referrer_id AND referrer.deleted_at IS NULL").
			Joins("LEFT JOIN users referred ON referred.id = referrals.referred_user_id AND referred.deleted_at IS NULL").
			Where("(LOWER(referrer.email) LIKE ? OR LOWER(referrer.display_name) LIKE ?"+
				" OR LOWER(referred.email) LIKE ? OR LOWER(referred.display_name) LIKE ?"+
				" OR LOWER(referrals.status) LIKE ?)",
				like, like, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Referral
	if err := query.Order("referrals.created_at DESC, referrals.id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// AttachOrder 条件绑定订单号：仅对待结算记录生效。
func (r *GormReferralRepository) AttachOrder(id uint, orderNo string, updatedAt time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	normalized := strings.TrimSpace(orderNo)
	if normalized == "" {
		return false, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, constants.ReferralStatusPending).
		Updates(map[string]interface{}{
			"order_no":   normalized,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCompleted 条件完成推荐：仅当记录仍为待结算时写入状态、冻结比例与奖励金额。
func (r *GormReferralRepository) MarkCompleted(id uint, ratePercent, bonusAmount models.Money, completedAt, updatedAt time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, constants.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":       constants.ReferralStatusCompleted,
			"rate_percent": ratePercent,
			"bonus_amount": bonusAmount,
			"completed_at": completedAt,
			"updated_at":   updatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCancelled 条件取消推荐：仅当记录仍为待结算时生效。
func (r *GormReferralRepository) MarkCancelled(id uint, reason string, updatedAt time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, constants.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":        constants.ReferralStatusCancelled,
			"cancel_reason": strings.TrimSpace(reason),
			"updated_at":    updatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetStats 单次扫描统计推荐数据。referrerID 为 0 时统计全局。
func (r *GormReferralRepository) GetStats(referrerID uint) (ReferralStatsAggregate, error) {
	query := r.db.Model(&models.Referral{})
	if referrerID != 0 {
		query = query.Where("referrer_id = ?", referrerID)
	}

	var rows []struct {
		Status string          `gorm:"column:status"`
		Count  int64           `gorm:"column:count"`
		Bonus  decimal.Decimal `gorm:"column:bonus"`
	}
	if err := query.
		Select("status, COUNT(*) AS count, COALESCE(SUM(bonus_amount), 0) AS bonus").
		Group("status").
		Scan(&rows).Error; err != nil {
		return ReferralStatsAggregate{}, err
	}

	stats := ReferralStatsAggregate{TotalBonus: decimal.Zero}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case constants.ReferralStatusPending:
			stats.Pending += row.Count
		case constants.ReferralStatusCompleted:
			stats.Completed += row.Count
			stats.TotalBonus = stats.TotalBonus.Add(row.Bonus)
		case constants.ReferralStatusCancelled:
			stats.Cancelled += row.Count
		}
	}
	stats.TotalBonus = stats.TotalBonus.Round(2)
	return stats, nil
}
