package service

import (
	"context"
	"time"

	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"
)

// ReferralRecentView 用户摘要中的最近推荐视图
type ReferralRecentView struct {
	ID               uint         `json:"id"`
	ReferredIdentity string       `json:"referred_identity"`
	Status           string       `json:"status"`
	BonusAmount      models.Money `json:"bonus_amount"`
	OrderNo          *string      `json:"order_no,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// UserReferralSummary 用户推荐摘要
type UserReferralSummary struct {
	UserID       uint                 `json:"user_id"`
	ReferralCode string               `json:"referral_code"`
	Stats        ReferralStats        `json:"stats"`
	Recent       []ReferralRecentView `json:"recent"`
}

// AdminReferralView 运营侧推荐记录视图
type AdminReferralView struct {
	ID               uint         `json:"id"`
	ReferrerID       uint         `json:"referrer_id"`
	ReferrerIdentity string       `json:"referrer_identity"`
	ReferredUserID   uint         `json:"referred_user_id"`
	ReferredIdentity string       `json:"referred_identity"`
	Status           string       `json:"status"`
	RatePercent      models.Money `json:"rate_percent"`
	BonusAmount      models.Money `json:"bonus_amount"`
	OrderNo          *string      `json:"order_no,omitempty"`
	CancelReason     string       `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// ReferralQueryService 推荐查询门面
type ReferralQueryService struct {
	repo     repository.ReferralRepository
	userRepo repository.UserRepository
	referral *ReferralService
	stats    *ReferralStatsService
}

// NewReferralQueryService 创建推荐查询服务
func NewReferralQueryService(
	repo repository.ReferralRepository,
	userRepo repository.UserRepository,
	referral *ReferralService,
	stats *ReferralStatsService,
) *ReferralQueryService {
	return &ReferralQueryService{
		repo:     repo,
		userRepo: userRepo,
		referral: referral,
		stats:    stats,
	}
}

// GetUserSummary 查询用户推荐摘要：推荐码（按需生成）、统计与最近推荐记录。
func (s *ReferralQueryService) GetUserSummary(ctx context.Context, userID uint) (*UserReferralSummary, error) {
	if s.repo == nil || s.referral == nil || s.stats == nil {
		return nil, ErrNotFound
	}
	code, err := s.referral.EnsureCode(userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats.StatsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListByReferrer(userID, s.referral.Setting().RecentLimit)
	if err != nil {
		return nil, err
	}

	summary := &UserReferralSummary{
		UserID:       userID,
		ReferralCode: code,
		Stats:        *stats,
		Recent:       make([]ReferralRecentView, 0, len(recent)),
	}
	for _, row := range recent {
		summary.Recent = append(summary.Recent, ReferralRecentView{
			ID:               row.ID,
			ReferredIdentity: row.ReferredUser.Identity(),
			Status:           row.Status,
			BonusAmount:      row.BonusAmount,
			OrderNo:          row.OrderNo,
			CreatedAt:        row.CreatedAt,
			CompletedAt:      row.CompletedAt,
		})
	}
	return summary, nil
}

// ListUserReferrals 分页查询用户名下推荐记录
func (s *ReferralQueryService) ListUserReferrals(userID uint, page, pageSize int, status string) ([]AdminReferralView, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, 0, err
	}
	if user == nil {
		return nil, 0, ErrNotFound
	}
	return s.ListReferrals(repository.ReferralListFilter{
		Page:       page,
		PageSize:   pageSize,
		ReferrerID: userID,
		Status:     status,
	})
}

// ListReferrals 运营侧推荐记录列表，支持大小写不敏感子串搜索。
// 搜索覆盖推荐人身份、被推荐人身份与状态；空搜索词返回全量。
func (s *ReferralQueryService) ListReferrals(filter repository.ReferralListFilter) ([]AdminReferralView, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrNotFound
	}
	rows, total, err := s.repo.List(filter)
	if err != nil {
		return nil, 0, err
	}
	views := make([]AdminReferralView, 0, len(rows))
	for _, row := range rows {
		views = append(views, AdminReferralView{
			ID:               row.ID,
			ReferrerID:       row.ReferrerID,
			ReferrerIdentity: row.Referrer.Identity(),
			ReferredUserID:   row.ReferredUserID,
			ReferredIdentity: row.ReferredUser.Identity(),
			Status:           row.Status,
			RatePercent:      row.RatePercent,
			BonusAmount:      row.BonusAmount,
			OrderNo:          row.OrderNo,
			CancelReason:     row.CancelReason,
			CreatedAt:        row.CreatedAt,
			CompletedAt:      row.CompletedAt,
		})
	}
	return views, total, nil
}

// GlobalStats 查询全局推荐统计
func (s *ReferralQueryService) GlobalStats(ctx context.Context) (*ReferralStats, error) {
	if s.stats == nil {
		return nil, ErrNotFound
	}
	return s.stats.StatsFor(ctx, 0)
}
