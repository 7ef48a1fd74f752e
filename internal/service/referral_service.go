package service

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/referral-next/internal/constants"
	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReferralService 推荐归因与结算业务服务
type ReferralService struct {
	repo     repository.ReferralRepository
	userRepo repository.UserRepository
	setting  ReferralSetting
	stats    *ReferralStatsService
}

// NewReferralService 创建推荐服务
func NewReferralService(
	repo repository.ReferralRepository,
	userRepo repository.UserRepository,
	setting ReferralSetting,
	stats *ReferralStatsService,
) *ReferralService {
	return &ReferralService{
		repo:     repo,
		userRepo: userRepo,
		setting:  setting.normalize(),
		stats:    stats,
	}
}

// Setting 返回当前生效的推荐策略
func (s *ReferralService) Setting() ReferralSetting {
	return s.setting
}

// EnsureCode 获取用户推荐码，没有则生成。
// 生成路径通过条件更新与唯一索引保证并发下同一用户只落库一个推荐码。
func (s *ReferralService) EnsureCode(userID uint) (string, error) {
	if s.repo == nil || s.userRepo == nil {
		return "", ErrNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrNotFound
	}
	if strings.TrimSpace(user.Status) == constants.UserStatusDisabled {
		return "", ErrUserDisabled
	}
	if user.ReferralCode != nil && *user.ReferralCode != "" {
		return *user.ReferralCode, nil
	}

	for i := 0; i < s.setting.CodeMaxAttempts; i++ {
		code, genErr := generateReferralCode(s.setting.CodeLength)
		if genErr != nil {
			return "", genErr
		}
		assigned, assignErr := s.userRepo.AssignReferralCode(userID, code, time.Now())
		if assignErr != nil {
			if isUniqueViolation(assignErr) {
				continue
			}
			return "", assignErr
		}
		if assigned {
			logger.Infow("referral_code_assigned", "user_id", userID, "code", code)
			return code, nil
		}
		// 条件更新未命中说明并发生成已先落库，读回既有推荐码
		current, readErr := s.userRepo.GetByID(userID)
		if readErr != nil {
			return "", readErr
		}
		if current != nil && current.ReferralCode != nil && *current.ReferralCode != "" {
			return *current.ReferralCode, nil
		}
	}
	logger.Errorw("referral_code_generation_exhausted", "user_id", userID, "attempts", s.setting.CodeMaxAttempts)
	return "", ErrCodeGenerationExhausted
}

// RecordReferral 记录推荐归因：被推荐用户绑定到推荐码归属人名下。
// 校验与写入在同一事务内完成，首次归因生效，重复归因返回 ErrAlreadyReferred。
func (s *ReferralService) RecordReferral(rawCode string, referredUserID uint) (*models.Referral, error) {
	if s.repo == nil || s.userRepo == nil {
		return nil, ErrNotFound
	}
	code := normalizeReferralCode(rawCode)
	if code == "" {
		return nil, ErrUnknownReferralCode
	}

	var referral *models.Referral
	txErr := s.repo.Transaction(func(tx *gorm.DB) error {
		users := s.userRepo.WithTx(tx)
		referrals := s.repo.WithTx(tx)

		referred, err := users.GetByID(referredUserID)
		if err != nil {
			return err
		}
		if referred == nil {
			return ErrNotFound
		}
		if strings.TrimSpace(referred.Status) == constants.UserStatusDisabled {
			return ErrUserDisabled
		}

		referrer, err := users.GetByReferralCode(code)
		if err != nil {
			return err
		}
		if referrer == nil {
			return ErrUnknownReferralCode
		}
		if referrer.ID == referredUserID {
			return ErrSelfReferral
		}

		existing, err := referrals.GetByReferredUserID(referredUserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyReferred
		}

		now := time.Now()
		referral = &models.Referral{
			ReferrerID:     referrer.ID,
			ReferredUserID: referredUserID,
			Status:         constants.ReferralStatusPending,
			RatePercent:    models.NewMoneyFromDecimal(decimal.Zero),
			BonusAmount:    models.NewMoneyFromDecimal(decimal.Zero),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return referrals.Create(referral)
	})
	if txErr != nil {
		// 唯一索引兜底并发重复归因
		if isUniqueViolation(txErr) {
			return nil, ErrAlreadyReferred
		}
		return nil, txErr
	}
	logger.Infow("referral_recorded",
		"referral_id", referral.ID,
		"referrer_id", referral.ReferrerID,
		"referred_user_id", referredUserID,
	)
	s.invalidateStats(referral.ReferrerID)
	return referral, nil
}

// AttachOrder 将订单号绑定到待结算推荐记录
func (s *ReferralService) AttachOrder(referralID uint, orderNo string) error {
	if s.repo == nil {
		return ErrNotFound
	}
	normalized := strings.TrimSpace(orderNo)
	if normalized == "" {
		return ErrSettlementInputInvalid
	}
	updated, err := s.repo.AttachOrder(referralID, normalized, time.Now())
	if err != nil {
		return err
	}
	if updated {
		logger.Infow("referral_order_attached", "referral_id", referralID, "order_no", normalized)
		return nil
	}
	referral, err := s.repo.GetByID(referralID)
	if err != nil {
		return err
	}
	if referral == nil {
		return ErrNotFound
	}
	return ErrReferralStateInvalid
}

// CompleteReferral 完成推荐：冻结比例并写入奖励金额。
// 状态机仅允许 pending 进入 completed，终态记录返回 ErrReferralStateInvalid。
func (s *ReferralService) CompleteReferral(referralID uint, amount decimal.Decimal) (*models.Referral, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	if amount.IsNegative() || amount.GreaterThan(maxSettlementAmount) {
		return nil, ErrSettlementInputInvalid
	}

	bonus := s.setting.ComputeBonus(amount)
	rate := s.setting.RatePercentMoney()
	now := time.Now()
	updated, err := s.repo.MarkCompleted(referralID, rate, bonus, now, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		referral, readErr := s.repo.GetByID(referralID)
		if readErr != nil {
			return nil, readErr
		}
		if referral == nil {
			return nil, ErrNotFound
		}
		return nil, ErrReferralStateInvalid
	}

	referral, err := s.repo.GetByID(referralID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrNotFound
	}
	logger.Infow("referral_completed",
		"referral_id", referralID,
		"referrer_id", referral.ReferrerID,
		"bonus_amount", bonus.String(),
		"rate_percent", rate.String(),
	)
	s.invalidateStats(referral.ReferrerID)
	return referral, nil
}

// CancelReferral 取消推荐。状态机仅允许 pending 进入 cancelled。
func (s *ReferralService) CancelReferral(referralID uint, reason string) (*models.Referral, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	normalized := strings.TrimSpace(reason)
	if normalized == "" {
		normalized = constants.ReferralCancelReasonOrderFailed
	}
	updated, err := s.repo.MarkCancelled(referralID, normalized, time.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		referral, readErr := s.repo.GetByID(referralID)
		if readErr != nil {
			return nil, readErr
		}
		if referral == nil {
			return nil, ErrNotFound
		}
		return nil, ErrReferralStateInvalid
	}

	referral, err := s.repo.GetByID(referralID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrNotFound
	}
	logger.Infow("referral_cancelled",
		"referral_id", referralID,
		"referrer_id", referral.ReferrerID,
		"reason", normalized,
	)
	s.invalidateStats(referral.ReferrerID)
	return referral, nil
}

// HandleOrderSettlement 处理订单结算结果。
// referralID 为 0 时按订单号回查推荐记录；结算成功发放奖励，失败取消推荐。
func (s *ReferralService) HandleOrderSettlement(referralID uint, orderNo string, amount decimal.Decimal, outcome string) (*models.Referral, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	id := referralID
	if id == 0 {
		referral, err := s.repo.GetByOrderNo(orderNo)
		if err != nil {
			return nil, err
		}
		if referral == nil {
			return nil, ErrNotFound
		}
		id = referral.ID
	}

	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case constants.SettlementOutcomeSettled:
		return s.CompleteReferral(id, amount)
	case constants.SettlementOutcomeFailed:
		return s.CancelReferral(id, constants.ReferralCancelReasonOrderFailed)
	default:
		return nil, ErrSettlementInputInvalid
	}
}

func (s *ReferralService) invalidateStats(referrerID uint) {
	if s.stats == nil {
		return
	}
	s.stats.Invalidate(referrerID)
}

func normalizeReferralCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func generateReferralCode(length int) (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	if length <= 0 {
		length = defaultCodeLength
	}
	var builder strings.Builder
	builder.Grow(length)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
