package service

import (
	"strings"

	"github.com/referral-next/internal/config"
	"github.com/referral-next/internal/models"
	"github.com/shopspring/decimal"
)

const (
	referralRoundingBank   = "bank"
	referralRoundingHalfUp = "half_up"

	defaultBonusRatePercent = 10.0
	defaultCodeLength       = 8
	defaultCodeMaxAttempts  = 8
	defaultRecentLimit      = 5
)

// maxSettlementAmount 结算金额上限。限制在该范围内时金额经 float64 换算
// 不丢失分位精度，也不会溢出为非有限值；超限金额按无效结算金额拒绝。
var maxSettlementAmount = decimal.New(1, 12)

// ReferralSetting 推荐奖励策略
type ReferralSetting struct {
	BonusRatePercent float64
	Rounding         string
	CodeLength       int
	CodeMaxAttempts  int
	RecentLimit      int
}

// NewReferralSettingFromConfig 从配置构建策略并归一化非法取值
func NewReferralSettingFromConfig(cfg config.ReferralConfig) ReferralSetting {
	setting := ReferralSetting{
		BonusRatePercent: cfg.BonusRatePercent,
		Rounding:         strings.ToLower(strings.TrimSpace(cfg.Rounding)),
		CodeLength:       cfg.CodeLength,
		CodeMaxAttempts:  cfg.CodeMaxAttempts,
		RecentLimit:      cfg.RecentLimit,
	}
	return setting.normalize()
}

func (s ReferralSetting) normalize() ReferralSetting {
	if s.BonusRatePercent <= 0 || s.BonusRatePercent > 100 {
		s.BonusRatePercent = defaultBonusRatePercent
	}
	if s.Rounding != referralRoundingBank && s.Rounding != referralRoundingHalfUp {
		s.Rounding = referralRoundingBank
	}
	if s.CodeLength <= 0 || s.CodeLength > 16 {
		s.CodeLength = defaultCodeLength
	}
	if s.CodeMaxAttempts <= 0 {
		s.CodeMaxAttempts = defaultCodeMaxAttempts
	}
	if s.RecentLimit <= 0 {
		s.RecentLimit = defaultRecentLimit
	}
	return s
}

// RatePercentMoney 返回冻结到记录上的比例值
func (s ReferralSetting) RatePercentMoney() models.Money {
	return models.NewMoneyFromFloat(s.BonusRatePercent)
}

// ComputeBonus 按策略计算奖励金额。
// 金额乘以比例在 float64 上进行，再按配置的舍入方式收敛到 2 位小数，
// 因此 999.95 在 10% 比例下得到 99.99 而不是 100.00。
func (s ReferralSetting) ComputeBonus(amount decimal.Decimal) models.Money {
	if amount.IsNegative() || amount.GreaterThan(maxSettlementAmount) {
		return models.NewMoneyFromDecimal(decimal.Zero)
	}
	raw := amount.InexactFloat64() * (s.BonusRatePercent / 100)
	value := decimal.NewFromFloat(raw)
	if s.Rounding == referralRoundingHalfUp {
		return models.NewMoneyFromDecimal(value.Round(2))
	}
	return models.NewMoneyFromDecimal(value.RoundBank(2))
}
