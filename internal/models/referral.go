package models

import (
	"time"

	"gorm.io/gorm"
)

// Referral 推荐归因记录
type Referral struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                     // 主键
	ReferrerID     uint           `gorm:"not null;index" json:"referrer_id"`                        // 推荐人用户ID
	ReferredUserID uint           `gorm:"not null;uniqueIndex" json:"referred_user_id"`             // 被推荐用户ID（首次归因唯一）
	OrderNo        *string        `gorm:"type:varchar(64);index" json:"order_no,omitempty"`         // 关联订单号
	Status         string         `gorm:"type:varchar(20);not null;index" json:"status"`            // 推荐状态
	RatePercent    Money          `gorm:"type:decimal(10,2);not null;default:0" json:"rate_percent"` // 结算时冻结的奖励比例（百分比）
	BonusAmount    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"bonus_amount"` // 奖励金额
	CompletedAt    *time.Time     `gorm:"index" json:"completed_at,omitempty"`                      // 完成时间
	CancelReason   string         `gorm:"type:varchar(64)" json:"cancel_reason,omitempty"`          // 取消原因
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                                  // 创建时间
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`                                  // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                           // 软删除时间

	Referrer     User `gorm:"foreignKey:ReferrerID" json:"referrer,omitempty"`          // 推荐人
	ReferredUser User `gorm:"foreignKey:ReferredUserID" json:"referred_user,omitempty"` // 被推荐用户
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}
