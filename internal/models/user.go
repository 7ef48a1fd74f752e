package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`                           // 主键
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`              // 邮箱
	DisplayName  string         `gorm:"default:''" json:"display_name"`                 // 昵称
	Status       string         `gorm:"default:'active'" json:"status"`                 // 账号状态
	ReferralCode *string        `gorm:"type:varchar(16);uniqueIndex" json:"referral_code"` // 推荐码（延迟生成，全局唯一）
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                        // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                 // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Identity 返回用户展示标识（优先昵称，其次邮箱）
func (u User) Identity() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
