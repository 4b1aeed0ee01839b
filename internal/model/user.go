package model

import (
	"time"
)

// User 用户表
// 以钱包地址作为用户的唯一外部标识，首次见到地址时自动创建
// balance 是冗余的当前余额，必须与流水表的累加和保持一致（见 HealthService）
type User struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"wallet"` // 钱包地址（小写规范化后存储，创建后不可变）
	Balance        int64     `gorm:"not null;default:0" json:"balance"`                   // 当前积分余额
	SocialHandle   string    `gorm:"type:varchar(64);index" json:"social_handle"`         // 绑定的社交账号（可为空）
	SocialVerified string    `gorm:"type:text" json:"social_verified"`                    // 社交验证结果（JSON，外部验证服务产出）
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
