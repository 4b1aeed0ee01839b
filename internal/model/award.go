package model

import (
	"time"
)

// AwardRecord 赠送记录表
// (user_id, campaign_key) 联合唯一索引是整个一次性赠送机制的基石：
// 记录存在 = 已赠送过，记录只插入、永不删除、永不修改。
// 是否赠送过的判断必须依赖这条唯一约束，而不是先查后写。
type AwardRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AwardNo     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"award_no"`                    // 赠送单号
	UserID      int64     `gorm:"uniqueIndex:uk_user_campaign;not null" json:"user_id"`                     // 用户ID
	CampaignKey string    `gorm:"type:varchar(64);uniqueIndex:uk_user_campaign;not null" json:"campaign_key"` // 活动标识（如 vault:7）
	Amount      int64     `gorm:"not null" json:"amount"`                                                   // 赠送积分数
	AwardedAt   time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

func (AwardRecord) TableName() string {
	return "award_record"
}
