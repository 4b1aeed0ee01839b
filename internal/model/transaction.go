package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeAward      = "AWARD"      // 活动赠送
	TransactionTypeSpend      = "SPEND"      // 消费（扣减）
	TransactionTypeAdjustment = "ADJUSTMENT" // 人工调整
	TransactionTypeTransfer   = "TRANSFER"   // 用户间转账
)

// ============================================================================
// 积分流水实体
// ============================================================================

// CreditTransaction 积分流水表
// 记录每一笔余额变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 必须与余额变更在同一个事务内写入 —— 保证两者永不背离
// 3. 记录交易前后余额 —— 便于校验余额一致性
//
// 不变式：任一用户的流水金额累加和 == 该用户当前余额
type CreditTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 金额（正数入账，负数出账）
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`                       // 交易类型
	Reference     string    `gorm:"type:varchar(128);index" json:"reference"`                    // 关联引用（活动key/对方钱包/操作备注）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 交易后余额
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
