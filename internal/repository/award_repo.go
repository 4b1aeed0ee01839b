package repository

import (
	"context"

	"vaultcredits/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================================
// 赠送记录仓储
// ============================================================================
//
// 【为什么不能先查再插？】
//
// 场景：用户双击领取按钮，两个请求几乎同时到达
//
//   请求1: 查询 -> 没领过 -> 插入记录 -> 加积分
//   请求2: 查询 -> 没领过 -> 插入记录 -> 加积分   双倍发放！
//
// 两个请求都在对方插入之前完成了查询，"查询+插入"不是原子的。
// 积分可以兑换奖金，这个竞态是真金白银的损失。
//
// 【解法】把"是否领过"的判定收敛到一条唯一约束上：
//
//   INSERT ... ON CONFLICT (user_id, campaign_key) DO NOTHING
//
// 数据库保证同一 (user_id, campaign_key) 只有一条插入成功，
// RowsAffected 告诉调用方自己是赢家还是输家。竞态窗口在结构上不存在，
// 幂等性是数据模型的属性，不依赖任何请求级去重或外部锁。
//
// ============================================================================

type AwardRepository struct {
	db *gorm.DB
}

func NewAwardRepository(db *gorm.DB) *AwardRepository {
	return &AwardRepository{db: db}
}

// HasAwarded 查询某用户是否已领取过某活动的赠送
// 仅用于展示/对账，领取流程必须走 TryReserve，不得以此做判定
func (r *AwardRepository) HasAwarded(ctx context.Context, userID int64, campaignKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AwardRecord{}).
		Where("user_id = ? AND campaign_key = ?", userID, campaignKey).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TryReserve 原子地占位赠送记录
// 返回 true 表示本次调用赢得插入（应继续发放积分），
// 返回 false 表示记录已存在（本次或历史上的其他请求已领取）
func (r *AwardRepository) TryReserve(ctx context.Context, tx *gorm.DB, record *model.AwardRecord) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "campaign_key"}},
			DoNothing: true,
		}).
		Create(record)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GetByUserAndCampaign 读取赠送记录，不存在返回 nil
func (r *AwardRepository) GetByUserAndCampaign(ctx context.Context, userID int64, campaignKey string) (*model.AwardRecord, error) {
	var record model.AwardRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND campaign_key = ?", userID, campaignKey).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DuplicatePair 重复赠送对，仅对账使用
type DuplicatePair struct {
	UserID      int64  `gorm:"column:user_id"`
	CampaignKey string `gorm:"column:campaign_key"`
	Count       int64  `gorm:"column:cnt"`
}

// FindDuplicates 扫描是否存在同一 (user_id, campaign_key) 的多条记录
// 唯一索引生效时永远查不到结果；查到说明索引被绕过或数据被人为篡改
func (r *AwardRepository) FindDuplicates(ctx context.Context) ([]DuplicatePair, error) {
	var pairs []DuplicatePair
	err := r.db.WithContext(ctx).
		Model(&model.AwardRecord{}).
		Select("user_id, campaign_key, COUNT(*) AS cnt").
		Group("user_id, campaign_key").
		Having("COUNT(*) > 1").
		Scan(&pairs).Error
	return pairs, err
}
