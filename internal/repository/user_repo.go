package repository

import (
	"context"
	"errors"
	"strings"

	"vaultcredits/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound        = errors.New("用户不存在")
	ErrInvalidAddress      = errors.New("钱包地址格式不合法")
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrHandleAlreadyLinked = errors.New("该社交账号已绑定其他钱包")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// NormalizeWallet 钱包地址规范化
// 统一小写后再入库/查询，避免同一地址因大小写差异生成两个用户
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(strings.ToLower(wallet))
	if wallet == "" || !strings.HasPrefix(wallet, "0x") || len(wallet) <= 2 {
		return "", ErrInvalidAddress
	}
	return wallet, nil
}

func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("wallet = ?", wallet).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreateByWallet 按钱包地址取用户，不存在则创建（余额 0）
//
// 【关键点】并发时两个请求可能同时发现用户不存在，
// 依赖 wallet 唯一索引 + ON CONFLICT DO NOTHING 保证只创建一条，
// 输掉插入竞争的一方回读已存在的记录
func (r *UserRepository) GetOrCreateByWallet(ctx context.Context, wallet string) (*model.User, error) {
	user, err := r.GetByWallet(ctx, wallet)
	if err == nil {
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		Wallet:  wallet,
		Balance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet"}},
			DoNothing: true,
		}).
		Create(newUser).Error

	if err != nil {
		return nil, err
	}

	return r.GetByWallet(ctx, wallet)
}

// LinkSocialHandle 绑定社交账号
// 同一 handle 只允许绑定一个用户，防止一个社交身份在多个钱包上重复领奖励；
// 重复绑定到同一用户视为幂等成功
func (r *UserRepository) LinkSocialHandle(ctx context.Context, userID int64, handle, verifiedJSON string) error {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	// 重复绑定同一 handle：幂等成功，最多补写验证结果
	if user.SocialHandle == handle {
		if verifiedJSON == "" || user.SocialVerified == verifiedJSON {
			return nil
		}
		return r.db.WithContext(ctx).
			Model(&model.User{}).
			Where("id = ?", userID).
			Update("social_verified", verifiedJSON).Error
	}

	var existing model.User
	err = r.db.WithContext(ctx).
		Where("social_handle = ? AND id <> ?", handle, userID).
		First(&existing).Error
	if err == nil {
		return ErrHandleAlreadyLinked
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	updates := map[string]interface{}{
		"social_handle": handle,
	}
	if verifiedJSON != "" {
		updates["social_verified"] = verifiedJSON
	}

	// WHERE 带 handle 冲突保护：并发下即使上面的检查同时通过，
	// 也只会有一个 UPDATE 落库成功（先提交者占住 handle）
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND NOT EXISTS (SELECT 1 FROM (SELECT id FROM user WHERE social_handle = ? AND id <> ?) t)", userID, handle, userID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 前面已确认用户存在且 handle 不同，走到这里说明 handle 被并发占用
		return ErrHandleAlreadyLinked
	}
	return nil
}

// Increase 加积分（赠送/调增/转入）
// 入账不设上限，不会失败于余额检查
func (r *UserRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Deduct 扣积分（消费/调减/转出）
//
// 【关键点】余额检查放在 UPDATE 的 WHERE 里（balance >= ?），
// 由数据库原子地完成"检查+扣减"，并发下不会扣成负数
func (r *UserRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 区分"用户不存在"和"余额不足"；必须复用 tx 的连接，不能另开查询
		var user model.User
		if err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

// IterateUsers 分批遍历全部用户，供对账使用
func (r *UserRepository) IterateUsers(ctx context.Context, batchSize int, fn func(users []*model.User) error) error {
	var users []*model.User
	return r.db.WithContext(ctx).
		FindInBatches(&users, batchSize, func(tx *gorm.DB, batch int) error {
			return fn(users)
		}).Error
}
