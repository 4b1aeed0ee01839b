package repository

import (
	"context"

	"vaultcredits/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 追加一条流水
// 必须与对应的余额变更在同一个事务内调用，流水只增不改不删
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

// SumByUserID 某用户全部流水的金额累加和，对账专用
func (r *TransactionRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.CreditTransaction, error) {
	var trans model.CreditTransaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	var transactions []*model.CreditTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
