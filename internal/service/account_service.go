package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"vaultcredits/internal/config"
	"vaultcredits/internal/model"
	"vaultcredits/internal/repository"
	"vaultcredits/pkg/idgen"

	"gorm.io/gorm"
)

// 调整方向
const (
	AdjustDirectionAdd      = "add"
	AdjustDirectionSubtract = "subtract"
)

var (
	ErrInvalidAmount    = errors.New("金额必须大于0")
	ErrInvalidDirection = errors.New("direction 必须为 add 或 subtract")
	ErrSameWallet       = errors.New("不能转账给自己")
)

// AccountService 余额读写与非赠送类变更
// 赠送类变更只能走 AwardService，这里不写 award_record、不产生 AWARD 流水
type AccountService struct {
	db              *gorm.DB
	cfg             *config.Config
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		db:              db,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// GetBalance 查询余额，未见过的钱包视为余额 0
func (s *AccountService) GetBalance(ctx context.Context, wallet string) (int64, error) {
	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return 0, err
	}
	user, err := s.userRepo.GetByWallet(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.Balance, nil
}

// applyChange 余额变更 + 流水 + 发件箱的原子单元
// amount 为带符号金额；出账时由 Deduct 的条件 UPDATE 保证不会扣成负数
func (s *AccountService) applyChange(ctx context.Context, userID int64, amount int64, txType, reference, event string) (int64, error) {
	var newBalance int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var current model.User
		if err := tx.WithContext(ctx).Where("id = ?", userID).First(&current).Error; err != nil {
			return fmt.Errorf("读取余额失败: %w", err)
		}

		if amount >= 0 {
			if err := s.userRepo.Increase(ctx, tx, userID, amount); err != nil {
				return err
			}
		} else {
			if err := s.userRepo.Deduct(ctx, tx, userID, -amount); err != nil {
				return err
			}
		}

		transaction := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        amount,
			Type:          txType,
			Reference:     reference,
			BalanceBefore: current.Balance,
			BalanceAfter:  current.Balance + amount,
		}
		if err := s.transactionRepo.Create(ctx, tx, transaction); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		newBalance = current.Balance + amount

		msgPayload := map[string]interface{}{
			"event":          event,
			"transaction_no": transaction.TransactionNo,
			"user_id":        userID,
			"amount":         amount,
			"new_balance":    newBalance,
			"reference":      reference,
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: transaction.TransactionNo,
			Topic:      s.cfg.Kafka.Topic.CreditEvent,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Adjust 人工调整余额
// subtract 导致余额为负时整体失败（ErrInsufficientBalance），余额保持原值
func (s *AccountService) Adjust(ctx context.Context, wallet string, amount int64, direction, note string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return 0, err
	}

	user, err := s.userRepo.GetOrCreateByWallet(ctx, normalized)
	if err != nil {
		return 0, err
	}

	signed := amount
	switch direction {
	case AdjustDirectionAdd:
	case AdjustDirectionSubtract:
		signed = -amount
	default:
		return 0, ErrInvalidDirection
	}

	if note == "" {
		note = "manual-adjust"
	}
	return s.applyChange(ctx, user.ID, signed, model.TransactionTypeAdjustment, note, "credit_adjusted")
}

// Spend 消费积分（如兑换抽奖次数），余额不足则整体失败
func (s *AccountService) Spend(ctx context.Context, wallet string, amount int64, reference string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return 0, err
	}

	user, err := s.userRepo.GetByWallet(ctx, normalized)
	if err != nil {
		return 0, err
	}

	return s.applyChange(ctx, user.ID, -amount, model.TransactionTypeSpend, reference, "credit_spent")
}

// Transfer 用户间转账
//
// 【关键点】扣减与入账在同一事务：任何一步失败两边都回滚，
// 积分总量守恒，不会出现"扣了没到账"
func (s *AccountService) Transfer(ctx context.Context, fromWallet, toWallet string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	from, err := repository.NormalizeWallet(fromWallet)
	if err != nil {
		return 0, err
	}
	to, err := repository.NormalizeWallet(toWallet)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 0, ErrSameWallet
	}

	fromUser, err := s.userRepo.GetByWallet(ctx, from)
	if err != nil {
		return 0, err
	}
	toUser, err := s.userRepo.GetOrCreateByWallet(ctx, to)
	if err != nil {
		return 0, err
	}

	var newBalance int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var sender model.User
		if err := tx.WithContext(ctx).Where("id = ?", fromUser.ID).First(&sender).Error; err != nil {
			return err
		}
		var receiver model.User
		if err := tx.WithContext(ctx).Where("id = ?", toUser.ID).First(&receiver).Error; err != nil {
			return err
		}

		if err := s.userRepo.Deduct(ctx, tx, fromUser.ID, amount); err != nil {
			return err
		}
		if err := s.userRepo.Increase(ctx, tx, toUser.ID, amount); err != nil {
			return err
		}

		outTrans := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        fromUser.ID,
			Amount:        -amount,
			Type:          model.TransactionTypeTransfer,
			Reference:     to,
			BalanceBefore: sender.Balance,
			BalanceAfter:  sender.Balance - amount,
		}
		if err := s.transactionRepo.Create(ctx, tx, outTrans); err != nil {
			return fmt.Errorf("记录转出流水失败: %w", err)
		}

		inTrans := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        toUser.ID,
			Amount:        amount,
			Type:          model.TransactionTypeTransfer,
			Reference:     from,
			BalanceBefore: receiver.Balance,
			BalanceAfter:  receiver.Balance + amount,
		}
		if err := s.transactionRepo.Create(ctx, tx, inTrans); err != nil {
			return fmt.Errorf("记录转入流水失败: %w", err)
		}

		newBalance = sender.Balance - amount

		msgPayload := map[string]interface{}{
			"event":       "credit_transferred",
			"from_wallet": from,
			"to_wallet":   to,
			"amount":      amount,
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: outTrans.TransactionNo,
			Topic:      s.cfg.Kafka.Topic.CreditEvent,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListTransactions 查询某钱包的流水，新的在前
func (s *AccountService) ListTransactions(ctx context.Context, wallet string, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return nil, 0, err
	}
	user, err := s.userRepo.GetByWallet(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return []*model.CreditTransaction{}, 0, nil
		}
		return nil, 0, err
	}
	return s.transactionRepo.ListByUserID(ctx, user.ID, page, pageSize)
}
