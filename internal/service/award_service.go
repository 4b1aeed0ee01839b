package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vaultcredits/internal/config"
	"vaultcredits/internal/infrastructure/lock"
	"vaultcredits/internal/model"
	"vaultcredits/internal/repository"
	"vaultcredits/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// 一次性赠送引擎
// ============================================================================
//
// 【核心语义】同一 (钱包, 活动) 的赠送在整个生命周期内至多发放一次：
// 不是"同一时刻至多一次"，而是包括几分钟后的重试、换浏览器重发在内的永久幂等。
//
// 结果是封闭的四种变体之一，调用方拿不到半初始化的中间状态：
//   Awarded        本次发放成功（携带新余额）
//   AlreadyAwarded 历史上已发放过，本次零副作用（重复点击/重试的常规路径）
//   NotEligible    入参或资格不满足，重试同样入参不会成功
//   Failed         瞬时故障，已整体回滚，重试是安全的
//
// ============================================================================

// 结果变体
const (
	OutcomeAwarded        = "AWARDED"
	OutcomeAlreadyAwarded = "ALREADY_AWARDED"
	OutcomeNotEligible    = "NOT_ELIGIBLE"
	OutcomeFailed         = "FAILED"
)

// NotEligible 细分原因，handler 据此映射 HTTP 语义
const (
	ReasonCampaignNotFound = "CAMPAIGN_NOT_FOUND"
	ReasonCampaignClosed   = "CAMPAIGN_CLOSED"
	ReasonInvalidAddress   = "INVALID_ADDRESS"
	ReasonSocialRequired   = "SOCIAL_REQUIRED"
)

// AwardOutcome 赠送结果
type AwardOutcome struct {
	Kind       string `json:"kind"`
	Credits    int64  `json:"credits"`     // 本次发放积分数（仅 Awarded 非零）
	NewBalance int64  `json:"new_balance"` // 发放后余额（仅 Awarded 有效）
	Reason     string `json:"reason,omitempty"`
}

// errAlreadyAwarded 事务内部哨兵：占位失败时用它中止事务（本来也没有写入）
var errAlreadyAwarded = errors.New("已领取过")

type AwardService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 可为 nil，锁只是快速去重通道
	cfg             *config.Config
	userRepo        *repository.UserRepository
	awardRepo       *repository.AwardRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewAwardService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *AwardService {
	return &AwardService{
		db:              db,
		redisClient:     redisClient,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		awardRepo:       repository.NewAwardRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// AwardOnce 原子的"没领过才发放"
//
// 【关键点】是否已领取的判定不走"先查后写"，而是把判定收敛到
// award_record 唯一约束上的一次占位插入（TryReserve）。
// 占位、加余额、记流水、写发件箱在同一个数据库事务内，要么全部生效要么全部回滚，
// 所以 Failed 之后调用方可以放心重试：上一次要么什么都没写，要么已经发放完成。
func (s *AwardService) AwardOnce(ctx context.Context, wallet, campaignKey string) AwardOutcome {
	// 1. 活动校验：活动是纯配置，key 查不到即不存在
	campaign := s.cfg.FindCampaign(campaignKey)
	if campaign == nil {
		return AwardOutcome{Kind: OutcomeNotEligible, Reason: ReasonCampaignNotFound}
	}
	if !campaign.Active || campaign.BonusCredits <= 0 {
		return AwardOutcome{Kind: OutcomeNotEligible, Reason: ReasonCampaignClosed}
	}

	// 2. 地址规范化
	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return AwardOutcome{Kind: OutcomeNotEligible, Reason: ReasonInvalidAddress}
	}

	// 3. 解析/创建用户
	user, err := s.userRepo.GetOrCreateByWallet(ctx, normalized)
	if err != nil {
		return AwardOutcome{Kind: OutcomeFailed, Reason: fmt.Sprintf("获取用户失败: %v", err)}
	}

	// 4. 资格检查：活动可要求已绑定社交账号（验证本身由外部完成，这里只看结果）
	if campaign.RequireSocial && user.SocialHandle == "" {
		return AwardOutcome{Kind: OutcomeNotEligible, Reason: ReasonSocialRequired}
	}

	// 5. 快速去重：Redis 锁拦掉双击/重试，拿不到锁或 Redis 故障都不影响正确性，
	// 直接放行走数据库事务，由唯一约束兜底
	if s.redisClient != nil {
		claimLock := lock.NewClaimLock(s.redisClient, user.ID, campaignKey)
		if err := claimLock.Lock(ctx, 50*time.Millisecond, 10); err == nil {
			defer claimLock.Unlock(ctx)
		}
	}

	amount := campaign.BonusCredits
	var newBalance int64

	// 6. 原子单元：占位 -> 加余额 -> 记流水 -> 写发件箱
	err = s.db.Transaction(func(tx *gorm.DB) error {
		record := &model.AwardRecord{
			AwardNo:     idgen.GenerateAwardNo(),
			UserID:      user.ID,
			CampaignKey: campaignKey,
			Amount:      amount,
		}

		won, err := s.awardRepo.TryReserve(ctx, tx, record)
		if err != nil {
			return fmt.Errorf("占位赠送记录失败: %w", err)
		}
		if !won {
			// 常规的重复请求路径：无任何写入，廉价返回
			return errAlreadyAwarded
		}

		// 事务内重读余额，保证 balance_before/after 准确
		var current model.User
		if err := tx.WithContext(ctx).Where("id = ?", user.ID).First(&current).Error; err != nil {
			return fmt.Errorf("读取余额失败: %w", err)
		}

		if err := s.userRepo.Increase(ctx, tx, user.ID, amount); err != nil {
			return fmt.Errorf("发放积分失败: %w", err)
		}

		transaction := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        user.ID,
			Amount:        amount,
			Type:          model.TransactionTypeAward,
			Reference:     campaignKey,
			BalanceBefore: current.Balance,
			BalanceAfter:  current.Balance + amount,
		}
		if err := s.transactionRepo.Create(ctx, tx, transaction); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		newBalance = current.Balance + amount

		msgPayload := map[string]interface{}{
			"event":        "credit_awarded",
			"award_no":     record.AwardNo,
			"wallet":       normalized,
			"campaign_key": campaignKey,
			"amount":       amount,
			"new_balance":  newBalance,
			"awarded_at":   time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: record.AwardNo,
			Topic:      s.cfg.Kafka.Topic.CreditEvent,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, errAlreadyAwarded) {
			return AwardOutcome{Kind: OutcomeAlreadyAwarded}
		}
		// 其余错误统一视为瞬时故障：事务已整体回滚，占位记录未落库，重试安全
		return AwardOutcome{Kind: OutcomeFailed, Reason: err.Error()}
	}

	log.Printf("赠送成功: wallet=%s, campaign=%s, amount=%d, balance=%d",
		normalized, campaignKey, amount, newBalance)

	return AwardOutcome{
		Kind:       OutcomeAwarded,
		Credits:    amount,
		NewBalance: newBalance,
	}
}

// HasAwarded 查询展示用：某钱包是否已领取过某活动
func (s *AwardService) HasAwarded(ctx context.Context, wallet, campaignKey string) (bool, error) {
	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return false, err
	}
	user, err := s.userRepo.GetByWallet(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.awardRepo.HasAwarded(ctx, user.ID, campaignKey)
}
