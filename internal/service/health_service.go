package service

import (
	"context"
	"fmt"
	"log"

	"vaultcredits/internal/model"
	"vaultcredits/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// 账本健康检查
// ============================================================================
//
// 只读的一致性校验，供监控端点和后台巡检调用，永远不在请求链路上，
// 发现问题只上报、不修复（半自动"修复"坏账比坏账本身更危险）。
//
// 校验项：
//   1. 存储可达性（MySQL / Redis）
//   2. 每个用户：余额 == 流水累加和
//   3. 赠送记录无重复 (user_id, campaign_key)
//
// 任何内部错误都收敛进返回结构，不向外抛，监控端点永远能拿到结构化结果。
//
// ============================================================================

// HealthReport 健康检查结果
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Checks  []string `json:"checks"`
	Errors  []string `json:"errors"`
}

type HealthService struct {
	db              *gorm.DB
	redisClient     *redis.Client // 可为 nil
	userRepo        *repository.UserRepository
	awardRepo       *repository.AwardRepository
	transactionRepo *repository.TransactionRepository
}

func NewHealthService(db *gorm.DB, redisClient *redis.Client) *HealthService {
	return &HealthService{
		db:              db,
		redisClient:     redisClient,
		userRepo:        repository.NewUserRepository(db),
		awardRepo:       repository.NewAwardRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// Check 执行全部校验
func (s *HealthService) Check(ctx context.Context) (report HealthReport) {
	report = HealthReport{Checks: []string{}, Errors: []string{}}

	defer func() {
		// 校验代码自身出问题也不能击穿监控端点
		if r := recover(); r != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("健康检查异常: %v", r))
			report.Healthy = false
		}
	}()

	s.checkStorage(ctx, &report)
	s.checkBalances(ctx, &report)
	s.checkAwardDuplicates(ctx, &report)

	report.Healthy = len(report.Errors) == 0
	return report
}

// checkStorage 存储可达性
func (s *HealthService) checkStorage(ctx context.Context, report *HealthReport) {
	sqlDB, err := s.db.DB()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("数据库句柄不可用: %v", err))
		return
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("数据库不可达: %v", err))
		return
	}
	report.Checks = append(report.Checks, "database: ok")

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Redis 不可达: %v", err))
		} else {
			report.Checks = append(report.Checks, "redis: ok")
		}
	}
}

// checkBalances 逐用户核对 余额 == 流水累加和
func (s *HealthService) checkBalances(ctx context.Context, report *HealthReport) {
	checked := 0
	err := s.userRepo.IterateUsers(ctx, 200, func(users []*model.User) error {
		for _, user := range users {
			sum, err := s.transactionRepo.SumByUserID(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("累加用户 %d 流水失败: %w", user.ID, err)
			}
			if sum != user.Balance {
				report.Errors = append(report.Errors, fmt.Sprintf(
					"余额与流水不一致: user_id=%d, wallet=%s, balance=%d, 流水和=%d, 差额=%d",
					user.ID, user.Wallet, user.Balance, sum, user.Balance-sum))
			}
			checked++
		}
		return nil
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("余额核对中断: %v", err))
		return
	}
	report.Checks = append(report.Checks, fmt.Sprintf("balance-vs-ledger: %d users checked", checked))
}

// checkAwardDuplicates 赠送记录唯一性
func (s *HealthService) checkAwardDuplicates(ctx context.Context, report *HealthReport) {
	pairs, err := s.awardRepo.FindDuplicates(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("赠送记录扫描失败: %v", err))
		return
	}
	if len(pairs) > 0 {
		for _, p := range pairs {
			report.Errors = append(report.Errors, fmt.Sprintf(
				"赠送记录重复: user_id=%d, campaign=%s, 记录数=%d", p.UserID, p.CampaignKey, p.Count))
		}
		return
	}
	report.Checks = append(report.Checks, "award-uniqueness: ok")
}

// LogReport 巡检任务用：把不健康的结论打到操作日志
func (s *HealthService) LogReport(report HealthReport) {
	if report.Healthy {
		return
	}
	for _, e := range report.Errors {
		log.Printf("[LedgerAudit] 不变式违反: %s", e)
	}
}
