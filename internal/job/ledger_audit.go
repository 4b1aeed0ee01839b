package job

import (
	"context"
	"log"
	"time"

	"vaultcredits/internal/config"
	"vaultcredits/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// LedgerAuditJob 账本巡检任务
// 周期性跑一遍健康检查，余额与流水背离、赠送记录重复等不变式违反
// 只打日志告警，绝不自动修复
type LedgerAuditJob struct {
	healthService *service.HealthService
	interval      time.Duration
}

func NewLedgerAuditJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *LedgerAuditJob {
	interval := time.Duration(cfg.Business.AuditIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LedgerAuditJob{
		healthService: service.NewHealthService(db, rdb),
		interval:      interval,
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	log.Println("[LedgerAudit] 账本巡检任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerAudit] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			report := j.healthService.Check(ctx)
			if report.Healthy {
				log.Printf("[LedgerAudit] 巡检通过: %v", report.Checks)
			} else {
				j.healthService.LogReport(report)
			}
		}
	}
}
