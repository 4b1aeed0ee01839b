package job

import (
	"context"
	"log"
	"time"

	"vaultcredits/internal/config"
	"vaultcredits/internal/infrastructure/mq"
	"vaultcredits/internal/model"
	"vaultcredits/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 发件箱投递任务
// 轮询 PENDING 消息投递到 Kafka；投递失败累计重试，超限标记 FAILED 等人工介入。
// 消息与业务在同一事务落库，这里只负责"至少一次"送达
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   *mq.Producer
	cfg        *config.Config
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, producer *mq.Producer, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		interval:   5 * time.Second,
		batchSize:  100,
	}
}

func (j *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息投递任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.sendPending(ctx)
		}
	}
}

func (j *OutboxSender) sendPending(ctx context.Context) {
	messages, err := j.outboxRepo.GetPendingMessages(ctx, j.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询待发消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		if err := j.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
			log.Printf("[OutboxSender] 投递失败: id=%d, key=%s, err=%v", msg.ID, msg.MessageKey, err)

			if msg.RetryCount+1 >= j.cfg.Business.MaxRetryCount {
				if err := j.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
					log.Printf("[OutboxSender] 标记失败状态出错: id=%d, err=%v", msg.ID, err)
				}
			} else {
				if err := j.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
					log.Printf("[OutboxSender] 累计重试次数出错: id=%d, err=%v", msg.ID, err)
				}
			}
			continue
		}

		if err := j.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
			log.Printf("[OutboxSender] 更新已发状态出错: id=%d, err=%v", msg.ID, err)
		}
	}
}
