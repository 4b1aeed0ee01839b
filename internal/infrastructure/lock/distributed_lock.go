package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 【定位】领取接口的快速去重通道，不是正确性依据。
//
// 一次性赠送的正确性由 award_record 的唯一约束保证（见 repository 层），
// 即使锁失效、Redis 宕机、多副本同时放行，最终也只会有一条赠送记录插入成功。
// 锁的作用只是让双击/重试这类重复请求在进数据库事务之前就被挡住，
// 省一次事务往返。
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本原子地完成"检查持有者+删除"
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// 校验 value 防止删掉别人的锁：A 超时丢锁后 B 持锁，A 的 Unlock 不得删除 B 的 key
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewClaimLock 创建领取锁（按 用户+活动 维度）
// 不同活动、不同用户的领取互不阻塞；同一 (用户, 活动) 的重复点击短路在锁上
func NewClaimLock(client *redis.Client, userID int64, campaignKey string) *DistributedLock {
	key := fmt.Sprintf("award:lock:%d:%s", userID, campaignKey)
	value := fmt.Sprintf("%d", time.Now().UnixNano())
	return NewDistributedLock(client, key, value, 10*time.Second)
}
