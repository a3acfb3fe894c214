package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBusConfig 描述 Redis 总线的连接参数。
type RedisBusConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisBus 使用 Redis list 实现部署记录总线。
type RedisBus struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisBus 创建 Redis 总线实例。
func NewRedisBus(cfg RedisBusConfig) (*RedisBus, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "guildforge:records"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisBus{client: client, queue: queue, wait: wait}, nil
}

// Publish 将记录 ID 投递到 Redis。
func (b *RedisBus) Publish(ctx context.Context, recordID string) error {
	if err := b.client.LPush(ctx, b.queue, recordID).Err(); err != nil {
		return fmt.Errorf("Redis 发布记录失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取记录 ID。
func (b *RedisBus) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := b.client.BRPop(ctx, b.wait, b.queue).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if err == redis.Nil {
						continue
					}
					errCh <- fmt.Errorf("Redis 取记录失败: %w", err)
					return
				}
				if len(values) != 2 {
					continue
				}
				recordID := values[1]
				if handlerErr := handler(ctx, recordID); handlerErr != nil {
					// 处理失败时重新投递。
					_ = b.client.RPush(ctx, b.queue, recordID).Err()
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

var _ Bus = (*RedisBus)(nil)
