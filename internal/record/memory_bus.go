package record

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus 使用 channel 模拟事件总线，主要用于测试与单机运行。
type MemoryBus struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

// NewMemoryBus 创建一个内存总线。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{ch: make(chan string, size)}
}

// Publish 将记录 ID 投递到总线。
func (b *MemoryBus) Publish(ctx context.Context, recordID string) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("总线已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.ch <- recordID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费总线中的记录 ID。
func (b *MemoryBus) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case recordID, ok := <-b.ch:
					if !ok {
						return
					}
					_ = handler(ctx, recordID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存总线。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if !b.closed {
		close(b.ch)
		b.closed = true
	}
	b.mu.Unlock()
	return nil
}

var _ Bus = (*MemoryBus)(nil)
