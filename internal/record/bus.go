package record

import "context"

// Handler 处理来自事件总线的部署记录 ID。
type Handler func(ctx context.Context, recordID string) error

// Producer 负责向总线发布部署记录 ID。
type Producer interface {
	Publish(ctx context.Context, recordID string) error
	Close() error
}

// Consumer 负责从总线消费部署记录 ID。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Bus 同时具备生产者与消费者能力。
type Bus interface {
	Producer
	Consumer
}
