package record

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"sync"

	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/pkg/logger"
)

// Indexer 消费总线上发布的记录 ID，从存储加载完整记录，
// 并维护按组织地址聚合的发现索引。下游只需一条记录即可
// 还原一次部署产生的全部组件地址。
type Indexer struct {
	store       Store
	consumer    Consumer
	workerCount int
	log         *slog.Logger

	mu       sync.RWMutex
	byMoloch map[string][]*Record
}

// IndexerOption 定义可选配置。
type IndexerOption func(*Indexer)

// WithIndexerWorkers 设置消费协程数量。
func WithIndexerWorkers(workers int) IndexerOption {
	return func(ix *Indexer) {
		if workers > 0 {
			ix.workerCount = workers
		}
	}
}

// NewIndexer 构造 Indexer。
func NewIndexer(store Store, consumer Consumer, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		store:       store,
		consumer:    consumer,
		workerCount: 1,
		log:         logger.Named("indexer"),
		byMoloch:    make(map[string][]*Record),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}
	return ix
}

// Start 启动索引循环，直到上下文取消。
func (ix *Indexer) Start(ctx context.Context) error {
	if ix.consumer == nil || ix.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "索引器未初始化")
	}
	return ix.consumer.Consume(ctx, ix.workerCount, ix.handle)
}

func (ix *Indexer) handle(ctx context.Context, recordID string) error {
	rec, err := ix.store.Get(ctx, recordID)
	if err != nil {
		if stdErrors.Is(err, ErrRecordNotFound) {
			ix.log.Warn("跳过不存在的记录", slog.String("record_id", recordID))
			return nil
		}
		ix.log.Error("加载部署记录失败", slog.Any("error", err), slog.String("record_id", recordID))
		return err
	}

	key := strings.ToLower(rec.Moloch)
	ix.mu.Lock()
	ix.byMoloch[key] = append(ix.byMoloch[key], rec)
	ix.mu.Unlock()

	ix.log.Info("部署记录已建立索引",
		slog.String("record_id", rec.ID),
		slog.String("moloch", rec.Moloch),
		slog.String("trust", rec.Trust),
	)
	return nil
}

// ByMoloch 返回指定组织名下已索引的部署记录副本。
func (ix *Indexer) ByMoloch(moloch string) []*Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	records := ix.byMoloch[strings.ToLower(moloch)]
	out := make([]*Record, len(records))
	for i, rec := range records {
		clone := *rec
		out[i] = &clone
	}
	return out
}
