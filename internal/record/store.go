package record

import "context"

// Store 抽象部署记录的持久化接口。
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	ListByMoloch(ctx context.Context, moloch string, limit int) ([]*Record, error)
	Close() error
}
