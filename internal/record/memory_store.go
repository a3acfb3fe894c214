package record

import (
	"context"
	"sort"
	"strings"
	"sync"

	xerrors "GuildForge-Chain/internal/errors"
)

// MemoryStore 以内存方式保存部署记录，主要用于测试与本地运行。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Save 实现 Store 接口。
func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录不能为空")
	}
	if rec.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return ErrRecordConflict
	}
	clone := *rec
	m.records[rec.ID] = &clone
	return nil
}

// Get 返回指定记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

// List 返回最近的部署记录，按创建时间倒序排列。
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(limit, func(*Record) bool { return true }), nil
}

// ListByMoloch 返回指定组织名下的部署记录。
func (m *MemoryStore) ListByMoloch(_ context.Context, moloch string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(limit, func(rec *Record) bool {
		return strings.EqualFold(rec.Moloch, moloch)
	}), nil
}

func (m *MemoryStore) collect(limit int, match func(*Record) bool) []*Record {
	results := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if !match(rec) {
			continue
		}
		clone := *rec
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
