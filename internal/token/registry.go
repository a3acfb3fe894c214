package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "GuildForge-Chain/internal/errors"
)

// Registry 按合约地址索引已部署的代币账本。
type Registry struct {
	mu      sync.RWMutex
	ledgers map[common.Address]*Ledger
}

// NewRegistry 创建空的代币注册表。
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[common.Address]*Ledger)}
}

// Register 登记一个代币账本。地址重复时返回冲突错误。
func (r *Registry) Register(ledger *Ledger) error {
	if ledger == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "账本不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ledgers[ledger.Address()]; ok {
		return xerrors.New(xerrors.CodeConflict, "代币地址已注册",
			xerrors.WithMetadata("address", ledger.Address().Hex()))
	}
	r.ledgers[ledger.Address()] = ledger
	return nil
}

// Lookup 按地址查找代币账本。
func (r *Registry) Lookup(addr common.Address) (*Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ledger, ok := r.ledgers[addr]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "代币未注册",
			xerrors.WithMetadata("address", addr.Hex()))
	}
	return ledger, nil
}

// Addresses 返回所有已注册代币的地址。
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]common.Address, 0, len(r.ledgers))
	for addr := range r.ledgers {
		addrs = append(addrs, addr)
	}
	return addrs
}
