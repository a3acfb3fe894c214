// Package dao 描述编排器所消费的组织（Moloch 风格 DAO）能力。
// 卫星组件只按地址持有组织的非拥有型引用，不嵌入其治理状态。
package dao

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	xerrors "GuildForge-Chain/internal/errors"
)

// Organization 是卫星组件消费的组织能力句柄。
type Organization interface {
	// Address 返回组织的合约地址。
	Address() common.Address
	// GuildBank 返回组织金库地址。
	GuildBank() common.Address
	// IsTokenApproved 判断代币是否在组织的白名单内。
	IsTokenApproved(token common.Address) bool
}

// Config 保存组织在创建时由召唤者提供的治理参数。
// 编排器只存储这些参数，不解释它们。
type Config struct {
	PeriodDuration     int64
	VotingPeriodLength int64
	GracePeriodLength  int64
	ProposalDeposit    *big.Int
	DilutionBound      int64
	ProcessingReward   *big.Int
	ApprovedTokens     []common.Address
}

// Moloch 是组织能力的内存实现，代表一个已存在的 DAO 实例。
type Moloch struct {
	addr      common.Address
	guildBank common.Address
	cfg       Config
	approved  map[common.Address]bool
}

// NewMoloch 依据召唤者提供的参数创建组织句柄。
func NewMoloch(addr, guildBank common.Address, cfg Config) *Moloch {
	approved := make(map[common.Address]bool, len(cfg.ApprovedTokens))
	for _, token := range cfg.ApprovedTokens {
		approved[token] = true
	}
	if cfg.ProposalDeposit == nil {
		cfg.ProposalDeposit = new(big.Int)
	}
	if cfg.ProcessingReward == nil {
		cfg.ProcessingReward = new(big.Int)
	}
	return &Moloch{
		addr:      addr,
		guildBank: guildBank,
		cfg:       cfg,
		approved:  approved,
	}
}

// Address 实现 Organization 接口。
func (m *Moloch) Address() common.Address { return m.addr }

// GuildBank 返回组织金库地址。
func (m *Moloch) GuildBank() common.Address { return m.guildBank }

// IsTokenApproved 判断代币是否在白名单内。
func (m *Moloch) IsTokenApproved(token common.Address) bool {
	return m.approved[token]
}

// Config 返回创建时的治理参数。
func (m *Moloch) Config() Config {
	cfg := m.cfg
	cfg.ProposalDeposit = new(big.Int).Set(m.cfg.ProposalDeposit)
	cfg.ProcessingReward = new(big.Int).Set(m.cfg.ProcessingReward)
	cfg.ApprovedTokens = append([]common.Address(nil), m.cfg.ApprovedTokens...)
	return cfg
}

// Registry 按地址索引宿主进程内的组织实例。
type Registry struct {
	mu   sync.RWMutex
	orgs map[common.Address]Organization
}

// NewRegistry 创建空的组织注册表。
func NewRegistry() *Registry {
	return &Registry{orgs: make(map[common.Address]Organization)}
}

// Register 登记一个组织。地址重复时返回冲突错误。
func (r *Registry) Register(org Organization) error {
	if org == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "组织不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[org.Address()]; ok {
		return xerrors.New(xerrors.CodeConflict, "组织地址已注册",
			xerrors.WithMetadata("address", org.Address().Hex()))
	}
	r.orgs[org.Address()] = org
	return nil
}

// Lookup 按地址查找组织。
func (r *Registry) Lookup(addr common.Address) (Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[addr]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "组织未注册",
			xerrors.WithMetadata("address", addr.Hex()))
	}
	return org, nil
}
