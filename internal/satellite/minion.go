// Package satellite 实现 DAO 的三个卫星组件（Minion、Transmuter、Trust）
// 以及一次性完成部署、注资与授权接线的召唤工厂。
package satellite

import (
	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
)

// Minion 是代表组织执行操作的代理组件。
// 构造时与唯一的组织绑定，绑定关系不可变更。
type Minion struct {
	addr   common.Address
	moloch dao.Organization
}

// NewMinion 在当前事务内部署一个 Minion。
func NewMinion(tx *chain.Tx, moloch dao.Organization) (*Minion, error) {
	if moloch == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Minion 需要绑定组织")
	}
	return &Minion{
		addr:   tx.NewAddress(),
		moloch: moloch,
	}, nil
}

// Address 返回 Minion 的合约地址。
func (m *Minion) Address() common.Address { return m.addr }

// Moloch 返回绑定的组织句柄。
func (m *Minion) Moloch() dao.Organization { return m.moloch }
