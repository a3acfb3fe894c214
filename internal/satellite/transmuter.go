package satellite

import (
	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/internal/token"
)

// Transmuter 将持有的 give 代币通过组织的兑换机制换成 get 代币。
// 构造时即向组织与 Minion 授予无限的 give 代币支配额度，
// 后续的兑换与转发不再需要召唤者发起第二笔授权交易。
type Transmuter struct {
	addr      common.Address
	moloch    dao.Organization
	giveToken *token.Ledger
	getToken  *token.Ledger
	minion    common.Address
}

// NewTransmuter 在当前事务内部署一个 Transmuter 并完成授权接线。
func NewTransmuter(tx *chain.Tx, moloch dao.Organization, give, get *token.Ledger, minion common.Address) (*Transmuter, error) {
	if moloch == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Transmuter 需要绑定组织")
	}
	if give == nil || get == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Transmuter 需要 give 与 get 代币")
	}
	t := &Transmuter{
		addr:      tx.NewAddress(),
		moloch:    moloch,
		giveToken: give,
		getToken:  get,
		minion:    minion,
	}
	if err := give.Approve(t.addr, moloch.Address(), token.Unlimited()); err != nil {
		return nil, err
	}
	if err := give.Approve(t.addr, minion, token.Unlimited()); err != nil {
		return nil, err
	}
	return t, nil
}

// Address 返回 Transmuter 的合约地址。
func (t *Transmuter) Address() common.Address { return t.addr }

// Moloch 返回绑定的组织句柄。
func (t *Transmuter) Moloch() dao.Organization { return t.moloch }

// GiveToken 返回兑换时付出的代币地址。
func (t *Transmuter) GiveToken() common.Address { return t.giveToken.Address() }

// GetToken 返回兑换后得到的代币地址。
func (t *Transmuter) GetToken() common.Address { return t.getToken.Address() }

// Minion 返回被授权的执行代理地址。
func (t *Transmuter) Minion() common.Address { return t.minion }
