package satellite

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
)

// Trust 是按时间锁定的分发托管。到达解锁时间前保持锁定，
// 受益人及其归属金额在构造时一次性写入，此后不可变更。
type Trust struct {
	addr              common.Address
	moloch            dao.Organization
	guildBank         common.Address
	capitalToken      common.Address
	distributionToken common.Address
	unlockAt          int64
	unlocked          bool
	distributions     map[common.Address]*big.Int
}

// NewTrust 在当前事务内部署一个 Trust。unlockAt 必须是编排方
// 一次性计算出的绝对时间戳，Trust 自身不再按部署时间重新推算。
// 受益人按下标与金额配对写入，重复地址后写覆盖先写。
func NewTrust(tx *chain.Tx, moloch dao.Organization, capital, distribution common.Address, unlockAt int64, recipients []common.Address, amounts []*big.Int) (*Trust, error) {
	if moloch == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Trust 需要绑定组织")
	}
	if len(recipients) != len(amounts) {
		return nil, ErrBadVestingDistribution
	}
	distributions := make(map[common.Address]*big.Int, len(recipients))
	for i, recipient := range recipients {
		if amounts[i] == nil || amounts[i].Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "归属金额不能为空或负数")
		}
		distributions[recipient] = new(big.Int).Set(amounts[i])
	}
	return &Trust{
		addr:              tx.NewAddress(),
		moloch:            moloch,
		guildBank:         moloch.GuildBank(),
		capitalToken:      capital,
		distributionToken: distribution,
		unlockAt:          unlockAt,
		unlocked:          false,
		distributions:     distributions,
	}, nil
}

// Address 返回 Trust 的合约地址。
func (t *Trust) Address() common.Address { return t.addr }

// Moloch 返回绑定的组织句柄。
func (t *Trust) Moloch() dao.Organization { return t.moloch }

// GuildBank 返回构造时记录的组织金库地址。
func (t *Trust) GuildBank() common.Address { return t.guildBank }

// CapitalToken 返回组织的资本代币地址。
func (t *Trust) CapitalToken() common.Address { return t.capitalToken }

// DistributionToken 返回托管分发的代币地址。
func (t *Trust) DistributionToken() common.Address { return t.distributionToken }

// UnlockAt 返回解锁时间（unix 秒）。
func (t *Trust) UnlockAt() int64 { return t.unlockAt }

// Unlocked 返回托管是否已解锁。部署完成后恒为 false。
func (t *Trust) Unlocked() bool { return t.unlocked }

// DistributionOf 返回受益人的归属金额副本，未登记的地址返回 0。
func (t *Trust) DistributionOf(recipient common.Address) *big.Int {
	if amount, ok := t.distributions[recipient]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

// VestingTotal 返回全部受益人归属金额之和。
func (t *Trust) VestingTotal() *big.Int {
	total := new(big.Int)
	for _, amount := range t.distributions {
		total.Add(total, amount)
	}
	return total
}
