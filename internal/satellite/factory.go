package satellite

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/internal/token"
	"GuildForge-Chain/pkg/logger"
)

// EventDeployment 是每次成功召唤发布的发现事件名称。
// 事件携带完整的地址集，下游索引器仅凭这一条记录即可还原组件全集。
const EventDeployment = "Deployment"

var (
	// ErrBadVestingDistribution 表示受益人列表与金额列表长度不一致。
	ErrBadVestingDistribution = xerrors.New(CodeBadVestingDistribution, "vesting recipients and amounts length mismatch")
	// ErrInsufficientAllowance 表示召唤者预授权或持有的分发代币不足以覆盖申报总额。
	ErrInsufficientAllowance = xerrors.New(CodeInsufficientAllowance, "summoner allowance does not cover distribution total")
)

const (
	CodeBadVestingDistribution xerrors.Code = "SUMMON_BAD_VESTING_DIST"
	CodeInsufficientAllowance  xerrors.Code = "SUMMON_INSUFFICIENT_ALLOWANCE"
	CodeSummonFailure          xerrors.Code = "SUMMON_FAILED"
)

func init() {
	xerrors.Register(CodeBadVestingDistribution, xerrors.Attributes{
		Message:   "vesting recipients and amounts length mismatch",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientAllowance, xerrors.Attributes{
		Message:   "summoner allowance does not cover distribution total",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSummonFailure, xerrors.Attributes{
		Message:   "satellite deployment failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// SummonRequest 描述一次完整的卫星部署请求。
type SummonRequest struct {
	// Summoner 是支付分发代币的调用方地址。
	Summoner common.Address
	// Moloch 是全部组件绑定的既有组织。
	Moloch dao.Organization
	// CapitalToken 是组织的资本代币。
	CapitalToken *token.Ledger
	// DistributionToken 是被分发与托管的代币。
	DistributionToken *token.Ledger
	// VestingPeriodSeconds 是相对的锁定时长，解锁时间由工厂
	// 按部署事务的区块时间一次性折算为绝对时间戳。
	VestingPeriodSeconds int64
	// TransmuterDist、TrustDist、MinionDist 是三个组件的注资份额。
	TransmuterDist *big.Int
	TrustDist      *big.Int
	MinionDist     *big.Int
	// VestingRecipients 与 VestingAmounts 按下标配对。
	VestingRecipients []common.Address
	VestingAmounts    []*big.Int
}

// Summoning 记录一次成功召唤产生的组件全集。
// 工厂在调用返回后不保留任何组件引用。
type Summoning struct {
	Moloch            common.Address
	DistributionToken common.Address
	Minion            *Minion
	Transmuter        *Transmuter
	Trust             *Trust
	Total             *big.Int
	Height            uint64
	Time              int64
}

// Factory 是无状态的部署编排器：每次调用独立校验入参、
// 部署三个组件、搬运代币、接线授权并发布一条发现事件。
type Factory struct {
	env  *chain.Env
	addr common.Address
	log  *slog.Logger
}

// NewFactory 创建部署工厂。addr 是工厂在账本上的托管地址。
func NewFactory(env *chain.Env, addr common.Address) *Factory {
	return &Factory{
		env:  env,
		addr: addr,
		log:  logger.Named("factory"),
	}
}

// Address 返回工厂的托管地址。
func (f *Factory) Address() common.Address { return f.addr }

// DeployAll 原子地完成一次卫星部署。
//
// 校验按固定顺序执行，保证两类可恢复失败相互可区分：
// 先检查受益人与金额列表长度，再尝试按申报总额一次性代扣
// 召唤者的分发代币。任一校验失败都不产生任何状态变更；
// 其后的部署或分发失败则整体回滚本次事务。
func (f *Factory) DeployAll(ctx context.Context, req SummonRequest) (*Summoning, error) {
	if req.Moloch == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请求缺少组织")
	}
	if req.CapitalToken == nil || req.DistributionToken == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请求缺少资本或分发代币")
	}
	if req.VestingPeriodSeconds < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "锁定时长不能为负数")
	}
	if len(req.VestingRecipients) != len(req.VestingAmounts) {
		return nil, ErrBadVestingDistribution
	}

	total, err := distributionTotal(req)
	if err != nil {
		return nil, err
	}

	var summoning *Summoning
	err = f.env.Transact(ctx, f.addr, func(tx *chain.Tx) error {
		dist := req.DistributionToken

		// 一次性代扣全部申报总额，额度或余额不足都归入同一失败原因。
		if err := dist.TransferFrom(f.addr, req.Summoner, f.addr, total); err != nil {
			return xerrors.Wrap(CodeInsufficientAllowance, err, "代扣分发代币失败")
		}

		minion, err := NewMinion(tx, req.Moloch)
		if err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "部署 Minion 失败")
		}
		transmuter, err := NewTransmuter(tx, req.Moloch, dist, req.CapitalToken, minion.Address())
		if err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "部署 Transmuter 失败")
		}
		unlockAt := tx.Time() + req.VestingPeriodSeconds
		trust, err := NewTrust(tx, req.Moloch, req.CapitalToken.Address(), dist.Address(), unlockAt, req.VestingRecipients, req.VestingAmounts)
		if err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "部署 Trust 失败")
		}

		// 分发注资。归属金额随 TrustDist 一并进入托管；按总额减去
		// 另两个份额计算，工厂对本次代扣的托管余额必然归零。
		trustFunding := new(big.Int).Sub(total, req.MinionDist)
		trustFunding.Sub(trustFunding, req.TransmuterDist)
		if err := dist.Transfer(f.addr, minion.Address(), req.MinionDist); err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "向 Minion 注资失败")
		}
		if err := dist.Transfer(f.addr, transmuter.Address(), req.TransmuterDist); err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "向 Transmuter 注资失败")
		}
		if err := dist.Transfer(f.addr, trust.Address(), trustFunding); err != nil {
			return xerrors.Wrap(CodeSummonFailure, err, "向 Trust 注资失败")
		}

		tx.Emit(chain.Event{
			Name: EventDeployment,
			Addresses: map[string]common.Address{
				"moloch":             req.Moloch.Address(),
				"distribution_token": dist.Address(),
				"minion":             minion.Address(),
				"transmuter":         transmuter.Address(),
				"trust":              trust.Address(),
			},
		})

		summoning = &Summoning{
			Moloch:            req.Moloch.Address(),
			DistributionToken: dist.Address(),
			Minion:            minion,
			Transmuter:        transmuter,
			Trust:             trust,
			Total:             new(big.Int).Set(total),
			Height:            tx.Height(),
			Time:              tx.Time(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Audit().Info("卫星部署完成",
		slog.String("moloch", summoning.Moloch.Hex()),
		slog.String("minion", summoning.Minion.Address().Hex()),
		slog.String("transmuter", summoning.Transmuter.Address().Hex()),
		slog.String("trust", summoning.Trust.Address().Hex()),
		slog.String("total", summoning.Total.String()),
		slog.Uint64("height", summoning.Height),
	)
	return summoning, nil
}

// distributionTotal 计算申报总额：三个组件份额加全部归属金额。
func distributionTotal(req SummonRequest) (*big.Int, error) {
	total := new(big.Int)
	for _, share := range []*big.Int{req.TransmuterDist, req.TrustDist, req.MinionDist} {
		if share == nil || share.Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "注资份额不能为空或负数")
		}
		total.Add(total, share)
	}
	for _, amount := range req.VestingAmounts {
		if amount == nil || amount.Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "归属金额不能为空或负数")
		}
		total.Add(total, amount)
	}
	return total, nil
}
