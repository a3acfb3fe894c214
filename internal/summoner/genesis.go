package summoner

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	xerrors "GuildForge-Chain/internal/errors"
	"GuildForge-Chain/internal/token"
)

// GenesisToken 描述创世文件中的一个代币账本。
type GenesisToken struct {
	Address  string            `yaml:"address"`
	Name     string            `yaml:"name"`
	Symbol   string            `yaml:"symbol"`
	Decimals uint8             `yaml:"decimals"`
	Mints    map[string]string `yaml:"mints,omitempty"`
}

// GenesisMoloch 描述创世文件中的一个既有组织。
type GenesisMoloch struct {
	Address            string   `yaml:"address"`
	GuildBank          string   `yaml:"guild_bank"`
	PeriodDuration     int64    `yaml:"period_duration"`
	VotingPeriodLength int64    `yaml:"voting_period_length"`
	GracePeriodLength  int64    `yaml:"grace_period_length"`
	ProposalDeposit    string   `yaml:"proposal_deposit,omitempty"`
	DilutionBound      int64    `yaml:"dilution_bound"`
	ProcessingReward   string   `yaml:"processing_reward,omitempty"`
	ApprovedTokens     []string `yaml:"approved_tokens,omitempty"`
}

// Genesis 是宿主进程启动时加载的初始世界状态。
type Genesis struct {
	Tokens  []GenesisToken  `yaml:"tokens"`
	Molochs []GenesisMoloch `yaml:"molochs"`
}

// LoadGenesis 从 YAML 文件解析创世定义。
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取创世文件失败")
	}
	var genesis Genesis
	if err := yaml.Unmarshal(data, &genesis); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析创世文件失败")
	}
	if len(genesis.Tokens) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "创世文件未定义任何代币")
	}
	return &genesis, nil
}

// Apply 将创世定义落到执行环境：创建代币账本并完成预铸造，
// 登记既有组织。返回可供部署服务使用的两个注册表。
func (g *Genesis) Apply(env *chain.Env) (*dao.Registry, *token.Registry, error) {
	tokens := token.NewRegistry()
	for i, def := range g.Tokens {
		addr, err := genesisAddress(fmt.Sprintf("tokens[%d].address", i), def.Address)
		if err != nil {
			return nil, nil, err
		}
		ledger := token.NewLedger(addr, def.Name, def.Symbol, def.Decimals)
		for account, raw := range def.Mints {
			holder, err := genesisAddress(fmt.Sprintf("tokens[%d].mints", i), account)
			if err != nil {
				return nil, nil, err
			}
			amount, ok := new(big.Int).SetString(raw, 10)
			if !ok || amount.Sign() < 0 {
				return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "预铸造金额不合法",
					xerrors.WithMetadata("token", def.Symbol),
					xerrors.WithMetadata("account", account))
			}
			if err := ledger.Mint(holder, amount); err != nil {
				return nil, nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "预铸造失败")
			}
		}
		if err := tokens.Register(ledger); err != nil {
			return nil, nil, err
		}
		env.RegisterState(ledger)
	}

	orgs := dao.NewRegistry()
	for i, def := range g.Molochs {
		addr, err := genesisAddress(fmt.Sprintf("molochs[%d].address", i), def.Address)
		if err != nil {
			return nil, nil, err
		}
		guildBank, err := genesisAddress(fmt.Sprintf("molochs[%d].guild_bank", i), def.GuildBank)
		if err != nil {
			return nil, nil, err
		}
		cfg := dao.Config{
			PeriodDuration:     def.PeriodDuration,
			VotingPeriodLength: def.VotingPeriodLength,
			GracePeriodLength:  def.GracePeriodLength,
			DilutionBound:      def.DilutionBound,
		}
		if cfg.ProposalDeposit, err = genesisAmount(def.ProposalDeposit); err != nil {
			return nil, nil, err
		}
		if cfg.ProcessingReward, err = genesisAmount(def.ProcessingReward); err != nil {
			return nil, nil, err
		}
		for _, raw := range def.ApprovedTokens {
			approved, err := genesisAddress(fmt.Sprintf("molochs[%d].approved_tokens", i), raw)
			if err != nil {
				return nil, nil, err
			}
			if _, err := tokens.Lookup(approved); err != nil {
				return nil, nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "白名单代币未在创世中定义")
			}
			cfg.ApprovedTokens = append(cfg.ApprovedTokens, approved)
		}
		if err := orgs.Register(dao.NewMoloch(addr, guildBank, cfg)); err != nil {
			return nil, nil, err
		}
	}
	return orgs, tokens, nil
}

func genesisAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInitializationFailure, "创世地址不合法",
			xerrors.WithMetadata("field", field))
	}
	return common.HexToAddress(value), nil
}

func genesisAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "创世金额不合法")
	}
	return amount, nil
}
