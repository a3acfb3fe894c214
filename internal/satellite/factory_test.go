package satellite

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/dao"
	"GuildForge-Chain/internal/token"
)

const deployTime = int64(1700000000)

var (
	summonerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	molochAddr   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	bankAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	factoryAddr  = common.HexToAddress("0x0000000000000000000000000000000000000Fac")
	beneficiary1 = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	beneficiary2 = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

// summonFixture 搭建一套最小可部署环境：召唤者持有 10000 分发
// 代币并预授权 5000 给工厂。
type summonFixture struct {
	env          *chain.Env
	factory      *Factory
	moloch       *dao.Moloch
	capital      *token.Ledger
	distribution *token.Ledger
}

func newSummonFixture(t *testing.T) *summonFixture {
	t.Helper()
	env := chain.NewEnv(chain.WithClock(func() time.Time { return time.Unix(deployTime, 0) }))

	capital := token.NewLedger(common.HexToAddress("0x0000000000000000000000000000000000000501"), "Wrapped Ether", "WETH", 18)
	distribution := token.NewLedger(common.HexToAddress("0x0000000000000000000000000000000000000502"), "Haus Token", "HAUS", 18)
	env.RegisterState(capital)
	env.RegisterState(distribution)

	if err := distribution.Mint(summonerAddr, big.NewInt(10000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := distribution.Approve(summonerAddr, factoryAddr, big.NewInt(5000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	moloch := dao.NewMoloch(molochAddr, bankAddr, dao.Config{
		PeriodDuration:     60,
		VotingPeriodLength: 35,
		GracePeriodLength:  35,
		DilutionBound:      3,
		ApprovedTokens:     []common.Address{capital.Address(), distribution.Address()},
	})

	return &summonFixture{
		env:          env,
		factory:      NewFactory(env, factoryAddr),
		moloch:       moloch,
		capital:      capital,
		distribution: distribution,
	}
}

func (f *summonFixture) request() SummonRequest {
	return SummonRequest{
		Summoner:             summonerAddr,
		Moloch:               f.moloch,
		CapitalToken:         f.capital,
		DistributionToken:    f.distribution,
		VestingPeriodSeconds: 365 * 24 * 3600,
		TransmuterDist:       big.NewInt(10),
		TrustDist:            big.NewInt(5),
		MinionDist:           big.NewInt(100),
	}
}

func TestDeployAllDistributesFunds(t *testing.T) {
	f := newSummonFixture(t)
	ctx := context.Background()

	summoning, err := f.factory.DeployAll(ctx, f.request())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if got := f.distribution.BalanceOf(summoning.Minion.Address()); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("minion balance = %s, want 100", got)
	}
	if got := f.distribution.BalanceOf(summoning.Transmuter.Address()); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("transmuter balance = %s, want 10", got)
	}
	if got := f.distribution.BalanceOf(summoning.Trust.Address()); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("trust balance = %s, want 5", got)
	}
	if got := f.distribution.BalanceOf(factoryAddr); got.Sign() != 0 {
		t.Fatalf("factory must keep zero custody, got %s", got)
	}
	if got := f.distribution.BalanceOf(summonerAddr); got.Cmp(big.NewInt(9885)) != 0 {
		t.Fatalf("summoner balance = %s, want 9885", got)
	}
	if summoning.Total.Cmp(big.NewInt(115)) != 0 {
		t.Fatalf("total = %s, want 115", summoning.Total)
	}
	if got := f.distribution.Allowance(summonerAddr, factoryAddr); got.Cmp(big.NewInt(4885)) != 0 {
		t.Fatalf("remaining allowance = %s, want 4885", got)
	}
}

func TestDeployAllVestingSchedule(t *testing.T) {
	f := newSummonFixture(t)
	req := f.request()
	req.VestingRecipients = []common.Address{beneficiary1, beneficiary2, beneficiary1}
	req.VestingAmounts = []*big.Int{big.NewInt(40), big.NewInt(25), big.NewInt(60)}

	summoning, err := f.factory.DeployAll(context.Background(), req)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	trust := summoning.Trust
	// 重复受益人按后写覆盖先写。
	if got := trust.DistributionOf(beneficiary1); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("beneficiary1 vesting = %s, want 60", got)
	}
	if got := trust.DistributionOf(beneficiary2); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("beneficiary2 vesting = %s, want 25", got)
	}
	if got := trust.DistributionOf(factoryAddr); got.Sign() != 0 {
		t.Fatalf("unregistered address vesting = %s, want 0", got)
	}

	// 归属金额计入代扣总额并随 TrustDist 一并进入托管。
	if summoning.Total.Cmp(big.NewInt(240)) != 0 {
		t.Fatalf("total = %s, want 240", summoning.Total)
	}
	if got := f.distribution.BalanceOf(trust.Address()); got.Cmp(big.NewInt(130)) != 0 {
		t.Fatalf("trust balance = %s, want 130", got)
	}
	if got := f.distribution.BalanceOf(factoryAddr); got.Sign() != 0 {
		t.Fatalf("factory must keep zero custody, got %s", got)
	}

	if trust.Unlocked() {
		t.Fatal("trust must deploy locked")
	}
	if want := deployTime + req.VestingPeriodSeconds; trust.UnlockAt() != want {
		t.Fatalf("unlock at = %d, want %d", trust.UnlockAt(), want)
	}
	if trust.GuildBank() != bankAddr {
		t.Fatalf("guild bank = %s, want %s", trust.GuildBank().Hex(), bankAddr.Hex())
	}
}

func TestDeployAllWiresUnlimitedAllowances(t *testing.T) {
	f := newSummonFixture(t)

	summoning, err := f.factory.DeployAll(context.Background(), f.request())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	transmuter := summoning.Transmuter.Address()
	if got := f.distribution.Allowance(transmuter, molochAddr); got.Cmp(token.Unlimited()) != 0 {
		t.Fatalf("transmuter->moloch allowance = %s, want unlimited", got)
	}
	if got := f.distribution.Allowance(transmuter, summoning.Minion.Address()); got.Cmp(token.Unlimited()) != 0 {
		t.Fatalf("transmuter->minion allowance = %s, want unlimited", got)
	}
}

func TestDeployAllEmitsDiscoveryEvent(t *testing.T) {
	f := newSummonFixture(t)

	summoning, err := f.factory.DeployAll(context.Background(), f.request())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	events := f.env.Events()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	event := events[0]
	if event.Name != EventDeployment {
		t.Fatalf("event name = %s, want %s", event.Name, EventDeployment)
	}
	if event.Height != summoning.Height || event.Time != deployTime {
		t.Fatalf("event metadata mismatch: %+v", event)
	}
	want := map[string]common.Address{
		"moloch":             molochAddr,
		"distribution_token": f.distribution.Address(),
		"minion":             summoning.Minion.Address(),
		"transmuter":         summoning.Transmuter.Address(),
		"trust":              summoning.Trust.Address(),
	}
	for key, addr := range want {
		if event.Addresses[key] != addr {
			t.Fatalf("event address %s = %s, want %s", key, event.Addresses[key].Hex(), addr.Hex())
		}
	}
}

func TestDeployAllRejectsMismatchedVestingLists(t *testing.T) {
	f := newSummonFixture(t)

	cases := []struct {
		name       string
		recipients []common.Address
		amounts    []*big.Int
	}{
		{"more recipients", []common.Address{beneficiary1, beneficiary2}, []*big.Int{big.NewInt(1)}},
		{"more amounts", []common.Address{beneficiary1}, []*big.Int{big.NewInt(1), big.NewInt(2)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request()
			req.VestingRecipients = tc.recipients
			req.VestingAmounts = tc.amounts

			_, err := f.factory.DeployAll(context.Background(), req)
			if !errors.Is(err, ErrBadVestingDistribution) {
				t.Fatalf("expected vesting distribution error, got %v", err)
			}

			if f.env.Height() != 0 {
				t.Fatal("rejection must not advance the ledger")
			}
			if got := f.distribution.BalanceOf(summonerAddr); got.Cmp(big.NewInt(10000)) != 0 {
				t.Fatalf("summoner balance changed: %s", got)
			}
			if got := f.distribution.Allowance(summonerAddr, factoryAddr); got.Cmp(big.NewInt(5000)) != 0 {
				t.Fatalf("allowance changed: %s", got)
			}
		})
	}
}

func TestDeployAllRejectsInsufficientAllowance(t *testing.T) {
	f := newSummonFixture(t)
	req := f.request()
	req.MinionDist = big.NewInt(6000)

	_, err := f.factory.DeployAll(context.Background(), req)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("underlying token error must be preserved, got %v", err)
	}
	if f.env.Height() != 0 || len(f.env.Events()) != 0 {
		t.Fatal("failed deployment must leave no trace")
	}
	if got := f.distribution.BalanceOf(summonerAddr); got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("summoner balance changed: %s", got)
	}
}

func TestDeployAllRejectsInsufficientBalance(t *testing.T) {
	f := newSummonFixture(t)
	// 授权充足但余额不足：额度补到 20000，余额仍是 10000。
	if err := f.distribution.Approve(summonerAddr, factoryAddr, big.NewInt(20000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	req := f.request()
	req.MinionDist = big.NewInt(15000)

	_, err := f.factory.DeployAll(context.Background(), req)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("balance shortfall must map to the allowance failure, got %v", err)
	}
	if got := f.distribution.Allowance(summonerAddr, factoryAddr); got.Cmp(big.NewInt(20000)) != 0 {
		t.Fatalf("allowance changed after rollback: %s", got)
	}
}

func TestDeployAllSequentialSummonings(t *testing.T) {
	f := newSummonFixture(t)
	ctx := context.Background()

	first, err := f.factory.DeployAll(ctx, f.request())
	if err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	second, err := f.factory.DeployAll(ctx, f.request())
	if err != nil {
		t.Fatalf("second deploy: %v", err)
	}

	if first.Minion.Address() == second.Minion.Address() {
		t.Fatal("minion addresses must differ across summonings")
	}
	if first.Trust.Address() == second.Trust.Address() {
		t.Fatal("trust addresses must differ across summonings")
	}
	if second.Height != first.Height+1 {
		t.Fatalf("heights not sequential: %d then %d", first.Height, second.Height)
	}
	if len(f.env.Events()) != 2 {
		t.Fatalf("expected 2 discovery events, got %d", len(f.env.Events()))
	}
	// 两次部署互不影响资金。
	if got := f.distribution.BalanceOf(first.Minion.Address()); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("first minion balance = %s, want 100", got)
	}
	if got := f.distribution.BalanceOf(second.Minion.Address()); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("second minion balance = %s, want 100", got)
	}
}

func TestDeployAllRejectsMissingInputs(t *testing.T) {
	f := newSummonFixture(t)

	req := f.request()
	req.Moloch = nil
	if _, err := f.factory.DeployAll(context.Background(), req); err == nil {
		t.Fatal("missing moloch must be rejected")
	}

	req = f.request()
	req.DistributionToken = nil
	if _, err := f.factory.DeployAll(context.Background(), req); err == nil {
		t.Fatal("missing distribution token must be rejected")
	}

	req = f.request()
	req.TrustDist = nil
	if _, err := f.factory.DeployAll(context.Background(), req); err == nil {
		t.Fatal("nil share must be rejected")
	}

	req = f.request()
	req.VestingPeriodSeconds = -1
	if _, err := f.factory.DeployAll(context.Background(), req); err == nil {
		t.Fatal("negative vesting period must be rejected")
	}
}
