package summoner

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/chain"
)

const genesisYAML = `
tokens:
  - address: "0x0000000000000000000000000000000000000501"
    name: "Wrapped Ether"
    symbol: "WETH"
    decimals: 18
  - address: "0x0000000000000000000000000000000000000502"
    name: "Haus Token"
    symbol: "HAUS"
    decimals: 18
    mints:
      "0x00000000000000000000000000000000000000A1": "10000"
molochs:
  - address: "0x00000000000000000000000000000000000000D1"
    guild_bank: "0x00000000000000000000000000000000000000D2"
    period_duration: 60
    voting_period_length: 35
    grace_period_length: 35
    proposal_deposit: "10"
    dilution_bound: 3
    approved_tokens:
      - "0x0000000000000000000000000000000000000501"
      - "0x0000000000000000000000000000000000000502"
`

func writeGenesis(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	return path
}

func TestLoadGenesisAndApply(t *testing.T) {
	genesis, err := LoadGenesis(writeGenesis(t, genesisYAML))
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}

	env := chain.NewEnv()
	orgs, tokens, err := genesis.Apply(env)
	if err != nil {
		t.Fatalf("apply genesis: %v", err)
	}

	haus, err := tokens.Lookup(common.HexToAddress("0x0000000000000000000000000000000000000502"))
	if err != nil {
		t.Fatalf("lookup haus: %v", err)
	}
	holder := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	if got := haus.BalanceOf(holder); got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("pre-mint balance = %s, want 10000", got)
	}
	if haus.Symbol() != "HAUS" || haus.Decimals() != 18 {
		t.Fatalf("token metadata mismatch: %s/%d", haus.Symbol(), haus.Decimals())
	}

	org, err := orgs.Lookup(common.HexToAddress("0x00000000000000000000000000000000000000D1"))
	if err != nil {
		t.Fatalf("lookup moloch: %v", err)
	}
	if org.GuildBank() != common.HexToAddress("0x00000000000000000000000000000000000000D2") {
		t.Fatalf("guild bank mismatch: %s", org.GuildBank().Hex())
	}
	if !org.IsTokenApproved(haus.Address()) {
		t.Fatal("haus must be whitelisted")
	}
	if org.IsTokenApproved(common.HexToAddress("0x00000000000000000000000000000000000000FF")) {
		t.Fatal("unknown token must not be whitelisted")
	}
}

func TestLoadGenesisRejectsBadInput(t *testing.T) {
	if _, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
	if _, err := LoadGenesis(writeGenesis(t, "tokens: []")); err == nil {
		t.Fatal("empty token list must fail")
	}

	genesis, err := LoadGenesis(writeGenesis(t, `
tokens:
  - address: "0x0000000000000000000000000000000000000501"
    name: "Wrapped Ether"
    symbol: "WETH"
    decimals: 18
molochs:
  - address: "0x00000000000000000000000000000000000000D1"
    guild_bank: "0x00000000000000000000000000000000000000D2"
    approved_tokens:
      - "0x0000000000000000000000000000000000000999"
`))
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if _, _, err := genesis.Apply(chain.NewEnv()); err == nil {
		t.Fatal("whitelisting an undefined token must fail")
	}
}
