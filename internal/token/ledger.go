package token

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	xerrors "GuildForge-Chain/internal/errors"
)

var (
	// ErrInsufficientBalance 表示持有人余额不足以完成转账。
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "token balance too low")
	// ErrInsufficientAllowance 表示被授权额度不足以完成代扣。
	ErrInsufficientAllowance = xerrors.New(CodeInsufficientAllowance, "token allowance too low")
)

const (
	CodeInsufficientBalance   xerrors.Code = "TOKEN_INSUFFICIENT_BALANCE"
	CodeInsufficientAllowance xerrors.Code = "TOKEN_INSUFFICIENT_ALLOWANCE"
)

func init() {
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:   "token balance too low",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientAllowance, xerrors.Attributes{
		Message:   "token allowance too low",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Unlimited 返回表示无限授权的额度，即 uint256 的最大值。
// 无限授权在代扣时不会被扣减。
func Unlimited() *big.Int {
	return new(big.Int).Set(math.MaxBig256)
}

// Ledger 维护单个同质化代币的余额与授权账本。
// 语义对齐 ERC-20：mint/transfer/approve/transferFrom，
// 所有读写都以副本进出，内部不暴露可变的 big.Int。
type Ledger struct {
	addr     common.Address
	name     string
	symbol   string
	decimals uint8

	mu         sync.RWMutex
	total      *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	snaps      []ledgerSnapshot
}

type ledgerSnapshot struct {
	total      *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewLedger 创建一个新的代币账本。
func NewLedger(addr common.Address, name, symbol string, decimals uint8) *Ledger {
	return &Ledger{
		addr:       addr,
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		total:      new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Address 返回代币合约地址。
func (l *Ledger) Address() common.Address { return l.addr }

// Name 返回代币名称。
func (l *Ledger) Name() string { return l.name }

// Symbol 返回代币符号。
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals 返回代币精度。
func (l *Ledger) Decimals() uint8 { return l.decimals }

// Mint 为指定地址铸造代币。
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
	l.total.Add(l.total, amount)
	return nil
}

// Transfer 将代币从 from 转移到 to。
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// Approve 设置 owner 给 spender 的授权额度，覆盖旧值。
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom 由 spender 依据事先授权，将代币从 from 转移到 to。
// 无限授权不会被扣减，其余情况按实际金额扣减授权额度。
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(from, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	if amount.Sign() > 0 && allowance.Cmp(math.MaxBig256) < 0 {
		l.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	}
	return nil
}

// BalanceOf 返回地址余额的副本。
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[addr]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// Allowance 返回 owner 授权给 spender 的剩余额度副本。
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowanceLocked(owner, spender))
}

// TotalSupply 返回代币总量的副本。
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.total)
}

// Snapshot 记录当前账本状态并返回快照编号。
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, ledgerSnapshot{
		total:      new(big.Int).Set(l.total),
		balances:   cloneBalances(l.balances),
		allowances: cloneAllowances(l.allowances),
	})
	return len(l.snaps) - 1
}

// RevertToSnapshot 将账本恢复到指定快照，并丢弃其后的快照。
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.snaps) {
		return
	}
	snap := l.snaps[id]
	l.total = snap.total
	l.balances = snap.balances
	l.allowances = snap.allowances
	l.snaps = l.snaps[:id]
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	if balance, ok := l.balances[to]; ok {
		balance.Add(balance, amount)
		return
	}
	l.balances[to] = new(big.Int).Set(amount)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *big.Int {
	if spenders, ok := l.allowances[owner]; ok {
		if allowance, ok := spenders[spender]; ok {
			return allowance
		}
	}
	return new(big.Int)
}

func checkAmount(amount *big.Int) error {
	if amount == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "金额不能为空")
	}
	if amount.Sign() < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "金额不能为负数")
	}
	return nil
}

func cloneBalances(src map[common.Address]*big.Int) map[common.Address]*big.Int {
	cloned := make(map[common.Address]*big.Int, len(src))
	for addr, balance := range src {
		cloned[addr] = new(big.Int).Set(balance)
	}
	return cloned
}

func cloneAllowances(src map[common.Address]map[common.Address]*big.Int) map[common.Address]map[common.Address]*big.Int {
	cloned := make(map[common.Address]map[common.Address]*big.Int, len(src))
	for owner, spenders := range src {
		inner := make(map[common.Address]*big.Int, len(spenders))
		for spender, allowance := range spenders {
			inner[spender] = new(big.Int).Set(allowance)
		}
		cloned[owner] = inner
	}
	return cloned
}
