package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "GuildForge-Chain/internal/errors"
)

// Snapshotter mirrors the subset of go-ethereum StateDB semantics the
// environment needs to roll a failed transaction back.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(int)
}

// Event is one entry of the ledger event log. Addresses carries the
// named address set published by the emitting component.
type Event struct {
	Name      string                    `json:"name"`
	Height    uint64                    `json:"height"`
	Time      int64                     `json:"time"`
	Addresses map[string]common.Address `json:"addresses,omitempty"`
}

// Env executes transactions one at a time against the registered state
// components. A transaction either commits in full, advancing the block
// height and flushing its pending events, or reverts every component to
// the snapshot taken at its start.
type Env struct {
	mu      sync.Mutex
	height  uint64
	clock   func() time.Time
	nonces  map[common.Address]uint64
	states  []Snapshotter
	events  []Event
	pending []Event
}

// Option 定义环境的可选配置。
type Option func(*Env)

// WithClock 注入区块时间来源，测试中用于固定时间。
func WithClock(clock func() time.Time) Option {
	return func(e *Env) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEnv 创建一个新的账本执行环境。
func NewEnv(opts ...Option) *Env {
	env := &Env{
		clock:  time.Now,
		nonces: make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(env)
		}
	}
	return env
}

// RegisterState 将一个可快照的状态组件纳入事务回滚范围。
// 必须在首笔交易执行前完成注册。
func (e *Env) RegisterState(state Snapshotter) {
	if state == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, state)
}

// Tx exposes the per-transaction facilities available to executing code.
type Tx struct {
	env    *Env
	origin common.Address
	height uint64
	time   int64
}

// Origin returns the address the transaction executes as.
func (tx *Tx) Origin() common.Address {
	return tx.origin
}

// Height returns the block height this transaction will commit at.
func (tx *Tx) Height() uint64 {
	return tx.height
}

// Time returns the block timestamp in unix seconds. It is captured once
// when the transaction starts, so every component deployed within the
// same transaction observes the same instant.
func (tx *Tx) Time() int64 {
	return tx.time
}

// NewAddress allocates the next deterministic contract address for the
// transaction origin.
func (tx *Tx) NewAddress() common.Address {
	nonce := tx.env.nonces[tx.origin]
	tx.env.nonces[tx.origin] = nonce + 1
	return crypto.CreateAddress(tx.origin, nonce)
}

// Emit queues an event. Pending events are only appended to the log when
// the enclosing transaction commits.
func (tx *Tx) Emit(event Event) {
	event.Height = tx.height
	event.Time = tx.time
	tx.env.pending = append(tx.env.pending, event)
}

// Transact 以事务方式执行 fn。任一错误都会回滚全部已注册状态、
// 丢弃待提交事件并原样返回该错误。
func (e *Env) Transact(ctx context.Context, origin common.Address, fn func(tx *Tx) error) error {
	if fn == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "事务函数不能为空")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	marks := make([]int, len(e.states))
	for i, state := range e.states {
		marks[i] = state.Snapshot()
	}
	nonceBefore := e.nonces[origin]
	e.pending = e.pending[:0]

	tx := &Tx{
		env:    e,
		origin: origin,
		height: e.height + 1,
		time:   e.clock().Unix(),
	}
	if err := fn(tx); err != nil {
		for i := len(e.states) - 1; i >= 0; i-- {
			e.states[i].RevertToSnapshot(marks[i])
		}
		e.nonces[origin] = nonceBefore
		e.pending = e.pending[:0]
		return err
	}

	e.height = tx.height
	e.events = append(e.events, e.pending...)
	e.pending = e.pending[:0]
	return nil
}

// Height 返回当前区块高度。
func (e *Env) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

// Events 返回事件日志的副本。
func (e *Env) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// EventsSince 返回高于指定高度的事件。
func (e *Env) EventsSince(height uint64) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, event := range e.events {
		if event.Height > height {
			out = append(out, event)
		}
	}
	return out
}
