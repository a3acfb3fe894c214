package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeState 记录快照与回滚调用，模拟一个可回滚的状态组件。
type fakeState struct {
	value    int
	snaps    []int
	reverted bool
}

func (f *fakeState) Snapshot() int {
	f.snaps = append(f.snaps, f.value)
	return len(f.snaps) - 1
}

func (f *fakeState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(f.snaps) {
		return
	}
	f.value = f.snaps[id]
	f.snaps = f.snaps[:id]
	f.reverted = true
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestTransactCommit(t *testing.T) {
	env := NewEnv(WithClock(fixedClock(1700000000)))
	state := &fakeState{value: 1}
	env.RegisterState(state)
	origin := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	err := env.Transact(context.Background(), origin, func(tx *Tx) error {
		state.value = 2
		if tx.Origin() != origin {
			t.Fatalf("unexpected origin %s", tx.Origin())
		}
		if tx.Time() != 1700000000 {
			t.Fatalf("tx time = %d, want 1700000000", tx.Time())
		}
		tx.Emit(Event{Name: "Ping"})
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	if env.Height() != 1 {
		t.Fatalf("height = %d, want 1", env.Height())
	}
	events := env.Events()
	if len(events) != 1 || events[0].Name != "Ping" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Height != 1 || events[0].Time != 1700000000 {
		t.Fatalf("event not stamped with block metadata: %+v", events[0])
	}
	if state.value != 2 {
		t.Fatalf("state value = %d, want 2", state.value)
	}
}

func TestTransactRollback(t *testing.T) {
	env := NewEnv(WithClock(fixedClock(1700000000)))
	state := &fakeState{value: 1}
	env.RegisterState(state)
	origin := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	boom := errors.New("boom")
	var allocated common.Address
	err := env.Transact(context.Background(), origin, func(tx *Tx) error {
		state.value = 99
		allocated = tx.NewAddress()
		tx.Emit(Event{Name: "Ping"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}

	if env.Height() != 0 {
		t.Fatalf("height advanced on failure: %d", env.Height())
	}
	if len(env.Events()) != 0 {
		t.Fatal("pending events must be dropped on rollback")
	}
	if !state.reverted || state.value != 1 {
		t.Fatalf("state not reverted: %+v", state)
	}

	// nonce 回滚后，下一笔事务必须分配出同一个地址。
	var reallocated common.Address
	if err := env.Transact(context.Background(), origin, func(tx *Tx) error {
		reallocated = tx.NewAddress()
		return nil
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if reallocated != allocated {
		t.Fatalf("nonce not restored: %s vs %s", reallocated.Hex(), allocated.Hex())
	}
}

func TestNewAddressIsDeterministic(t *testing.T) {
	env := NewEnv(WithClock(fixedClock(1700000000)))
	origin := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	var first, second common.Address
	if err := env.Transact(context.Background(), origin, func(tx *Tx) error {
		first = tx.NewAddress()
		second = tx.NewAddress()
		return nil
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}

	if first != crypto.CreateAddress(origin, 0) {
		t.Fatalf("first address mismatch: %s", first.Hex())
	}
	if second != crypto.CreateAddress(origin, 1) {
		t.Fatalf("second address mismatch: %s", second.Hex())
	}
	if first == second {
		t.Fatal("addresses must be distinct")
	}
}

func TestTransactHonoursContext(t *testing.T) {
	env := NewEnv()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.Transact(ctx, common.Address{}, func(tx *Tx) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEventsSince(t *testing.T) {
	env := NewEnv(WithClock(fixedClock(1700000000)))
	origin := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	for i := 0; i < 3; i++ {
		if err := env.Transact(context.Background(), origin, func(tx *Tx) error {
			tx.Emit(Event{Name: "Ping"})
			return nil
		}); err != nil {
			t.Fatalf("transact %d: %v", i, err)
		}
	}

	tail := env.EventsSince(1)
	if len(tail) != 2 {
		t.Fatalf("expected 2 events after height 1, got %d", len(tail))
	}
	for _, event := range tail {
		if event.Height <= 1 {
			t.Fatalf("event below cutoff returned: %+v", event)
		}
	}
}
