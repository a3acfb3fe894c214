package record

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBusPublishConsume(t *testing.T) {
	bus := NewMemoryBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Consume(ctx, 2, func(_ context.Context, recordID string) error {
			received <- recordID
			return nil
		})
	}()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := bus.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		select {
		case id := <-received:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for consumed records")
		}
	}
	for _, id := range []string{"r1", "r2", "r3"} {
		if !seen[id] {
			t.Fatalf("record %s never consumed", id)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancel")
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bus.Publish(context.Background(), "r4"); err == nil {
		t.Fatal("publish after close must fail")
	}
}

func TestIndexerBuildsDiscoveryIndex(t *testing.T) {
	store := NewMemoryStore()
	bus := NewMemoryBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	moloch := "0x00000000000000000000000000000000000000D1"
	for i, id := range []string{"r1", "r2"} {
		if err := store.Save(ctx, sampleRecord(id, moloch, int64(100+i))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	indexer := NewIndexer(store, bus, WithIndexerWorkers(2))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := indexer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("indexer: %v", err)
		}
	}()

	for _, id := range []string{"r1", "r2", "ghost"} {
		if err := bus.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		// 大小写不同的查询也必须命中。
		if len(indexer.ByMoloch("0x00000000000000000000000000000000000000d1")) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for index to fill")
		case <-time.After(10 * time.Millisecond):
		}
	}

	records := indexer.ByMoloch(moloch)
	if len(records) != 2 {
		t.Fatalf("indexed %d records, want 2", len(records))
	}
	if len(indexer.ByMoloch("0x00000000000000000000000000000000000000D2")) != 0 {
		t.Fatal("unknown moloch must return empty index")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not stop on cancel")
	}
}

func TestIndexerRequiresDependencies(t *testing.T) {
	indexer := NewIndexer(nil, nil)
	if err := indexer.Start(context.Background()); err == nil {
		t.Fatal("indexer without store and consumer must refuse to start")
	}
}
