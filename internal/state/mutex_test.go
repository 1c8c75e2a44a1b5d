package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMutexGrantsInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	var m Mutex
	if err := m.Lock(ctx); err != nil {
		t.Fatalf("lock: %v", err)
	}

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	for i, name := range []string{"first", "second", "third", "fourth"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunExclusive(ctx, func() error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			})
		}()
		waitForWaiters(t, &m, i+1)
	}
	m.Unlock()
	wg.Wait()

	if got := strings.Join(order, ","); got != "first,second,third,fourth" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestMutexCancelledWaiterLeavesQueue(t *testing.T) {
	var m Mutex
	if err := m.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Lock(ctx) }()
	waitForWaiters(t, &m, 1)
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if m.Waiting() != 0 {
		t.Fatalf("cancelled waiter still queued: %d", m.Waiting())
	}

	m.Unlock()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := m.Lock(ctx2); err != nil {
		t.Fatalf("mutex should be free after unlock: %v", err)
	}
	m.Unlock()
}

func TestMutexRunExclusiveReleasesOnError(t *testing.T) {
	var m Mutex
	boom := errors.New("boom")
	if err := m.RunExclusive(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Lock(ctx); err != nil {
		t.Fatalf("mutex should be free: %v", err)
	}
	m.Unlock()
}

func TestMutexUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	var m Mutex
	m.Unlock()
}
