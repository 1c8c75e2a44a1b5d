package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestAcquireAndRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")

	lock, err := Acquire(context.Background(), target, Options{})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(MarkerPath(target)); err != nil {
		t.Fatalf("expected marker while held: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(MarkerPath(target)); !os.IsNotExist(err) {
		t.Fatalf("expected marker removed after release, stat err=%v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second release should be harmless: %v", err)
	}
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	if err := os.WriteFile(MarkerPath(target), []byte("other\n"), 0o600); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	start := time.Now()
	_, err := Acquire(context.Background(), target, Options{
		MaxWait: 300 * time.Millisecond,
		Stale:   time.Hour,
		Poll:    20 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < 300*time.Millisecond {
		t.Errorf("gave up too early: %s", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout not bounded: %s", elapsed)
	}
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	marker := MarkerPath(target)
	if err := os.WriteFile(marker, []byte("crashed\n"), 0o600); err != nil {
		t.Fatalf("seed marker: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(marker, old, old); err != nil {
		t.Fatalf("age marker: %v", err)
	}

	logger, hook := test.NewNullLogger()
	lock, err := Acquire(context.Background(), target, Options{
		MaxWait: 200 * time.Millisecond,
		Stale:   time.Second,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed: %v", err)
	}
	defer lock.Release()

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "reclaiming stale lock" {
		t.Fatalf("expected stale reclaim warning, got %+v", entry)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	if err := os.WriteFile(MarkerPath(target), nil, 0o600); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Acquire(ctx, target, Options{MaxWait: 10 * time.Second, Stale: time.Hour, Poll: 10 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestRefreshKeepsLiveHolder(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	opts := Options{MaxWait: 400 * time.Millisecond, Stale: 200 * time.Millisecond, Poll: 10 * time.Millisecond}

	held, err := Acquire(context.Background(), target, opts)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	if _, err := Acquire(context.Background(), target, opts); !errors.Is(err, ErrTimeout) {
		t.Fatalf("live holder was reclaimed as stale: %v", err)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	boom := errors.New("boom")

	err := With(context.Background(), target, Options{}, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, err := os.Stat(MarkerPath(target)); !os.IsNotExist(err) {
		t.Fatalf("marker left behind after error: %v", err)
	}
}

func TestWithSerializesGoroutines(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "counter")
	const workers = 40

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := With(context.Background(), counter, Options{MaxWait: 10 * time.Second, Poll: time.Millisecond}, func() error {
				return incrementCounter(counter)
			}); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := readCounter(t, counter); got != workers {
		t.Fatalf("lost updates: got %d want %d", got, workers)
	}
}

func TestConcurrentStaleReclaimKeepsExclusion(t *testing.T) {
	for round := 0; round < 20; round++ {
		target := filepath.Join(t.TempDir(), "insights.jsonl")
		marker := MarkerPath(target)
		if err := os.WriteFile(marker, []byte("crashed\n"), 0o600); err != nil {
			t.Fatalf("seed marker: %v", err)
		}
		old := time.Now().Add(-time.Hour)
		if err := os.Chtimes(marker, old, old); err != nil {
			t.Fatalf("age marker: %v", err)
		}

		const workers = 16
		opts := Options{MaxWait: 10 * time.Second, Stale: 2 * time.Second, Poll: time.Millisecond}
		var (
			active  atomic.Int32
			overlap atomic.Bool
			wg      sync.WaitGroup
		)
		start := make(chan struct{})
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				<-start
				err := With(context.Background(), target, opts, func() error {
					if active.Add(1) > 1 {
						overlap.Store(true)
					}
					time.Sleep(2 * time.Millisecond)
					active.Add(-1)
					return nil
				})
				if err != nil {
					t.Errorf("with: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if overlap.Load() {
			t.Fatalf("round %d: two holders overlapped after a stale reclaim", round)
		}
		leftovers, _ := filepath.Glob(marker + ".stale-*")
		if len(leftovers) != 0 {
			t.Fatalf("round %d: reclaim left files behind: %v", round, leftovers)
		}
	}
}

func TestReclaimRestoresFreshMarker(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	marker := MarkerPath(target)
	if err := os.WriteFile(marker, []byte("crashed\n"), 0o600); err != nil {
		t.Fatalf("seed marker: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(marker, old, old); err != nil {
		t.Fatalf("age marker: %v", err)
	}
	judged, err := os.Stat(marker)
	if err != nil {
		t.Fatal(err)
	}

	// Another waiter reclaims first and takes the lock with a new marker.
	if err := os.Remove(marker); err != nil {
		t.Fatal(err)
	}
	held, err := TryAcquire(target, Options{Stale: time.Hour})
	if err != nil {
		t.Fatalf("try acquire: %v", err)
	}
	defer held.Release()

	if reclaim(marker, judged, logrus.New()) {
		t.Fatal("reclaimed a marker that was not the one judged stale")
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("live marker was not restored: %v", err)
	}
	if _, err := TryAcquire(target, Options{Stale: time.Hour}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while the restored marker is held, got %v", err)
	}
}

func TestTryAcquire(t *testing.T) {
	target := filepath.Join(t.TempDir(), "insights.jsonl")
	if err := os.WriteFile(MarkerPath(target), nil, 0o600); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	start := time.Now()
	if _, err := TryAcquire(target, Options{MaxWait: 10 * time.Second, Stale: time.Hour}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("try acquire waited: %s", elapsed)
	}

	if err := os.Remove(MarkerPath(target)); err != nil {
		t.Fatal(err)
	}
	ran := false
	if err := TryWith(target, Options{}, func() error { ran = true; return nil }); err != nil {
		t.Fatalf("try with: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if _, err := os.Stat(MarkerPath(target)); !os.IsNotExist(err) {
		t.Fatalf("marker left behind: %v", err)
	}
}

func TestCrossProcessMutualExclusion(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}
	counter := filepath.Join(t.TempDir(), "counter")
	const (
		processes  = 4
		iterations = 25
	)

	cmds := make([]*exec.Cmd, 0, processes)
	for i := 0; i < processes; i++ {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcessCounter$")
		cmd.Env = append(os.Environ(),
			"NEXA_FILELOCK_HELPER=1",
			"NEXA_FILELOCK_COUNTER="+counter,
			"NEXA_FILELOCK_ITERATIONS="+strconv.Itoa(iterations),
		)
		if err := cmd.Start(); err != nil {
			t.Fatalf("start helper: %v", err)
		}
		cmds = append(cmds, cmd)
	}
	for _, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			t.Fatalf("helper failed: %v", err)
		}
	}

	if got := readCounter(t, counter); got != processes*iterations {
		t.Fatalf("lost cross-process updates: got %d want %d", got, processes*iterations)
	}
}

// TestHelperProcessCounter runs inside child processes spawned above.
func TestHelperProcessCounter(t *testing.T) {
	if os.Getenv("NEXA_FILELOCK_HELPER") != "1" {
		t.Skip("helper process only")
	}
	counter := os.Getenv("NEXA_FILELOCK_COUNTER")
	iterations, _ := strconv.Atoi(os.Getenv("NEXA_FILELOCK_ITERATIONS"))
	for i := 0; i < iterations; i++ {
		err := With(context.Background(), counter, Options{MaxWait: 30 * time.Second, Poll: time.Millisecond}, func() error {
			return incrementCounter(counter)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
}

func incrementCounter(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	n := 0
	if s := strings.TrimSpace(string(raw)); s != "" {
		if n, err = strconv.Atoi(s); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(n+1)), 0o600)
}

func readCounter(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatalf("parse counter: %v", err)
	}
	return n
}
