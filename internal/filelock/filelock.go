// Package filelock provides cross-process mutual exclusion over a file path.
//
// A lock is a marker file created with O_EXCL next to the protected path.
// Holders refresh the marker's mtime while they hold it. A marker whose mtime
// is older than the staleness threshold is presumed abandoned and reclaimed.
// Reclaiming trades safety for liveness: a holder stalled for longer than the
// threshold can overlap with the next acquirer. A reclaim removes only the
// marker that was judged stale, so waiters reclaiming at the same time cannot
// delete each other's fresh markers.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/nexa/internal/logging"
)

const (
	DefaultMaxWait = 5 * time.Second
	DefaultStale   = 5 * time.Second
	DefaultPoll    = 100 * time.Millisecond
)

var (
	// ErrTimeout is returned when the lock cannot be acquired within MaxWait.
	ErrTimeout = errors.New("lock timeout")
	// ErrBusy is returned by TryAcquire when a live holder has the lock.
	ErrBusy = errors.New("lock busy")
)

var reclaimSeq atomic.Uint64

// Options tunes acquisition. Zero values take the defaults above.
type Options struct {
	MaxWait time.Duration
	Stale   time.Duration
	Poll    time.Duration
	Logger  logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Stale <= 0 {
		o.Stale = DefaultStale
	}
	if o.Poll <= 0 {
		o.Poll = DefaultPoll
	}
	o.Logger = logging.OrDiscard(o.Logger)
	return o
}

// Lock is a held marker. Release it exactly once, usually via defer.
type Lock struct {
	path string
	stop chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

// MarkerPath returns the marker file used to lock path.
func MarkerPath(path string) string {
	return path + ".lock"
}

// Acquire blocks until the lock on path is held, MaxWait elapses, or ctx is
// done. Contention is retried every Poll.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()
	marker := MarkerPath(path)
	deadline := time.Now().Add(opts.MaxWait)

	for {
		lock, err := tryAcquire(marker, opts)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrBusy) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s still held after %s", ErrTimeout, marker, opts.MaxWait)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-time.After(opts.Poll):
		}
	}
}

// TryAcquire makes a single attempt, reclaiming a stale marker if there is
// one. It returns ErrBusy when a live holder has the lock.
func TryAcquire(path string, opts Options) (*Lock, error) {
	return tryAcquire(MarkerPath(path), opts.withDefaults())
}

// TryWith runs fn under the lock if it can be taken without waiting.
func TryWith(path string, opts Options, fn func() error) error {
	lock, err := TryAcquire(path, opts)
	if err != nil {
		return err
	}
	return runHeld(lock, opts, fn)
}

func tryAcquire(marker string, opts Options) (*Lock, error) {
	// A successful reclaim frees the marker, so one retry is enough.
	for attempt := 0; attempt < 2; attempt++ {
		// #nosec G304 -- marker path is derived from a caller-owned data path.
		file, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = file.Close()
			return newLock(marker, opts.Stale), nil
		}
		if !isContention(err, marker) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		info, age, stale := staleMarker(marker, time.Now(), opts.Stale)
		if !stale || !reclaim(marker, info, opts.Logger) {
			return nil, ErrBusy
		}
		opts.Logger.WithFields(logrus.Fields{
			"lock": marker,
			"age":  age.String(),
		}).Warn("reclaiming stale lock")
	}
	return nil, ErrBusy
}

// reclaim removes the marker only if it is still the file judged stale. The
// marker is first renamed to a private name so a concurrent reclaimer cannot
// delete a fresh marker created in between. If the renamed file turns out to
// be someone else's live marker it is linked back into place.
func reclaim(marker string, judged os.FileInfo, log logrus.FieldLogger) bool {
	claimed := fmt.Sprintf("%s.stale-%d-%d", marker, os.Getpid(), reclaimSeq.Add(1))
	if err := os.Rename(marker, claimed); err != nil {
		return false
	}
	defer os.Remove(claimed)

	// Inodes can be reused, so the stale mtime must match too.
	info, err := os.Stat(claimed)
	if err == nil && os.SameFile(judged, info) && info.ModTime().Equal(judged.ModTime()) {
		return true
	}
	if err := os.Link(claimed, marker); err != nil {
		log.WithError(err).WithField("lock", marker).Warn("restore live lock marker")
	}
	return false
}

// With runs fn while holding the lock on path. The lock is released on every
// exit path, including a panic in fn.
func With(ctx context.Context, path string, opts Options, fn func() error) error {
	lock, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	return runHeld(lock, opts, fn)
}

func runHeld(lock *Lock, opts Options, fn func() error) error {
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logging.OrDiscard(opts.Logger).WithError(releaseErr).
				WithField("lock", lock.path).Warn("release lock")
		}
	}()
	return fn()
}

func newLock(marker string, stale time.Duration) *Lock {
	l := &Lock{
		path: marker,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.refresh(stale / 2)
	return l
}

// refresh keeps the marker's mtime fresh so live holders are not reclaimed.
func (l *Lock) refresh(every time.Duration) {
	defer close(l.done)
	if every <= 0 {
		<-l.stop
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			_ = os.Chtimes(l.path, now, now)
		}
	}
}

// Release removes the marker. Calling it more than once is harmless.
func (l *Lock) Release() error {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.err = fmt.Errorf("release lock: %w", err)
		}
	})
	return l.err
}

// Path returns the marker path.
func (l *Lock) Path() string {
	return l.path
}

func isContention(acquireErr error, marker string) bool {
	if os.IsExist(acquireErr) {
		return true
	}
	if !os.IsPermission(acquireErr) {
		return false
	}
	// Windows reports a pending delete as a permission error.
	_, statErr := os.Stat(marker)
	return statErr == nil
}

func staleMarker(marker string, now time.Time, threshold time.Duration) (os.FileInfo, time.Duration, bool) {
	info, err := os.Stat(marker)
	if err != nil {
		return nil, 0, false
	}
	age := now.Sub(info.ModTime())
	return info, age, age > threshold
}
