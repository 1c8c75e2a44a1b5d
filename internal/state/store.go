// Package state persists the operational state document.
//
// Every write goes through an atomic file replace. Read-modify-write cycles
// within one process are serialized by a FIFO mutex owned by the Store.
// Across processes the last rename wins unless CrossProcessLock is set, in
// which case updates additionally hold the file lock on <state>.lock.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/nexa/internal/filelock"
	"github.com/rcliao/nexa/internal/fsx"
	"github.com/rcliao/nexa/internal/logging"
	"github.com/rcliao/nexa/internal/model"
)

// DefaultMaxErrors is how many error entries LogError keeps.
const DefaultMaxErrors = 50

// Options configures a Store.
type Options struct {
	// CrossProcessLock guards updates with the file lock as well as the
	// in-process mutex.
	CrossProcessLock bool
	Lock             filelock.Options
	MaxErrors        int
	Logger           logrus.FieldLogger
}

// TransformFunc maps the current document to the next one. It should be a
// pure function of its input: no I/O, no outside mutable state.
type TransformFunc func(model.State) (model.State, error)

// Store reads and writes one state file.
type Store struct {
	path      string
	mu        Mutex
	crossProc bool
	lockOpts  filelock.Options
	maxErrors int
	log       logrus.FieldLogger
	now       func() time.Time
}

// New returns a Store for the state file at path.
func New(path string, opts Options) *Store {
	maxErrors := opts.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	log := logging.OrDiscard(opts.Logger).WithField("state", path)
	lockOpts := opts.Lock
	if lockOpts.Logger == nil {
		lockOpts.Logger = log
	}
	return &Store{
		path:      path,
		crossProc: opts.CrossProcessLock,
		lockOpts:  lockOpts,
		maxErrors: maxErrors,
		log:       log,
		now:       time.Now,
	}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state document. A missing file yields the default
// document, as does one that cannot be parsed (with a warning). Other read
// failures are returned.
func (s *Store) Load() (model.State, error) {
	// #nosec G304 -- state path comes from project configuration.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultState(), nil
		}
		return model.State{}, fmt.Errorf("read state: %w", err)
	}
	var st model.State
	if err := json.Unmarshal(raw, &st); err != nil {
		s.log.WithError(err).Warn("state file unparseable, using defaults")
		return model.DefaultState(), nil
	}
	st.Normalize()
	return st, nil
}

// Save replaces the state document with st. It waits its turn behind any
// in-flight Update.
func (s *Store) Save(ctx context.Context, st model.State) error {
	return s.exclusive(ctx, func() error {
		return s.write(st)
	})
}

// Update runs one read-transform-write cycle and returns the document that
// was written. Calls from one process apply in the order they were issued.
// Errors from transform or from the write are returned and leave the file
// as it was. Once the mutex is held the cycle runs to completion; ctx only
// bounds the wait for it.
func (s *Store) Update(ctx context.Context, transform TransformFunc) (model.State, error) {
	var next model.State
	err := s.exclusive(ctx, func() error {
		current, err := s.Load()
		if err != nil {
			return err
		}
		next, err = transform(current)
		if err != nil {
			return fmt.Errorf("transform state: %w", err)
		}
		return s.write(next)
	})
	if err != nil {
		return model.State{}, err
	}
	return next, nil
}

func (s *Store) exclusive(ctx context.Context, fn func() error) error {
	if err := s.mu.Lock(ctx); err != nil {
		return fmt.Errorf("wait for state: %w", err)
	}
	defer s.mu.Unlock()

	if !s.crossProc {
		return fn()
	}
	return filelock.With(ctx, s.path, s.lockOpts, fn)
}

func (s *Store) write(st model.State) error {
	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	content = append(content, '\n')
	if err := fsx.WriteFileAtomic(s.path, content, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
