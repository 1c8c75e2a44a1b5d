package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/nexa/internal/model"
)

// Daemon statuses.
const (
	DaemonRunning = "running"
	DaemonStopped = "stopped"
	DaemonError   = "error"
)

// NewJobID returns a sortable job id such as job_01J...._ingest.
func NewJobID(jobType string, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return "job_" + id.String() + "_" + jobType
}

// SetCurrentJob marks a new job as running and returns it.
func (s *Store) SetCurrentJob(ctx context.Context, jobType string, inputs []string) (model.Job, error) {
	if !model.ValidJobTypes[jobType] {
		return model.Job{}, fmt.Errorf("unknown job type %q", jobType)
	}
	if inputs == nil {
		inputs = []string{}
	}
	now := s.now()
	job := model.Job{
		ID:        NewJobID(jobType, now),
		Type:      jobType,
		Status:    "running",
		StartedAt: model.FormatTime(now),
		Inputs:    inputs,
	}
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.CurrentJob = &job
		return st, nil
	})
	return job, err
}

// CompleteCurrentJob moves the current job into last_job with the given
// outcome. With no current job it only clears the slot and returns nil.
func (s *Store) CompleteCurrentJob(ctx context.Context, success bool) (*model.LastJob, error) {
	finished := model.FormatTime(s.now())
	result := "failed"
	if success {
		result = "ok"
	}
	var completed *model.LastJob
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		completed = nil
		if st.CurrentJob != nil {
			completed = &model.LastJob{
				ID:         st.CurrentJob.ID,
				Result:     result,
				FinishedAt: finished,
			}
			st.LastJob = completed
		}
		st.CurrentJob = nil
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// UpdateDaemonStatus records the scanner daemon's status. Running stamps the
// pid (the caller's when pid is 0), keeps an existing start time and beats
// the heartbeat. Stopped clears pid and start time.
func (s *Store) UpdateDaemonStatus(ctx context.Context, status string, pid int) error {
	switch status {
	case DaemonRunning, DaemonStopped, DaemonError:
	default:
		return fmt.Errorf("unknown daemon status %q", status)
	}
	if pid == 0 {
		pid = os.Getpid()
	}
	now := model.FormatTime(s.now())
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.Daemon.Status = status
		switch status {
		case DaemonRunning:
			st.Daemon.PID = &pid
			if st.Daemon.StartedAt == nil {
				st.Daemon.StartedAt = &now
			}
			st.Daemon.LastHeartbeatAt = &now
		case DaemonStopped:
			st.Daemon.PID = nil
			st.Daemon.StartedAt = nil
		}
		return st, nil
	})
	return err
}

// Heartbeat stamps the daemon heartbeat.
func (s *Store) Heartbeat(ctx context.Context) error {
	now := model.FormatTime(s.now())
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.Daemon.LastHeartbeatAt = &now
		return st, nil
	})
	return err
}

// BriefUpdate carries the brief fields to change; nil fields are kept.
type BriefUpdate struct {
	TopThemes   []string
	RiskFlags   []string
	LatestDelta *string
}

// UpdateBrief merges u into the brief.
func (s *Store) UpdateBrief(ctx context.Context, u BriefUpdate) (model.Brief, error) {
	st, err := s.Update(ctx, func(st model.State) (model.State, error) {
		if u.TopThemes != nil {
			st.Brief.TopThemes = u.TopThemes
		}
		if u.RiskFlags != nil {
			st.Brief.RiskFlags = u.RiskFlags
		}
		if u.LatestDelta != nil {
			st.Brief.LatestDelta = u.LatestDelta
		}
		return st, nil
	})
	return st.Brief, err
}

// SetNextAction sets the suggested next step.
func (s *Store) SetNextAction(ctx context.Context, action string) error {
	if action == "" {
		return fmt.Errorf("next action is required")
	}
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.NextAction = action
		return st, nil
	})
	return err
}

// SetPhase moves the algorithm to phase.
func (s *Store) SetPhase(ctx context.Context, phase string) error {
	if !model.ValidPhases[phase] {
		return fmt.Errorf("unknown phase %q", phase)
	}
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.Phase = phase
		return st, nil
	})
	return err
}

// AddIngestEntry records an ingested source, replacing any previous entry
// for the same source path.
func (s *Store) AddIngestEntry(ctx context.Context, entry model.IngestEntry) error {
	if entry.SourcePath == "" {
		return fmt.Errorf("ingest entry needs a source path")
	}
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		kept := make([]model.IngestEntry, 0, len(st.IngestIndex)+1)
		for _, e := range st.IngestIndex {
			if e.SourcePath != entry.SourcePath {
				kept = append(kept, e)
			}
		}
		st.IngestIndex = append(kept, entry)
		return st, nil
	})
	return err
}

// LogError appends entry to the error log, keeping only the newest
// MaxErrors entries. A missing timestamp is filled in.
func (s *Store) LogError(ctx context.Context, entry model.ErrorEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = model.FormatTime(s.now())
	}
	limit := s.maxErrors
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.Errors = append(st.Errors, entry)
		if over := len(st.Errors) - limit; over > 0 {
			st.Errors = append([]model.ErrorEntry(nil), st.Errors[over:]...)
		}
		return st, nil
	})
	return err
}

// StartSession stamps the session start time and returns it.
func (s *Store) StartSession(ctx context.Context) (string, error) {
	now := model.FormatTime(s.now())
	_, err := s.Update(ctx, func(st model.State) (model.State, error) {
		st.SessionStartTime = &now
		return st, nil
	})
	return now, err
}

// EndSession clears the session start time and returns how many whole
// minutes the session lasted. ok is false when no session was open.
func (s *Store) EndSession(ctx context.Context) (minutes int, ok bool, err error) {
	now := s.now()
	_, err = s.Update(ctx, func(st model.State) (model.State, error) {
		minutes, ok = SessionDuration(st, now)
		st.SessionStartTime = nil
		return st, nil
	})
	if err != nil {
		return 0, false, err
	}
	return minutes, ok, nil
}

// SessionDuration returns whole minutes since the session started.
func SessionDuration(st model.State, now time.Time) (int, bool) {
	if st.SessionStartTime == nil || *st.SessionStartTime == "" {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339Nano, *st.SessionStartTime)
	if err != nil {
		return 0, false
	}
	return int(now.Sub(start) / time.Minute), true
}

// IsAlreadyIngested reports whether sourcePath was ingested with this hash.
func IsAlreadyIngested(st model.State, sourcePath, hash string) bool {
	for _, e := range st.IngestIndex {
		if e.SourcePath == sourcePath && e.ContentHash == hash {
			return true
		}
	}
	return false
}

// FindByFingerprint finds the entry for sourcePath whose fingerprint matches.
func FindByFingerprint(st model.State, sourcePath, fingerprint string) (model.IngestEntry, bool) {
	for _, e := range st.IngestIndex {
		if e.SourcePath == sourcePath && e.Fingerprint == fingerprint {
			return e, true
		}
	}
	return model.IngestEntry{}, false
}

// StatusSummary is the condensed view printed at session start.
type StatusSummary struct {
	Phase            string  `json:"phase"`
	NextAction       string  `json:"next_action"`
	LastJobID        string  `json:"last_job_id"`
	LastJobResult    string  `json:"last_job_result"`
	LastJobFinished  string  `json:"last_job_finished"`
	IngestCount      int     `json:"ingest_count"`
	ErrorCount       int     `json:"error_count"`
	RecentSource     *string `json:"recent_source"`
	SessionStartTime *string `json:"session_start_time"`
	DaemonStatus     string  `json:"daemon_status"`
}

// Summarize condenses st.
func Summarize(st model.State) StatusSummary {
	st.Normalize()
	sum := StatusSummary{
		Phase:            st.Phase,
		NextAction:       st.NextAction,
		LastJobID:        "none",
		LastJobResult:    "n/a",
		LastJobFinished:  "n/a",
		IngestCount:      len(st.IngestIndex),
		ErrorCount:       len(st.Errors),
		SessionStartTime: st.SessionStartTime,
		DaemonStatus:     st.Daemon.Status,
	}
	if st.LastJob != nil {
		sum.LastJobID = st.LastJob.ID
		sum.LastJobResult = st.LastJob.Result
		sum.LastJobFinished = st.LastJob.FinishedAt
	}
	if n := len(st.IngestIndex); n > 0 {
		recent := st.IngestIndex[n-1].SourcePath
		sum.RecentSource = &recent
	}
	return sum
}
