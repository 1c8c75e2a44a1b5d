package model

// StateVersion is written into fresh state documents.
const StateVersion = 1

// DefaultNextAction is the hint shown before anything has been scanned.
const DefaultNextAction = "Run 'nexa scan' to scan for new documents"

// Algorithm phases.
const (
	PhaseObserve = "OBSERVE"
	PhaseThink   = "THINK"
	PhasePlan    = "PLAN"
	PhaseBuild   = "BUILD"
	PhaseExecute = "EXECUTE"
	PhaseVerify  = "VERIFY"
	PhaseLearn   = "LEARN"
)

// ValidPhases are the allowed algorithm phases.
var ValidPhases = map[string]bool{
	PhaseObserve: true,
	PhaseThink:   true,
	PhasePlan:    true,
	PhaseBuild:   true,
	PhaseExecute: true,
	PhaseVerify:  true,
	PhaseLearn:   true,
}

// ValidJobTypes are the job kinds a current_job may carry.
var ValidJobTypes = map[string]bool{
	"ingest":            true,
	"mirror":            true,
	"learn":             true,
	"summarize":         true,
	"delta-feedback":    true,
	"delta-ops":         true,
	"delta-roadmap":     true,
	"delta-competitive": true,
	"delta-general":     true,
}

// State is the whole-file operational state document.
type State struct {
	Version          int           `json:"version"`
	Daemon           DaemonStatus  `json:"daemon"`
	Phase            string        `json:"phase"`
	CurrentJob       *Job          `json:"current_job"`
	Brief            Brief         `json:"brief"`
	NextAction       string        `json:"next_action"`
	IngestIndex      []IngestEntry `json:"ingest_index"`
	LastJob          *LastJob      `json:"last_job"`
	Errors           []ErrorEntry  `json:"errors"`
	SessionStartTime *string       `json:"session_start_time"`
}

// DaemonStatus tracks the background scanner process.
type DaemonStatus struct {
	Status          string  `json:"status"`
	PID             *int    `json:"pid"`
	LastHeartbeatAt *string `json:"last_heartbeat_at"`
	StartedAt       *string `json:"started_at"`
}

// Job is the job currently running.
type Job struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	StartedAt string   `json:"started_at"`
	Inputs    []string `json:"inputs"`
}

// LastJob is the outcome of the most recent finished job.
type LastJob struct {
	ID         string `json:"id"`
	Result     string `json:"result"`
	FinishedAt string `json:"finished_at"`
}

// Brief is the rolling summary shown to the assistant.
type Brief struct {
	TopThemes   []string `json:"top_themes"`
	RiskFlags   []string `json:"risk_flags"`
	LatestDelta *string  `json:"latest_delta"`
}

// IngestEntry records one ingested source file.
type IngestEntry struct {
	SourcePath  string `json:"source_path"`
	IngestPath  string `json:"ingest_path"`
	ContentHash string `json:"content_hash"`
	Fingerprint string `json:"fingerprint"`
	Status      string `json:"status"`
	ExtractedAt string `json:"extracted_at"`
}

// ErrorEntry is one line of the capped error log.
type ErrorEntry struct {
	Timestamp    string `json:"timestamp"`
	JobID        string `json:"job_id"`
	SourcePath   string `json:"source_path"`
	ErrorMessage string `json:"error_message"`
}

// DefaultState is the document used when none exists on disk.
func DefaultState() State {
	return State{
		Version: StateVersion,
		Daemon:  DaemonStatus{Status: "stopped"},
		Phase:   PhaseObserve,
		Brief: Brief{
			TopThemes: []string{},
			RiskFlags: []string{},
		},
		NextAction:  DefaultNextAction,
		IngestIndex: []IngestEntry{},
		Errors:      []ErrorEntry{},
	}
}

// Normalize fills zero fields of a decoded document so older or hand-edited
// files behave like fresh ones.
func (s *State) Normalize() {
	if s.Version == 0 {
		s.Version = StateVersion
	}
	if s.Daemon.Status == "" {
		s.Daemon.Status = "stopped"
	}
	if s.Phase == "" {
		s.Phase = PhaseObserve
	}
	if s.NextAction == "" {
		s.NextAction = DefaultNextAction
	}
	if s.Brief.TopThemes == nil {
		s.Brief.TopThemes = []string{}
	}
	if s.Brief.RiskFlags == nil {
		s.Brief.RiskFlags = []string{}
	}
	if s.IngestIndex == nil {
		s.IngestIndex = []IngestEntry{}
	}
	if s.Errors == nil {
		s.Errors = []ErrorEntry{}
	}
}
