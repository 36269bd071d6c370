package syncer

import (
	"sync"
	"time"
)

// Report counts what one cycle did, phase by phase.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	StatusChecked  int `json:"status_checked"`
	Submitted      int `json:"submitted"`
	SubmitFailed   int `json:"submit_failed"`
	LeftPending    int `json:"left_pending"`
	SkippedPermit  int `json:"skipped_permit"`
	Resubmitted    int `json:"resubmitted"`
	ResubmitFailed int `json:"resubmit_failed"`
}

// Status is the daemon state the HTTP status endpoint reads. It is the
// only state shared between the sync loop and the server.
type Status struct {
	mu        sync.Mutex
	running   bool
	cycles    int
	lastCycle time.Time
	lastErr   string
	last      Report
}

// Snapshot is a point-in-time copy of the daemon state.
type Snapshot struct {
	Running   bool      `json:"running"`
	Cycles    int       `json:"cycles"`
	LastCycle time.Time `json:"last_cycle"`
	LastError string    `json:"last_error,omitempty"`
	Last      Report    `json:"last_report"`
}

func (s *Status) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func (s *Status) record(report Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastCycle = report.FinishedAt
	s.last = report
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

// Snapshot returns a copy safe to serialize.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Running:   s.running,
		Cycles:    s.cycles,
		LastCycle: s.lastCycle,
		LastError: s.lastErr,
		Last:      s.last,
	}
}
