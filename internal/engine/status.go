package engine

import (
	"sync"
	"time"
)

// Cycle outcomes reported by Status.
const (
	OutcomeNoSignals        = "no_signals"
	OutcomeCompleted        = "completed"
	OutcomeCapitalExhausted = "capital_exhausted"
	OutcomeFailed           = "failed"
	OutcomeCancelled        = "cancelled"
)

// StatusSnapshot is a copy of the engine's progress for the status API.
type StatusSnapshot struct {
	Strategy    string    `json:"strategy"`
	Tickers     []string  `json:"tickers"`
	Running     bool      `json:"running"`
	Healthy     bool      `json:"healthy"`
	Cycles      int       `json:"cycles"`
	Brackets    int       `json:"brackets"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status tracks cycle progress. It is safe for concurrent use.
type Status struct {
	mu  sync.RWMutex
	s   StatusSnapshot
	now func() time.Time
}

// NewStatus creates a healthy Status for the given strategy and tickers.
func NewStatus(strategy string, tickers []string) *Status {
	return &Status{
		s:   StatusSnapshot{Strategy: strategy, Tickers: append([]string(nil), tickers...), Healthy: true},
		now: time.Now,
	}
}

func (st *Status) begin() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Running = true
	st.s.LastCycleAt = st.now()
}

func (st *Status) finish(outcome string, placed int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Running = false
	st.s.Cycles++
	st.s.Brackets += placed
	st.s.LastOutcome = outcome
	st.s.LastError = ""
}

func (st *Status) fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Running = false
	st.s.Cycles++
	st.s.Healthy = false
	st.s.LastOutcome = OutcomeFailed
	st.s.LastError = err.Error()
}

// Snapshot returns a copy of the current status.
func (st *Status) Snapshot() StatusSnapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := st.s
	out.Tickers = append([]string(nil), st.s.Tickers...)
	return out
}

// Healthy reports whether no cycle has failed fatally.
func (st *Status) Healthy() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Healthy
}
