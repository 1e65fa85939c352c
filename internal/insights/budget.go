package insights

import (
	"sync"
	"time"
)

const (
	// DefaultDailyLimit is the number of outbound model calls allowed per window
	DefaultDailyLimit = 45
	// BudgetWindow is the length of the rolling budget window
	BudgetWindow = 24 * time.Hour
)

// BudgetState is a read-only view of the call budget
type BudgetState struct {
	Limit       int       `json:"limit"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"windowStart,omitempty"`
	ResetsAt    time.Time `json:"resetsAt,omitempty"`
}

// DailyBudget caps outbound model calls across every task kind.
// The window starts at the first call after a reset and lasts BudgetWindow.
type DailyBudget struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	now         func() time.Time
	count       int
	windowStart time.Time
}

// BudgetOption customizes a DailyBudget
type BudgetOption func(*DailyBudget)

// WithClock replaces the time source
func WithClock(now func() time.Time) BudgetOption {
	return func(b *DailyBudget) {
		if now != nil {
			b.now = now
		}
	}
}

// WithWindow overrides the window length
func WithWindow(window time.Duration) BudgetOption {
	return func(b *DailyBudget) {
		if window > 0 {
			b.window = window
		}
	}
}

// NewDailyBudget creates a budget allowing limit calls per window.
// A non-positive limit falls back to DefaultDailyLimit.
func NewDailyBudget(limit int, opts ...BudgetOption) *DailyBudget {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	b := &DailyBudget{
		limit:  limit,
		window: BudgetWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TryAcquire reserves one call. It returns false, without counting, once the limit is reached.
func (b *DailyBudget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.windowStart) >= b.window {
		b.count = 0
		b.windowStart = now
	}

	if b.count >= b.limit {
		return false
	}
	b.count++
	return true
}

// Snapshot returns the current state without mutating it
func (b *DailyBudget) Snapshot() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := BudgetState{Limit: b.limit, Used: b.count}
	if !b.windowStart.IsZero() {
		if b.now().Sub(b.windowStart) >= b.window {
			// Window elapsed; the next call resets it.
			state.Used = 0
		} else {
			state.WindowStart = b.windowStart
			state.ResetsAt = b.windowStart.Add(b.window)
		}
	}
	state.Remaining = state.Limit - state.Used
	return state
}
