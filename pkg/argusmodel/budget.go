package argusmodel

import (
	"sync"
	"time"
)

// TokenBudget tracks daily and hourly LLM token spend with a reserve
// carved out of each window exclusively for urgent requests.
//
// Grounded on the counter-with-window-rollover shape the teacher uses for
// its health/stat tracking (tarsy pkg/queue/worker.go's lastActivity /
// sessionsProcessed fields guarded by a single mutex).
type TokenBudget struct {
	mu sync.Mutex

	DailyLimit     int
	HourlyLimit    int
	PriorityReserve float64 // fraction in [0,1] reserved for urgent requests

	usedDaily  int
	usedHourly int

	dayStart  time.Time
	hourStart time.Time

	now func() time.Time
}

// NewTokenBudget creates a budget with the given limits. now, if nil,
// defaults to time.Now; tests may inject a fixed clock.
func NewTokenBudget(dailyLimit, hourlyLimit int, priorityReserve float64, now func() time.Time) *TokenBudget {
	if now == nil {
		now = time.Now
	}
	n := now()
	return &TokenBudget{
		DailyLimit:      dailyLimit,
		HourlyLimit:     hourlyLimit,
		PriorityReserve: priorityReserve,
		dayStart:        n.Truncate(24 * time.Hour),
		hourStart:       n.Truncate(time.Hour),
		now:             now,
	}
}

// rollover resets window counters when the current window has elapsed.
// Caller must hold mu.
func (b *TokenBudget) rollover() {
	n := b.now()
	day := n.Truncate(24 * time.Hour)
	hour := n.Truncate(time.Hour)
	if day.After(b.dayStart) {
		b.dayStart = day
		b.usedDaily = 0
	}
	if hour.After(b.hourStart) {
		b.hourStart = hour
		b.usedHourly = 0
	}
}

// CanSpend reports whether tokens additional usage fits within the
// appropriate limit for priority. Normal priority may only consume the
// non-reserved portion of each window; urgent may consume the full limit.
func (b *TokenBudget) CanSpend(tokens int, priority Priority) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	dailyCap := b.DailyLimit
	hourlyCap := b.HourlyLimit
	if priority == PriorityNormal {
		dailyCap = int(float64(b.DailyLimit) * (1 - b.PriorityReserve))
		hourlyCap = int(float64(b.HourlyLimit) * (1 - b.PriorityReserve))
	}
	return b.usedDaily+tokens <= dailyCap && b.usedHourly+tokens <= hourlyCap
}

// RecordUsage increments both windows' used counters.
func (b *TokenBudget) RecordUsage(prompt, completion int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	total := prompt + completion
	if total < 0 {
		total = 0
	}
	b.usedDaily += total
	b.usedHourly += total
}

// Snapshot returns the current usage, primarily for the selfmetrics
// exporter and the budget_update WebSocket message.
func (b *TokenBudget) Snapshot() (usedDaily, usedHourly, dailyLimit, hourlyLimit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.usedDaily, b.usedHourly, b.DailyLimit, b.HourlyLimit
}
