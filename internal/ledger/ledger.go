// Package ledger implements the Spending Ledger (spec.md §4.9): durable
// daily/monthly USD counters with a pre-request check and an atomic
// record-then-persist write, guarded by a single lock the way the
// teacher guards its fallback routing-table swap.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eternisai/multiai-gateway/internal/gwerrors"
	"github.com/eternisai/multiai-gateway/internal/logger"
	"github.com/eternisai/multiai-gateway/internal/telemetry"
)

// Window identifies one of the ledger's two rolling caps.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// Counter is one window's persisted state.
type Counter struct {
	Amount  float64   `json:"amount"`
	ResetAt time.Time `json:"reset_at"`
	warned  bool
}

// Config holds the ledger's tunables (spec.md §6).
type Config struct {
	DailyCap      float64
	MonthlyCap    float64
	WarnAtPercent float64
}

// DefaultConfig returns spec.md's defaults: daily=5, monthly=50, warn=80%.
func DefaultConfig() Config {
	return Config{DailyCap: 5.00, MonthlyCap: 50.00, WarnAtPercent: 80}
}

// Status is the read-only view returned by Status().
type Status struct {
	DailyAmount    float64
	DailyCap       float64
	DailyResetAt   time.Time
	MonthlyAmount  float64
	MonthlyCap     float64
	MonthlyResetAt time.Time
}

// Ledger guards daily and monthly counters under one write lock.
type Ledger struct {
	cfg   Config
	store Store
	tel   *telemetry.Logger
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	daily   Counter
	monthly Counter
}

// New constructs a Ledger, loading any persisted counters from store.
func New(cfg Config, store Store, tel *telemetry.Logger, log *logger.Logger, now func() time.Time) (*Ledger, error) {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{cfg: cfg, store: store, tel: tel, log: log, now: now}

	daily, monthly, err := store.Load()
	if err != nil {
		return nil, err
	}
	l.daily = daily
	l.monthly = monthly

	l.mu.Lock()
	l.applyResetIfNeeded(&l.daily, WindowDaily)
	l.applyResetIfNeeded(&l.monthly, WindowMonthly)
	l.mu.Unlock()

	return l, nil
}

// Check reports whether estimatedCost can be spent without exceeding
// either cap, after first applying any expired-window reset.
func (l *Ledger) Check(estimatedCost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyResetIfNeeded(&l.daily, WindowDaily)
	l.applyResetIfNeeded(&l.monthly, WindowMonthly)

	if l.daily.Amount+estimatedCost > l.cfg.DailyCap {
		return gwerrors.NewSpendingCapError("daily spending cap reached", string(WindowDaily))
	}
	if l.monthly.Amount+estimatedCost > l.cfg.MonthlyCap {
		return gwerrors.NewSpendingCapError("monthly spending cap reached", string(WindowMonthly))
	}
	return nil
}

// Record atomically increments both counters and persists the result.
// Reset-before-add means a window crossing mid-call never loses the
// increment: the counter is zeroed first, then the cost is added, so the
// final amount equals actualCost rather than a stale amount plus cost.
func (l *Ledger) Record(actualCost float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyResetIfNeeded(&l.daily, WindowDaily)
	l.applyResetIfNeeded(&l.monthly, WindowMonthly)

	l.daily.Amount += actualCost
	l.monthly.Amount += actualCost

	l.checkWarnLocked(&l.daily, WindowDaily, l.cfg.DailyCap)
	l.checkWarnLocked(&l.monthly, WindowMonthly, l.cfg.MonthlyCap)

	return l.store.Save(l.daily, l.monthly)
}

// Status returns current amounts, caps, and reset times.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyResetIfNeeded(&l.daily, WindowDaily)
	l.applyResetIfNeeded(&l.monthly, WindowMonthly)

	return Status{
		DailyAmount: l.daily.Amount, DailyCap: l.cfg.DailyCap, DailyResetAt: l.daily.ResetAt,
		MonthlyAmount: l.monthly.Amount, MonthlyCap: l.cfg.MonthlyCap, MonthlyResetAt: l.monthly.ResetAt,
	}
}

// SetCaps updates the caps at runtime (spec.md's POST /api/settings/spending).
func (l *Ledger) SetCaps(dailyCap, monthlyCap, warnAtPercent *float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dailyCap != nil {
		l.cfg.DailyCap = *dailyCap
	}
	if monthlyCap != nil {
		l.cfg.MonthlyCap = *monthlyCap
	}
	if warnAtPercent != nil {
		l.cfg.WarnAtPercent = *warnAtPercent
	}
}

// RegisterResetSweep schedules a cron job at midnight UTC that applies
// pending window resets and persists them even during idle periods with no
// Check/Record/Status traffic (each of which applies pending resets itself).
func (l *Ledger) RegisterResetSweep(c *cron.Cron) error {
	_, err := c.AddFunc("CRON_TZ=UTC @daily", l.sweep)
	return err
}

func (l *Ledger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyResetIfNeeded(&l.daily, WindowDaily)
	l.applyResetIfNeeded(&l.monthly, WindowMonthly)
	if err := l.store.Save(l.daily, l.monthly); err != nil && l.log != nil {
		l.log.Error("ledger reset sweep persist failed", slog.String("error", err.Error()))
	}
}

func (l *Ledger) applyResetIfNeeded(c *Counter, w Window) {
	now := l.now()
	if c.ResetAt.IsZero() {
		c.ResetAt = nextBoundary(now, w)
		return
	}
	if !now.Before(c.ResetAt) {
		c.Amount = 0
		c.warned = false
		c.ResetAt = nextBoundary(now, w)
	}
}

func (l *Ledger) checkWarnLocked(c *Counter, w Window, cap float64) {
	if cap <= 0 || c.warned {
		return
	}
	if c.Amount/cap*100 >= l.cfg.WarnAtPercent {
		c.warned = true
		if l.tel != nil {
			l.tel.Enqueue(telemetry.Event{
				Type: telemetry.EventSpendingWarning,
				Fields: map[string]any{
					"window":     string(w),
					"amount":     c.Amount,
					"cap":        cap,
					"percent_of": l.cfg.WarnAtPercent,
				},
			})
		}
	}
}

func nextBoundary(now time.Time, w Window) time.Time {
	now = now.UTC()
	if w == WindowDaily {
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
