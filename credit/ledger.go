// Package credit tracks the consumable generation budget. The balance is
// stored in one canonical unit (cents of the base currency) and debited only
// after the corresponding generation call reports success; cancelled and
// failed operations never debit.
package credit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger is the thread-safe credit balance with display-currency conversion
// and a per-UTC-day usage counter.
type Ledger struct {
	mu              sync.Mutex
	balance         int64 // canonical cents, never negative
	displayCurrency string
	conversionRate  float64
	day             string
	dayDebits       int64
	dayOps          int64
	logger          *zap.Logger
}

// New creates a ledger with the given starting balance in canonical cents.
func New(balance int64, displayCurrency string, conversionRate float64, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conversionRate <= 0 {
		conversionRate = 1
	}
	return &Ledger{
		balance:         max64(0, balance),
		displayCurrency: displayCurrency,
		conversionRate:  conversionRate,
		logger:          logger.With(zap.String("component", "credit_ledger")),
	}
}

// Debit deducts amount, clamping the balance at zero, and returns the new
// balance. Call only after a confirmed successful generation.
func (l *Ledger) Debit(amount int64) int64 {
	if amount <= 0 {
		return l.Balance()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = max64(0, l.balance-amount)
	l.rollDayLocked(time.Now().UTC())
	l.dayDebits += amount
	l.dayOps++

	l.logger.Debug("credit debited",
		zap.Int64("amount", amount),
		zap.Int64("balance", l.balance))
	return l.balance
}

// Credit adds amount to the balance, e.g. a purchased top-up.
func (l *Ledger) Credit(amount int64) int64 {
	if amount <= 0 {
		return l.Balance()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	return l.balance
}

// CanAfford is the pre-flight check performed before any operation that
// would otherwise waste a service call.
func (l *Ledger) CanAfford(estimatedCost int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance >= estimatedCost
}

// Balance returns the canonical balance in cents.
func (l *Ledger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// DisplayBalance converts the balance into the selected display currency.
func (l *Ledger) DisplayBalance() (float64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.balance) / 100 * l.conversionRate, l.displayCurrency
}

// SetDisplayCurrency switches the display currency and conversion rate. The
// stored balance is unaffected; only presentation changes.
func (l *Ledger) SetDisplayCurrency(currency string, rate float64) {
	if rate <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.displayCurrency = currency
	l.conversionRate = rate
}

// DailyUsage returns the number of debited operations and the total amount
// debited during the current UTC day.
func (l *Ledger) DailyUsage() (ops, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked(time.Now().UTC())
	return l.dayOps, l.dayDebits
}

// rollDayLocked resets the daily counters when the UTC day changes.
// Callers must hold mu.
func (l *Ledger) rollDayLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if day != l.day {
		l.day = day
		l.dayDebits = 0
		l.dayOps = 0
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
