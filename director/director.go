// Package director is the composition root and caller loop: it owns the
// session store, cancellation controller, credit ledger, persistence store,
// and the generation service client, and exposes the operations a UI drives.
//
// Every operation follows the same shape: validate and pre-flight the credit
// check before any placeholder exists, insert an optimistic placeholder,
// call the generation service under the live cancellation token, check the
// token on resume before mutating, record the outcome on the targeted scene
// or clip, debit only on confirmed success, and flush the store.
package director

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/storyflow-ai/storyflow/cancel"
	"github.com/storyflow-ai/storyflow/credit"
	"github.com/storyflow-ai/storyflow/edit"
	"github.com/storyflow-ai/storyflow/genai"
	"github.com/storyflow-ai/storyflow/internal/metrics"
	"github.com/storyflow-ai/storyflow/persist"
	"github.com/storyflow-ai/storyflow/session"
	"github.com/storyflow-ai/storyflow/types"
)

// Costs are the per-operation prices in canonical cents.
type Costs struct {
	Image int64
	Video int64
	Edit  int64
	Angle int64
}

// Options configures a Director.
type Options struct {
	Logger      *zap.Logger
	Metrics     *metrics.Collector
	Costs       Costs
	MaxScenes   int
	Throttle    time.Duration
	BookmarkTTL time.Duration
}

// Director drives all generation operations against the store.
type Director struct {
	store   *session.Store
	ctrl    *cancel.Controller
	ledger  *credit.Ledger
	persist *persist.Store
	svc     genai.Service

	logger   *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	validate *validator.Validate
	limiter  *rate.Limiter

	costs       Costs
	maxScenes   int
	bookmarkTTL time.Duration

	mu         sync.Mutex
	bookmarks  []*types.SavedItem
	characters map[string]*types.Character
	edits      map[string]*edit.Session // keyed by scene id, stable across splices

	describeGroup singleflight.Group

	flushMu sync.Mutex
	flushWG sync.WaitGroup
}

// New wires a Director. The controller's stop hook is registered here so a
// global Stop resets every in-flight placeholder to the stopped state.
func New(store *session.Store, ctrl *cancel.Controller, ledger *credit.Ledger, ps *persist.Store, svc genai.Service, opts Options) *Director {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxScenes := opts.MaxScenes
	if maxScenes <= 0 {
		maxScenes = 12
	}
	bookmarkTTL := opts.BookmarkTTL
	if bookmarkTTL <= 0 {
		bookmarkTTL = 30 * 24 * time.Hour
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Throttle), 1)
	}

	d := &Director{
		store:       store,
		ctrl:        ctrl,
		ledger:      ledger,
		persist:     ps,
		svc:         svc,
		logger:      logger.With(zap.String("component", "director")),
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("storyflow/director"),
		validate:    validator.New(),
		limiter:     limiter,
		costs:       opts.Costs,
		maxScenes:   maxScenes,
		bookmarkTTL: bookmarkTTL,
		characters:  make(map[string]*types.Character),
		edits:       make(map[string]*edit.Session),
	}

	ctrl.OnStop(func() {
		store.MarkInFlightStopped()
		store.SetStatus(types.StoppedMessage)
	})
	return d
}

// Load restores persisted history and bookmarks into the live state.
// Expired bookmarks are filtered (and re-persisted) by the persistence layer.
func (d *Director) Load(ctx context.Context) error {
	sessions, activeID, err := d.persist.LoadHistory(ctx)
	if err != nil {
		return err
	}
	active := session.NoActive
	for i, sess := range sessions {
		if sess.ID == activeID {
			active = i
			break
		}
	}
	d.store.Replace(sessions, active)

	bookmarks, err := d.persist.LoadBookmarks(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.bookmarks = bookmarks
	d.mu.Unlock()

	settings, err := d.persist.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if settings != nil && settings.DisplayCurrency != "" {
		d.ledger.SetDisplayCurrency(settings.DisplayCurrency, settings.ConversionRate)
	}

	d.logger.Info("state restored",
		zap.Int("sessions", len(sessions)),
		zap.Int("bookmarks", len(bookmarks)))
	return nil
}

// UpdateSettings applies and persists user preferences. A currency change
// takes effect on the ledger's display conversion immediately.
func (d *Director) UpdateSettings(ctx context.Context, settings *types.Settings) error {
	if settings == nil {
		return types.NewError(types.ErrInvalidRequest, "no settings provided")
	}
	if settings.DisplayCurrency != "" {
		d.ledger.SetDisplayCurrency(settings.DisplayCurrency, settings.ConversionRate)
	}
	return d.persist.SaveSettings(ctx, settings)
}

// Stop aborts whatever is in flight. Scenes and clips currently loading are
// marked with the canonical stop message; nothing is debited for them.
func (d *Director) Stop() {
	d.ctrl.Stop()
	d.scheduleFlush()
}

// Snapshot merges the store's observable surface with the ledger state.
func (d *Director) Snapshot() types.Snapshot {
	snap := d.store.Snapshot()
	snap.CreditBalance = d.ledger.Balance()
	snap.DisplayBalance, snap.DisplayCurrency = d.ledger.DisplayBalance()
	ops, spent := d.ledger.DailyUsage()
	snap.DailyUsage = ops
	snap.DailySpend = spent
	return snap
}

// scheduleFlush persists the store asynchronously. Flushes are serialized;
// failures are logged, never surfaced, because the persistence layer already
// degrades by eviction.
func (d *Director) scheduleFlush() {
	d.flushWG.Add(1)
	go func() {
		defer d.flushWG.Done()
		d.flushMu.Lock()
		defer d.flushMu.Unlock()

		ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFn()

		start := time.Now()
		snap := d.store.Snapshot()
		activeID := ""
		if snap.ActiveSession >= 0 && snap.ActiveSession < len(snap.Sessions) {
			activeID = snap.Sessions[snap.ActiveSession].ID
		}
		if err := d.persist.SaveHistory(ctx, snap.Sessions, activeID); err != nil {
			d.logger.Error("history flush failed", zap.Error(err))
		}
		if d.metrics != nil {
			d.metrics.RecordSave(time.Since(start))
		}
	}()
}

// WaitFlush blocks until all scheduled flushes complete.
func (d *Director) WaitFlush() {
	d.flushWG.Wait()
}

// debit deducts a confirmed-success cost and mirrors the balance gauge.
func (d *Director) debit(amount int64) {
	balance := d.ledger.Debit(amount)
	if d.metrics != nil {
		d.metrics.RecordDebit()
		d.metrics.SetCreditBalance(balance)
	}
}

// preflight rejects the operation before any service call or placeholder
// when the balance cannot cover the estimate.
func (d *Director) preflight(cost int64) error {
	if !d.ledger.CanAfford(cost) {
		return types.NewError(types.ErrQuotaExceeded, "not enough credits for this operation")
	}
	return nil
}

func (d *Director) recordGeneration(kind string, err error, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordGeneration(kind, outcome(err), time.Since(start))
}

// outcome buckets an operation result for metrics: success, stopped, or
// failure. Cancellation and service failure are never conflated.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case types.IsStopped(err):
		return "stopped"
	default:
		return "failure"
	}
}

// serviceMessage converts a service error into the scene-level message shown
// to the user, with specific guidance for known safety-block text.
func serviceMessage(err error) string {
	msg := types.UserMessage(types.NewServiceError(err))
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return "Blocked by content safety filters. Rephrase the prompt and try again."
	}
	return msg
}
