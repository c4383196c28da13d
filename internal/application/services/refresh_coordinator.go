package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

var (
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrCoordinatorClosed = errors.New("refresh coordinator closed")
)

// RefreshConfig configures one coordinator. TypingTimeout of 0 keeps a field
// in the typing set until it is explicitly cleared.
type RefreshConfig struct {
	Interval              time.Duration
	TypingTimeout         time.Duration
	FetchTimeout          time.Duration
	FailureAlertThreshold int
	Datasets              []desvio.Query
	Observer              RefreshObserver
}

// Reload outcomes reported to a RefreshObserver.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeDiscarded  = "discarded"
	OutcomeSuppressed = "suppressed"
	OutcomeBusy       = "busy"
)

// RefreshObserver is told about every timer firing and forced reload.
// Skipped ticks report a zero duration.
type RefreshObserver interface {
	ObserveReload(trigger refresh.Trigger, outcome string, took time.Duration)
}

// RefreshCoordinator reloads a fixed set of datasets on a timer while auto
// refresh is enabled and nobody is typing, and hands every successful result
// to the update callback.
type RefreshCoordinator struct {
	cfg      RefreshConfig
	source   ports.DatasetReloader
	onUpdate func(refresh.Result)
	notifier ports.NotificationService
	logger   *logrus.Logger
	now      func() time.Time

	// busy is held for the whole duration of a reload, timer or manual.
	busy atomic.Bool

	// deliverMu orders result delivery against Enable and Close, so no
	// result is handed out after auto refresh was turned off.
	deliverMu sync.Mutex

	mu            sync.Mutex
	enabled       bool
	closed        bool
	generation    uint64
	typing        map[string]time.Time
	stopLoop      context.CancelFunc
	rearm         chan struct{}
	nextTickAt    time.Time
	lastRefreshAt time.Time
	failures      int
	lastErr       string
}

var _ ports.RefreshCoordinator = (*RefreshCoordinator)(nil)

func NewRefreshCoordinator(cfg RefreshConfig, source ports.DatasetReloader, onUpdate func(refresh.Result), notifier ports.NotificationService, logger *logrus.Logger) (*RefreshCoordinator, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.Interval)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("refresh fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	if cfg.TypingTimeout < 0 {
		return nil, fmt.Errorf("typing timeout must not be negative, got %s", cfg.TypingTimeout)
	}
	if source == nil {
		return nil, errors.New("refresh coordinator requires a data source")
	}
	return &RefreshCoordinator{
		cfg:      cfg,
		source:   source,
		onUpdate: onUpdate,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		typing:   make(map[string]time.Time),
	}, nil
}

// Enable turns periodic refresh on or off. Enabling starts a fresh interval
// window; disabling stops the timer and discards any reload still in flight.
func (c *RefreshCoordinator) Enable(enabled bool) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.generation++
		c.stopLoopLocked()
		c.nextTickAt = time.Time{}
		if c.logger != nil {
			c.logger.Info("auto refresh disabled")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopLoop = cancel
	c.rearm = make(chan struct{}, 1)
	c.nextTickAt = c.now().Add(c.cfg.Interval)
	go c.loop(ctx, c.rearm)
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"interval": c.cfg.Interval.String()}).Info("auto refresh enabled")
	}
}

// NotifyTyping adds field to, or removes it from, the set of fields being
// edited. Timer refreshes are skipped while the set is not empty.
func (c *RefreshCoordinator) NotifyTyping(field string, typing bool) {
	field = strings.TrimSpace(field)
	if field == "" {
		return
	}

	c.mu.Lock()
	_, was := c.typing[field]
	if typing {
		c.typing[field] = c.now()
	} else {
		delete(c.typing, field)
	}
	remaining := len(c.typing)
	c.mu.Unlock()

	if c.logger != nil && was != typing {
		c.logger.WithFields(logrus.Fields{"field": field, "typing": typing, "typing_fields": remaining}).Debug("typing state changed")
	}
}

// ForceRefresh reloads immediately, ignoring the timer, the enabled flag and
// the typing set. The result is always handed to the update callback on
// success, and returned to the caller either way.
func (c *RefreshCoordinator) ForceRefresh(ctx context.Context) (refresh.Result, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return refresh.Result{}, ErrCoordinatorClosed
	}

	if !c.busy.CompareAndSwap(false, true) {
		return refresh.Result{}, ErrRefreshInProgress
	}
	defer c.busy.Store(false)

	res := c.reload(ctx, refresh.TriggerManual)
	c.finish(res, 0)
	return res, res.Err
}

func (c *RefreshCoordinator) Status() refresh.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneTypingLocked(now)

	fields := make([]string, 0, len(c.typing))
	for f := range c.typing {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	st := refresh.Status{
		Enabled:             c.enabled,
		Interval:            c.cfg.Interval.String(),
		TypingFields:        fields,
		LastRefreshAt:       c.lastRefreshAt,
		ConsecutiveFailures: c.failures,
		LastError:           c.lastErr,
	}
	switch {
	case c.busy.Load():
		st.State = refresh.StateRefreshing
	case !c.enabled:
		st.State = refresh.StateDisabled
	case len(fields) > 0:
		st.State = refresh.StateSuppressed
	default:
		st.State = refresh.StateIdle
	}
	if c.enabled && !c.nextTickAt.IsZero() {
		st.NextTickAt = c.nextTickAt
		if left := c.nextTickAt.Sub(now); left > 0 {
			st.SecondsRemaining = int(math.Ceil(left.Seconds()))
		}
	}
	return st
}

// Close stops the timer for good. Later calls to Enable are ignored.
func (c *RefreshCoordinator) Close() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.enabled = false
	c.generation++
	c.stopLoopLocked()
}

func (c *RefreshCoordinator) stopLoopLocked() {
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
		c.rearm = nil
	}
}

// loop fires tick each time the current window closes. A window never closes
// before Interval has passed since the last successful refresh, and a forced
// refresh moves it through rearm.
func (c *RefreshCoordinator) loop(ctx context.Context, rearm <-chan struct{}) {
	timer := time.NewTimer(c.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rearm:
			timer.Reset(c.untilNextTick())
		case <-timer.C:
			if wait := c.untilNextTick(); wait > 0 {
				timer.Reset(wait)
				continue
			}
			c.tick(ctx)
			timer.Reset(c.untilNextTick())
		}
	}
}

func (c *RefreshCoordinator) untilNextTick() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	due := c.nextTickAt
	if !c.lastRefreshAt.IsZero() {
		if earliest := c.lastRefreshAt.Add(c.cfg.Interval); earliest.After(due) {
			due = earliest
		}
	}
	return due.Sub(c.now())
}

// tick runs one timer firing.
func (c *RefreshCoordinator) tick(ctx context.Context) {
	c.mu.Lock()
	if !c.enabled || c.closed {
		c.mu.Unlock()
		return
	}
	now := c.now()
	c.nextTickAt = now.Add(c.cfg.Interval)
	c.pruneTypingLocked(now)
	if n := len(c.typing); n > 0 {
		c.mu.Unlock()
		c.observe(refresh.TriggerTimer, OutcomeSuppressed, 0)
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"typing_fields": n}).Debug("auto refresh skipped while typing")
		}
		return
	}
	gen := c.generation
	c.mu.Unlock()

	if !c.busy.CompareAndSwap(false, true) {
		c.observe(refresh.TriggerTimer, OutcomeBusy, 0)
		if c.logger != nil {
			c.logger.Debug("auto refresh skipped, previous reload still running")
		}
		return
	}
	defer c.busy.Store(false)

	res := c.reload(ctx, refresh.TriggerTimer)
	c.finish(res, gen)
}

// reload invalidates and loads every configured dataset within FetchTimeout.
func (c *RefreshCoordinator) reload(ctx context.Context, trigger refresh.Trigger) refresh.Result {
	res := refresh.Result{
		Trigger:   trigger,
		Datasets:  make(map[string]desvio.Rows, len(c.cfg.Datasets)),
		StartedAt: c.now(),
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	for _, q := range c.cfg.Datasets {
		if err := c.source.Invalidate(fetchCtx, q); err != nil && c.logger != nil {
			c.logger.WithFields(logrus.Fields{"dataset": q.Dataset}).WithError(err).Warn("failed to invalidate dataset before reload")
		}
		rows, err := c.source.Load(fetchCtx, q)
		if err != nil {
			res.Err = fmt.Errorf("reload %s: %w", q.Dataset, err)
			res.Error = res.Err.Error()
			res.Datasets = nil
			break
		}
		res.Datasets[q.Dataset] = rows
	}
	res.CompletedAt = c.now()
	return res
}

// finish records the outcome of a reload. gen is the generation captured when
// a timer reload started; manual reloads pass 0 and are always delivered.
func (c *RefreshCoordinator) finish(res refresh.Result, gen uint64) {
	manual := res.Trigger == refresh.TriggerManual
	took := res.CompletedAt.Sub(res.StartedAt)

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	current := manual || (gen == c.generation && c.enabled && !c.closed)
	if !current {
		c.mu.Unlock()
		c.observe(res.Trigger, OutcomeDiscarded, took)
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"trigger": res.Trigger}).Debug("discarding reload result after auto refresh was turned off")
		}
		return
	}

	if res.Err != nil {
		c.failures++
		c.lastErr = res.Err.Error()
		failures := c.failures
		alert := c.cfg.FailureAlertThreshold > 0 && failures == c.cfg.FailureAlertThreshold
		c.mu.Unlock()
		c.observe(res.Trigger, OutcomeFailure, took)

		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"trigger": res.Trigger, "consecutive_failures": failures}).WithError(res.Err).Warn("reload failed, will retry on next tick")
		}
		if alert && c.notifier != nil {
			c.notifier.Notify(context.Background(), notification.Notification{
				Title:    "Falha na atualização automática",
				Message:  fmt.Sprintf("A atualização dos dados falhou %d vezes seguidas.", failures),
				Severity: notification.SeverityWarning,
				Facts: map[string]string{
					"Falhas consecutivas": strconv.Itoa(failures),
					"Último erro":         res.Err.Error(),
				},
				CreatedAt: c.now(),
			})
		}
		return
	}

	c.lastRefreshAt = res.CompletedAt
	c.failures = 0
	c.lastErr = ""
	if c.enabled {
		c.nextTickAt = res.CompletedAt.Add(c.cfg.Interval)
		select {
		case c.rearm <- struct{}{}:
		default:
		}
	}
	cb := c.onUpdate
	c.mu.Unlock()
	c.observe(res.Trigger, OutcomeSuccess, took)

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"trigger":     res.Trigger,
			"datasets":    len(res.Datasets),
			"duration_ms": took.Milliseconds(),
		}).Info("reload completed")
	}
	if cb != nil {
		cb(res)
	}
}

func (c *RefreshCoordinator) observe(trigger refresh.Trigger, outcome string, took time.Duration) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveReload(trigger, outcome, took)
	}
}

func (c *RefreshCoordinator) pruneTypingLocked(now time.Time) {
	if c.cfg.TypingTimeout <= 0 {
		return
	}
	for f, since := range c.typing {
		if now.Sub(since) >= c.cfg.TypingTimeout {
			delete(c.typing, f)
		}
	}
}
