// Package sync coordinates the mirror: it decides when the cache is
// fresh enough, drives remote fetches with credential fallback, runs
// the background poll loop and tells observers when data changed.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wachbuch/roster-mirror/internal/logger"
	"github.com/wachbuch/roster-mirror/internal/profile"
	"github.com/wachbuch/roster-mirror/internal/remote"
	"github.com/wachbuch/roster-mirror/internal/roster"
	"github.com/wachbuch/roster-mirror/internal/store"
	"github.com/wachbuch/roster-mirror/internal/telemetry"
)

const (
	// stalenessMaxAge is how long cached data counts as fresh.
	stalenessMaxAge = 6 * time.Hour
	// publicWindowDays is how far ahead the rolling public fetch looks.
	publicWindowDays = 31
	// retentionDays is how long old shifts are kept before eviction.
	retentionDays = 70

	defaultInitialDelay  = time.Minute
	defaultPollInterval  = time.Hour
	defaultCleanupEvery  = 72 * time.Hour
	defaultFallbackDelay = 500 * time.Millisecond
)

// RemoteClient is the slice of the remote client the coordinator needs.
type RemoteClient interface {
	Authenticated() bool
	ClearSession()
	Login(ctx context.Context, username, passwordHash string) roster.ClientState
	TestConnection(ctx context.Context) roster.ClientState
	FetchMasterData(ctx context.Context) roster.MasterData
	FetchPublicRange(ctx context.Context, from, to time.Time) (*remote.RangeResult, roster.ClientState)
	FetchPrivateRange(ctx context.Context, from, to time.Time) (*remote.RangeResult, roster.ClientState)
}

// Coordinator owns the sync lifecycle. Concurrent retrievals of the
// same range collapse into one remote fetch; everyone gets its outcome.
type Coordinator struct {
	client   RemoteClient
	store    *store.Store
	profile  *profile.Profile
	metrics  *telemetry.Metrics
	notifier *Notifier
	group    singleflight.Group

	initialDelay  time.Duration
	pollInterval  time.Duration
	cleanupEvery  time.Duration
	fallbackDelay time.Duration

	mu          stdsync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	nextCleanup time.Time
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator over the given client, store and profile.
func New(client RemoteClient, st *store.Store, prof *profile.Profile, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:        client,
		store:         st,
		profile:       prof,
		notifier:      NewNotifier(),
		initialDelay:  defaultInitialDelay,
		pollInterval:  defaultPollInterval,
		cleanupEvery:  defaultCleanupEvery,
		fallbackDelay: defaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notifier returns the coordinator's change notifier.
func (c *Coordinator) Notifier() *Notifier {
	return c.notifier
}

// GetPublicData makes sure the public roster around date is usable,
// fetching the rolling window when the cached day is stale. The outcome
// always reflects the cache's state for that day, fetched or not.
func (c *Coordinator) GetPublicData(ctx context.Context, date time.Time) roster.FetchOutcome {
	if !c.store.IsStale(date, stalenessMaxAge) {
		return roster.FetchOutcome{
			State:         roster.StateSuccessful,
			DataAvailable: true,
			LastFetchTime: c.store.LatestFetch(date),
		}
	}

	from := date
	to := date.AddDate(0, 0, publicWindowDays)
	outcome := c.refreshPublic(ctx, date, from, to)
	c.notifier.notify(Event{Operation: OpPublic, Outcome: outcome})
	return outcome
}

// refreshPublic fetches [from, to] into the public cache, collapsing
// concurrent callers onto one request. Failure outcomes report whether
// the requested day still has usable cached data.
func (c *Coordinator) refreshPublic(ctx context.Context, date, from, to time.Time) roster.FetchOutcome {
	key := fmt.Sprintf("public:%s:%s", roster.DayKey(from), roster.DayKey(to))
	result, _, _ := c.group.Do(key, func() (any, error) {
		return c.fetchPublic(ctx, from, to), nil
	})

	state := result.(roster.ClientState)
	if state != roster.StateSuccessful {
		return roster.FailureOutcome(state, c.store.HasData(date), c.store.LatestFetch(date))
	}
	return roster.SuccessOutcome()
}

func (c *Coordinator) fetchPublic(ctx context.Context, from, to time.Time) roster.ClientState {
	started := time.Now()
	defer func() { c.metrics.ObserveSync(OpPublic, time.Since(started).Seconds()) }()

	if state := c.ensureSession(ctx); state != roster.StateSuccessful {
		return state
	}

	result, state := c.client.FetchPublicRange(ctx, from, to)
	c.metrics.RecordFetch(OpPublic, state.String())
	if state != roster.StateSuccessful {
		return state
	}

	c.store.ImportPublic(result.Employees, result.Shifts, from, to)
	c.catalogShifts(result.Shifts)
	if err := c.store.Save(); err != nil {
		logger.Error("failed to persist store after fetch", "error", err)
	}
	c.metrics.SetCachedShifts(c.store.ShiftCount())
	logger.Info("public roster refreshed",
		"from", roster.DayKey(from), "to", roster.DayKey(to),
		"employees", len(result.Employees), "shifts", len(result.Shifts))
	return roster.StateSuccessful
}

// catalogShifts records newly seen shift kinds in the profile.
func (c *Coordinator) catalogShifts(shifts []*roster.Shift) {
	changed := false
	for _, shift := range shifts {
		if c.profile.AddKnownShift(profile.KnownShift{
			ConfigKey:    shift.ConfigKey(),
			RemoteTypeID: shift.RemoteTypeID,
			FullName:     shift.FullName,
			ShortName:    shift.ShortName,
		}) {
			changed = true
		}
	}
	if changed {
		c.saveProfile()
	}
}

// GetPrivateData makes sure the owner's duties for the month are
// usable. The public roster for the month is refreshed first; the
// private fetch is skipped only when that refresh failed and the cache
// has nothing public for the month either, because then the remote is
// known bad and there is nothing to cross-reference the duties with.
func (c *Coordinator) GetPrivateData(ctx context.Context, year int, month time.Month) roster.FetchOutcome {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 1, -1)

	if c.publicRangeStale(from, to) {
		public := c.refreshPublic(ctx, from, from, to)
		if public.Failed() && !c.store.HasData(from) {
			outcome := roster.FailureOutcome(public.State, false, time.Time{})
			c.notifier.notify(Event{Operation: OpPrivate, Outcome: outcome})
			return outcome
		}
	}

	if !c.store.IsPrivateStale(year, month, stalenessMaxAge) {
		return roster.FetchOutcome{
			State:         roster.StateSuccessful,
			DataAvailable: true,
			LastFetchTime: c.store.LatestFetch(from),
		}
	}

	outcome := c.refreshPrivate(ctx, year, month, from, to)
	c.notifier.notify(Event{Operation: OpPrivate, Outcome: outcome})
	return outcome
}

// publicRangeStale reports whether any day in [from, to] needs a public
// refresh. The private view cross-references the public roster day by
// day, so one stale or missing day taints the whole range.
func (c *Coordinator) publicRangeStale(from, to time.Time) bool {
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if c.store.IsStale(day, stalenessMaxAge) {
			return true
		}
	}
	return false
}

func (c *Coordinator) refreshPrivate(ctx context.Context, year int, month time.Month, from, to time.Time) roster.FetchOutcome {
	key := fmt.Sprintf("private:%d-%02d", year, int(month))
	result, _, _ := c.group.Do(key, func() (any, error) {
		return c.fetchPrivate(ctx, year, month, from, to), nil
	})

	state := result.(roster.ClientState)
	if state != roster.StateSuccessful {
		return roster.FailureOutcome(state, c.store.HasPrivateData(year, month), c.store.LatestFetch(from))
	}
	return roster.SuccessOutcome()
}

func (c *Coordinator) fetchPrivate(ctx context.Context, year int, month time.Month, from, to time.Time) roster.ClientState {
	started := time.Now()
	defer func() { c.metrics.ObserveSync(OpPrivate, time.Since(started).Seconds()) }()

	if state := c.ensureSession(ctx); state != roster.StateSuccessful {
		return state
	}

	result, state := c.client.FetchPrivateRange(ctx, from, to)
	c.metrics.RecordFetch(OpPrivate, state.String())
	if state != roster.StateSuccessful {
		return state
	}

	c.store.ImportPrivate(result.Shifts)
	logger.Info("private duties refreshed",
		"month", fmt.Sprintf("%d-%02d", year, int(month)), "shifts", len(result.Shifts))
	return roster.StateSuccessful
}

// FetchMasterData retrieves the session owner's identity from the
// remote. No caching: the caller wants the live answer.
func (c *Coordinator) FetchMasterData(ctx context.Context) roster.MasterData {
	if state := c.ensureSession(ctx); state != roster.StateSuccessful {
		return roster.MasterData{State: state}
	}
	md := c.client.FetchMasterData(ctx)
	c.metrics.RecordFetch(OpMasterData, md.State.String())
	return md
}

// SetCredentials verifies a freshly entered credential against the
// remote before storing it. On success the credential is persisted
// enabled and the private cache is dropped: the session identity may
// have changed and the old owner's duties must not leak to the new one.
func (c *Coordinator) SetCredentials(ctx context.Context, username, password string) roster.ClientState {
	hash := profile.HashPassword(password)

	state := c.client.Login(ctx, username, hash)
	c.metrics.RecordFetch("login", state.String())
	if state == roster.StateSuccessful {
		if probe := c.client.TestConnection(ctx); probe != roster.StateSuccessful {
			c.client.ClearSession()
			state = roster.StateCredentialsError
		}
	}

	if state == roster.StateSuccessful {
		c.profile.SetCredential(username, password)
		c.saveProfile()
		c.store.ClearPrivateCache()
	}

	outcome := roster.FetchOutcome{State: state, DataAvailable: state == roster.StateSuccessful}
	c.notifier.notify(Event{Operation: OpCredentials, Outcome: outcome})
	return state
}

// Start launches the background poll loop: after a short initial delay
// the public window is refreshed every poll interval, and retention
// cleanup runs every few days. Failures are logged and swallowed; the
// next tick tries again.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("sync coordinator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.nextCleanup = time.Now()
	c.running = true

	go c.run(runCtx)
	logger.Info("sync coordinator started",
		"initialDelay", c.initialDelay, "pollInterval", c.pollInterval)
	return nil
}

// Stop halts the background loop and waits for the current tick to
// finish. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	logger.Info("sync coordinator stopped")
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	select {
	case <-time.After(c.initialDelay):
	case <-ctx.Done():
		return
	}
	c.tick(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick refreshes the rolling window unconditionally. The poll loop is
// the freshness guarantee itself, so it must not be gated on the 6h
// staleness check the on-demand path uses.
func (c *Coordinator) tick(ctx context.Context) {
	now := time.Now()
	outcome := c.refreshPublic(ctx, now, now, now.AddDate(0, 0, publicWindowDays))
	c.notifier.notify(Event{Operation: OpPublic, Outcome: outcome})
	if outcome.Failed() {
		logger.Warn("background refresh failed", "state", outcome.State.String())
	}

	c.mu.Lock()
	due := !time.Now().Before(c.nextCleanup)
	if due {
		c.nextCleanup = time.Now().Add(c.cleanupEvery)
	}
	c.mu.Unlock()
	if due {
		c.runCleanup()
	}
}

// runCleanup evicts shifts older than the retention horizon.
func (c *Coordinator) runCleanup() {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	evicted := c.store.EvictOlderThan(cutoff)
	if evicted == 0 {
		return
	}

	c.metrics.AddEvicted(evicted)
	c.metrics.SetCachedShifts(c.store.ShiftCount())
	if err := c.store.Save(); err != nil {
		logger.Error("failed to persist store after cleanup", "error", err)
	}
	logger.Info("retention cleanup evicted shifts",
		"evicted", evicted, "cutoff", roster.DayKey(cutoff))
	c.notifier.notify(Event{Operation: OpCleanup, Outcome: roster.SuccessOutcome()})
}
