// Package services holds the sync engine: it applies local mutations to the
// local store, queues them for the remote store while connected, and replays
// the queue in the background.
package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/core"
	"fintrack/internal/queue"
	"fintrack/internal/remote"
	"fintrack/internal/worker"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotConnected  = errors.New("remote storage is not connected")
	ErrOffline       = errors.New("network is unreachable")

	// errStale is returned by work that outlived the connection it started on.
	errStale = errors.New("connection changed while syncing")
)

// LedgerStore is the local persistence the engine reads and writes.
type LedgerStore interface {
	InstallationID() string
	Transactions() []core.Transaction
	SaveTransactions([]core.Transaction)
	Budgets() []core.Budget
	SaveBudgets([]core.Budget)
	Categories() []core.Category
	SaveCategories([]core.Category)
	Settings() core.UserSettings
	SaveSettings(core.UserSettings)
	LastSync() (time.Time, bool)
	SaveLastSync(time.Time)
	queue.Persister
	remote.CredentialStore
}

// EngineOptions tunes background sync.
type EngineOptions struct {
	// SyncInterval is how often the queue is drained while connected (default: 5m)
	SyncInterval time.Duration

	// MaxRetries bounds the backoff retries after a failed drain (default: 3)
	MaxRetries int

	// RetryBaseDelay is the first retry delay; each retry doubles it (default: 1s)
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps a single retry delay (default: 30s)
	RetryMaxDelay time.Duration
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		SyncInterval:   5 * time.Minute,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
	}
}

func (o EngineOptions) withDefaults() EngineOptions {
	d := DefaultEngineOptions()
	if o.SyncInterval <= 0 {
		o.SyncInterval = d.SyncInterval
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = d.RetryBaseDelay
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = o.RetryBaseDelay
	}
	return o
}

// session is one remote connection. Its context is cancelled on disconnect.
type session struct {
	gen    uint64
	client remote.Client
	creds  core.RemoteCredentials
	ctx    context.Context
}

// SyncEngine is safe for concurrent use.
type SyncEngine struct {
	store    LedgerStore
	provider *remote.Provider
	creds    *remote.CredentialManager
	queue    *queue.Queue
	opts     EngineOptions
	periodic *worker.Scheduler
	drains   singleflight.Group

	// ledgerMu serialises read-modify-write cycles on the local collections.
	ledgerMu sync.Mutex
	// passMu serialises drain passes and full syncs.
	passMu sync.Mutex
	// notifyMu keeps subscriber notifications in order.
	notifyMu sync.Mutex

	mu            sync.Mutex
	state         core.SyncState
	conn          *session
	generation    uint64
	connCancel    context.CancelFunc
	retryTimer    *time.Timer
	retryAttempt  int
	needsFullSync bool
	subs          map[int]func(core.SyncState)
	nextSub       int
	closed        bool

	bg       context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewSyncEngine builds an engine in local mode. Call Start to restore a
// persisted remote connection.
func NewSyncEngine(store LedgerStore, provider *remote.Provider, opts EngineOptions) *SyncEngine {
	if provider == nil {
		provider = remote.NewProvider(nil)
	}
	opts = opts.withDefaults()
	bg, cancel := context.WithCancel(context.Background())

	e := &SyncEngine{
		store:    store,
		provider: provider,
		creds:    remote.NewCredentialManager(store),
		queue:    queue.New(store),
		opts:     opts,
		subs:     make(map[int]func(core.SyncState)),
		bg:       bg,
		bgCancel: cancel,
		state: core.SyncState{
			Status:             core.StatusIdle,
			IsNetworkReachable: true,
		},
	}
	if ts, ok := store.LastSync(); ok {
		e.state.LastSyncTimestamp = &ts
	}
	e.periodic = worker.NewScheduler("periodic-sync", opts.SyncInterval, e.tick)
	return e
}

// Start restores remote mode when the settings and stored credentials call
// for it, then drains anything left in the queue.
func (e *SyncEngine) Start(ctx context.Context) error {
	e.Refresh(ctx)
	if !e.Connected() {
		slog.InfoContext(ctx, "Sync engine started in local mode",
			"installation_id", e.store.InstallationID())
		return nil
	}
	slog.InfoContext(ctx, "Sync engine started in remote mode",
		"installation_id", e.store.InstallationID(),
		"pending_changes", e.queue.Len(),
		"sync_interval", e.opts.SyncInterval)
	return nil
}

// Refresh brings the engine in line with the persisted storage mode and
// credentials, which another process sharing the store may have changed,
// and drains changes that process queued.
func (e *SyncEngine) Refresh(ctx context.Context) {
	settings := e.store.Settings()
	creds, ok := e.creds.Credentials()
	remoteMode := settings.StorageMode == core.StorageRemote && ok
	sess := e.session()

	switch {
	case !remoteMode && sess != nil:
		e.detach()
		e.resetState()
		slog.InfoContext(ctx, "Remote storage was disconnected, following local mode")
		return
	case !remoteMode:
		return
	case sess == nil || sess.creds != creds:
		client, err := e.provider.Client(creds)
		if err != nil {
			slog.WarnContext(ctx, "Stored remote credentials are invalid, switching to local mode", "error", err)
			if sess != nil {
				e.detach()
				e.resetState()
			}
			e.ledgerMu.Lock()
			settings = e.store.Settings()
			settings.StorageMode = core.StorageLocal
			e.store.SaveSettings(settings)
			e.ledgerMu.Unlock()
			return
		}
		e.attach(ctx, client, creds)
		slog.InfoContext(ctx, "Following remote storage", "url", creds.URL)
	}

	if e.queue.Len() > 0 {
		e.triggerDrain()
	}
}

// Close stops background work and waits for it. Persisted state is untouched.
func (e *SyncEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.generation++
	e.conn = nil
	if e.connCancel != nil {
		e.connCancel()
		e.connCancel = nil
	}
	e.stopRetryLocked()
	e.mu.Unlock()

	e.periodic.Stop()
	e.bgCancel()
	e.wg.Wait()
	slog.Debug("Sync engine closed")
}

// Connected reports whether the engine is in remote mode.
func (e *SyncEngine) Connected() bool {
	return e.session() != nil
}

// State returns a copy of the current sync state.
func (e *SyncEngine) State() core.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.state
	if s.LastSyncTimestamp != nil {
		ts := *s.LastSyncTimestamp
		s.LastSyncTimestamp = &ts
	}
	s.PendingChangeCount = e.queue.Len()
	return s
}

// Subscribe calls fn with the current state and again after every change.
// fn runs synchronously and must not call back into the engine's mutators.
func (e *SyncEngine) Subscribe(fn func(core.SyncState)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	e.notifyMu.Lock()
	fn(e.State())
	e.notifyMu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// SetNetworkReachable records a reachability change. Going offline marks the
// state offline; coming back drains pending changes right away.
func (e *SyncEngine) SetNetworkReachable(ctx context.Context, reachable bool) {
	e.mu.Lock()
	changed := e.state.IsNetworkReachable != reachable
	e.state.IsNetworkReachable = reachable
	switch {
	case !reachable:
		e.state.Status = core.StatusOffline
	case e.state.Status == core.StatusOffline:
		e.state.Status = core.StatusIdle
	}
	connected := e.conn != nil
	e.mu.Unlock()

	if !changed {
		return
	}
	slog.InfoContext(ctx, "Network reachability changed", "reachable", reachable)
	e.publish()
	if reachable && connected && e.queue.Len() > 0 {
		e.triggerDrain()
	}
}

func (e *SyncEngine) publish() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	st := e.State()
	e.mu.Lock()
	subs := make([]func(core.SyncState), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// setStatus records status unless the network is unreachable, which keeps
// the state offline until reachability returns.
func (e *SyncEngine) setStatus(status core.SyncStatus) {
	e.mu.Lock()
	if e.state.IsNetworkReachable {
		e.state.Status = status
	}
	e.mu.Unlock()
	e.publish()
}

// resetState returns to idle with no error, keeping reachability.
func (e *SyncEngine) resetState() {
	e.mu.Lock()
	e.state = core.SyncState{
		Status:             core.StatusIdle,
		IsNetworkReachable: e.state.IsNetworkReachable,
	}
	if !e.state.IsNetworkReachable {
		e.state.Status = core.StatusOffline
	}
	e.mu.Unlock()
	e.publish()
}

// settle returns a finished pass (success or error) to idle.
func (e *SyncEngine) settle() {
	e.mu.Lock()
	finished := e.state.Status == core.StatusSuccess || e.state.Status == core.StatusError
	if finished {
		e.state.Status = core.StatusIdle
	}
	e.mu.Unlock()
	if finished {
		e.publish()
	}
}

func (e *SyncEngine) succeed(gen uint64) {
	now := time.Now().UTC()
	e.mu.Lock()
	if !e.currentLocked(gen) {
		e.mu.Unlock()
		return
	}
	if e.state.IsNetworkReachable {
		e.state.Status = core.StatusSuccess
	}
	e.state.LastError = ""
	e.state.LastSyncTimestamp = &now
	e.retryAttempt = 0
	e.stopRetryLocked()
	e.mu.Unlock()

	e.store.SaveLastSync(now)
	e.publish()
}

func (e *SyncEngine) fail(gen uint64, err error) {
	e.mu.Lock()
	if !e.currentLocked(gen) {
		e.mu.Unlock()
		return
	}
	if e.state.IsNetworkReachable {
		e.state.Status = core.StatusError
	}
	e.state.LastError = err.Error()
	e.scheduleRetryLocked(gen)
	e.mu.Unlock()
	e.publish()
}

// scheduleRetryLocked arms the backoff timer unless one is pending or the
// retry budget is spent. The periodic tick resets the budget.
func (e *SyncEngine) scheduleRetryLocked(gen uint64) {
	if e.closed || e.retryTimer != nil {
		return
	}
	if e.retryAttempt >= e.opts.MaxRetries {
		slog.Warn("Sync retries exhausted, waiting for the next periodic sync",
			"attempts", e.retryAttempt)
		return
	}
	delay := backoff(e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, e.retryAttempt)
	e.retryAttempt++
	slog.Info("Sync retry scheduled", "attempt", e.retryAttempt, "delay", delay)

	e.retryTimer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		if !e.currentLocked(gen) {
			e.mu.Unlock()
			return
		}
		e.retryTimer = nil
		e.mu.Unlock()
		e.triggerDrain()
	})
}

func (e *SyncEngine) stopRetryLocked() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

// backoff returns base * 2^attempt, capped at limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		return limit
	}
	d := base << attempt
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

func (e *SyncEngine) session() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

func (e *SyncEngine) currentLocked(gen uint64) bool {
	return e.conn != nil && e.conn.gen == gen
}

func (e *SyncEngine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked(gen)
}

// attach switches to a new remote session and starts the periodic drain.
func (e *SyncEngine) attach(ctx context.Context, client remote.Client, creds core.RemoteCredentials) *session {
	e.mu.Lock()
	sess := e.attachLocked(client, creds)
	e.mu.Unlock()
	e.startPeriodic(ctx)
	return sess
}

// attachAt is attach if the generation is still gen, i.e. nothing connected
// or disconnected since gen was read.
func (e *SyncEngine) attachAt(ctx context.Context, gen uint64, client remote.Client, creds core.RemoteCredentials) (*session, bool) {
	e.mu.Lock()
	if e.generation != gen || e.closed {
		e.mu.Unlock()
		return nil, false
	}
	sess := e.attachLocked(client, creds)
	e.needsFullSync = true
	e.mu.Unlock()
	e.startPeriodic(ctx)
	return sess, true
}

func (e *SyncEngine) attachLocked(client remote.Client, creds core.RemoteCredentials) *session {
	if e.connCancel != nil {
		e.connCancel()
	}
	e.stopRetryLocked()
	e.retryAttempt = 0
	e.needsFullSync = false

	e.generation++
	connCtx, cancel := context.WithCancel(e.bg)
	sess := &session{gen: e.generation, client: client, creds: creds, ctx: connCtx}
	e.conn = sess
	e.connCancel = cancel
	return sess
}

func (e *SyncEngine) startPeriodic(ctx context.Context) {
	if err := e.periodic.Start(e.bg); err != nil {
		slog.DebugContext(ctx, "Periodic sync already running", "error", err)
	}
}

// currentGeneration identifies the connection state; attach and detach
// change it.
func (e *SyncEngine) currentGeneration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// detach drops the current session. Work still running for it is discarded
// when it completes.
func (e *SyncEngine) detach() {
	e.mu.Lock()
	e.generation++
	e.conn = nil
	if e.connCancel != nil {
		e.connCancel()
		e.connCancel = nil
	}
	e.stopRetryLocked()
	e.retryAttempt = 0
	e.needsFullSync = false
	e.mu.Unlock()

	e.periodic.Stop()
}

// bind derives a context that also ends when the session does.
func bind(ctx context.Context, sess *session) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(sess.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// triggerDrain starts a drain in the background.
func (e *SyncEngine) triggerDrain() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if err := e.Drain(e.bg); err != nil && !errors.Is(err, errStale) {
			slog.Debug("Background drain finished with pending changes", "error", err)
		}
	}()
}

// tick is the periodic job: settle the previous outcome, then drain.
func (e *SyncEngine) tick(ctx context.Context) {
	e.mu.Lock()
	e.retryAttempt = 0
	e.mu.Unlock()
	e.settle()
	if err := e.Drain(ctx); err != nil && !errors.Is(err, errStale) {
		slog.WarnContext(ctx, "Periodic sync failed", "error", err)
	}
}
