package core

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// tokenRefresher keeps pooled credentials fresh. Each cycle drains due
// retries, scans for accounts nearing expiry, and refreshes them one at a
// time under a per-account lease. Refreshes never overlap within one
// process because a refresh may also rotate per-account device state.
type tokenRefresher struct {
	cfg       RefresherConfig
	alertsCfg AlertsConfig
	store     AccountStore
	registry  AuthenticatorRegistry
	locks     *LockManager
	pool      *accountPool
	gate      Gate
	alerts    AlertSink
	logger    Logger

	stats   *refreshStats
	batch   *batchController
	retries *retryQueue

	nowFn  func() time.Time
	waitFn func(ctx context.Context, delay time.Duration) error
	rnd    *rand.Rand

	mu       sync.Mutex
	cycleMu  sync.Mutex
	running  bool
	started  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newTokenRefresher(
	cfg RefresherConfig,
	alertsCfg AlertsConfig,
	store AccountStore,
	registry AuthenticatorRegistry,
	locks *LockManager,
	pool *accountPool,
	gate Gate,
	alerts AlertSink,
	logger Logger,
) *tokenRefresher {
	now := time.Now().UTC()
	return &tokenRefresher{
		cfg:       cfg,
		alertsCfg: alertsCfg,
		store:     store,
		registry:  registry,
		locks:     locks,
		pool:      pool,
		gate:      gate,
		alerts:    alerts,
		logger:    logger,
		stats:     newRefreshStats(),
		batch:     newBatchController(cfg.BatchSize, cfg.DeadlockThreshold, cfg.DeadlockWindow(), now),
		retries:   newRetryQueue(cfg.RetryQueueCapacity),
		nowFn:     func() time.Time { return time.Now().UTC() },
		waitFn:    waitWithContext,
		rnd:       rand.New(rand.NewSource(now.UnixNano())),
	}
}

// Start launches the scheduler loop. The next run time is the ticker's,
// not a rescheduled closure, so cancellation is deterministic.
func (r *tokenRefresher) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("core: refresher is not configured")
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("core: refresher already started")
	}
	r.started = true
	r.stopping = false
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	go func() {
		defer close(doneCh)
		interval := r.cfg.CheckInterval()
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if err := r.CheckAndRefresh(ctx); err != nil {
					r.logError(ctx, "refresh cycle failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	return nil
}

// Shutdown stops the scheduler, waiting up to the configured grace for an
// in-flight cycle; past the bound it proceeds regardless and logs the
// forced exit.
func (r *tokenRefresher) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.stopping = true
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()

	grace := r.cfg.ShutdownGrace()
	if grace <= 0 {
		grace = 30 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		r.logError(ctx, "refresher shutdown forced after grace period", map[string]any{
			"grace_seconds": int(grace / time.Second),
		})
		return nil
	}
}

// CheckAndRefresh runs one refresh cycle. Reentrant calls while a cycle
// is in flight are skips, not errors.
func (r *tokenRefresher) CheckAndRefresh(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("core: refresher is not configured")
	}

	r.mu.Lock()
	if r.running || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	// cycleMu is the serial gate shared with RefreshNow: a cycle and an
	// on-demand refresh never overlap within this process.
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	now := r.nowFn()
	if r.gate != nil && !r.gate.Allow(now) {
		r.logInfo(ctx, "refresh cycle paused by gate", nil)
		return nil
	}

	batchSize := r.batch.Size()
	candidates, err := r.collectCandidates(ctx, now, batchSize)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.processAccount(ctx, candidate.account, candidate.attempts)
		if delay := r.interAccountDelay(); delay > 0 {
			if err := r.waitFn(ctx, delay); err != nil {
				return err
			}
		}
	}

	r.stats.RecordCycle()
	r.batch.Observe(r.nowFn())
	r.emitAlerts(ctx)
	return nil
}

type refreshCandidate struct {
	account  *Account
	attempts int
}

// collectCandidates drains due retries first, then tops the batch up with
// the soonest-expiring accounts from the store.
func (r *tokenRefresher) collectCandidates(ctx context.Context, now time.Time, batchSize int) ([]refreshCandidate, error) {
	var candidates []refreshCandidate
	seen := map[string]struct{}{}

	for _, entry := range r.retries.Due(now) {
		account, err := r.store.GetByID(ctx, entry.AccountID)
		if err != nil || account == nil {
			continue
		}
		if account.Status == AccountStatusBanned || account.Status == AccountStatusError || account.IsDeleted {
			continue
		}
		candidates = append(candidates, refreshCandidate{account: account, attempts: entry.Attempts})
		seen[account.ID] = struct{}{}
	}

	remaining := batchSize - len(candidates)
	if remaining <= 0 {
		return candidates, nil
	}

	query := ExpiringAccountsQuery{
		Before:          now.Add(r.lookAheadThreshold()),
		ExcludeStatuses: []AccountStatus{AccountStatusError, AccountStatusBanned},
		Limit:           remaining,
	}
	if r.cfg.ActivePoolOnly && r.pool != nil {
		query.RestrictToIDs = r.pool.ActiveAccountIDs()
		if len(query.RestrictToIDs) == 0 {
			return candidates, nil
		}
	}

	rows, err := r.store.ListExpiring(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("core: expiring accounts query: %w", err)
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if _, dup := seen[row.ID]; dup {
			continue
		}
		candidates = append(candidates, refreshCandidate{account: row})
	}
	return candidates, nil
}

// lookAheadThreshold picks a random threshold inside the configured band
// so processes do not synchronize into refresh storms.
func (r *tokenRefresher) lookAheadThreshold() time.Duration {
	min := r.cfg.LookAheadMin()
	max := r.cfg.LookAheadMax()
	if max <= min {
		return min
	}
	return min + time.Duration(r.rnd.Int63n(int64(max-min)))
}

func (r *tokenRefresher) interAccountDelay() time.Duration {
	minMs := r.cfg.AccountDelayMinMillis
	maxMs := r.cfg.AccountDelayMaxMillis
	if maxMs <= 0 || maxMs < minMs {
		return 0
	}
	if maxMs == minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+r.rnd.Intn(maxMs-minMs)) * time.Millisecond
}

// processAccount refreshes one account under its per-account lease. A
// lost lease means another process owns the refresh: recorded as a skip,
// never a failure.
func (r *tokenRefresher) processAccount(ctx context.Context, account *Account, attempts int) {
	if account == nil {
		return
	}
	outcome := r.locks.WithLock(ctx, RefreshLockName(account.ID), r.cfg.LockTTL(), func(ctx context.Context) error {
		return r.refreshOne(ctx, account, attempts)
	})
	if outcome.Err != nil {
		r.logError(ctx, "refresh lease error", map[string]any{
			"account_id": account.ID,
			"error":      outcome.Err.Error(),
		})
		return
	}
	if !outcome.Acquired {
		r.stats.RecordSkip()
		r.logInfo(ctx, "refresh skipped, lease held elsewhere", map[string]any{
			"account_id": account.ID,
		})
	}
}

// RefreshNow refreshes one account on demand through the same serial
// gate as the scheduled cycle, under the account's per-process lease.
// An on-demand refresh therefore never runs concurrently with a batch.
func (r *tokenRefresher) RefreshNow(ctx context.Context, account *Account) error {
	if r == nil {
		return fmt.Errorf("core: refresher is not configured")
	}
	if account == nil {
		return fmt.Errorf("core: account is required")
	}

	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	outcome := r.locks.WithLock(ctx, RefreshLockName(account.ID), r.cfg.LockTTL(), func(ctx context.Context) error {
		return r.refreshOne(ctx, account, 0)
	})
	if outcome.Err != nil {
		return outcome.Err
	}
	if !outcome.Acquired {
		r.stats.RecordSkip()
		return fmt.Errorf("core: refresh lock already held for account %q", account.ID)
	}
	return nil
}

func (r *tokenRefresher) refreshOne(ctx context.Context, account *Account, attempts int) error {
	startedAt := r.nowFn()

	authenticator, err := r.registry.Resolve(account.Provider)
	if err != nil {
		r.handleFailure(ctx, account, attempts, startedAt, err)
		return nil
	}

	result, err := authenticator.Refresh(ctx, account)
	if err != nil {
		r.handleFailure(ctx, account, attempts, startedAt, err)
		return nil
	}

	verdict, seconds := ValidateExpiresIn(result.ExpiresIn, r.cfg)
	if verdict == ExpiresInInvalid {
		r.markAccountError(ctx, account.ID, fmt.Sprintf("refresh returned invalid expires_in %d", result.ExpiresIn))
		r.stats.RecordFailure(account.ID, r.nowFn().Sub(startedAt))
		r.retries.Remove(account.ID)
		return nil
	}
	if verdict == ExpiresInUseDefault {
		r.logInfo(ctx, "refresh expires_in above sane maximum, default substituted", map[string]any{
			"account_id": account.ID,
			"reported":   result.ExpiresIn,
			"applied":    seconds,
		})
	}

	now := r.nowFn()
	_, err = MutateAccount(ctx, r.store, account.ID, 0, func(row *Account) error {
		if err := row.Status.TransitionTo(AccountStatusActive); err != nil {
			return err
		}
		row.AccessToken = result.AccessToken
		if strings.TrimSpace(result.RefreshToken) != "" {
			row.RefreshToken = result.RefreshToken
		}
		row.ExpiresAt = now.Add(time.Duration(seconds) * time.Second)
		row.Status = AccountStatusActive
		row.LastError = ""
		row.LastCheckedAt = now
		return nil
	})
	if err != nil {
		r.handleFailure(ctx, account, attempts, startedAt, err)
		return nil
	}

	r.stats.RecordSuccess(account.ID, r.nowFn().Sub(startedAt))
	r.retries.Remove(account.ID)
	r.logInfo(ctx, "account refreshed", map[string]any{
		"account_id":  account.ID,
		"expires_in":  seconds,
		"duration_ms": r.nowFn().Sub(startedAt).Milliseconds(),
	})
	return nil
}

// handleFailure classifies once and branches every decision off the
// classification.
func (r *tokenRefresher) handleFailure(ctx context.Context, account *Account, attempts int, startedAt time.Time, cause error) {
	kind := Classify(cause)
	duration := r.nowFn().Sub(startedAt)
	r.stats.RecordFailure(account.ID, duration)

	fields := map[string]any{
		"account_id": account.ID,
		"kind":       string(kind),
		"error":      cause.Error(),
		"attempts":   attempts,
	}

	if kind == FailureDatabaseDeadlock {
		size := r.batch.RecordDeadlock(r.nowFn())
		fields["batch_size"] = size
	}

	switch kind {
	case FailureBanned:
		r.retries.Remove(account.ID)
		if r.pool != nil {
			if err := r.pool.Ban(ctx, account.ID, cause.Error()); err != nil {
				fields["ban_error"] = err.Error()
			}
		} else {
			r.markAccountBanned(ctx, account.ID, cause.Error())
		}
		r.logError(ctx, "account banned by provider", fields)
		return
	case FailureQuotaExhausted:
		r.retries.Remove(account.ID)
		if r.pool != nil {
			_ = r.pool.MarkQuotaExhausted(account.ID, cause.Error())
		}
		r.logError(ctx, "account quota exhausted", fields)
		return
	case FailureCredentialInvalid, FailureUnknown:
		r.retries.Remove(account.ID)
		r.markAccountError(ctx, account.ID, cause.Error())
		r.logError(ctx, "refresh failed terminally", fields)
		return
	}

	if attempts+1 >= r.cfg.MaxRetryAttempts {
		r.stats.RecordDrop()
		r.markAccountError(ctx, account.ID, cause.Error())
		r.logError(ctx, "refresh retries exhausted", fields)
		return
	}

	r.stats.RecordRetry()
	r.retries.Push(RetryEntry{
		AccountID:     account.ID,
		Attempts:      attempts + 1,
		NextRetryTime: r.nowFn().Add(kind.RetryDelay()),
		Kind:          kind,
		LastError:     cause.Error(),
	})
	r.logError(ctx, "refresh failed, retry queued", fields)
}

func (r *tokenRefresher) markAccountError(ctx context.Context, id string, reason string) {
	now := r.nowFn()
	_, err := MutateAccount(ctx, r.store, id, 0, func(row *Account) error {
		if err := row.Status.TransitionTo(AccountStatusError); err != nil {
			return err
		}
		row.Status = AccountStatusError
		row.LastError = strings.TrimSpace(reason)
		row.LastCheckedAt = now
		return nil
	})
	if err != nil {
		r.logError(ctx, "account error status write failed", map[string]any{
			"account_id": id,
			"error":      err.Error(),
		})
	}
	if r.pool != nil {
		_ = r.pool.MarkError(id, reason)
	}
}

func (r *tokenRefresher) markAccountBanned(ctx context.Context, id string, reason string) {
	now := r.nowFn()
	_, err := MutateAccount(ctx, r.store, id, 0, func(row *Account) error {
		if err := row.Status.TransitionTo(AccountStatusBanned); err != nil {
			return err
		}
		row.Status = AccountStatusBanned
		row.LastError = strings.TrimSpace(reason)
		row.LastCheckedAt = now
		return nil
	})
	if err != nil {
		r.logError(ctx, "account ban status write failed", map[string]any{
			"account_id": id,
			"error":      err.Error(),
		})
	}
}

func (r *tokenRefresher) Stats() RefresherStats {
	if r == nil {
		return RefresherStats{}
	}
	snap := r.stats.Snapshot()
	snap.RetryQueueSize = r.retries.Len()
	snap.BatchSize = r.batch.Size()
	return snap
}

func (r *tokenRefresher) emitAlerts(ctx context.Context) {
	if r.alerts == nil {
		return
	}
	for _, alert := range evaluateAlerts(r.Stats(), r.alertsCfg) {
		if err := r.alerts.Notify(ctx, alert); err != nil {
			r.logError(ctx, "alert delivery failed", map[string]any{
				"alert_type": alert.Type,
				"error":      err.Error(),
			})
		}
	}
}

func (r *tokenRefresher) logInfo(ctx context.Context, message string, fields map[string]any) {
	r.logWithLevel(ctx, "info", message, fields)
}

func (r *tokenRefresher) logError(ctx context.Context, message string, fields map[string]any) {
	r.logWithLevel(ctx, "error", message, fields)
}

func (r *tokenRefresher) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
