package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"notesync-engine/internal/domain"
	"notesync-engine/pkg/checksum"
)

// Run drives the periodic loops until ctx is cancelled: processing scans,
// statistics refresh, cleanup, and network-change triggered rescans.
func (m *Manager) Run(ctx context.Context) {
	processTicker := time.NewTicker(m.cfg.ProcessInterval)
	statsTicker := time.NewTicker(m.cfg.StatsInterval)
	cleanupTicker := time.NewTicker(m.cfg.CleanupInterval)
	defer processTicker.Stop()
	defer statsTicker.Stop()
	defer cleanupTicker.Stop()

	var netChanges <-chan domain.NetworkState
	if m.monitor != nil {
		netChanges = m.monitor.Subscribe()
	}

	m.refreshStats(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-processTicker.C:
			m.processScan(ctx)
		case <-m.kick:
			m.processScan(ctx)
		case <-netChanges:
			// Connectivity changed; re-evaluate what is executable now.
			m.processScan(ctx)
		case <-statsTicker.C:
			m.refreshStats(ctx)
		case <-cleanupTicker.C:
			m.cleanup(ctx)
		}
	}
}

// processScan runs one pass over executable and retry-eligible operations.
// The isProcessing guard keeps scans from overlapping.
func (m *Manager) processScan(ctx context.Context) {
	m.processingMu.Lock()
	if m.isProcessing {
		m.processingMu.Unlock()
		return
	}
	m.isProcessing = true
	m.processingMu.Unlock()

	defer func() {
		m.processingMu.Lock()
		m.isProcessing = false
		m.processingMu.Unlock()
	}()

	label := domain.NetworkRequirement("NONE")
	limit := m.cfg.BatchSize
	if m.monitor != nil {
		label = m.monitor.Current().Label()
		if optimal := m.monitor.GetOptimalBatchSize(); optimal < limit {
			limit = optimal
		}
	}

	if limit > 0 {
		ops, err := m.ops.FetchExecutable(ctx, label, time.Now(), limit)
		if err != nil {
			log.Printf("engine: failed to fetch executable operations: %v", err)
		} else {
			m.runChunked(ctx, ops)
		}
	}

	m.retryFailed(ctx)
}

// runChunked executes operations in chunks: within a chunk concurrently,
// chunks sequentially. A panic or error in one operation never escapes its
// chunk slot.
func (m *Manager) runChunked(ctx context.Context, ops []*domain.Operation) {
	for start := 0; start < len(ops); start += m.cfg.ChunkSize {
		end := start + m.cfg.ChunkSize
		if end > len(ops) {
			end = len(ops)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, op := range ops[start:end] {
			op := op
			g.Go(func() error {
				m.processOne(gctx, op)
				return nil
			})
		}
		g.Wait()
	}
}

// processOne takes a single operation through dependency gating, execution,
// and outcome recording. All failures are converted to recorded status
// changes; nothing propagates.
func (m *Manager) processOne(ctx context.Context, op *domain.Operation) {
	m.inFlightMu.Lock()
	if m.inFlight[op.ID] {
		m.inFlightMu.Unlock()
		return
	}
	m.inFlight[op.ID] = true
	m.inFlightMu.Unlock()

	defer func() {
		m.inFlightMu.Lock()
		delete(m.inFlight, op.ID)
		m.inFlightMu.Unlock()
	}()

	ready, err := m.dependenciesSatisfied(ctx, op)
	if err != nil {
		if errors.Is(err, errDependencyFailed) {
			m.recordFailure(ctx, op, op.MaxRetries, err)
			return
		}
		log.Printf("engine: dependency check failed for %s: %v", op.ID, err)
		return
	}
	if !ready {
		// Not an error: a scheduling deferral. Status stays PENDING.
		if err := m.ops.Reschedule(ctx, op.ID, time.Now().Add(m.cfg.DependencyRetryDelay)); err != nil {
			log.Printf("engine: failed to defer %s: %v", op.ID, err)
		}
		return
	}

	if err := m.ops.UpdateStatus(ctx, op.ID, op.Status, domain.StatusProcessing); err != nil {
		// Someone else transitioned it; leave it alone.
		return
	}
	m.setStatus(op.ID, domain.StatusProcessing)
	m.publish(Event{Type: EventOperation, OperationID: op.ID, Status: domain.StatusProcessing})

	payload, err := domain.DecodePayload(op.Payload)
	if err != nil {
		// Malformed stored data can't be fixed by retrying.
		m.recordFailure(ctx, op, op.MaxRetries, fmt.Errorf("%w: %v", ErrInvalidOperationData, err))
		return
	}

	result, err := m.exec.execute(ctx, op, payload)
	if err != nil {
		retries := op.RetryCount + 1
		if errors.Is(err, ErrConflictRequiresUser) {
			// Terminal: the conflict record is the actionable artifact.
			retries = op.MaxRetries
		}
		m.recordFailure(ctx, op, retries, err)
		return
	}

	m.recordSuccess(ctx, op, result)
}

// dependenciesSatisfied returns (false, nil) when any dependency is not yet
// SUCCESS. Under the "fail" policy a terminally failed or cancelled
// dependency surfaces errDependencyFailed instead.
func (m *Manager) dependenciesSatisfied(ctx context.Context, op *domain.Operation) (bool, error) {
	if len(op.DependsOn) == 0 {
		return true, nil
	}

	statuses, err := m.ops.StatusByIDs(ctx, op.DependsOn)
	if err != nil {
		return false, err
	}

	for _, dep := range op.DependsOn {
		status, ok := statuses[dep]
		if ok && status == domain.StatusSuccess {
			continue
		}
		if m.cfg.DependencyFailurePolicy == "fail" &&
			(status == domain.StatusCancelled || (ok && status == domain.StatusFailed)) {
			return false, fmt.Errorf("%w: %s is %s", errDependencyFailed, dep, status)
		}
		return false, nil
	}

	return true, nil
}

func (m *Manager) recordSuccess(ctx context.Context, op *domain.Operation, result *execResult) {
	now := time.Now()
	if err := m.ops.RecordOutcome(ctx, op.ID, domain.StatusSuccess, op.RetryCount, "", op.ScheduledAt, now); err != nil {
		log.Printf("engine: failed to record success for %s: %v", op.ID, err)
	}
	m.setStatus(op.ID, domain.StatusSuccess)
	m.publish(Event{Type: EventOperation, OperationID: op.ID, Status: domain.StatusSuccess})

	if result.entityID == "" {
		return
	}

	sum := result.checksum
	if sum == "" {
		sum = checksum.Compute(string(result.entityType), result.entityID)
	}
	state := &domain.SyncState{
		EntityType:    result.entityType,
		EntityID:      result.entityID,
		LocalVersion:  result.version,
		RemoteVersion: result.version,
		LastSyncedAt:  &now,
		Status:        domain.SyncStatusSynced,
		Checksum:      sum,
	}
	if err := m.syncStates.Upsert(ctx, state); err != nil {
		log.Printf("engine: failed to update sync state for %s/%s: %v", result.entityType, result.entityID, err)
	}
}

func (m *Manager) recordFailure(ctx context.Context, op *domain.Operation, retryCount int, execErr error) {
	now := time.Now()

	if retryCount < op.MaxRetries {
		// Backoff, then back to PENDING at the delayed schedule.
		delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffMax, op.RetryCount)
		next := now.Add(delay)

		if err := m.ops.RecordOutcome(ctx, op.ID, domain.StatusRetrying, retryCount, execErr.Error(), next, now); err != nil {
			log.Printf("engine: failed to record retry for %s: %v", op.ID, err)
			return
		}
		m.setStatus(op.ID, domain.StatusRetrying)
		m.publish(Event{Type: EventOperation, OperationID: op.ID, Status: domain.StatusRetrying, Error: execErr.Error()})

		if err := m.ops.Reschedule(ctx, op.ID, next); err != nil {
			log.Printf("engine: failed to reschedule %s: %v", op.ID, err)
		}
		return
	}

	if err := m.ops.RecordOutcome(ctx, op.ID, domain.StatusFailed, retryCount, execErr.Error(), op.ScheduledAt, now); err != nil {
		log.Printf("engine: failed to record failure for %s: %v", op.ID, err)
	}
	m.setStatus(op.ID, domain.StatusFailed)
	m.publish(Event{Type: EventOperation, OperationID: op.ID, Status: domain.StatusFailed, Error: execErr.Error()})
	if errors.Is(execErr, ErrConflictRequiresUser) {
		m.publish(Event{Type: EventConflict, OperationID: op.ID, Error: execErr.Error()})
	}

	if op.EntityType != "" && op.EntityID != "" {
		status := domain.SyncStatusError
		if errors.Is(execErr, ErrConflictRequiresUser) {
			status = domain.SyncStatusConflict
		}
		state := &domain.SyncState{
			EntityType:   op.EntityType,
			EntityID:     op.EntityID,
			Status:       status,
			AttemptCount: retryCount,
			LastError:    execErr.Error(),
		}
		if existing, err := m.syncStates.Get(ctx, op.EntityType, op.EntityID); err == nil {
			state.LocalVersion = existing.LocalVersion
			state.RemoteVersion = existing.RemoteVersion
			state.LastSyncedAt = existing.LastSyncedAt
			state.Checksum = existing.Checksum
		}
		if err := m.syncStates.Upsert(ctx, state); err != nil {
			log.Printf("engine: failed to update sync state for %s/%s: %v", op.EntityType, op.EntityID, err)
		}
	}
}

// retryFailed recovers operations owed another attempt: FAILED rows below
// the retry cap, and rows stranded in RETRYING past their delayed schedule
// (a crash between outcome write and reschedule leaves them there). Both go
// back through the normal path.
func (m *Manager) retryFailed(ctx context.Context) {
	ops, err := m.ops.FetchRetryEligible(ctx, time.Now().Add(-m.cfg.RetryScanAge), m.cfg.RetryBatchSize)
	if err != nil {
		log.Printf("engine: failed to fetch retry-eligible operations: %v", err)
		return
	}

	for _, op := range ops {
		if err := m.ops.Reschedule(ctx, op.ID, time.Now()); err != nil {
			log.Printf("engine: failed to requeue %s: %v", op.ID, err)
			continue
		}
		op.Status = domain.StatusPending
		m.setStatus(op.ID, domain.StatusPending)
	}

	m.runChunked(ctx, ops)
}

func (m *Manager) refreshStats(ctx context.Context) {
	counts, err := m.ops.CountsByStatus(ctx)
	if err != nil {
		log.Printf("engine: failed to refresh statistics: %v", err)
		return
	}
	conflicts, err := m.conflicts.CountUnresolved(ctx)
	if err != nil {
		log.Printf("engine: failed to count conflicts: %v", err)
		return
	}

	stats := domain.QueueStats{
		Pending:             counts[domain.StatusPending],
		Processing:          counts[domain.StatusProcessing],
		Failed:              counts[domain.StatusFailed],
		Retrying:            counts[domain.StatusRetrying],
		Succeeded:           counts[domain.StatusSuccess],
		UnresolvedConflicts: conflicts,
		RefreshedAt:         time.Now(),
	}

	m.statsMu.Lock()
	m.stats = stats
	m.statsMu.Unlock()

	m.publish(Event{Type: EventStats, Stats: &stats})
}

func (m *Manager) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.CleanupAge)
	if n, err := m.ops.DeleteTerminalBefore(ctx, cutoff); err != nil {
		log.Printf("engine: operation cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("engine: cleaned up %d aged-out operations", n)
	}

	retention := time.Now().Add(-m.cfg.ConflictRetention)
	if n, err := m.conflicts.DeleteResolvedBefore(ctx, retention); err != nil {
		log.Printf("engine: conflict cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("engine: purged %d resolved conflicts", n)
	}
}
