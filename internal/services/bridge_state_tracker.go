package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"

	"github.com/google/uuid"
)

// TransactionEvent is the payload broadcast to observers on every transition.
type TransactionEvent struct {
	Type        string                   `json:"type"`
	Transaction models.BridgeTransaction `json:"transaction"`
	Timestamp   time.Time                `json:"timestamp"`
}

// trackedTransaction is one live entry of the transaction table. All mutation
// happens while holding mu, so transitions for a single transaction are
// strictly ordered; different transactions never contend.
type trackedTransaction struct {
	mu sync.Mutex
	tx models.BridgeTransaction
}

// BridgeStateTracker owns the deposit/withdrawal state machine. It is the
// single source of truth for what happened to a transaction: every transition
// is timestamped, appended to the history table, and pushed to observers.
// Callers only ever receive snapshots, never a live handle.
type BridgeStateTracker struct {
	repo        repository.BridgeTransactionRepository
	broadcaster *NotificationBroadcaster
	threshold   int // confirmation count that completes a deposit

	// eventSink, when set, receives every published snapshot in addition to
	// the broadcaster (the message-server forwarder hooks in here).
	eventSink func(models.BridgeTransaction)

	mu         sync.RWMutex
	table      map[string]*trackedTransaction
	byChainRef map[string]string
}

// SetEventSink registers an additional consumer of published snapshots.
func (t *BridgeStateTracker) SetEventSink(sink func(models.BridgeTransaction)) {
	t.eventSink = sink
}

// NewBridgeStateTracker creates a tracker with the configured confirmation
// threshold.
func NewBridgeStateTracker(
	repo repository.BridgeTransactionRepository,
	broadcaster *NotificationBroadcaster,
	confirmationThreshold int,
) *BridgeStateTracker {
	return &BridgeStateTracker{
		repo:        repo,
		broadcaster: broadcaster,
		threshold:   confirmationThreshold,
		table:       make(map[string]*trackedTransaction),
		byChainRef:  make(map[string]string),
	}
}

// Track admits a validated intent into the table in state Created and
// returns a snapshot. The intent must already have passed codec validation
// bounds checks at the API boundary; local validation errors never become
// tracked transactions.
func (t *BridgeStateTracker) Track(intent models.BridgeIntent, userID string) models.BridgeTransaction {
	now := time.Now()
	entry := &trackedTransaction{
		tx: models.BridgeTransaction{
			ID:                 uuid.New().String(),
			UserID:             userID,
			Direction:          intent.Direction,
			Amount:             intent.Amount,
			SourceAddress:      intent.SourceAddress,
			DestinationAddress: intent.DestinationAddress,
			State:              models.StateCreated,
			CreatedAt:          now,
			LastTransitionAt:   now,
		},
	}

	t.mu.Lock()
	t.table[entry.tx.ID] = entry
	t.mu.Unlock()

	if err := t.repo.Create(context.Background(), &entry.tx); err != nil {
		log.Printf("⚠️ [StateTracker] failed to persist new transaction %s: %v", entry.tx.ID, err)
	}

	metrics.BridgeTransactionsInFlight.Inc()
	metrics.BridgeTransitionsTotal.WithLabelValues(string(models.StateCreated)).Inc()
	t.publish(entry.tx)

	return entry.tx
}

// MarkEncoding moves Created -> Encoding.
func (t *BridgeStateTracker) MarkEncoding(id string) error {
	return t.transition(id, models.StateEncoding, "", nil)
}

// MarkSubmitting moves Encoding -> Submitting.
func (t *BridgeStateTracker) MarkSubmitting(id string) error {
	return t.transition(id, models.StateSubmitting, "", nil)
}

// MarkPending moves Submitting -> Pending and indexes the chain reference
// for confirmation routing.
func (t *BridgeStateTracker) MarkPending(id, chainRef string) error {
	err := t.transition(id, models.StatePending, fmt.Sprintf("chain ref %s", chainRef), func(tx *models.BridgeTransaction) {
		tx.ChainRef = chainRef
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.byChainRef[chainRef] = id
	t.mu.Unlock()
	return nil
}

// RecordAttempts stores the executor's attempt counter on the transaction.
func (t *BridgeStateTracker) RecordAttempts(id string, attempts int) {
	entry := t.lookup(id)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	entry.tx.Attempts = attempts
	entry.mu.Unlock()
}

// RecordConfirmation applies one confirmation feed event. Events are
// delivered at least once and may repeat; counts that do not advance the
// stored confirmation count are ignored, keeping the observer view
// monotonic. Reaching the threshold walks Confirming -> Completed.
func (t *BridgeStateTracker) RecordConfirmation(chainRef string, count int) error {
	t.mu.RLock()
	id, ok := t.byChainRef[chainRef]
	t.mu.RUnlock()
	if !ok {
		var err error
		id, err = t.adoptByChainRef(chainRef)
		if err != nil {
			metrics.ConfirmationEventsDropped.WithLabelValues("unknown_chain_ref").Inc()
			return err
		}
	}

	entry := t.lookup(id)
	if entry == nil {
		return fmt.Errorf("transaction %s not tracked", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.tx.State.IsTerminal() {
		// Late or duplicate delivery after completion; nothing to do.
		return nil
	}
	if count <= entry.tx.Confirmations {
		metrics.ConfirmationEventsDropped.WithLabelValues("stale_count").Inc()
		return nil
	}

	// First confirmation enters Confirming; later ones re-enter it with a
	// higher count. No state is skipped on the way to Completed.
	if err := t.applyLocked(entry, models.StateConfirming, fmt.Sprintf("%d confirmations", count), func(tx *models.BridgeTransaction) {
		tx.Confirmations = count
	}); err != nil {
		return err
	}

	if count >= t.threshold {
		return t.applyLocked(entry, models.StateCompleted, fmt.Sprintf("threshold %d reached", t.threshold), nil)
	}
	return nil
}

// adoptByChainRef loads a persisted transaction into the live table by its
// chain reference. Covers confirmation events arriving for transactions that
// were submitted before a restart and missed by startup recovery.
func (t *BridgeStateTracker) adoptByChainRef(chainRef string) (string, error) {
	tx, err := t.repo.GetByChainRef(context.Background(), chainRef)
	if err != nil {
		return "", fmt.Errorf("no tracked transaction for chain ref %s", chainRef)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// A concurrent adoption or MarkPending may have won the race.
	if id, ok := t.byChainRef[chainRef]; ok {
		return id, nil
	}
	if _, exists := t.table[tx.ID]; !exists {
		t.table[tx.ID] = &trackedTransaction{tx: *tx}
		if !tx.State.IsTerminal() {
			metrics.BridgeTransactionsInFlight.Inc()
		}
	}
	t.byChainRef[chainRef] = tx.ID

	log.Printf("🔄 [StateTracker] adopted persisted transaction %s for chain ref %s", tx.ID, chainRef)
	return tx.ID, nil
}

// Fail moves the transaction to Failed with a structured reason. Failing an
// already-terminal transaction is a no-op.
func (t *BridgeStateTracker) Fail(id string, reason models.FailureReason, detail string) error {
	err := t.transition(id, models.StateFailed, detail, func(tx *models.BridgeTransaction) {
		tx.TerminalError = reason
		tx.ErrorDetail = detail
	})
	if err == nil {
		metrics.BridgeTransactionsFailed.WithLabelValues(string(reason)).Inc()
	}
	return err
}

// Cancel honors a caller cancellation request. Only transactions that have
// not begun submitting can be cancelled: once the side effect may be
// irreversible, the transaction must run to a terminal state.
func (t *BridgeStateTracker) Cancel(id string) error {
	entry := t.lookup(id)
	if entry == nil {
		return fmt.Errorf("transaction %s not tracked", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch entry.tx.State {
	case models.StateCreated, models.StateEncoding:
		return t.applyLocked(entry, models.StateCancelled, "cancelled by caller", nil)
	case models.StateCancelled:
		return nil
	default:
		return fmt.Errorf("transaction %s is %s and can no longer be cancelled", id, entry.tx.State)
	}
}

// Snapshot returns a value copy of the transaction.
func (t *BridgeStateTracker) Snapshot(id string) (models.BridgeTransaction, bool) {
	entry := t.lookup(id)
	if entry == nil {
		return models.BridgeTransaction{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.tx, true
}

// SweepConfirmationDeadline fails every transaction that has been waiting in
// Pending/Confirming longer than the deadline without progress.
func (t *BridgeStateTracker) SweepConfirmationDeadline(deadline time.Duration) int {
	t.mu.RLock()
	ids := make([]string, 0, len(t.table))
	for id := range t.table {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	cutoff := time.Now().Add(-deadline)
	failed := 0
	for _, id := range ids {
		entry := t.lookup(id)
		if entry == nil {
			continue
		}
		entry.mu.Lock()
		stale := (entry.tx.State == models.StatePending || entry.tx.State == models.StateConfirming) &&
			entry.tx.LastTransitionAt.Before(cutoff)
		entry.mu.Unlock()

		if stale {
			if err := t.Fail(id, models.FailureConfirmationTimeout,
				fmt.Sprintf("no confirmation progress within %v", deadline)); err == nil {
				failed++
			}
		}
	}
	return failed
}

// RecoverOpen reloads non-terminal transactions from the database into the
// table after a restart, so confirmation events keep routing.
func (t *BridgeStateTracker) RecoverOpen(ctx context.Context) error {
	open, err := t.repo.FindByStates(ctx, []models.BridgeState{
		models.StateCreated, models.StateEncoding, models.StateSubmitting,
		models.StatePending, models.StateConfirming,
	})
	if err != nil {
		return fmt.Errorf("failed to load open transactions: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tx := range open {
		if _, exists := t.table[tx.ID]; exists {
			continue
		}
		t.table[tx.ID] = &trackedTransaction{tx: *tx}
		if tx.ChainRef != "" {
			t.byChainRef[tx.ChainRef] = tx.ID
		}
		metrics.BridgeTransactionsInFlight.Inc()
	}

	if len(open) > 0 {
		log.Printf("🔄 [StateTracker] recovered %d open transaction(s)", len(open))
	}
	return nil
}

// transition applies one state change under the entry lock.
func (t *BridgeStateTracker) transition(id string, to models.BridgeState, detail string, mutate func(*models.BridgeTransaction)) error {
	entry := t.lookup(id)
	if entry == nil {
		return fmt.Errorf("transaction %s not tracked", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Re-entering a terminal state is a no-op, not an error.
	if entry.tx.State.IsTerminal() && entry.tx.State == to {
		return nil
	}

	return t.applyLocked(entry, to, detail, mutate)
}

// applyLocked performs the transition; the caller holds entry.mu.
func (t *BridgeStateTracker) applyLocked(entry *trackedTransaction, to models.BridgeState, detail string, mutate func(*models.BridgeTransaction)) error {
	from := entry.tx.State
	if from.IsTerminal() && from == to {
		return nil
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("illegal transition %s -> %s for transaction %s", from, to, entry.tx.ID)
	}

	if mutate != nil {
		mutate(&entry.tx)
	}
	entry.tx.State = to
	entry.tx.LastTransitionAt = time.Now()

	record := &models.StateTransition{
		TransactionID: entry.tx.ID,
		FromState:     from,
		ToState:       to,
		Detail:        detail,
		CreatedAt:     entry.tx.LastTransitionAt,
	}
	if err := t.repo.AppendTransition(context.Background(), record); err != nil {
		log.Printf("⚠️ [StateTracker] failed to append transition %s -> %s for %s: %v", from, to, entry.tx.ID, err)
	}
	if err := t.repo.Save(context.Background(), &entry.tx); err != nil {
		log.Printf("⚠️ [StateTracker] failed to persist transaction %s: %v", entry.tx.ID, err)
	}

	metrics.BridgeTransitionsTotal.WithLabelValues(string(to)).Inc()
	if to.IsTerminal() {
		metrics.BridgeTransactionsInFlight.Dec()
	}

	t.publish(entry.tx)
	return nil
}

// publish pushes the snapshot to the transaction channel and the owner's
// user channel.
func (t *BridgeStateTracker) publish(snapshot models.BridgeTransaction) {
	event := TransactionEvent{
		Type:        "state_change",
		Transaction: snapshot,
		Timestamp:   time.Now(),
	}
	t.broadcaster.Publish("transactions."+snapshot.ID, event)
	if snapshot.UserID != "" {
		t.broadcaster.Publish("user."+snapshot.UserID, event)
	}
	if t.eventSink != nil {
		t.eventSink(snapshot)
	}
}

func (t *BridgeStateTracker) lookup(id string) *trackedTransaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table[id]
}
