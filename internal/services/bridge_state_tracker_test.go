package services

import (
	"context"
	"testing"
	"time"

	"bridge-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(threshold int) (*BridgeStateTracker, *memoryRepo) {
	repo := newMemoryRepo()
	broadcaster := NewNotificationBroadcaster()
	return NewBridgeStateTracker(repo, broadcaster, threshold), repo
}

func depositIntent() models.BridgeIntent {
	return models.BridgeIntent{
		Direction:          models.DirectionSourceToTarget,
		Amount:             "0.5",
		SourceAddress:      "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		DestinationAddress: "049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7",
	}
}

func TestTrackCreatesTransaction(t *testing.T) {
	tracker, repo := newTestTracker(6)

	tx := tracker.Track(depositIntent(), "user-1")

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.StateCreated, tx.State)
	assert.Equal(t, "user-1", tx.UserID)
	assert.Equal(t, 0, tx.Attempts)

	persisted, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCreated, persisted.State)
}

func TestForwardWalkToCompleted(t *testing.T) {
	tracker, repo := newTestTracker(2)
	tx := tracker.Track(depositIntent(), "user-1")

	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))
	require.NoError(t, tracker.MarkPending(tx.ID, "0xchain1"))

	require.NoError(t, tracker.RecordConfirmation("0xchain1", 1))
	snap, ok := tracker.Snapshot(tx.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateConfirming, snap.State)
	assert.Equal(t, 1, snap.Confirmations)

	require.NoError(t, tracker.RecordConfirmation("0xchain1", 2))
	snap, _ = tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCompleted, snap.State)
	assert.Equal(t, 2, snap.Confirmations)

	history, err := repo.TransitionHistory(context.Background(), tx.ID)
	require.NoError(t, err)
	// Encoding, Submitting, Pending, Confirming, Confirming, Completed.
	require.Len(t, history, 6)
	assert.Equal(t, models.StateCreated, history[0].FromState)
	assert.Equal(t, models.StateCompleted, history[len(history)-1].ToState)
}

func TestSkippingStatesIsRejected(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")

	err := tracker.MarkSubmitting(tx.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")

	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCreated, snap.State)
}

func TestTerminalStateIsFrozen(t *testing.T) {
	tracker, _ := newTestTracker(1)
	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))
	require.NoError(t, tracker.MarkPending(tx.ID, "0xchain2"))
	require.NoError(t, tracker.RecordConfirmation("0xchain2", 1))

	snap, _ := tracker.Snapshot(tx.ID)
	require.Equal(t, models.StateCompleted, snap.State)

	// Failing a completed transaction must not move it.
	err := tracker.Fail(tx.ID, models.FailureFatal, "late failure")
	require.Error(t, err)
	snap, _ = tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCompleted, snap.State)
	assert.Empty(t, snap.TerminalError)
}

func TestRecordConfirmationIgnoresStaleCounts(t *testing.T) {
	tracker, repo := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))
	require.NoError(t, tracker.MarkPending(tx.ID, "0xchain3"))

	require.NoError(t, tracker.RecordConfirmation("0xchain3", 3))
	before := repo.transitionCount(tx.ID)

	// Redelivered and out-of-order events do not regress the count.
	require.NoError(t, tracker.RecordConfirmation("0xchain3", 3))
	require.NoError(t, tracker.RecordConfirmation("0xchain3", 1))

	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, 3, snap.Confirmations)
	assert.Equal(t, models.StateConfirming, snap.State)
	assert.Equal(t, before, repo.transitionCount(tx.ID), "stale events must not append history")
}

func TestRecordConfirmationUnknownChainRef(t *testing.T) {
	tracker, _ := newTestTracker(6)

	err := tracker.RecordConfirmation("0xnobody", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tracked transaction")
}

func TestRecordConfirmationAfterCompletionIsNoOp(t *testing.T) {
	tracker, _ := newTestTracker(1)
	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))
	require.NoError(t, tracker.MarkPending(tx.ID, "0xchain4"))
	require.NoError(t, tracker.RecordConfirmation("0xchain4", 1))

	require.NoError(t, tracker.RecordConfirmation("0xchain4", 2))
	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCompleted, snap.State)
	assert.Equal(t, 1, snap.Confirmations)
}

func TestFailRecordsReasonAndDetail(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))

	require.NoError(t, tracker.Fail(tx.ID, models.FailureRetryableExhausted, "retries exhausted after 3 attempts"))

	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateFailed, snap.State)
	assert.Equal(t, models.FailureRetryableExhausted, snap.TerminalError)
	assert.Contains(t, snap.ErrorDetail, "3 attempts")
}

func TestCancelOnlyBeforeSubmission(t *testing.T) {
	tracker, _ := newTestTracker(6)

	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.Cancel(tx.ID))
	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCancelled, snap.State)

	// Cancelling again is idempotent.
	require.NoError(t, tracker.Cancel(tx.ID))

	// A transaction that reached Submitting can no longer be cancelled.
	tx2 := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx2.ID))
	require.NoError(t, tracker.MarkSubmitting(tx2.ID))
	err := tracker.Cancel(tx2.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can no longer be cancelled")
}

func TestCancelUnknownTransaction(t *testing.T) {
	tracker, _ := newTestTracker(6)
	require.Error(t, tracker.Cancel("missing-id"))
}

func TestRecordAttempts(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")

	tracker.RecordAttempts(tx.ID, 2)
	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, 2, snap.Attempts)

	// Unknown ids are silently ignored; the executor may report late.
	tracker.RecordAttempts("missing-id", 1)
}

func TestSnapshotIsACopy(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")

	snap, ok := tracker.Snapshot(tx.ID)
	require.True(t, ok)
	snap.State = models.StateCompleted
	snap.Attempts = 99

	fresh, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCreated, fresh.State)
	assert.Equal(t, 0, fresh.Attempts)
}

func TestSweepConfirmationDeadline(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))
	require.NoError(t, tracker.MarkSubmitting(tx.ID))
	require.NoError(t, tracker.MarkPending(tx.ID, "0xchain5"))

	// Fresh transactions survive the sweep.
	assert.Equal(t, 0, tracker.SweepConfirmationDeadline(time.Hour))

	time.Sleep(5 * time.Millisecond)
	failed := tracker.SweepConfirmationDeadline(time.Millisecond)
	assert.Equal(t, 1, failed)

	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateFailed, snap.State)
	assert.Equal(t, models.FailureConfirmationTimeout, snap.TerminalError)
}

func TestSweepIgnoresEarlyStates(t *testing.T) {
	tracker, _ := newTestTracker(6)
	tx := tracker.Track(depositIntent(), "user-1")

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, tracker.SweepConfirmationDeadline(time.Millisecond))

	snap, _ := tracker.Snapshot(tx.ID)
	assert.Equal(t, models.StateCreated, snap.State)
}

func TestRecoverOpenRestoresChainRefRouting(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now()
	require.NoError(t, repo.Create(context.Background(), &models.BridgeTransaction{
		ID:               "recovered-1",
		ChainRef:         "0xrecovered",
		UserID:           "user-1",
		Direction:        models.DirectionSourceToTarget,
		Amount:           "0.5",
		State:            models.StatePending,
		CreatedAt:        now,
		LastTransitionAt: now,
	}))
	require.NoError(t, repo.Create(context.Background(), &models.BridgeTransaction{
		ID:        "done-1",
		State:     models.StateCompleted,
		CreatedAt: now,
	}))

	tracker := NewBridgeStateTracker(repo, NewNotificationBroadcaster(), 1)
	require.NoError(t, tracker.RecoverOpen(context.Background()))

	_, ok := tracker.Snapshot("recovered-1")
	assert.True(t, ok)
	_, ok = tracker.Snapshot("done-1")
	assert.False(t, ok, "terminal transactions stay out of the live table")

	// Confirmation events route to the recovered entry.
	require.NoError(t, tracker.RecordConfirmation("0xrecovered", 1))
	snap, _ := tracker.Snapshot("recovered-1")
	assert.Equal(t, models.StateCompleted, snap.State)
}

func TestRecordConfirmationAdoptsPersistedTransaction(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now()
	require.NoError(t, repo.Create(context.Background(), &models.BridgeTransaction{
		ID:               "persisted-1",
		ChainRef:         "0xpersisted",
		UserID:           "user-1",
		Direction:        models.DirectionSourceToTarget,
		Amount:           "0.5",
		State:            models.StatePending,
		CreatedAt:        now,
		LastTransitionAt: now,
	}))

	// Fresh tracker, no startup recovery: the live table starts empty and the
	// confirmation event routes through the database lookup.
	tracker := NewBridgeStateTracker(repo, NewNotificationBroadcaster(), 2)
	require.NoError(t, tracker.RecordConfirmation("0xpersisted", 1))

	snap, ok := tracker.Snapshot("persisted-1")
	require.True(t, ok)
	assert.Equal(t, models.StateConfirming, snap.State)
	assert.Equal(t, 1, snap.Confirmations)

	require.NoError(t, tracker.RecordConfirmation("0xpersisted", 2))
	snap, _ = tracker.Snapshot("persisted-1")
	assert.Equal(t, models.StateCompleted, snap.State)
}

func TestRecordConfirmationAdoptedTerminalIsNoOp(t *testing.T) {
	repo := newMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), &models.BridgeTransaction{
		ID:            "persisted-done",
		ChainRef:      "0xdone",
		UserID:        "user-1",
		State:         models.StateCompleted,
		Confirmations: 6,
	}))

	tracker := NewBridgeStateTracker(repo, NewNotificationBroadcaster(), 6)

	// Late redelivery for a completed transaction is absorbed silently.
	require.NoError(t, tracker.RecordConfirmation("0xdone", 7))
	snap, ok := tracker.Snapshot("persisted-done")
	require.True(t, ok)
	assert.Equal(t, models.StateCompleted, snap.State)
	assert.Equal(t, 6, snap.Confirmations)
}

func TestTransitionsPublishToObservers(t *testing.T) {
	repo := newMemoryRepo()
	broadcaster := NewNotificationBroadcaster()
	tracker := NewBridgeStateTracker(repo, broadcaster, 6)

	tx := tracker.Track(depositIntent(), "user-1")

	observer := broadcaster.RegisterObserver("client-1", 16)
	require.NoError(t, broadcaster.Subscribe("client-1", "transactions."+tx.ID))

	require.NoError(t, tracker.MarkEncoding(tx.ID))

	select {
	case raw := <-observer.MessageChan:
		event, ok := raw.(TransactionEvent)
		require.True(t, ok)
		assert.Equal(t, "state_change", event.Type)
		assert.Equal(t, models.StateEncoding, event.Transaction.State)
	case <-time.After(time.Second):
		t.Fatal("expected a state change event")
	}
}

func TestEventSinkReceivesSnapshots(t *testing.T) {
	tracker, _ := newTestTracker(6)

	var seen []models.BridgeState
	tracker.SetEventSink(func(tx models.BridgeTransaction) {
		seen = append(seen, tx.State)
	})

	tx := tracker.Track(depositIntent(), "user-1")
	require.NoError(t, tracker.MarkEncoding(tx.ID))

	require.Equal(t, []models.BridgeState{models.StateCreated, models.StateEncoding}, seen)
}
