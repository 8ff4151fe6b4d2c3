package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"bridge-backend/internal/codec"
	"bridge-backend/internal/models"
)

// BridgeOrchestrator is the front door for deposit and withdrawal intents.
// It validates an intent through the codecs BEFORE anything is tracked, so
// local validation errors never create a transaction, then drives the
// accepted transaction through the encode/submit pipeline asynchronously.
type BridgeOrchestrator struct {
	addressCodec   *codec.AddressCodec
	amountCodec    *codec.AmountCodec
	tracker        *BridgeStateTracker
	executor       *TransactionExecutor
	sourceDecimals int
}

// NewBridgeOrchestrator wires the orchestration pipeline.
func NewBridgeOrchestrator(
	addressCodec *codec.AddressCodec,
	amountCodec *codec.AmountCodec,
	tracker *BridgeStateTracker,
	executor *TransactionExecutor,
	sourceDecimals int,
) *BridgeOrchestrator {
	orchestrator := &BridgeOrchestrator{
		addressCodec:   addressCodec,
		amountCodec:    amountCodec,
		tracker:        tracker,
		executor:       executor,
		sourceDecimals: sourceDecimals,
	}
	executor.SetAttemptObserver(tracker.RecordAttempts)
	return orchestrator
}

// Submit validates the intent and, if it passes, admits it into the state
// machine and starts the pipeline. The returned snapshot is in state Created.
// A validation error means nothing was tracked: the caller corrects the
// input and resubmits.
func (o *BridgeOrchestrator) Submit(intent models.BridgeIntent, userID string) (models.BridgeTransaction, error) {
	op, err := operationFor(intent.Direction)
	if err != nil {
		return models.BridgeTransaction{}, err
	}

	payload, err := o.encode(intent, op)
	if err != nil {
		return models.BridgeTransaction{}, err
	}

	tx := o.tracker.Track(intent, userID)
	go o.run(tx.ID, payload, op)
	return tx, nil
}

// Cancel forwards a caller cancellation to the state machine.
func (o *BridgeOrchestrator) Cancel(id string) error {
	return o.tracker.Cancel(id)
}

// encode runs both codecs over the intent. Pure; called once during
// validation so a malformed intent is rejected synchronously.
func (o *BridgeOrchestrator) encode(intent models.BridgeIntent, op models.OperationKind) (EncodedPayload, error) {
	amount, err := o.amountCodec.ToWideInteger(intent.Amount, o.sourceDecimals)
	if err != nil {
		return EncodedPayload{}, err
	}

	source, err := o.addressCodec.EncodeSourceAddress(intent.SourceAddress)
	if err != nil {
		return EncodedPayload{}, err
	}

	payload := EncodedPayload{
		Amount:             amount,
		SourceAddressField: source,
	}

	// Withdrawals pay out to the already-encoded source address; only
	// deposits carry a contract-ledger destination.
	if op == models.OperationDeposit {
		destination, err := o.addressCodec.EncodeDestinationAddress(intent.DestinationAddress)
		if err != nil {
			return EncodedPayload{}, err
		}
		payload.DestinationAddressField = destination
	}

	return payload, nil
}

// run walks an accepted transaction through Encoding -> Submitting and hands
// it to the executor. Runs in its own goroutine per transaction.
func (o *BridgeOrchestrator) run(txID string, payload EncodedPayload, op models.OperationKind) {
	if err := o.tracker.MarkEncoding(txID); err != nil {
		// The only way out of Created besides Encoding is a cancellation
		// racing us; either way the transaction is no longer ours to drive.
		log.Printf("ℹ️ [Orchestrator] transaction %s left the pipeline before encoding: %v", txID, err)
		return
	}
	if err := o.tracker.MarkSubmitting(txID); err != nil {
		log.Printf("ℹ️ [Orchestrator] transaction %s left the pipeline before submission: %v", txID, err)
		return
	}

	chainRef, attempts, err := o.executor.Execute(context.Background(), txID, payload, op)
	o.tracker.RecordAttempts(txID, attempts)

	if err != nil {
		reason, detail := failureFor(err)
		if failErr := o.tracker.Fail(txID, reason, detail); failErr != nil {
			log.Printf("⚠️ [Orchestrator] failed to mark transaction %s failed: %v", txID, failErr)
		}
		return
	}

	if err := o.tracker.MarkPending(txID, chainRef); err != nil {
		log.Printf("⚠️ [Orchestrator] failed to mark transaction %s pending: %v", txID, err)
	}
}

// failureFor maps an execution error onto the structured failure taxonomy.
func failureFor(err error) (models.FailureReason, string) {
	if ee, ok := AsExecutionError(err); ok {
		switch ee.Kind {
		case KindUserRejected:
			return models.FailureUserRejected, ee.Error()
		case KindRetryableTransient:
			return models.FailureRetryableExhausted, ee.Error()
		default:
			return models.FailureFatal, ee.Error()
		}
	}
	return models.FailureFatal, err.Error()
}

// operationFor maps the bridge direction to the contract entry point.
func operationFor(direction models.BridgeDirection) (models.OperationKind, error) {
	switch direction {
	case models.DirectionSourceToTarget:
		return models.OperationDeposit, nil
	case models.DirectionTargetToSource:
		return models.OperationWithdrawal, nil
	default:
		return "", fmt.Errorf("unknown bridge direction %q", direction)
	}
}

// IsValidationError reports whether the error is a local validation failure
// (malformed input, out-of-range amount) rather than a pipeline failure.
func IsValidationError(err error) bool {
	return errors.Is(err, codec.ErrInvalidAddressFormat) ||
		errors.Is(err, codec.ErrUnsupportedAddressVariant) ||
		errors.Is(err, codec.ErrInvalidAmount) ||
		errors.Is(err, codec.ErrAmountOutOfRange)
}
