package models

import (
	"time"
)

// BridgeDirection says which way the value moves.
type BridgeDirection string

const (
	DirectionSourceToTarget BridgeDirection = "source_to_target" // deposit: UTXO chain -> contract ledger
	DirectionTargetToSource BridgeDirection = "target_to_source" // withdrawal: contract ledger -> UTXO chain
)

// OperationKind selects the contract entry point the payload is submitted to.
type OperationKind string

const (
	OperationDeposit    OperationKind = "deposit"
	OperationWithdrawal OperationKind = "withdrawal"
)

// BridgeState is the lifecycle state of a tracked bridge transaction.
type BridgeState string

const (
	StateCreated    BridgeState = "created"    // intent accepted, not yet encoded
	StateEncoding   BridgeState = "encoding"   // codecs running
	StateSubmitting BridgeState = "submitting" // executor running (stays here across retries)
	StatePending    BridgeState = "pending"    // chain reference obtained, awaiting confirmations
	StateConfirming BridgeState = "confirming" // at least one confirmation observed
	StateCompleted  BridgeState = "completed"  // confirmation threshold reached
	StateFailed     BridgeState = "failed"     // terminal, carries a structured reason
	StateCancelled  BridgeState = "cancelled"  // caller cancelled before submission began
)

// stateRank orders the forward walk. Failed/Cancelled are terminal jumps
// reachable from any non-terminal state.
var stateRank = map[BridgeState]int{
	StateCreated:    0,
	StateEncoding:   1,
	StateSubmitting: 2,
	StatePending:    3,
	StateConfirming: 4,
	StateCompleted:  5,
}

// IsTerminal reports whether no further transition is possible.
func (s BridgeState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransitionTo enforces the forward-only, no-skip walk:
// each ranked state advances exactly one step, and Failed/Cancelled are
// reachable from any non-terminal state. Confirming may re-enter itself
// as the confirmation count grows.
func (s BridgeState) CanTransitionTo(next BridgeState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed || next == StateCancelled {
		return true
	}
	if s == StateConfirming && next == StateConfirming {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// FailureReason is the structured reason attached to a Failed transaction.
type FailureReason string

const (
	FailureInvalidAddressFormat      FailureReason = "invalid_address_format"
	FailureUnsupportedAddressVariant FailureReason = "unsupported_address_variant"
	FailureInvalidAmount             FailureReason = "invalid_amount"
	FailureAmountOutOfRange          FailureReason = "amount_out_of_range"
	FailureUserRejected              FailureReason = "user_rejected"
	FailureRetryableExhausted        FailureReason = "retryable_transient_exhausted"
	FailureFatal                     FailureReason = "fatal"
	FailureConfirmationTimeout       FailureReason = "confirmation_timeout"
)

// BridgeIntent is the caller-supplied request. Immutable once constructed;
// validated before any encoding is attempted.
type BridgeIntent struct {
	Direction          BridgeDirection `json:"direction"`
	Amount             string          `json:"amount"` // decimal string, source-chain units
	SourceAddress      string          `json:"source_address"`
	DestinationAddress string          `json:"destination_address"`
}

// BridgeTransaction is the tracked unit of work. The row mirrors the
// in-memory entry owned by the state tracker; handlers only ever see copies.
type BridgeTransaction struct {
	ID       string          `json:"id" gorm:"primaryKey"` // correlation UUID until submitted
	ChainRef string          `json:"chain_ref" gorm:"index"`
	UserID   string          `json:"user_id" gorm:"index"` // authenticated submitter

	Direction          BridgeDirection `json:"direction" gorm:"not null"`
	Amount             string          `json:"amount" gorm:"not null"`
	SourceAddress      string          `json:"source_address" gorm:"not null"`
	DestinationAddress string          `json:"destination_address"`

	State         BridgeState   `json:"state" gorm:"not null;default:created;index"`
	Attempts      int           `json:"attempts" gorm:"default:0"`
	Confirmations int           `json:"confirmations" gorm:"default:0"`
	TerminalError FailureReason `json:"terminal_error,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty" gorm:"type:text"`

	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

// StateTransition is one append-only row of transition history.
type StateTransition struct {
	ID            uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	TransactionID string      `json:"transaction_id" gorm:"not null;index"`
	FromState     BridgeState `json:"from_state" gorm:"not null"`
	ToState       BridgeState `json:"to_state" gorm:"not null"`
	Detail        string      `json:"detail" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at"`
}
