package dto

import "bridge-backend/internal/models"

// ==================== Bridge DTOs ====================

// DepositRequest is the deposit intent submitted by a client: value moves
// from the UTXO chain onto the contract ledger.
type DepositRequest struct {
	Amount             string `json:"amount" binding:"required"`              // decimal string, source-chain units
	SourceAddress      string `json:"source_address" binding:"required"`      // UTXO-chain address
	DestinationAddress string `json:"destination_address" binding:"required"` // contract ledger address (64 hex chars)
}

// WithdrawalRequest is the withdrawal intent: value moves from the contract
// ledger back to a UTXO-chain address. No ledger destination: the caller's
// own authenticated account is the source of funds.
type WithdrawalRequest struct {
	Amount        string `json:"amount" binding:"required"`
	SourceAddress string `json:"source_address" binding:"required"` // UTXO-chain payout address
}

// TransactionResponse wraps a single transaction snapshot.
type TransactionResponse struct {
	Success     bool                      `json:"success"`
	Transaction *models.BridgeTransaction `json:"transaction,omitempty"`
	Message     string                    `json:"message,omitempty"`
	Code        string                    `json:"code,omitempty"`
}

// TransactionListResponse wraps a paged transaction listing.
type TransactionListResponse struct {
	Success      bool                       `json:"success"`
	Transactions []models.BridgeTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
}

// TransitionHistoryResponse wraps the append-only transition history of one
// transaction.
type TransitionHistoryResponse struct {
	Success     bool                     `json:"success"`
	Transitions []models.StateTransition `json:"transitions"`
}
