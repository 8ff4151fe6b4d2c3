package interfaces

import "bridge-backend/internal/models"

// BridgePipeline is the submission surface the HTTP layer drives.
// This interface is used to break circular dependencies between handlers and
// services packages and to let handler tests substitute a fake pipeline.
type BridgePipeline interface {
	// Submit validates the intent and admits it into the state machine.
	// Validation errors mean nothing was tracked.
	Submit(intent models.BridgeIntent, userID string) (models.BridgeTransaction, error)

	// Cancel requests cancellation; only pre-submission transactions can be
	// cancelled.
	Cancel(id string) error
}
