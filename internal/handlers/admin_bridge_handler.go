package handlers

import (
	"net/http"

	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminBridgeHandler is the operator surface: cross-user visibility into
// open transactions and a manual failure escape hatch for stuck ones.
type AdminBridgeHandler struct {
	tracker *services.BridgeStateTracker
	repo    repository.BridgeTransactionRepository
	logger  *logrus.Logger
}

// NewAdminBridgeHandler creates the admin bridge handler.
func NewAdminBridgeHandler(tracker *services.BridgeStateTracker, repo repository.BridgeTransactionRepository, logger *logrus.Logger) *AdminBridgeHandler {
	return &AdminBridgeHandler{tracker: tracker, repo: repo, logger: logger}
}

// ListOpenTransactionsHandler lists every non-terminal transaction.
// GET /api/v1/admin/bridge/open
func (h *AdminBridgeHandler) ListOpenTransactionsHandler(c *gin.Context) {
	open, err := h.repo.FindByStates(c.Request.Context(), []models.BridgeState{
		models.StateCreated, models.StateEncoding, models.StateSubmitting,
		models.StatePending, models.StateConfirming,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	list := make([]models.BridgeTransaction, 0, len(open))
	for _, tx := range open {
		list = append(list, *tx)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"transactions": list,
		"count":        len(list),
	})
}

// ForceFailRequest is the manual failure request body.
type ForceFailRequest struct {
	Detail string `json:"detail" binding:"required"`
}

// ForceFailHandler moves a stuck transaction to Failed with reason "fatal".
// The state machine still applies: terminal transactions are rejected.
// POST /api/v1/admin/bridge/transactions/:id/fail
func (h *AdminBridgeHandler) ForceFailHandler(c *gin.Context) {
	id := c.Param("id")

	var req ForceFailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	if err := h.tracker.Fail(id, models.FailureFatal, "operator: "+req.Detail); err != nil {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id": id,
		"operator":       c.GetString("admin_username"),
		"detail":         req.Detail,
	}).Warn("Transaction force-failed by operator")

	snapshot, _ := h.tracker.Snapshot(id)
	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": snapshot})
}
