package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"bridge-backend/internal/codec"
	"bridge-backend/internal/dto"
	"bridge-backend/internal/interfaces"
	"bridge-backend/internal/models"
	"bridge-backend/internal/repository"
	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BridgeHandler exposes the deposit/withdrawal API. Writes go through the
// pipeline; reads prefer the tracker's live table and fall back to the
// database for transactions that finished before a restart.
type BridgeHandler struct {
	pipeline interfaces.BridgePipeline
	tracker  *services.BridgeStateTracker
	repo     repository.BridgeTransactionRepository
	logger   *logrus.Logger
}

// NewBridgeHandler creates the bridge handler.
func NewBridgeHandler(
	pipeline interfaces.BridgePipeline,
	tracker *services.BridgeStateTracker,
	repo repository.BridgeTransactionRepository,
	logger *logrus.Logger,
) *BridgeHandler {
	return &BridgeHandler{
		pipeline: pipeline,
		tracker:  tracker,
		repo:     repo,
		logger:   logger,
	}
}

// SubmitDepositHandler accepts a deposit intent.
// POST /api/v1/bridge/deposits
func (h *BridgeHandler) SubmitDepositHandler(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.TransactionResponse{
			Success: false,
			Message: err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	intent := models.BridgeIntent{
		Direction:          models.DirectionSourceToTarget,
		Amount:             req.Amount,
		SourceAddress:      req.SourceAddress,
		DestinationAddress: req.DestinationAddress,
	}
	h.submit(c, intent)
}

// SubmitWithdrawalHandler accepts a withdrawal intent.
// POST /api/v1/bridge/withdrawals
func (h *BridgeHandler) SubmitWithdrawalHandler(c *gin.Context) {
	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.TransactionResponse{
			Success: false,
			Message: err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	intent := models.BridgeIntent{
		Direction:     models.DirectionTargetToSource,
		Amount:        req.Amount,
		SourceAddress: req.SourceAddress,
	}
	h.submit(c, intent)
}

func (h *BridgeHandler) submit(c *gin.Context, intent models.BridgeIntent) {
	userID := c.GetString("user_address")

	tx, err := h.pipeline.Submit(intent, userID)
	if err != nil {
		status, code := http.StatusInternalServerError, "SUBMISSION_FAILED"
		if services.IsValidationError(err) {
			status, code = http.StatusBadRequest, validationCode(err)
		}

		h.logger.WithFields(logrus.Fields{
			"direction": intent.Direction,
			"user":      userID,
			"error":     err.Error(),
		}).Warn("Bridge intent rejected")

		c.JSON(status, dto.TransactionResponse{
			Success: false,
			Message: err.Error(),
			Code:    code,
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"direction":      tx.Direction,
		"user":           userID,
	}).Info("Bridge intent accepted")

	c.JSON(http.StatusAccepted, dto.TransactionResponse{
		Success:     true,
		Transaction: &tx,
	})
}

// GetTransactionHandler returns one transaction snapshot.
// GET /api/v1/bridge/transactions/:id
func (h *BridgeHandler) GetTransactionHandler(c *gin.Context) {
	id := c.Param("id")

	if tx, ok := h.tracker.Snapshot(id); ok {
		h.requireOwner(c, &tx)
		return
	}

	tx, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, dto.TransactionResponse{
				Success: false,
				Message: "Transaction not found",
				Code:    "NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.TransactionResponse{
			Success: false,
			Message: err.Error(),
			Code:    "DB_ERROR",
		})
		return
	}
	h.requireOwner(c, tx)
}

// requireOwner responds with the snapshot if the caller owns it.
func (h *BridgeHandler) requireOwner(c *gin.Context, tx *models.BridgeTransaction) {
	if userID := c.GetString("user_address"); tx.UserID != userID {
		// Do not leak existence of other users' transactions.
		c.JSON(http.StatusNotFound, dto.TransactionResponse{
			Success: false,
			Message: "Transaction not found",
			Code:    "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, dto.TransactionResponse{
		Success:     true,
		Transaction: tx,
	})
}

// ListTransactionsHandler lists the caller's transactions, newest first.
// GET /api/v1/bridge/transactions?page=1&page_size=20
func (h *BridgeHandler) ListTransactionsHandler(c *gin.Context) {
	userID := c.GetString("user_address")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	txs, total, err := h.repo.FindByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	list := make([]models.BridgeTransaction, 0, len(txs))
	for _, tx := range txs {
		list = append(list, *tx)
	}

	c.JSON(http.StatusOK, dto.TransactionListResponse{
		Success:      true,
		Transactions: list,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	})
}

// GetTransitionHistoryHandler returns the append-only transition history.
// GET /api/v1/bridge/transactions/:id/history
func (h *BridgeHandler) GetTransitionHistoryHandler(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString("user_address")

	// Ownership check before exposing history.
	tx, ok := h.tracker.Snapshot(id)
	if !ok {
		stored, err := h.repo.GetByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Transaction not found"})
			return
		}
		tx = *stored
	}
	if tx.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Transaction not found"})
		return
	}

	transitions, err := h.repo.TransitionHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	history := make([]models.StateTransition, 0, len(transitions))
	for _, t := range transitions {
		history = append(history, *t)
	}

	c.JSON(http.StatusOK, dto.TransitionHistoryResponse{
		Success:     true,
		Transitions: history,
	})
}

// CancelTransactionHandler requests cancellation of a pre-submission
// transaction.
// DELETE /api/v1/bridge/transactions/:id
func (h *BridgeHandler) CancelTransactionHandler(c *gin.Context) {
	id := c.Param("id")
	userID := c.GetString("user_address")

	tx, ok := h.tracker.Snapshot(id)
	if !ok || tx.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Transaction not found"})
		return
	}

	if err := h.pipeline.Cancel(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": err.Error(),
			"code":    "CANCEL_REJECTED",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id": id,
		"user":           userID,
	}).Info("Bridge transaction cancelled")

	snapshot, _ := h.tracker.Snapshot(id)
	c.JSON(http.StatusOK, dto.TransactionResponse{
		Success:     true,
		Transaction: &snapshot,
	})
}

// validationCode maps a codec validation error to a stable API error code.
func validationCode(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnsupportedAddressVariant):
		return "UNSUPPORTED_ADDRESS_VARIANT"
	case errors.Is(err, codec.ErrInvalidAddressFormat):
		return "INVALID_ADDRESS_FORMAT"
	case errors.Is(err, codec.ErrAmountOutOfRange):
		return "AMOUNT_OUT_OF_RANGE"
	case errors.Is(err, codec.ErrInvalidAmount):
		return "INVALID_AMOUNT"
	default:
		return "VALIDATION_FAILED"
	}
}
