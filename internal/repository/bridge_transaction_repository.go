// Package repository provides data access interfaces and implementations
package repository

import (
	"context"

	"bridge-backend/internal/models"

	"gorm.io/gorm"
)

// BridgeTransactionRepository defines the interface for bridge transaction
// persistence. The state tracker is the only writer; handlers read snapshots.
type BridgeTransactionRepository interface {
	Create(ctx context.Context, tx *models.BridgeTransaction) error
	Save(ctx context.Context, tx *models.BridgeTransaction) error
	GetByID(ctx context.Context, id string) (*models.BridgeTransaction, error)
	GetByChainRef(ctx context.Context, chainRef string) (*models.BridgeTransaction, error)
	FindByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.BridgeTransaction, int64, error)
	FindByStates(ctx context.Context, states []models.BridgeState) ([]*models.BridgeTransaction, error)

	AppendTransition(ctx context.Context, transition *models.StateTransition) error
	TransitionHistory(ctx context.Context, transactionID string) ([]*models.StateTransition, error)
}

// bridgeTransactionRepository implements BridgeTransactionRepository
type bridgeTransactionRepository struct {
	db *gorm.DB
}

// NewBridgeTransactionRepository creates a new BridgeTransactionRepository instance
func NewBridgeTransactionRepository(db *gorm.DB) BridgeTransactionRepository {
	return &bridgeTransactionRepository{db: db}
}

// Create inserts a new bridge transaction row
func (r *bridgeTransactionRepository) Create(ctx context.Context, tx *models.BridgeTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// Save persists the current state of a bridge transaction
func (r *bridgeTransactionRepository) Save(ctx context.Context, tx *models.BridgeTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// GetByID retrieves a bridge transaction by its correlation id
func (r *bridgeTransactionRepository) GetByID(ctx context.Context, id string) (*models.BridgeTransaction, error) {
	var tx models.BridgeTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetByChainRef retrieves a bridge transaction by its chain-assigned reference
func (r *bridgeTransactionRepository) GetByChainRef(ctx context.Context, chainRef string) (*models.BridgeTransaction, error) {
	var tx models.BridgeTransaction
	err := r.db.WithContext(ctx).Where("chain_ref = ?", chainRef).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindByUser lists a user's transactions, newest first
func (r *bridgeTransactionRepository) FindByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.BridgeTransaction, int64, error) {
	var txs []*models.BridgeTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&models.BridgeTransaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// FindByStates lists transactions currently in any of the given states
func (r *bridgeTransactionRepository) FindByStates(ctx context.Context, states []models.BridgeState) ([]*models.BridgeTransaction, error) {
	var txs []*models.BridgeTransaction
	err := r.db.WithContext(ctx).Where("state IN ?", states).Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// AppendTransition records one transition history row
func (r *bridgeTransactionRepository) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

// TransitionHistory returns the ordered transition history for a transaction
func (r *bridgeTransactionRepository) TransitionHistory(ctx context.Context, transactionID string) ([]*models.StateTransition, error) {
	var transitions []*models.StateTransition
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, err
	}
	return transitions, nil
}
