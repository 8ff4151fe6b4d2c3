package services

import (
	"context"
	"sync"
	"testing"

	"bridge-backend/internal/codec"
	"bridge-backend/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func codecWide(low, high uint64) codec.WideAmount {
	return codec.WideAmount{Low: low, High: high}
}

func mustFeltFromHex(t *testing.T, s string) codec.Felt {
	t.Helper()
	felt, err := codec.NewFeltFromHex(s)
	require.NoError(t, err)
	return felt
}

// memoryRepo is an in-memory BridgeTransactionRepository for service tests.
type memoryRepo struct {
	mu          sync.Mutex
	txs         map[string]models.BridgeTransaction
	transitions []models.StateTransition
	nextID      uint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{txs: make(map[string]models.BridgeTransaction)}
}

func (r *memoryRepo) Create(ctx context.Context, tx *models.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = *tx
	return nil
}

func (r *memoryRepo) Save(ctx context.Context, tx *models.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = *tx
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*models.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &tx, nil
}

func (r *memoryRepo) GetByChainRef(ctx context.Context, chainRef string) (*models.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.ChainRef == chainRef {
			copied := tx
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepo) FindByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.BridgeTransaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BridgeTransaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			copied := tx
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepo) FindByStates(ctx context.Context, states []models.BridgeState) ([]*models.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BridgeTransaction
	for _, tx := range r.txs {
		for _, state := range states {
			if tx.State == state {
				copied := tx
				out = append(out, &copied)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRepo) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	transition.ID = r.nextID
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *memoryRepo) TransitionHistory(ctx context.Context, transactionID string) ([]*models.StateTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.StateTransition
	for i := range r.transitions {
		if r.transitions[i].TransactionID == transactionID {
			copied := r.transitions[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryRepo) transitionCount(transactionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for i := range r.transitions {
		if r.transitions[i].TransactionID == transactionID {
			count++
		}
	}
	return count
}
