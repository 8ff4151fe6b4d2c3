package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"bridge-backend/internal/codec"
	"bridge-backend/internal/dto"
	"bridge-backend/internal/models"
	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubRepo is the minimal in-memory repository the handler paths touch.
type stubRepo struct {
	mu          sync.Mutex
	txs         map[string]models.BridgeTransaction
	transitions []models.StateTransition
}

func newStubRepo() *stubRepo {
	return &stubRepo{txs: make(map[string]models.BridgeTransaction)}
}

func (r *stubRepo) Create(ctx context.Context, tx *models.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = *tx
	return nil
}

func (r *stubRepo) Save(ctx context.Context, tx *models.BridgeTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = *tx
	return nil
}

func (r *stubRepo) GetByID(ctx context.Context, id string) (*models.BridgeTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &tx, nil
}

func (r *stubRepo) GetByChainRef(ctx context.Context, chainRef string) (*models.BridgeTransaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) FindByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.BridgeTransaction, int64, error) {
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

func (r *stubRepo) FindByStates(ctx context.Context, states []models.BridgeState) ([]*models.BridgeTransaction, error) {
	return nil, nil
}

func (r *stubRepo) AppendTransition(ctx context.Context, transition *models.StateTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transition.ID = uint(len(r.transitions) + 1)
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *stubRepo) TransitionHistory(ctx context.Context, transactionID string) ([]*models.StateTransition, error) {
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

// stubPipeline tracks accepted intents without running the executor, or
// rejects every submission with a scripted error.
type stubPipeline struct {
	tracker   *services.BridgeStateTracker
	submitErr error
}

func (p *stubPipeline) Submit(intent models.BridgeIntent, userID string) (models.BridgeTransaction, error) {
	if p.submitErr != nil {
		return models.BridgeTransaction{}, p.submitErr
	}
	return p.tracker.Track(intent, userID), nil
}

func (p *stubPipeline) Cancel(id string) error {
	return p.tracker.Cancel(id)
}

type handlerFixture struct {
	router   *gin.Engine
	tracker  *services.BridgeStateTracker
	repo     *stubRepo
	pipeline *stubPipeline
}

func newHandlerFixture(t *testing.T, userID string) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newStubRepo()
	tracker := services.NewBridgeStateTracker(repo, services.NewNotificationBroadcaster(), 6)
	pipeline := &stubPipeline{tracker: tracker}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	handler := NewBridgeHandler(pipeline, tracker, repo, logger)

	router := gin.New()
	group := router.Group("/api/v1/bridge")
	group.Use(func(c *gin.Context) {
		c.Set("user_address", userID)
		c.Next()
	})
	group.POST("/deposits", handler.SubmitDepositHandler)
	group.POST("/withdrawals", handler.SubmitWithdrawalHandler)
	group.GET("/transactions", handler.ListTransactionsHandler)
	group.GET("/transactions/:id", handler.GetTransactionHandler)
	group.GET("/transactions/:id/history", handler.GetTransitionHistoryHandler)
	group.DELETE("/transactions/:id", handler.CancelTransactionHandler)

	return &handlerFixture{router: router, tracker: tracker, repo: repo, pipeline: pipeline}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func depositBody() dto.DepositRequest {
	return dto.DepositRequest{
		Amount:             "0.5",
		SourceAddress:      "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		DestinationAddress: "049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7",
	}
}

func TestSubmitDepositAccepted(t *testing.T) {
	f := newHandlerFixture(t, "alice")

	recorder := f.do(t, http.MethodPost, "/api/v1/bridge/deposits", depositBody())

	require.Equal(t, http.StatusAccepted, recorder.Code)
	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Transaction)
	assert.Equal(t, models.StateCreated, resp.Transaction.State)
	assert.Equal(t, "alice", resp.Transaction.UserID)
	assert.Equal(t, models.DirectionSourceToTarget, resp.Transaction.Direction)
}

func TestSubmitDepositMissingFields(t *testing.T) {
	f := newHandlerFixture(t, "alice")

	recorder := f.do(t, http.MethodPost, "/api/v1/bridge/deposits", dto.DepositRequest{Amount: "0.5"})

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Code)
}

func TestSubmitDepositValidationErrorCode(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	f.pipeline.submitErr = codec.ErrAmountOutOfRange

	recorder := f.do(t, http.MethodPost, "/api/v1/bridge/deposits", depositBody())

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "AMOUNT_OUT_OF_RANGE", resp.Code)
}

func TestSubmitWithdrawalAccepted(t *testing.T) {
	f := newHandlerFixture(t, "alice")

	recorder := f.do(t, http.MethodPost, "/api/v1/bridge/withdrawals", dto.WithdrawalRequest{
		Amount:        "1.25",
		SourceAddress: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
	})

	require.Equal(t, http.StatusAccepted, recorder.Code)
	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Transaction)
	assert.Equal(t, models.DirectionTargetToSource, resp.Transaction.Direction)
}

func TestGetTransactionOwnedAndForeign(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	mine := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "alice")
	theirs := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "bob")

	recorder := f.do(t, http.MethodGet, "/api/v1/bridge/transactions/"+mine.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	// Other users' transactions look like they do not exist.
	recorder = f.do(t, http.MethodGet, "/api/v1/bridge/transactions/"+theirs.ID, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = f.do(t, http.MethodGet, "/api/v1/bridge/transactions/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetTransactionFallsBackToDatabase(t *testing.T) {
	f := newHandlerFixture(t, "alice")

	// A transaction that completed before a restart only exists in the store.
	require.NoError(t, f.repo.Create(context.Background(), &models.BridgeTransaction{
		ID:     "archived-1",
		UserID: "alice",
		State:  models.StateCompleted,
	}))

	recorder := f.do(t, http.MethodGet, "/api/v1/bridge/transactions/archived-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, models.StateCompleted, resp.Transaction.State)
}

func TestListTransactions(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "alice")
	f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.7"}, "alice")
	f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.9"}, "bob")

	recorder := f.do(t, http.MethodGet, "/api/v1/bridge/transactions", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp dto.TransactionListResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.Total)
	assert.Len(t, resp.Transactions, 2)
}

func TestTransitionHistoryRequiresOwnership(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	tx := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "alice")
	require.NoError(t, f.tracker.MarkEncoding(tx.ID))

	recorder := f.do(t, http.MethodGet, "/api/v1/bridge/transactions/"+tx.ID+"/history", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp dto.TransitionHistoryResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Transitions, 1)
	assert.Equal(t, models.StateCreated, resp.Transitions[0].FromState)
	assert.Equal(t, models.StateEncoding, resp.Transitions[0].ToState)

	foreign := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "bob")
	recorder = f.do(t, http.MethodGet, "/api/v1/bridge/transactions/"+foreign.ID+"/history", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCancelTransaction(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	tx := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "alice")

	recorder := f.do(t, http.MethodDelete, "/api/v1/bridge/transactions/"+tx.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp dto.TransactionResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, models.StateCancelled, resp.Transaction.State)
}

func TestCancelRejectedAfterSubmission(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	tx := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "alice")
	require.NoError(t, f.tracker.MarkEncoding(tx.ID))
	require.NoError(t, f.tracker.MarkSubmitting(tx.ID))

	recorder := f.do(t, http.MethodDelete, "/api/v1/bridge/transactions/"+tx.ID, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestCancelForeignTransactionHidden(t *testing.T) {
	f := newHandlerFixture(t, "alice")
	tx := f.tracker.Track(models.BridgeIntent{Direction: models.DirectionSourceToTarget, Amount: "0.5"}, "bob")

	recorder := f.do(t, http.MethodDelete, "/api/v1/bridge/transactions/"+tx.ID, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}
