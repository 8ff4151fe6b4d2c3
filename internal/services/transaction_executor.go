package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/codec"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExecutionErrorKind classifies a failed submission.
type ExecutionErrorKind string

const (
	// KindUserRejected: the signer explicitly declined. Terminal, no retry.
	KindUserRejected ExecutionErrorKind = "user_rejected"
	// KindRetryableTransient: network/timeout-class failure, retried up to
	// the configured maximum before surfacing.
	KindRetryableTransient ExecutionErrorKind = "retryable_transient"
	// KindAlternatePathEligible: the primary path is unavailable or
	// misconfigured; exactly one alternate path attempt is made.
	KindAlternatePathEligible ExecutionErrorKind = "alternate_path_eligible"
	// KindFatal: malformed payload or contract-level rejection. Terminal,
	// surfaced verbatim.
	KindFatal ExecutionErrorKind = "fatal"
)

// ExecutionError is the classified failure an exhausted Execute returns.
type ExecutionError struct {
	Kind ExecutionErrorKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// AsExecutionError unwraps an ExecutionError if err carries one.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// EncodedPayload is the wire-ready representation of a validated intent.
// Derived deterministically by the codecs; never mutated.
type EncodedPayload struct {
	Amount                  codec.WideAmount
	SourceAddressField      codec.Felt
	DestinationAddressField codec.Felt // zero for withdrawals
}

// Calldata renders the ordered felt list the contract entry point expects:
// [amountLow, amountHigh, sourceAddressField, destinationAddressField] for a
// deposit, and the same without the destination for a withdrawal (the
// destination is implicit in the caller's own account).
func (p EncodedPayload) Calldata(op models.OperationKind) []string {
	calldata := []string{
		hexutil.EncodeUint64(p.Amount.Low),
		hexutil.EncodeUint64(p.Amount.High),
		p.SourceAddressField.Hex(),
	}
	if op == models.OperationDeposit {
		calldata = append(calldata, p.DestinationAddressField.Hex())
	}
	return calldata
}

// ExecutionPath is one call surface to the signer. The gateway client
// provides the real primary/alternate pair; tests substitute fakes.
type ExecutionPath interface {
	Name() string
	Submit(ctx context.Context, req *clients.InvokeRequest) (string, error)
}

// accountInvokePath is the primary path: the gateway's account endpoint.
type accountInvokePath struct {
	client *clients.SignerClient
}

func (p *accountInvokePath) Name() string { return "account_invoke" }

func (p *accountInvokePath) Submit(ctx context.Context, req *clients.InvokeRequest) (string, error) {
	return p.client.InvokeAccount(ctx, req)
}

// rawExecutePath is the alternate path: a different call surface over the
// same signer.
type rawExecutePath struct {
	client *clients.SignerClient
}

func (p *rawExecutePath) Name() string { return "raw_execute" }

func (p *rawExecutePath) Submit(ctx context.Context, req *clients.InvokeRequest) (string, error) {
	return p.client.ExecuteRaw(ctx, req)
}

// ExecutorConfig carries the externally supplied retry policy.
type ExecutorConfig struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // base, doubled per retry
}

// TransactionExecutor submits encoded payloads through a signing path with
// bounded retries, a per-attempt timeout, and one alternate-path fallback.
// At most one execution attempt is in flight per transaction id: concurrent
// calls for the same id are rejected, never run in parallel — this is the
// guard against double-submitting a funds-moving operation.
type TransactionExecutor struct {
	primary   ExecutionPath
	alternate ExecutionPath
	cfg       ExecutorConfig

	// onAttempt reports the running attempt counter, so the tracker's view
	// of attempts stays live during long retry loops.
	onAttempt func(txID string, attempt int)

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewTransactionExecutor builds an executor over the two signer call surfaces.
func NewTransactionExecutor(signer *clients.SignerClient, cfg ExecutorConfig) *TransactionExecutor {
	return NewTransactionExecutorWithPaths(
		&accountInvokePath{client: signer},
		&rawExecutePath{client: signer},
		cfg,
	)
}

// NewTransactionExecutorWithPaths wires explicit paths (tests use this).
func NewTransactionExecutorWithPaths(primary, alternate ExecutionPath, cfg ExecutorConfig) *TransactionExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 3 * time.Second
	}
	return &TransactionExecutor{
		primary:   primary,
		alternate: alternate,
		cfg:       cfg,
		inFlight:  make(map[string]bool),
	}
}

// SetAttemptObserver registers the attempt-count callback.
func (e *TransactionExecutor) SetAttemptObserver(fn func(txID string, attempt int)) {
	e.onAttempt = fn
}

// Execute submits the payload and returns the chain-assigned transaction
// reference together with the number of attempts consumed. On failure the
// returned error is an *ExecutionError carrying the terminal classification.
func (e *TransactionExecutor) Execute(ctx context.Context, txID string, payload EncodedPayload, op models.OperationKind) (string, int, error) {
	if !e.acquire(txID) {
		return "", 0, fmt.Errorf("execution already in flight for transaction %s", txID)
	}
	defer e.release(txID)

	req := &clients.InvokeRequest{
		Operation:     string(op),
		Calldata:      payload.Calldata(op),
		CorrelationID: txID,
	}

	path := e.primary
	alternateUsed := false
	attempts := 0

	for attempts < e.cfg.MaxAttempts {
		attempts++
		if e.onAttempt != nil {
			e.onAttempt(txID, attempts)
		}

		metrics.ExecutionAttemptsTotal.WithLabelValues(path.Name()).Inc()
		start := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		chainRef, err := path.Submit(attemptCtx, req)
		cancel()

		metrics.ExecutionDuration.WithLabelValues(path.Name()).Observe(time.Since(start).Seconds())

		if err == nil {
			log.Printf("✅ [Executor] transaction %s submitted via %s on attempt %d: %s", txID, path.Name(), attempts, chainRef)
			return chainRef, attempts, nil
		}

		kind := classify(err)
		metrics.ExecutionFailuresTotal.WithLabelValues(path.Name(), string(kind)).Inc()
		log.Printf("⚠️ [Executor] transaction %s attempt %d via %s failed (%s): %v", txID, attempts, path.Name(), kind, err)

		switch kind {
		case KindUserRejected, KindFatal:
			return "", attempts, &ExecutionError{Kind: kind, Err: err}

		case KindAlternatePathEligible:
			if alternateUsed || e.alternate == nil {
				return "", attempts, &ExecutionError{Kind: KindFatal, Err: fmt.Errorf("alternate path already exhausted: %w", err)}
			}
			alternateUsed = true
			path = e.alternate
			log.Printf("🔀 [Executor] transaction %s switching to alternate path %s", txID, path.Name())
			// The switch consumes no backoff; the next loop iteration
			// submits through the alternate surface immediately.
			continue

		case KindRetryableTransient:
			if attempts >= e.cfg.MaxAttempts {
				return "", attempts, &ExecutionError{
					Kind: KindRetryableTransient,
					Err:  fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err),
				}
			}
			if waitErr := e.backoff(ctx, attempts); waitErr != nil {
				return "", attempts, &ExecutionError{Kind: KindRetryableTransient, Err: waitErr}
			}
		}
	}

	return "", attempts, &ExecutionError{
		Kind: KindRetryableTransient,
		Err:  fmt.Errorf("retries exhausted after %d attempts", attempts),
	}
}

// backoff waits the exponential interval for the given attempt number,
// honoring caller cancellation.
func (e *TransactionExecutor) backoff(ctx context.Context, attempt int) error {
	delay := e.cfg.Backoff * time.Duration(1<<uint(attempt-1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *TransactionExecutor) acquire(txID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[txID] {
		return false
	}
	e.inFlight[txID] = true
	return true
}

func (e *TransactionExecutor) release(txID string) {
	e.mu.Lock()
	delete(e.inFlight, txID)
	e.mu.Unlock()
}

// classify maps a raw submission error onto the failure taxonomy.
func classify(err error) ExecutionErrorKind {
	if ge, ok := clients.AsGatewayError(err); ok {
		switch ge.Code {
		case clients.GatewayCodeUserRejected:
			return KindUserRejected
		case clients.GatewayCodePathUnavailable:
			return KindAlternatePathEligible
		case clients.GatewayCodeInvalidCalldata, clients.GatewayCodeReverted:
			return KindFatal
		}
		if ge.StatusCode >= 500 {
			return KindRetryableTransient
		}
		return KindFatal
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindRetryableTransient
	}

	// Transport-level failures (connection refused, DNS, timeouts wrapped by
	// net/http) are transient by default.
	return KindRetryableTransient
}
