package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bridge-backend/internal/config"
)

// Gateway error codes the signer service reports in its JSON envelope.
// The executor maps these onto its failure taxonomy; the client itself
// stays classification-free.
const (
	GatewayCodeUserRejected    = "USER_REJECTED"
	GatewayCodePathUnavailable = "PATH_UNAVAILABLE"
	GatewayCodeInvalidCalldata = "INVALID_CALLDATA"
	GatewayCodeReverted        = "CONTRACT_REVERTED"
)

// GatewayError is a structured failure from the signer gateway.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("signer gateway error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// AsGatewayError unwraps a GatewayError if err carries one.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// InvokeRequest is the submission envelope both execution paths accept:
// the contract entry point name plus the ordered calldata felts.
type InvokeRequest struct {
	Operation     string   `json:"operation"` // "deposit" | "withdrawal"
	Calldata      []string `json:"calldata"`  // hex felts, contract argument order
	CorrelationID string   `json:"correlation_id"`
}

// InvokeResponse is the gateway's reply envelope.
type InvokeResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash"`
	Code            string `json:"code,omitempty"`
	Error           string `json:"error,omitempty"`
}

// SignerClient talks to the signer gateway, the external collaborator that
// produces signatures and forwards transactions to the target chain. It
// exposes two call surfaces to the same signer: the account invoke endpoint
// (primary) and the raw execute endpoint (alternate).
type SignerClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewSignerClient creates a signer gateway client.
func NewSignerClient(cfg config.SignerConfig) *SignerClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &SignerClient{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// InvokeAccount submits through the primary path: the gateway's account
// abstraction endpoint. Returns the chain-assigned transaction hash.
func (c *SignerClient) InvokeAccount(ctx context.Context, req *InvokeRequest) (string, error) {
	return c.submit(ctx, "/api/v1/account/invoke", req)
}

// ExecuteRaw submits through the alternate path: the gateway's raw execute
// endpoint, a different call surface over the same signer.
func (c *SignerClient) ExecuteRaw(ctx context.Context, req *InvokeRequest) (string, error) {
	return c.submit(ctx, "/api/v1/execute", req)
}

// HealthCheck verifies the gateway is reachable.
func (c *SignerClient) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("signer gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signer gateway unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}

func (c *SignerClient) submit(ctx context.Context, path string, req *InvokeRequest) (string, error) {
	responseBody, statusCode, err := c.makeRequest(ctx, "POST", path, req)
	if err != nil {
		return "", err
	}

	var invokeResp InvokeResponse
	if err := json.Unmarshal(responseBody, &invokeResp); err != nil {
		return "", fmt.Errorf("failed to parse signer response: %w", err)
	}

	if !invokeResp.Success {
		return "", &GatewayError{
			StatusCode: statusCode,
			Code:       invokeResp.Code,
			Message:    invokeResp.Error,
		}
	}
	if invokeResp.TransactionHash == "" {
		return "", fmt.Errorf("signer returned success without a transaction hash")
	}

	return invokeResp.TransactionHash, nil
}

func (c *SignerClient) makeRequest(ctx context.Context, method, path string, data interface{}) ([]byte, int, error) {
	url := c.baseURL + path

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bridge-backend/1.0")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	// Error envelopes still carry a JSON body; pass them up for parsing.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var invokeResp InvokeResponse
		if json.Unmarshal(responseBody, &invokeResp) == nil && invokeResp.Code != "" {
			return nil, resp.StatusCode, &GatewayError{
				StatusCode: resp.StatusCode,
				Code:       invokeResp.Code,
				Message:    invokeResp.Error,
			}
		}
		return nil, resp.StatusCode, fmt.Errorf("HTTP request failed: status=%d, body=%s", resp.StatusCode, string(responseBody))
	}

	return responseBody, resp.StatusCode, nil
}
