package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	parsePath       = "/parse"
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"
)

var errMissingMessage = errors.New("success response has no message field")

// SubmissionRequest is the JSON body of a parse call.
type SubmissionRequest struct {
	Text       string `json:"text"`
	TelegramID string `json:"telegram_id"`
}

type successBody struct {
	Message *string `json:"message"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type errorDetail struct {
	Error string `json:"error"`
}

// Client submits chat messages to the expense parsing service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a Client for the service at baseURL. A zero timeout means
// the call waits as long as the transport allows.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Submit sends text on behalf of userID and classifies the response. It never
// returns an error: every failure is folded into the Outcome.
func (c *Client) Submit(ctx context.Context, text, userID string) Outcome {
	requestID := uuid.NewString()
	log := c.logger.With(zap.String("request_id", requestID), zap.String("telegram_id", userID))

	status, body, err := c.post(ctx, requestID, SubmissionRequest{Text: text, TelegramID: userID})
	if err != nil {
		log.Error("unexpected error calling parse service", zap.Error(err))
		return TransportFailure(err)
	}

	if status >= 200 && status < 300 {
		var resp successBody
		if err := json.Unmarshal(body, &resp); err != nil {
			log.Error("failed to decode parse response", zap.Int("status", status), zap.Error(err))
			return TransportFailure(fmt.Errorf("failed to decode response: %w", err))
		}
		if resp.Message == nil {
			log.Error("parse response has no message", zap.Int("status", status), zap.ByteString("body", body))
			return TransportFailure(errMissingMessage)
		}
		return Success(*resp.Message)
	}

	if !json.Valid(body) {
		log.Error("failed to decode parse error response", zap.Int("status", status), zap.ByteString("body", body))
		return TransportFailure(fmt.Errorf("error response with status %d is not valid JSON", status))
	}

	reason := reasonFor(discriminator(body))
	if reason == ReasonUnclassified {
		log.Error("parse service error", zap.Int("status", status), zap.ByteString("body", body))
	} else {
		log.Info("parse service rejected message", zap.Int("status", status), zap.String("reason", string(reason)))
	}
	return Rejected(reason)
}

// discriminator extracts detail.error from a JSON error body. Bodies of any
// other shape, including a plain string detail, have no discriminator.
func discriminator(body []byte) string {
	var resp errorBody
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}

	var d errorDetail
	if err := json.Unmarshal(resp.Detail, &d); err != nil {
		return ""
	}
	return d.Error
}

func (c *Client) post(ctx context.Context, requestID string, payload SubmissionRequest) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+parsePath, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(requestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call parse service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// Ping checks that the service answers its root health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call parse service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("parse service health check returned status %d", resp.StatusCode)
	}
	return nil
}
