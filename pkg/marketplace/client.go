// Package marketplace wraps outbound calls to the marketplace's
// answer-submission endpoint with bounded retry and outcome classification.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mlagent/answer-engine/pkg/apperrors"
	"github.com/mlagent/answer-engine/pkg/logging"
	"github.com/mlagent/answer-engine/pkg/retry"
)

// Result is the final outcome of a delivery (after retries).
type Result struct {
	StatusCode      int
	Body            []byte
	AlreadyAnswered bool
	Attempts        int
}

// DeliveryError describes a failed delivery attempt. It implements
// retry.RetryableError so the retry loop can distinguish transient failures
// from permanent rejections.
type DeliveryError struct {
	StatusCode int
	Body       []byte
	Message    string
	Retryable  bool
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("marketplace returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marketplace request failed: %s", e.Message)
}

// IsRetryable implements retry.RetryableError.
func (e *DeliveryError) IsRetryable() bool {
	return e.Retryable
}

// AnswerPoster is the outbound port consumed by the approval orchestrator.
type AnswerPoster interface {
	// PostAnswer delivers the answer text for a marketplace question using
	// the given bearer token. A non-nil Result is returned on success,
	// including the absorbed "already answered" case.
	PostAnswer(ctx context.Context, accessToken, questionID, text string) (*Result, error)
}

// Client submits answers to the marketplace REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger
}

// NewClient creates a marketplace client. baseURL is the API root without a
// trailing slash (e.g. https://api.mercadolibre.com). timeout bounds a
// single attempt; zero means 30 seconds.
func NewClient(baseURL string, timeout time.Duration, policy retry.Policy, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		logger:     logger,
	}
}

// answerPayload is the wire format of the answer-submission endpoint.
type answerPayload struct {
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
}

// PostAnswer delivers the answer with bounded retry. A non-numeric question
// id is a permanent failure before any network call.
func (c *Client) PostAnswer(ctx context.Context, accessToken, questionID, text string) (*Result, error) {
	numericID, err := strconv.ParseInt(questionID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidQuestionID, questionID)
	}

	body, err := json.Marshal(answerPayload{QuestionID: numericID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answer payload: %w", err)
	}

	attempts := 0
	result, err := retry.DoWithResult(ctx, c.policy, func(attempt int) (*Result, error) {
		attempts = attempt
		return c.attempt(ctx, accessToken, body, attempt)
	})
	if err != nil {
		return nil, err
	}

	result.Attempts = attempts
	return result, nil
}

// attempt performs a single HTTP round trip and classifies its outcome.
func (c *Client) attempt(ctx context.Context, accessToken string, body []byte, attempt int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/answers", bytes.NewReader(body))
	if err != nil {
		return nil, &DeliveryError{Message: err.Error(), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Marketplace request failed",
			zap.Int("attempt", attempt),
			zap.String("error", logging.SanitizeError(err)))
		return nil, &DeliveryError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Message: err.Error(), Retryable: true}
	}

	switch ClassifyResponse(resp.StatusCode, respBody) {
	case OutcomeDelivered:
		return &Result{StatusCode: resp.StatusCode, Body: respBody}, nil
	case OutcomeAlreadyAnswered:
		c.logger.Info("Question already answered on marketplace, absorbing as success",
			zap.Int("status", resp.StatusCode))
		return &Result{StatusCode: resp.StatusCode, Body: respBody, AlreadyAnswered: true}, nil
	case OutcomeTransient:
		c.logger.Warn("Transient marketplace failure",
			zap.Int("attempt", attempt),
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.SanitizeBody(string(respBody))))
		return nil, &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Message:    string(respBody),
			Retryable:  true,
		}
	default:
		return nil, &DeliveryError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Message:    string(respBody),
			Retryable:  false,
		}
	}
}

// Ensure Client implements AnswerPoster at compile time.
var _ AnswerPoster = (*Client)(nil)
