package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnswerConfirmation is the structured payload sent to the chat gateway
// when an answer is confirmed delivered.
type AnswerConfirmation struct {
	DisplayID    string `json:"sequentialId"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	ProductTitle string `json:"productTitle"`
	SellerName   string `json:"sellerName"`
	AutoApproved bool   `json:"autoApproved"`
}

// ChatDispatcher sends human-facing confirmations to the seller's chat.
type ChatDispatcher interface {
	// SendAnswerConfirmation delivers the confirmation message.
	SendAnswerConfirmation(ctx context.Context, msg *AnswerConfirmation) error
}

// chatClient talks to a WhatsApp-gateway style HTTP API.
type chatClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewChatClient creates a ChatDispatcher for the given gateway.
// An empty baseURL yields a no-op dispatcher (chat not configured).
func NewChatClient(baseURL, apiToken string) ChatDispatcher {
	if baseURL == "" {
		return NopDispatcher{}
	}
	return &chatClient{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *chatClient) SendAnswerConfirmation(ctx context.Context, msg *AnswerConfirmation) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat gateway request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat gateway returned %d", resp.StatusCode)
	}

	return nil
}

// NopDispatcher discards all chat messages. Used when the gateway is not
// configured and in tests.
type NopDispatcher struct{}

func (NopDispatcher) SendAnswerConfirmation(ctx context.Context, msg *AnswerConfirmation) error {
	return nil
}
