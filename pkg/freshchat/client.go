package freshchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Interface Freshchat 客户端接口
type Interface interface {
	SendMessage(ctx context.Context, conversationID, text, actorType, actorID string) (*Message, error)
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d]: %s", e.StatusCode, e.Body)
}

// Client Freshchat HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config
}

// NewClient 创建客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		config: config,
	}
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Freshchat API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("Freshchat API Response: %d %s", resp.StatusCode, string(body))

	if resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Body: errResp.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("Freshchat API retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}
		if err := c.doRequest(req, result); err != nil {
			lastErr = err
			if attempt < c.config.MaxRetries && shouldRetry(err) {
				continue
			}
			break
		}
		return nil
	}
	return lastErr
}

// shouldRetry 网络错误、429 和 5xx 可以重试
func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// SendMessage 向会话发送文本消息；actorType 为 agent 时 actorID 必填
func (c *Client) SendMessage(ctx context.Context, conversationID, text, actorType, actorID string) (*Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	if actorType == "" {
		actorType = ActorSystem
	}
	req := &SendMessageRequest{
		MessageParts: []MessagePart{{Text: &TextPart{Content: text}}},
		ActorType:    actorType,
		ActorID:      actorID,
	}

	var msg Message
	endpoint := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, req, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	c.logger.Infof("Sent message to Freshchat conversation %s", conversationID)
	return &msg, nil
}

// GetConversation 获取会话
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	var conv Conversation
	endpoint := fmt.Sprintf("/conversations/%s", url.PathEscape(conversationID))
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &conv); err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetUser 获取用户（主要用于拿到邮箱）
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	var user User
	endpoint := fmt.Sprintf("/users/%s", url.PathEscape(userID))
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
