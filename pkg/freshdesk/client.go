package freshdesk

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

// Interface Freshdesk 工单客户端接口
type Interface interface {
	SearchOpenTicketByEmail(ctx context.Context, email string) (*Ticket, error)
	UpdateTicketCustomFields(ctx context.Context, ticketID int64, fields CustomFields) error
	CreateTicket(ctx context.Context, req *CreateTicketRequest) (*Ticket, error)
}

// APIError 非预期状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d]: %s", e.StatusCode, e.Body)
}

// Client Freshdesk HTTP 客户端，Basic 认证（api_key:X）
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
	base := config.BaseURL
	if base == "" && config.Domain != "" {
		base = fmt.Sprintf("https://%s.freshdesk.com/api/v2", config.Domain)
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
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
	req.SetBasicAuth(c.apiKey, "X")
	return req, nil
}

// doRequest expect 为期望的状态码，0 表示任意 2xx
func (c *Client) doRequest(req *http.Request, expect int, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Freshdesk API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("Freshdesk API Response: %d %s", resp.StatusCode, string(body))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if expect != 0 {
		ok = resp.StatusCode == expect
	}
	if !ok {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Description != "" {
			return &APIError{StatusCode: resp.StatusCode, Body: errResp.Description}
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

func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, body interface{}, expect int, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("Freshdesk API retry attempt %d/%d", attempt, c.config.MaxRetries)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}
		if err := c.doRequest(req, expect, result); err != nil {
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

func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// SearchOpenTicketByEmail 查找该邮箱最近的打开状态工单，没有时返回 nil, nil
func (c *Client) SearchOpenTicketByEmail(ctx context.Context, email string) (*Ticket, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	query := fmt.Sprintf(`"requester_email:'%s' AND status:%d"`, email, StatusOpen)
	endpoint := "/search/tickets?query=" + url.QueryEscape(query)

	var resp searchResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// UpdateTicketCustomFields 更新工单自定义字段
func (c *Client) UpdateTicketCustomFields(ctx context.Context, ticketID int64, fields CustomFields) error {
	endpoint := fmt.Sprintf("/tickets/%d", ticketID)
	if err := c.doRequestWithRetry(ctx, http.MethodPut, endpoint, &updateTicketRequest{CustomFields: fields}, http.StatusOK, nil); err != nil {
		return fmt.Errorf("update ticket %d: %w", ticketID, err)
	}
	c.logger.Infof("Updated Freshdesk ticket #%d", ticketID)
	return nil
}

// CreateTicket 创建工单，期望 201
func (c *Client) CreateTicket(ctx context.Context, req *CreateTicketRequest) (*Ticket, error) {
	if req == nil || req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if req.Status == 0 {
		req.Status = StatusOpen
	}
	if req.Priority == 0 {
		req.Priority = PriorityMedium
	}
	if req.Source == 0 {
		req.Source = SourceEmail
	}

	var ticket Ticket
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/tickets", req, http.StatusCreated, &ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	c.logger.Infof("Created Freshdesk ticket #%d for %s", ticket.ID, req.Email)
	return &ticket, nil
}
