package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	defaultTimeout = 10 * time.Second
	rulesPerPage   = 50
	maxErrorBody   = 512 // 诊断日志中保留的响应体长度上限
)

// API 定义 Email Routing 规则的远端操作。
// 同步引擎和用户编辑流程都通过该接口访问 Cloudflare，测试中用假实现替换。
type API interface {
	ListRules(ctx context.Context, zoneID string) ([]Rule, error)
	CreateRule(ctx context.Context, zoneID, address, target string) (*Rule, error)
	UpdateRule(ctx context.Context, zoneID string, rule Rule) (*Rule, error)
	DeleteRule(ctx context.Context, zoneID, tag string) error
}

// Client Cloudflare Email Routing API 客户端。
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient 创建 Cloudflare 客户端。
//
// API Token 只进请求头，任何日志和错误信息中都不得出现。
func NewClient(baseURL, token string, timeout time.Duration, log *zap.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
		// Cloudflare API 全局限流 1200 次/5分钟，留出安全余量
		limiter: rate.NewLimiter(rate.Limit(4), 8),
		log:     log,
	}
}

// ListRules 拉取指定区域的全部转发规则，自动翻页直到取完。
func (c *Client) ListRules(ctx context.Context, zoneID string) ([]Rule, error) {
	var rules []Rule
	page := 1

	for {
		url := fmt.Sprintf("%s/zones/%s/email/routing/rules?page=%d&per_page=%d",
			c.baseURL, zoneID, page, rulesPerPage)

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
			return nil, err
		}

		rules = append(rules, resp.Result...)

		total := resp.ResultInfo.TotalCount
		if total <= 0 || len(rules) >= total || len(resp.Result) == 0 {
			break
		}
		page++
	}

	c.log.Debug("fetched email routing rules",
		zap.String("zone_id", zoneID),
		zap.Int("count", len(rules)),
	)
	return rules, nil
}

// CreateRule 为 address 创建转发到 target 的规则，返回带远端 tag 的规则。
func (c *Client) CreateRule(ctx context.Context, zoneID, address, target string) (*Rule, error) {
	url := fmt.Sprintf("%s/zones/%s/email/routing/rules", c.baseURL, zoneID)
	body := ruleRequest{
		Matchers: []Matcher{{Type: "literal", Field: "to", Value: address}},
		Actions:  []Action{{Type: "forward", Value: []string{target}}},
		Enabled:  true,
		Priority: 0,
	}

	var resp ruleResponse
	if err := c.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// UpdateRule 按 tag 更新规则。
func (c *Client) UpdateRule(ctx context.Context, zoneID string, rule Rule) (*Rule, error) {
	url := fmt.Sprintf("%s/zones/%s/email/routing/rules/%s", c.baseURL, zoneID, rule.Tag)
	body := ruleRequest{
		Matchers: rule.Matchers,
		Actions:  rule.Actions,
		Enabled:  rule.Enabled,
		Priority: rule.Priority,
	}

	var resp ruleResponse
	if err := c.do(ctx, http.MethodPut, url, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// DeleteRule 按 tag 删除规则。
func (c *Client) DeleteRule(ctx context.Context, zoneID, tag string) error {
	url := fmt.Sprintf("%s/zones/%s/email/routing/rules/%s", c.baseURL, zoneID, tag)

	var resp ruleResponse
	return c.do(ctx, http.MethodDelete, url, nil, &resp)
}

// do 发送请求并解析统一响应信封。
func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeAPIError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodingError{Body: truncate(raw), Err: err}
	}
	return nil
}

// decodeAPIError 从错误信封中取 errors[0].message，解析失败时用通用文案。
func (c *Client) decodeAPIError(statusCode int, raw []byte) error {
	var envelope struct {
		Success bool       `json:"success"`
		Errors  []apiError `json:"errors"`
	}
	apiErr := &APIError{StatusCode: statusCode, Message: "request failed"}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Errors) > 0 {
		apiErr.Code = envelope.Errors[0].Code
		apiErr.Message = envelope.Errors[0].Message
	}

	c.log.Warn("cloudflare api request failed",
		zap.Int("status", statusCode),
		zap.Int("code", apiErr.Code),
		zap.String("message", apiErr.Message),
	)
	return apiErr
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBody {
		return string(raw[:maxErrorBody])
	}
	return string(raw)
}
