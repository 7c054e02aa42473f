package cloudflare

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError 传输层错误（连接失败、超时）。调用方可按自己的策略重试。
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cloudflare network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError 非 200 响应携带的结构化错误。只应由用户显式操作触发重试。
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cloudflare api error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("cloudflare api error (HTTP %d)", e.StatusCode)
}

// DecodingError 响应体解析失败，不可重试。
// Body 为截断后的原始内容，仅用于诊断，绝不包含请求凭证。
type DecodingError struct {
	Body string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("cloudflare response decoding error: %v", e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// IsNotFound 判断错误是否表示远端资源已不存在。
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ErrorKind 返回错误的分类标签，供监控指标使用。
func ErrorKind(err error) string {
	var netErr *NetworkError
	var apiErr *APIError
	var decErr *DecodingError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &decErr):
		return "decoding"
	default:
		return "other"
	}
}
