package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	storage.ErrAliasNotFound: "别名不存在",
	storage.ErrAliasExists:   "该地址的别名已存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired     = "需要认证"
	MsgInvalidAPIKey    = "API Key无效"
	MsgSessionIssueFail = "签发会话令牌失败"

	// 别名相关
	MsgAliasCreateFailed = "创建别名失败"
	MsgAliasNotFound     = "别名不存在"
	MsgAliasListFailed   = "获取别名列表失败"
	MsgAliasUpdateFailed = "更新别名失败"
	MsgAliasDeleteFailed = "删除别名失败"
	MsgAliasToggleFailed = "切换别名状态失败"

	// 同步相关
	MsgSyncTriggered = "同步已触发"
	MsgSyncSkipped   = "同步正在进行中或处于冷却期，本次请求已跳过"

	// 远端相关
	MsgUpstreamUnavailable = "邮件路由服务暂时不可用，请稍后重试"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)

// respondAliasError 按错误类型选择响应。
// 远端网络/接口错误映射为 502，本地找不到记录映射为 404。
func respondAliasError(c *gin.Context, err error, fallback string) {
	var netErr *cloudflare.NetworkError
	var apiErr *cloudflare.APIError

	switch {
	case errors.Is(err, storage.ErrAliasNotFound):
		NotFound(c, MsgAliasNotFound)
	case errors.Is(err, storage.ErrAliasExists):
		Conflict(c, GetErrorMessage(err))
	case errors.As(err, &netErr):
		BadGateway(c, MsgUpstreamUnavailable)
	case errors.As(err, &apiErr):
		BadGateway(c, GetErrorMessage(err))
	default:
		InternalError(c, fallback)
	}
}
