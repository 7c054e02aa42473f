package httptransport

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwtpkg "aliasflare/backend/internal/auth/jwt"
)

// AuthHandler 会话令牌处理器。
// WebSocket 握手带不了自定义请求头，客户端先在这里换取短期令牌。
type AuthHandler struct {
	tokens *jwtpkg.Manager
}

// NewAuthHandler 创建会话处理器
func NewAuthHandler(tokens *jwtpkg.Manager) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// CreateSession 签发 WebSocket 会话令牌。
// 进入此处说明 API Key 校验已通过（路由层中间件负责）。
func (h *AuthHandler) CreateSession(c *gin.Context) {
	session, err := h.tokens.IssueSessionToken(uuid.NewString())
	if err != nil {
		InternalError(c, MsgSessionIssueFail)
		return
	}
	Success(c, session)
}
