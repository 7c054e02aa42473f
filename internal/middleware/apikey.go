package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth API Key认证中间件。
// 配置中只存 bcrypt 散列，明文密钥不会出现在配置文件或日志里。
type APIKeyAuth struct {
	keyHash []byte
}

// NewAPIKeyAuth 创建API Key认证中间件。
// keyHash 为空表示关闭认证（本机单用户部署）。
func NewAPIKeyAuth(keyHash string) *APIKeyAuth {
	return &APIKeyAuth{keyHash: []byte(keyHash)}
}

// Enabled 是否启用了认证
func (m *APIKeyAuth) Enabled() bool {
	return len(m.keyHash) > 0
}

// RequireAPIKey 要求API Key认证
func (m *APIKeyAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(apiKey)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
