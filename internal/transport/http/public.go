package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"aliasflare/backend/internal/cache"
	"aliasflare/backend/internal/sync"
)

const forwardAddressesCacheKey = "forward-addresses"

// PublicHandler 公开API处理器
type PublicHandler struct {
	coordinator *sync.Coordinator
	zones       []string
	cache       *cache.LocalCache
}

// NewPublicHandler 创建公开API处理器
func NewPublicHandler(coordinator *sync.Coordinator, zones []string) *PublicHandler {
	return &PublicHandler{
		coordinator: coordinator,
		zones:       zones,
		cache:       cache.NewLocalCache(30 * time.Second),
	}
}

// GetZones 返回服务管理的区域ID列表
func (h *PublicHandler) GetZones(c *gin.Context) {
	Success(c, gin.H{
		"zones": h.zones,
		"count": len(h.zones),
	})
}

// GetForwardAddresses 返回规则集中出现过的转发目标地址，
// 供创建/编辑表单做下拉候选。端点无需认证，结果短暂缓存，
// 免得每个请求都全量扫描记录集。
func (h *PublicHandler) GetForwardAddresses(c *gin.Context) {
	var addresses []string
	if cached, ok := h.cache.Get(forwardAddressesCacheKey); ok {
		addresses = cached.([]string)
	} else {
		addresses = h.coordinator.KnownForwardAddresses()
		h.cache.Set(forwardAddressesCacheKey, addresses, 0)
	}

	Success(c, gin.H{
		"addresses": addresses,
		"count":     len(addresses),
	})
}
