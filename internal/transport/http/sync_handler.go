package httptransport

import (
	"github.com/gin-gonic/gin"

	"aliasflare/backend/internal/sync"
)

// SyncHandler 同步控制处理器
type SyncHandler struct {
	coordinator *sync.Coordinator
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(coordinator *sync.Coordinator) *SyncHandler {
	return &SyncHandler{coordinator: coordinator}
}

// TriggerSync 手动触发一次完整同步。
// 同步在后台执行，接口立即返回；进度经 WebSocket 或状态端点查询。
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	if !h.coordinator.RequestSync(sync.ReasonManual) {
		TooManyRequests(c, MsgSyncSkipped)
		return
	}
	Accepted(c, MsgSyncTriggered, nil)
}

// GetSyncStatus 查询同步状态
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	Success(c, h.coordinator.Status())
}
