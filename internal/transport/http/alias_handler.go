package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/service"
)

// AliasHandler 别名管理处理器
type AliasHandler struct {
	aliases *service.AliasService
}

// NewAliasHandler 创建别名处理器
func NewAliasHandler(aliases *service.AliasService) *AliasHandler {
	return &AliasHandler{aliases: aliases}
}

type createAliasRequest struct {
	ZoneID    string `json:"zoneId" binding:"required"`
	Address   string `json:"address" binding:"required"`
	ForwardTo string `json:"forwardTo" binding:"required"`
	Website   string `json:"website"`
	Notes     string `json:"notes"`
}

type updateAliasRequest struct {
	ForwardTo *string `json:"forwardTo"`
	IsEnabled *bool   `json:"isEnabled"`
	Website   *string `json:"website"`
	Notes     *string `json:"notes"`
}

type toggleAliasRequest struct {
	IsEnabled bool `json:"isEnabled"`
}

type bulkCreateRequest struct {
	Items []createAliasRequest `json:"items" binding:"required"`
}

type aliasResponse struct {
	ID           string     `json:"id"`
	EmailAddress string     `json:"emailAddress"`
	ForwardTo    string     `json:"forwardTo"`
	IsEnabled    bool       `json:"isEnabled"`
	Website      string     `json:"website,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Created      *time.Time `json:"created,omitempty"`
	SortIndex    int        `json:"sortIndex"`
	ZoneID       string     `json:"zoneId"`
	Synced       bool       `json:"synced"` // 是否已有对应的远端规则
}

type aliasListResponse struct {
	Items []aliasResponse `json:"items"`
	Count int             `json:"count"`
}

// CreateAlias 创建别名
func (h *AliasHandler) CreateAlias(c *gin.Context) {
	var req createAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.aliases.Create(c.Request.Context(), service.CreateAliasInput{
		ZoneID:    req.ZoneID,
		Address:   req.Address,
		ForwardTo: req.ForwardTo,
		Website:   req.Website,
		Notes:     req.Notes,
	})
	if err != nil {
		respondAliasError(c, err, MsgAliasCreateFailed)
		return
	}

	Created(c, toAliasResponse(record))
}

// BulkCreateAliases 批量创建别名
func (h *AliasHandler) BulkCreateAliases(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(req.Items) == 0 {
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	inputs := make([]service.CreateAliasInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, service.CreateAliasInput{
			ZoneID:    item.ZoneID,
			Address:   item.Address,
			ForwardTo: item.ForwardTo,
			Website:   item.Website,
			Notes:     item.Notes,
		})
	}

	results := h.aliases.BulkCreate(c.Request.Context(), inputs)
	Success(c, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// ListAliases 列出别名（可按区域过滤）
func (h *AliasHandler) ListAliases(c *gin.Context) {
	var (
		records []*domain.AliasRecord
		err     error
	)

	if zoneID := c.Query("zoneId"); zoneID != "" {
		records, err = h.aliases.ListByZone(zoneID)
	} else {
		records, err = h.aliases.List()
	}
	if err != nil {
		InternalError(c, MsgAliasListFailed)
		return
	}

	items := make([]aliasResponse, 0, len(records))
	for _, record := range records {
		items = append(items, toAliasResponse(record))
	}

	Success(c, aliasListResponse{
		Items: items,
		Count: len(items),
	})
}

// GetAlias 获取别名详情
func (h *AliasHandler) GetAlias(c *gin.Context) {
	record, err := h.aliases.Get(c.Param("id"))
	if err != nil {
		NotFound(c, MsgAliasNotFound)
		return
	}
	Success(c, toAliasResponse(record))
}

// UpdateAlias 编辑别名
func (h *AliasHandler) UpdateAlias(c *gin.Context) {
	var req updateAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.aliases.Update(c.Request.Context(), c.Param("id"), service.UpdateAliasInput{
		ForwardTo: req.ForwardTo,
		IsEnabled: req.IsEnabled,
		Website:   req.Website,
		Notes:     req.Notes,
	})
	if err != nil {
		respondAliasError(c, err, MsgAliasUpdateFailed)
		return
	}

	Success(c, toAliasResponse(record))
}

// ToggleAlias 切换别名启用状态
func (h *AliasHandler) ToggleAlias(c *gin.Context) {
	var req toggleAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.aliases.Toggle(c.Request.Context(), c.Param("id"), req.IsEnabled)
	if err != nil {
		respondAliasError(c, err, MsgAliasToggleFailed)
		return
	}

	Success(c, toAliasResponse(record))
}

// DeleteAlias 删除别名
func (h *AliasHandler) DeleteAlias(c *gin.Context) {
	if err := h.aliases.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondAliasError(c, err, MsgAliasDeleteFailed)
		return
	}
	NoContent(c)
}

// toAliasResponse 转换实体为响应体。
func toAliasResponse(record *domain.AliasRecord) aliasResponse {
	return aliasResponse{
		ID:           record.ID,
		EmailAddress: record.EmailAddress,
		ForwardTo:    record.ForwardTo,
		IsEnabled:    record.IsEnabled,
		Website:      record.Website,
		Notes:        record.Notes,
		Created:      record.Created,
		SortIndex:    record.SortIndex,
		ZoneID:       record.ZoneID,
		Synced:       record.RemoteTag != nil,
	}
}
