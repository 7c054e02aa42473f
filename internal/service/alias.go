package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/monitoring"
	"aliasflare/backend/internal/storage"
)

// AliasService 封装别名的创建、编辑、删除流程。
// 所有写操作都先打远端再落本地：远端失败时本地不留半成品记录。
type AliasService struct {
	store    storage.AliasRepository
	api      cloudflare.API
	replica  storage.ReplicaStore // 允许为 nil（未配置复制存储）
	metrics  *monitoring.Metrics  // 允许为 nil
	ownerTag string
	log      *zap.Logger
}

// NewAliasService 创建别名业务服务。
func NewAliasService(
	store storage.AliasRepository,
	api cloudflare.API,
	replica storage.ReplicaStore,
	metrics *monitoring.Metrics,
	ownerTag string,
	log *zap.Logger,
) *AliasService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AliasService{
		store:    store,
		api:      api,
		replica:  replica,
		metrics:  metrics,
		ownerTag: ownerTag,
		log:      log,
	}
}

// CreateAliasInput 定义创建别名的输入。
type CreateAliasInput struct {
	ZoneID    string
	Address   string // 完整的别名地址，如 shop@example.com
	ForwardTo string // 转发目标地址
	Website   string
	Notes     string
}

// Create 创建一个新的别名。
//
// 顺序固定为：远端建规则 -> 本地落记录 -> 推送复制存储。
// 本地写入失败时记录已存在于远端，下一轮对账会把它补回来。
func (s *AliasService) Create(ctx context.Context, input CreateAliasInput) (*domain.AliasRecord, error) {
	address := domain.NormalizeAddress(input.Address)
	forwardTo := domain.NormalizeAddress(input.ForwardTo)

	if err := domain.ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := domain.ValidateAddress(forwardTo); err != nil {
		return nil, fmt.Errorf("invalid forward target: %w", err)
	}
	if input.ZoneID == "" {
		return nil, fmt.Errorf("zone id is required")
	}

	if _, err := s.store.GetAliasByAddress(address); err == nil {
		return nil, storage.ErrAliasExists
	}

	rule, err := s.api.CreateRule(ctx, input.ZoneID, address, forwardTo)
	if err != nil {
		return nil, fmt.Errorf("failed to create routing rule: %w", err)
	}

	now := time.Now().UTC()
	record := &domain.AliasRecord{
		ID:           uuid.NewString(),
		EmailAddress: address,
		ForwardTo:    forwardTo,
		RemoteTag:    &rule.Tag,
		IsEnabled:    rule.Enabled,
		Website:      strings.TrimSpace(input.Website),
		Notes:        strings.TrimSpace(input.Notes),
		Created:      &now,
		SortIndex:    s.nextLocalSortIndex(),
		ZoneID:       input.ZoneID,
		OwnerTag:     s.ownerTag,
	}

	if err := s.store.SaveAlias(record); err != nil {
		return nil, fmt.Errorf("rule created remotely but failed to save locally: %w", err)
	}

	s.publishReplica(ctx, record)

	if s.metrics != nil {
		s.metrics.AliasesCreated.Inc()
	}
	s.log.Info("alias created",
		zap.String("alias_id", record.ID),
		zap.String("zone_id", record.ZoneID),
	)
	return record, nil
}

// UpdateAliasInput 定义编辑别名的输入。nil 字段表示不修改。
type UpdateAliasInput struct {
	ForwardTo *string
	IsEnabled *bool
	Website   *string
	Notes     *string
}

// Update 编辑别名。转发目标和启用状态会同步到远端规则，
// 备注和网站是仅本地的增强字段，改完推送复制存储。
func (s *AliasService) Update(ctx context.Context, aliasID string, input UpdateAliasInput) (*domain.AliasRecord, error) {
	record, err := s.store.GetAlias(aliasID)
	if err != nil {
		return nil, err
	}

	remoteDirty := false
	if input.ForwardTo != nil {
		forwardTo := domain.NormalizeAddress(*input.ForwardTo)
		if err := domain.ValidateAddress(forwardTo); err != nil {
			return nil, fmt.Errorf("invalid forward target: %w", err)
		}
		if forwardTo != record.ForwardTo {
			record.ForwardTo = forwardTo
			remoteDirty = true
		}
	}
	if input.IsEnabled != nil && *input.IsEnabled != record.IsEnabled {
		record.IsEnabled = *input.IsEnabled
		remoteDirty = true
	}
	if input.Website != nil {
		record.Website = strings.TrimSpace(*input.Website)
	}
	if input.Notes != nil {
		record.Notes = strings.TrimSpace(*input.Notes)
	}

	if remoteDirty {
		if record.RemoteTag == nil {
			return nil, fmt.Errorf("alias has no remote rule yet, retry after next sync")
		}
		if _, err := s.api.UpdateRule(ctx, record.ZoneID, ruleFromRecord(record)); err != nil {
			return nil, fmt.Errorf("failed to update routing rule: %w", err)
		}
	}

	if err := s.store.SaveAlias(record); err != nil {
		return nil, fmt.Errorf("failed to save alias: %w", err)
	}

	s.publishReplica(ctx, record)
	return record, nil
}

// Toggle 切换别名的启用状态。
func (s *AliasService) Toggle(ctx context.Context, aliasID string, enabled bool) (*domain.AliasRecord, error) {
	return s.Update(ctx, aliasID, UpdateAliasInput{IsEnabled: &enabled})
}

// Delete 删除别名：先删远端规则，成功后再删本地记录。
// 远端规则已不存在（404）时按成功处理，继续清理本地。
func (s *AliasService) Delete(ctx context.Context, aliasID string) error {
	record, err := s.store.GetAlias(aliasID)
	if err != nil {
		return err
	}

	if record.RemoteTag != nil {
		err := s.api.DeleteRule(ctx, record.ZoneID, *record.RemoteTag)
		if err != nil && !cloudflare.IsNotFound(err) {
			return fmt.Errorf("failed to delete routing rule: %w", err)
		}
	}

	if err := s.store.DeleteAlias(record.ID); err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}

	if s.metrics != nil {
		s.metrics.AliasesDeleted.Inc()
	}
	s.log.Info("alias deleted",
		zap.String("alias_id", record.ID),
		zap.String("zone_id", record.ZoneID),
	)
	return nil
}

// Get 获取别名详情。
func (s *AliasService) Get(aliasID string) (*domain.AliasRecord, error) {
	return s.store.GetAlias(aliasID)
}

// GetByAddress 根据地址获取别名。
func (s *AliasService) GetByAddress(address string) (*domain.AliasRecord, error) {
	return s.store.GetAliasByAddress(domain.NormalizeAddress(address))
}

// List 列出全部别名，按 sortIndex 升序排列。
// 本次同步前新建的记录 sortIndex 为 0 或负数，排在最前。
func (s *AliasService) List() ([]*domain.AliasRecord, error) {
	records, err := s.store.ListAliases()
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// ListByZone 列出指定区域的别名，按 sortIndex 升序排列。
func (s *AliasService) ListByZone(zoneID string) ([]*domain.AliasRecord, error) {
	records, err := s.store.ListAliasesByZone(zoneID)
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

// BulkCreateResult 批量创建的逐行结果。
type BulkCreateResult struct {
	Address string `json:"address"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkCreate 批量创建别名，逐条执行，单条失败不影响其余。
func (s *AliasService) BulkCreate(ctx context.Context, inputs []CreateAliasInput) []BulkCreateResult {
	results := make([]BulkCreateResult, 0, len(inputs))
	for _, input := range inputs {
		result := BulkCreateResult{Address: domain.NormalizeAddress(input.Address)}
		record, err := s.Create(ctx, input)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.ID = record.ID
		}
		results = append(results, result)
	}
	return results
}

// nextLocalSortIndex 给本地新建记录分配排序号。
// 同步后的记录从 1 起编号，本地新建记录依次拿 0、-1、-2……
// 保证新建的总排在列表最前，直到下一轮同步按远端顺序重排。
func (s *AliasService) nextLocalSortIndex() int {
	min, err := s.store.MinSortIndex()
	if err != nil || min > 0 {
		min = 1
	}
	return min - 1
}

func (s *AliasService) publishReplica(ctx context.Context, record *domain.AliasRecord) {
	if s.replica == nil {
		return
	}
	if err := s.replica.Publish(ctx, record); err != nil {
		// 复制推送失败不阻塞用户流程，等下一轮回填
		s.log.Warn("failed to publish alias to replica store",
			zap.String("alias_id", record.ID),
			zap.Error(err),
		)
	}
}

func ruleFromRecord(record *domain.AliasRecord) cloudflare.Rule {
	return cloudflare.Rule{
		Tag: *record.RemoteTag,
		Matchers: []cloudflare.Matcher{
			{Type: "literal", Field: "to", Value: record.EmailAddress},
		},
		Actions: []cloudflare.Action{
			{Type: "forward", Value: []string{record.ForwardTo}},
		},
		Enabled: record.IsEnabled,
	}
}

func sortRecords(records []*domain.AliasRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SortIndex < records[j].SortIndex
	})
}

