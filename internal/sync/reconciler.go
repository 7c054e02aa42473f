package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// ReconcileResult 汇总一次对账的变更数量。
type ReconcileResult struct {
	Fetched int `json:"fetched"` // 远端返回的规则总数
	Usable  int `json:"usable"`  // 其中可映射为别名记录的数量
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Reconciler 对账引擎：让本地记录集的成员关系与远端规则集完全一致，
// 同时保留仅存在于本地的增强字段。
type Reconciler struct {
	store storage.AliasRepository
	api   cloudflare.API
	log   *zap.Logger

	mu       sync.RWMutex
	forwards map[string]struct{} // 所有规则中出现过的转发目标，供创建/编辑流程选用
}

// NewReconciler 创建对账引擎。
func NewReconciler(store storage.AliasRepository, api cloudflare.API, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		api:      api,
		log:      log,
		forwards: make(map[string]struct{}),
	}
}

// Reconcile 对指定区域执行一次完整对账。
//
// 删除范围严格限定在本次拉取的区域内：属于其他区域的记录
// 绝不会因为本区域的拉取结果而被删除。
func (r *Reconciler) Reconcile(ctx context.Context, zoneID string) (*ReconcileResult, error) {
	rules, err := r.api.ListRules(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules for zone %s: %w", zoneID, err)
	}

	// 过滤掉无法映射的规则（catch-all、drop、空目标），静默跳过
	usable := make([]cloudflare.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Usable() {
			usable = append(usable, rule)
		}
	}

	result := &ReconcileResult{Fetched: len(rules), Usable: len(usable)}

	remoteByAddr := make(map[string]struct{}, len(usable))
	for _, rule := range usable {
		remoteByAddr[domain.NormalizeAddress(rule.MatchAddress())] = struct{}{}
	}

	locals, err := r.store.ListAliases()
	if err != nil {
		return nil, fmt.Errorf("failed to list local aliases: %w", err)
	}

	// 同一地址可能暂存多条重复记录（由去重引擎收敛），
	// 这里优先索引带远端 tag 的那条
	localByAddr := make(map[string]*domain.AliasRecord, len(locals))
	for _, local := range locals {
		addr := local.NormalizedAddress()
		if existing, ok := localByAddr[addr]; ok && existing.RemoteTag != nil {
			continue
		}
		localByAddr[addr] = local
	}

	// 删除阶段：本区域中远端已不存在的记录
	var deleteIDs []string
	for _, local := range locals {
		if local.ZoneID != zoneID {
			continue
		}
		if _, ok := remoteByAddr[local.NormalizedAddress()]; !ok {
			deleteIDs = append(deleteIDs, local.ID)
		}
	}

	// 写入阶段：按 API 返回顺序更新或新建。
	// sortIndex 从 1 开始，0 和负数保留给下次同步前本地新建的记录。
	var upserts []*domain.AliasRecord
	for i := range usable {
		rule := &usable[i]
		addr := domain.NormalizeAddress(rule.MatchAddress())
		tag := rule.Tag

		if local, ok := localByAddr[addr]; ok {
			local.RemoteTag = &tag
			local.IsEnabled = rule.Enabled
			local.ForwardTo = rule.ForwardTarget()
			local.SortIndex = i + 1
			local.ZoneID = zoneID
			upserts = append(upserts, local)
			result.Updated++
		} else {
			// 之前未见过的规则：非本会话手动创建，创建时间未知
			upserts = append(upserts, &domain.AliasRecord{
				ID:           uuid.NewString(),
				EmailAddress: rule.MatchAddress(),
				ForwardTo:    rule.ForwardTarget(),
				RemoteTag:    &tag,
				IsEnabled:    rule.Enabled,
				Created:      nil,
				SortIndex:    i + 1,
				ZoneID:       zoneID,
			})
			result.Created++
		}
	}

	// 尽力顺序保存：部分失败不回滚已成功的写入，错误上抛由调用方展示
	var saveErr error
	if len(upserts) > 0 {
		saveErr = r.store.SaveAliases(upserts)
	}
	if len(deleteIDs) > 0 {
		if err := r.store.DeleteAliases(deleteIDs); err != nil && saveErr == nil {
			saveErr = err
		}
		result.Deleted = len(deleteIDs)
	}

	r.publishForwards(usable)

	r.log.Info("reconciliation completed",
		zap.String("zone_id", zoneID),
		zap.Int("fetched", result.Fetched),
		zap.Int("usable", result.Usable),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
	)

	if saveErr != nil {
		return result, fmt.Errorf("failed to persist reconciliation changes: %w", saveErr)
	}
	return result, nil
}

// publishForwards 记录本次规则集中出现过的全部转发目标。
func (r *Reconciler) publishForwards(rules []cloudflare.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rule := range rules {
		if target := rule.ForwardTarget(); target != "" {
			r.forwards[domain.NormalizeAddress(target)] = struct{}{}
		}
	}
}

// KnownForwardAddresses 返回已见过的转发目标地址，按字典序排列。
func (r *Reconciler) KnownForwardAddresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.forwards))
	for addr := range r.forwards {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
