package sync

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// Deduplicator 去重引擎：把共享同一标准化地址的多条记录收敛为一条。
// 并发复制会在不同设备上产生同一别名的多份记录，这是可修复的瞬态，
// 本引擎幂等，可被定时器、前台返回、复制推送反复触发。
type Deduplicator struct {
	store storage.AliasRepository
	log   *zap.Logger
}

// NewDeduplicator 创建去重引擎。
func NewDeduplicator(store storage.AliasRepository, log *zap.Logger) *Deduplicator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deduplicator{store: store, log: log}
}

// Run 扫描全量记录并合并重复项，返回删除的记录数。
func (d *Deduplicator) Run() (int, error) {
	all, err := d.store.ListAliases()
	if err != nil {
		return 0, fmt.Errorf("failed to list aliases: %w", err)
	}

	groups := make(map[string][]*domain.AliasRecord)
	for _, record := range all {
		addr := record.NormalizedAddress()
		groups[addr] = append(groups[addr], record)
	}

	var survivors []*domain.AliasRecord
	var loserIDs []string

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		// 确定性排序：首位即幸存者
		sort.Slice(group, func(i, j int) bool {
			return preferRecord(group[i], group[j])
		})

		survivor := group[0]
		for _, loser := range group[1:] {
			mergeInto(survivor, loser)
			loserIDs = append(loserIDs, loser.ID)
		}
		survivors = append(survivors, survivor)
	}

	if len(loserIDs) == 0 {
		return 0, nil
	}

	// 先写幸存者再删失败者：中途失败最多留下重复，不会丢数据
	if err := d.store.SaveAliases(survivors); err != nil {
		return 0, fmt.Errorf("failed to save merged aliases: %w", err)
	}
	if err := d.store.DeleteAliases(loserIDs); err != nil {
		return 0, fmt.Errorf("failed to delete duplicate aliases: %w", err)
	}

	d.log.Info("deduplication completed",
		zap.Int("groups_merged", len(survivors)),
		zap.Int("removed", len(loserIDs)),
	)
	return len(loserIDs), nil
}

// preferRecord 判断 a 是否应优先于 b 作为幸存者。
// 依次比较：增强信号有无 → 增强字段数量 → 远端 tag 有无 →
// 创建时间新旧（nil 视为最早）→ ID 字典序（稳定兜底）。
func preferRecord(a, b *domain.AliasRecord) bool {
	if a.HasEnrichment() != b.HasEnrichment() {
		return a.HasEnrichment()
	}
	if a.EnrichmentCount() != b.EnrichmentCount() {
		return a.EnrichmentCount() > b.EnrichmentCount()
	}
	if (a.RemoteTag != nil) != (b.RemoteTag != nil) {
		return a.RemoteTag != nil
	}
	aCreated := createdOrZero(a)
	bCreated := createdOrZero(b)
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return a.ID < b.ID
}

// mergeInto 把 loser 中幸存者缺失的字段并入幸存者。
// 启用状态取逻辑或，避免合并时意外关停一个在用的别名。
func mergeInto(survivor, loser *domain.AliasRecord) {
	if survivor.Website == "" && loser.Website != "" {
		survivor.Website = loser.Website
	}
	if survivor.Notes == "" && loser.Notes != "" {
		survivor.Notes = loser.Notes
	}
	if survivor.ForwardTo == "" && loser.ForwardTo != "" {
		survivor.ForwardTo = loser.ForwardTo
	}
	if survivor.RemoteTag == nil && loser.RemoteTag != nil {
		survivor.RemoteTag = loser.RemoteTag
	}
	if survivor.Created == nil && loser.Created != nil {
		survivor.Created = loser.Created
	}
	if survivor.OwnerTag == "" && loser.OwnerTag != "" {
		survivor.OwnerTag = loser.OwnerTag
	}
	survivor.IsEnabled = survivor.IsEnabled || loser.IsEnabled
}

func createdOrZero(record *domain.AliasRecord) time.Time {
	if record.Created != nil {
		return *record.Created
	}
	return time.Time{}
}
