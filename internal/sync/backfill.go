package sync

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// Backfiller 回填引擎：从复制存储的快照中补齐本地记录缺失的增强字段。
// 只填空位，绝不用复制数据覆盖已有的本地值。
type Backfiller struct {
	store   storage.AliasRepository
	replica storage.ReplicaStore
	log     *zap.Logger

	// Idle -> Fetching -> Merging -> Idle；合并期间到达的调用直接丢弃，
	// 由下一个周期性触发补上
	merging atomic.Bool
}

// NewBackfiller 创建回填引擎。
func NewBackfiller(store storage.AliasRepository, replica storage.ReplicaStore, log *zap.Logger) *Backfiller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backfiller{store: store, replica: replica, log: log}
}

// Run 执行一次回填，返回被修改的记录数。
// 复制存储不可达或为空时按空操作处理，不算错误。
// 上一轮仍在进行时本次调用直接跳过。
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	if !b.merging.CompareAndSwap(false, true) {
		b.log.Debug("backfill already in progress, skipping")
		return 0, nil
	}
	defer b.merging.Store(false)

	snapshot, err := b.replica.Snapshot(ctx)
	if err != nil {
		b.log.Warn("replica store unreachable, skipping backfill", zap.Error(err))
		return 0, nil
	}
	if len(snapshot) == 0 {
		return 0, nil
	}

	best := bestByAddress(snapshot)

	locals, err := b.store.ListAliases()
	if err != nil {
		b.log.Warn("failed to list local aliases for backfill", zap.Error(err))
		return 0, nil
	}

	var changed []*domain.AliasRecord
	for _, local := range locals {
		remote, ok := best[local.NormalizedAddress()]
		if !ok {
			continue
		}

		dirty := false
		if local.Notes == "" && remote.Notes != "" {
			local.Notes = remote.Notes
			dirty = true
		}
		if local.Website == "" && remote.Website != "" {
			local.Website = remote.Website
			dirty = true
		}
		if local.Created == nil && remote.Created != nil {
			local.Created = remote.Created
			dirty = true
		}
		if dirty {
			changed = append(changed, local)
		}
	}

	if len(changed) == 0 {
		return 0, nil
	}

	if err := b.store.SaveAliases(changed); err != nil {
		b.log.Warn("failed to persist backfilled aliases", zap.Error(err))
		return 0, nil
	}

	b.log.Info("metadata backfill completed", zap.Int("enriched", len(changed)))
	return len(changed), nil
}

// bestByAddress 在同一地址的多份复制副本中挑增强字段最多的一份，
// 数量相同保留先出现的。
func bestByAddress(snapshot []domain.ReplicatedAlias) map[string]domain.ReplicatedAlias {
	best := make(map[string]domain.ReplicatedAlias, len(snapshot))
	for _, record := range snapshot {
		addr := record.NormalizedAddress()
		if addr == "" {
			continue
		}
		if existing, ok := best[addr]; ok && record.EnrichmentCount() <= existing.EnrichmentCount() {
			continue
		}
		best[addr] = record
	}
	return best
}
