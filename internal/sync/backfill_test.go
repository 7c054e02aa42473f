package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage/memory"
)

func TestBackfiller_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("补齐缺失的增强字段", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "bare",
			EmailAddress: "shop@example.com",
		}))

		created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		replica := &fakeReplica{snapshot: []domain.ReplicatedAlias{
			{EmailAddress: "shop@example.com", Notes: "注册用", Website: "https://shop.example.com", Created: &created},
		}}

		b := NewBackfiller(store, replica, nil)
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, enriched)

		record, err := store.GetAlias("bare")
		require.NoError(t, err)
		assert.Equal(t, "注册用", record.Notes)
		assert.Equal(t, "https://shop.example.com", record.Website)
		require.NotNil(t, record.Created)
		assert.True(t, record.Created.Equal(created))
	})

	t.Run("绝不覆盖已有本地值", func(t *testing.T) {
		store := memory.NewStore()
		localCreated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "filled",
			EmailAddress: "shop@example.com",
			Notes:        "本地备注",
			Website:      "https://local.example.com",
			Created:      &localCreated,
		}))

		remoteCreated := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		replica := &fakeReplica{snapshot: []domain.ReplicatedAlias{
			{EmailAddress: "shop@example.com", Notes: "复制备注", Website: "https://remote.example.com", Created: &remoteCreated},
		}}

		b := NewBackfiller(store, replica, nil)
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, enriched)

		record, err := store.GetAlias("filled")
		require.NoError(t, err)
		assert.Equal(t, "本地备注", record.Notes)
		assert.Equal(t, "https://local.example.com", record.Website)
		assert.True(t, record.Created.Equal(localCreated))
	})

	t.Run("同地址多副本选增强字段最多的", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "bare",
			EmailAddress: "shop@example.com",
		}))

		created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		replica := &fakeReplica{snapshot: []domain.ReplicatedAlias{
			{EmailAddress: "shop@example.com", Notes: "只有备注"},
			{EmailAddress: "shop@example.com", Notes: "全量", Website: "https://w", Created: &created},
			{EmailAddress: "shop@example.com", Website: "https://only-site"},
		}}

		b := NewBackfiller(store, replica, nil)
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, enriched)

		record, err := store.GetAlias("bare")
		require.NoError(t, err)
		assert.Equal(t, "全量", record.Notes)
		assert.Equal(t, "https://w", record.Website)
	})

	t.Run("复制存储不可达按空操作处理", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "keep",
			EmailAddress: "shop@example.com",
			Notes:        "原样",
		}))

		replica := &fakeReplica{snapshotErr: errors.New("connection refused")}

		b := NewBackfiller(store, replica, nil)
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, enriched)

		record, err := store.GetAlias("keep")
		require.NoError(t, err)
		assert.Equal(t, "原样", record.Notes)
	})

	t.Run("快照为空不报错", func(t *testing.T) {
		store := memory.NewStore()
		replica := &fakeReplica{}

		b := NewBackfiller(store, replica, nil)
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, enriched)
	})

	t.Run("上一轮未结束时直接跳过", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "bare",
			EmailAddress: "shop@example.com",
		}))

		gate := make(chan struct{})
		replica := &fakeReplica{
			snapshot:     []domain.ReplicatedAlias{{EmailAddress: "shop@example.com", Notes: "n"}},
			snapshotGate: gate,
		}

		b := NewBackfiller(store, replica, nil)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			enriched, err := b.Run(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 1, enriched)
		}()

		// 等第一轮进入快照拉取阶段
		require.Eventually(t, func() bool {
			return replica.calls() == 1
		}, time.Second, 5*time.Millisecond)

		// 第二轮立即返回，不再访问复制存储
		enriched, err := b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, enriched)
		assert.Equal(t, 1, replica.calls())

		close(gate)
		wg.Wait()

		// 合并结束后再次调用恢复正常
		enriched, err = b.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, enriched) // 字段已填过，无新变更
		assert.Equal(t, 2, replica.calls())
	})
}
