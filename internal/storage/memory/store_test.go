package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

func newRecord(id, address string) *domain.AliasRecord {
	return &domain.AliasRecord{
		ID:           id,
		EmailAddress: address,
		ForwardTo:    "me@dest.com",
		IsEnabled:    true,
		ZoneID:       "zone-1",
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore()

	t.Run("保存后可按 ID 获取", func(t *testing.T) {
		record := newRecord("id-1", "Shop@Example.com")
		require.NoError(t, store.SaveAlias(record))

		got, err := store.GetAlias("id-1")
		require.NoError(t, err)
		assert.Equal(t, "Shop@Example.com", got.EmailAddress)
	})

	t.Run("按地址查询不区分大小写", func(t *testing.T) {
		got, err := store.GetAliasByAddress("shop@EXAMPLE.com")
		require.NoError(t, err)
		assert.Equal(t, "id-1", got.ID)
	})

	t.Run("获取不存在的记录返回 ErrAliasNotFound", func(t *testing.T) {
		_, err := store.GetAlias("missing")
		assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	})

	t.Run("返回的是副本，外部修改不影响存储", func(t *testing.T) {
		got, err := store.GetAlias("id-1")
		require.NoError(t, err)
		got.Notes = "mutated"

		again, err := store.GetAlias("id-1")
		require.NoError(t, err)
		assert.Empty(t, again.Notes)
	})
}

func TestStore_ListAndDelete(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveAliases([]*domain.AliasRecord{
		newRecord("id-1", "a@example.com"),
		newRecord("id-2", "b@example.com"),
		newRecord("id-3", "c@other.com"),
	}))

	t.Run("ListAliases 返回全部记录", func(t *testing.T) {
		all, err := store.ListAliases()
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("重复地址的记录都会被列出", func(t *testing.T) {
		require.NoError(t, store.SaveAlias(newRecord("id-dup", "a@example.com")))

		all, err := store.ListAliases()
		require.NoError(t, err)
		assert.Len(t, all, 4)

		require.NoError(t, store.DeleteAlias("id-dup"))
	})

	t.Run("按区域过滤", func(t *testing.T) {
		other := newRecord("id-z2", "z@zone2.com")
		other.ZoneID = "zone-2"
		require.NoError(t, store.SaveAlias(other))

		zone2, err := store.ListAliasesByZone("zone-2")
		require.NoError(t, err)
		assert.Len(t, zone2, 1)
	})

	t.Run("批量删除", func(t *testing.T) {
		require.NoError(t, store.DeleteAliases([]string{"id-1", "id-2"}))

		_, err := store.GetAlias("id-1")
		assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	})
}

func TestStore_MinSortIndex(t *testing.T) {
	store := NewStore()

	t.Run("空存储返回 0", func(t *testing.T) {
		min, err := store.MinSortIndex()
		require.NoError(t, err)
		assert.Equal(t, 0, min)
	})

	t.Run("返回最小排序键，包括负值", func(t *testing.T) {
		a := newRecord("id-1", "a@example.com")
		a.SortIndex = 3
		b := newRecord("id-2", "b@example.com")
		b.SortIndex = -2
		now := time.Now().UTC()
		b.Created = &now
		require.NoError(t, store.SaveAliases([]*domain.AliasRecord{a, b}))

		min, err := store.MinSortIndex()
		require.NoError(t, err)
		assert.Equal(t, -2, min)
	})
}
