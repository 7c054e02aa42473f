package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
	"aliasflare/backend/internal/storage/memory"
)

type stubAPI struct {
	mu        sync.Mutex
	rules     map[string]cloudflare.Rule // tag -> rule
	createErr error
	updateErr error
	deleteErr error
	seq       int
}

func newStubAPI() *stubAPI {
	return &stubAPI{rules: make(map[string]cloudflare.Rule)}
}

func (s *stubAPI) ListRules(ctx context.Context, zoneID string) ([]cloudflare.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cloudflare.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (s *stubAPI) CreateRule(ctx context.Context, zoneID, address, target string) (*cloudflare.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.seq++
	rule := cloudflare.Rule{
		Tag:      fmt.Sprintf("tag-%d", s.seq),
		Matchers: []cloudflare.Matcher{{Type: "literal", Field: "to", Value: address}},
		Actions:  []cloudflare.Action{{Type: "forward", Value: []string{target}}},
		Enabled:  true,
	}
	s.rules[rule.Tag] = rule
	return &rule, nil
}

func (s *stubAPI) UpdateRule(ctx context.Context, zoneID string, rule cloudflare.Rule) (*cloudflare.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if _, ok := s.rules[rule.Tag]; !ok {
		return nil, &cloudflare.APIError{StatusCode: http.StatusNotFound}
	}
	s.rules[rule.Tag] = rule
	return &rule, nil
}

func (s *stubAPI) DeleteRule(ctx context.Context, zoneID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.rules[tag]; !ok {
		return &cloudflare.APIError{StatusCode: http.StatusNotFound}
	}
	delete(s.rules, tag)
	return nil
}

type stubReplica struct {
	mu        sync.Mutex
	published []domain.AliasRecord
}

func (s *stubReplica) Snapshot(ctx context.Context) ([]domain.ReplicatedAlias, error) {
	return nil, nil
}

func (s *stubReplica) Publish(ctx context.Context, alias *domain.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, *alias)
	return nil
}

func newTestService(store *memory.Store, api *stubAPI, replica *stubReplica) *AliasService {
	return NewAliasService(store, api, replica, nil, "device-test", nil)
}

func TestAliasService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("创建成功：远端规则与本地记录一致", func(t *testing.T) {
		store := memory.NewStore()
		api := newStubAPI()
		replica := &stubReplica{}
		svc := newTestService(store, api, replica)

		record, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "Shop@Example.com",
			ForwardTo: "me@inbox.com",
			Website:   "https://shop.example.com",
			Notes:     "注册用",
		})
		require.NoError(t, err)

		assert.Equal(t, "shop@example.com", record.EmailAddress)
		assert.Equal(t, "me@inbox.com", record.ForwardTo)
		require.NotNil(t, record.RemoteTag)
		assert.True(t, record.IsEnabled)
		assert.Equal(t, "device-test", record.OwnerTag)
		require.NotNil(t, record.Created)
		assert.LessOrEqual(t, record.SortIndex, 0)

		// 远端确实建了规则
		api.mu.Lock()
		assert.Len(t, api.rules, 1)
		api.mu.Unlock()

		// 推送到复制存储
		replica.mu.Lock()
		require.Len(t, replica.published, 1)
		assert.Equal(t, record.ID, replica.published[0].ID)
		replica.mu.Unlock()
	})

	t.Run("远端失败时本地不落记录", func(t *testing.T) {
		store := memory.NewStore()
		api := newStubAPI()
		api.createErr = &cloudflare.NetworkError{Err: errors.New("connection refused")}
		svc := newTestService(store, api, &stubReplica{})

		_, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "shop@example.com",
			ForwardTo: "me@inbox.com",
		})
		require.Error(t, err)

		all, listErr := store.ListAliases()
		require.NoError(t, listErr)
		assert.Empty(t, all)
	})

	t.Run("地址重复返回已存在错误", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "existing",
			EmailAddress: "shop@example.com",
		}))
		api := newStubAPI()
		svc := newTestService(store, api, &stubReplica{})

		_, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "SHOP@example.com",
			ForwardTo: "me@inbox.com",
		})
		assert.ErrorIs(t, err, storage.ErrAliasExists)

		// 没有打到远端
		api.mu.Lock()
		assert.Empty(t, api.rules)
		api.mu.Unlock()
	})

	t.Run("非法地址被拒绝", func(t *testing.T) {
		svc := newTestService(memory.NewStore(), newStubAPI(), &stubReplica{})

		for _, address := range []string{"", "no-at-sign", "@example.com", "shop@", "a@b@c"} {
			_, err := svc.Create(ctx, CreateAliasInput{
				ZoneID:    "zone-1",
				Address:   address,
				ForwardTo: "me@inbox.com",
			})
			assert.Error(t, err, "address %q", address)
		}
	})

	t.Run("本地新建记录排在列表最前", func(t *testing.T) {
		store := memory.NewStore()
		// 模拟上轮同步落地的记录
		require.NoError(t, store.SaveAliases([]*domain.AliasRecord{
			{ID: "synced-1", EmailAddress: "a@example.com", SortIndex: 1},
			{ID: "synced-2", EmailAddress: "b@example.com", SortIndex: 2},
		}))
		svc := newTestService(store, newStubAPI(), &stubReplica{})

		first, err := svc.Create(ctx, CreateAliasInput{ZoneID: "zone-1", Address: "new1@example.com", ForwardTo: "me@inbox.com"})
		require.NoError(t, err)
		second, err := svc.Create(ctx, CreateAliasInput{ZoneID: "zone-1", Address: "new2@example.com", ForwardTo: "me@inbox.com"})
		require.NoError(t, err)

		assert.Equal(t, 0, first.SortIndex)
		assert.Equal(t, -1, second.SortIndex)

		list, err := svc.List()
		require.NoError(t, err)
		require.Len(t, list, 4)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)
		assert.Equal(t, "synced-1", list[2].ID)
	})
}

func TestAliasService_Update(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memory.Store, *stubAPI, *AliasService, *domain.AliasRecord) {
		store := memory.NewStore()
		api := newStubAPI()
		svc := newTestService(store, api, &stubReplica{})
		record, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "shop@example.com",
			ForwardTo: "me@inbox.com",
		})
		require.NoError(t, err)
		return store, api, svc, record
	}

	t.Run("仅本地字段不触达远端", func(t *testing.T) {
		_, api, svc, record := setup(t)
		notes := "新备注"

		updated, err := svc.Update(ctx, record.ID, UpdateAliasInput{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, "新备注", updated.Notes)

		// 远端规则未变
		api.mu.Lock()
		rule := api.rules[*record.RemoteTag]
		api.mu.Unlock()
		assert.True(t, rule.Enabled)
	})

	t.Run("转发目标变更同步到远端", func(t *testing.T) {
		_, api, svc, record := setup(t)
		target := "other@inbox.com"

		updated, err := svc.Update(ctx, record.ID, UpdateAliasInput{ForwardTo: &target})
		require.NoError(t, err)
		assert.Equal(t, "other@inbox.com", updated.ForwardTo)

		api.mu.Lock()
		rule := api.rules[*record.RemoteTag]
		api.mu.Unlock()
		assert.Equal(t, "other@inbox.com", rule.ForwardTarget())
	})

	t.Run("远端失败时本地不变", func(t *testing.T) {
		store, api, svc, record := setup(t)
		api.updateErr = &cloudflare.NetworkError{Err: errors.New("timeout")}
		disabled := false

		_, err := svc.Update(ctx, record.ID, UpdateAliasInput{IsEnabled: &disabled})
		require.Error(t, err)

		current, err := store.GetAlias(record.ID)
		require.NoError(t, err)
		assert.True(t, current.IsEnabled)
	})

	t.Run("切换启用状态", func(t *testing.T) {
		_, api, svc, record := setup(t)

		updated, err := svc.Toggle(ctx, record.ID, false)
		require.NoError(t, err)
		assert.False(t, updated.IsEnabled)

		api.mu.Lock()
		rule := api.rules[*record.RemoteTag]
		api.mu.Unlock()
		assert.False(t, rule.Enabled)
	})
}

func TestAliasService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("先删远端再删本地", func(t *testing.T) {
		store := memory.NewStore()
		api := newStubAPI()
		svc := newTestService(store, api, &stubReplica{})
		record, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "shop@example.com",
			ForwardTo: "me@inbox.com",
		})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, record.ID))

		api.mu.Lock()
		assert.Empty(t, api.rules)
		api.mu.Unlock()
		_, err = store.GetAlias(record.ID)
		assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	})

	t.Run("远端规则已不存在时仍清理本地", func(t *testing.T) {
		store := memory.NewStore()
		tag := "gone-tag"
		require.NoError(t, store.SaveAlias(&domain.AliasRecord{
			ID:           "orphan",
			EmailAddress: "orphan@example.com",
			RemoteTag:    &tag,
			ZoneID:       "zone-1",
		}))
		svc := newTestService(store, newStubAPI(), &stubReplica{})

		require.NoError(t, svc.Delete(ctx, "orphan"))
		_, err := store.GetAlias("orphan")
		assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	})

	t.Run("远端网络错误阻断删除", func(t *testing.T) {
		store := memory.NewStore()
		api := newStubAPI()
		svc := newTestService(store, api, &stubReplica{})
		record, err := svc.Create(ctx, CreateAliasInput{
			ZoneID:    "zone-1",
			Address:   "shop@example.com",
			ForwardTo: "me@inbox.com",
		})
		require.NoError(t, err)

		api.deleteErr = &cloudflare.NetworkError{Err: errors.New("timeout")}
		require.Error(t, svc.Delete(ctx, record.ID))

		// 本地记录保留
		_, err = store.GetAlias(record.ID)
		assert.NoError(t, err)
	})
}

func TestAliasService_BulkCreate(t *testing.T) {
	store := memory.NewStore()
	svc := newTestService(store, newStubAPI(), &stubReplica{})

	results := svc.BulkCreate(context.Background(), []CreateAliasInput{
		{ZoneID: "zone-1", Address: "one@example.com", ForwardTo: "me@inbox.com"},
		{ZoneID: "zone-1", Address: "bad-address", ForwardTo: "me@inbox.com"},
		{ZoneID: "zone-1", Address: "two@example.com", ForwardTo: "me@inbox.com"},
	})

	require.Len(t, results, 3)
	assert.NotEmpty(t, results[0].ID)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
	assert.NotEmpty(t, results[2].ID)

	all, err := store.ListAliases()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
