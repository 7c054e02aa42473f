package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage/memory"
)

// recordingSink 收集同步事件供断言。
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) PublishSyncEvent(event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

func newTestCoordinator(store *memory.Store, api *fakeAPI, replica *fakeReplica, cfg Config, sink EventSink) *Coordinator {
	if cfg.Zones == nil {
		cfg.Zones = []string{"zone-1"}
	}
	return NewCoordinator(
		cfg,
		NewReconciler(store, api, nil),
		NewDeduplicator(store, nil),
		NewBackfiller(store, replica, nil),
		sink,
		nil,
		nil,
	)
}

func waitForRun(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		status := c.Status()
		return status.LastRun != nil && !status.Running
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoordinator_RequestSync(t *testing.T) {
	t.Run("手动触发执行完整同步", func(t *testing.T) {
		store := memory.NewStore()
		api := newFakeAPI()
		api.setRules("zone-1", []cloudflare.Rule{
			forwardRule("tag-a", "shop@example.com", "me@inbox.com", true),
		})
		sink := &recordingSink{}

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{Cooldown: time.Hour}, sink)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		require.Eventually(t, func() bool {
			return c.RequestSync(ReasonManual)
		}, time.Second, 5*time.Millisecond)
		waitForRun(t, c)

		all, err := store.ListAliases()
		require.NoError(t, err)
		assert.Len(t, all, 1)

		status := c.Status()
		require.Contains(t, status.LastResults, "zone-1")
		assert.Equal(t, 1, status.LastResults["zone-1"].Created)
		assert.Empty(t, status.LastError)

		assert.Equal(t, 1, sink.count("sync_started"))
		assert.Equal(t, 1, sink.count("sync_completed"))
		assert.Equal(t, 1, sink.count("aliases_changed"))
	})

	t.Run("冷却期内的非手动请求被跳过", func(t *testing.T) {
		store := memory.NewStore()
		api := newFakeAPI()
		sink := &recordingSink{}

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{Cooldown: time.Hour}, sink)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		require.Eventually(t, func() bool {
			return c.RequestSync(ReasonManual)
		}, time.Second, 5*time.Millisecond)
		waitForRun(t, c)

		assert.False(t, c.RequestSync(ReasonPeriodic))
		assert.False(t, c.RequestSync(ReasonReplication))
		// 手动触发不受冷却期限制
		assert.True(t, c.RequestSync(ReasonManual))
	})

	t.Run("上一轮未结束时整个周期被跳过", func(t *testing.T) {
		store := memory.NewStore()
		api := newFakeAPI()
		gate := make(chan struct{})
		api.listGate = gate

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{Cooldown: time.Millisecond}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		require.Eventually(t, func() bool {
			return c.RequestSync(ReasonManual)
		}, time.Second, 5*time.Millisecond)

		// 等工作协程真正开始拉取
		require.Eventually(t, func() bool {
			api.mu.Lock()
			defer api.mu.Unlock()
			return api.listCalls == 1
		}, time.Second, 5*time.Millisecond)

		// 工作协程忙碌，后续请求全部被拒
		assert.False(t, c.RequestSync(ReasonManual))
		assert.False(t, c.RequestSync(ReasonPeriodic))

		close(gate)
		waitForRun(t, c)
		api.mu.Lock()
		calls := api.listCalls
		api.mu.Unlock()
		assert.Equal(t, 1, calls)
	})

	t.Run("对账失败记入状态且去重回填照常执行", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAliases([]*domain.AliasRecord{
			{ID: "a", EmailAddress: "dup@example.com", Notes: "n", ZoneID: "zone-1"},
			{ID: "b", EmailAddress: "dup@example.com", ZoneID: "zone-1"},
		}))
		api := newFakeAPI()
		api.listErr = errors.New("connection refused")
		sink := &recordingSink{}

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{Cooldown: time.Hour}, sink)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		require.Eventually(t, func() bool {
			return c.RequestSync(ReasonManual)
		}, time.Second, 5*time.Millisecond)
		waitForRun(t, c)

		status := c.Status()
		assert.Contains(t, status.LastError, "connection refused")
		assert.Equal(t, 1, status.DuplicatesRemoved)
		assert.Equal(t, 1, sink.count("duplicates_removed"))

		all, err := store.ListAliases()
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestCoordinator_NotifyReplicationPush(t *testing.T) {
	t.Run("静默期内连续推送合并为一次处理", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.SaveAliases([]*domain.AliasRecord{
			{ID: "a", EmailAddress: "dup@example.com", Notes: "n"},
			{ID: "b", EmailAddress: "dup@example.com"},
		}))
		replica := &fakeReplica{}
		sink := &recordingSink{}

		c := newTestCoordinator(store, newFakeAPI(), replica, Config{Debounce: 30 * time.Millisecond}, sink)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c.Start(ctx)

		c.NotifyReplicationPush()
		c.NotifyReplicationPush()
		c.NotifyReplicationPush()

		require.Eventually(t, func() bool {
			return sink.count("duplicates_removed") == 1
		}, 2*time.Second, 5*time.Millisecond)

		// 去重只跑了一轮，回填只取了一次快照
		all, err := store.ListAliases()
		require.NoError(t, err)
		assert.Len(t, all, 1)
		assert.Equal(t, 1, replica.calls())
	})
}

func TestCoordinator_StartupSync(t *testing.T) {
	t.Run("首次成功不再重试", func(t *testing.T) {
		store := memory.NewStore()
		api := newFakeAPI()
		api.setRules("zone-1", []cloudflare.Rule{
			forwardRule("tag-a", "shop@example.com", "me@inbox.com", true),
		})

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{StartupRetries: 3}, nil)
		c.StartupSync(context.Background())

		api.mu.Lock()
		calls := api.listCalls
		api.mu.Unlock()
		assert.Equal(t, 1, calls)
		assert.Empty(t, c.Status().LastError)
	})

	t.Run("持续失败只重试有限次", func(t *testing.T) {
		store := memory.NewStore()
		api := newFakeAPI()
		api.listErr = errors.New("connection refused")

		c := newTestCoordinator(store, api, &fakeReplica{}, Config{StartupRetries: 2}, nil)
		c.StartupSync(context.Background())

		api.mu.Lock()
		calls := api.listCalls
		api.mu.Unlock()
		assert.Equal(t, 2, calls)
		assert.Contains(t, c.Status().LastError, "connection refused")
	})
}
