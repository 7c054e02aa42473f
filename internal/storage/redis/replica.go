package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aliasflare/backend/internal/domain"
)

const (
	replicaKeyPrefix = "alias:replica:"
	replicaChannel   = "alias:replica:events"
)

// ReplicaStore 基于 Redis 的复制存储实现。
// 每条别名记录存为一个哈希，键为 syncIdentity，其他设备独立写入同一命名空间。
// 快照读取必须容忍部分数据缺失或过期。
type ReplicaStore struct {
	client *Client
	log    *zap.Logger

	// 回填引擎和同步周期可能同时要快照，全量 SCAN 不便宜，合并并发请求
	group singleflight.Group
}

// NewReplicaStore 创建复制存储。
func NewReplicaStore(client *Client, log *zap.Logger) *ReplicaStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReplicaStore{client: client, log: log}
}

// Snapshot 读取复制存储的全量快照。
// 单条记录解析失败时跳过该条，不作为整体错误。
// 并发调用只会触发一次实际扫描，其余共享同一份结果。
func (s *ReplicaStore) Snapshot(ctx context.Context) ([]domain.ReplicatedAlias, error) {
	result, err, _ := s.group.Do("snapshot", func() (interface{}, error) {
		return s.scanSnapshot(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ReplicatedAlias), nil
}

func (s *ReplicaStore) scanSnapshot(ctx context.Context) ([]domain.ReplicatedAlias, error) {
	rdb := s.client.Client()

	var out []domain.ReplicatedAlias
	iter := rdb.Scan(ctx, 0, replicaKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		fields, err := rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			s.log.Warn("failed to read replica entry, skipping",
				zap.String("key", iter.Val()),
				zap.Error(err),
			)
			continue
		}
		if fields["emailAddress"] == "" {
			continue
		}

		record := domain.ReplicatedAlias{
			EmailAddress: fields["emailAddress"],
			Notes:        fields["notes"],
			Website:      fields["website"],
		}
		if raw := fields["created"]; raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				record.Created = &ts
			}
		}
		out = append(out, record)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Publish 将本机的别名修改写入复制存储并发出变更通知。
// 其他设备收到通知后会触发自己的去重周期。
func (s *ReplicaStore) Publish(ctx context.Context, alias *domain.AliasRecord) error {
	rdb := s.client.Client()
	key := replicaKeyPrefix + alias.SyncIdentity()

	values := map[string]interface{}{
		"emailAddress": alias.EmailAddress,
		"notes":        alias.Notes,
		"website":      alias.Website,
		"ownerTag":     alias.OwnerTag,
	}
	if alias.Created != nil {
		values["created"] = alias.Created.UTC().Format(time.RFC3339)
	}

	if err := rdb.HSet(ctx, key, values).Err(); err != nil {
		return err
	}
	return rdb.Publish(ctx, replicaChannel, alias.SyncIdentity()).Err()
}

// SubscribeChanges 订阅其他设备的复制推送。
// 返回的订阅由调用方负责关闭。
func (s *ReplicaStore) SubscribeChanges(ctx context.Context) *goredis.PubSub {
	return s.client.Client().Subscribe(ctx, replicaChannel)
}
