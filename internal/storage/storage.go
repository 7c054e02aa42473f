package storage

import (
	"context"
	"errors"

	"aliasflare/backend/internal/domain"
)

var (
	// ErrAliasNotFound 别名记录未找到错误
	ErrAliasNotFound = errors.New("alias not found")
	// ErrAliasExists 别名记录已存在错误
	ErrAliasExists = errors.New("alias already exists")
)

// AliasRepository 定义别名记录的数据存取操作。
// 同步引擎与用户编辑流程都通过该接口访问本地记录集。
type AliasRepository interface {
	SaveAlias(alias *domain.AliasRecord) error
	SaveAliases(aliases []*domain.AliasRecord) error // 批量保存，逐条尽力写入
	GetAlias(id string) (*domain.AliasRecord, error)
	GetAliasByAddress(address string) (*domain.AliasRecord, error) // 按标准化地址查询
	ListAliases() ([]*domain.AliasRecord, error)                   // 全量查询，供去重与回填引擎使用
	ListAliasesByZone(zoneID string) ([]*domain.AliasRecord, error)
	DeleteAlias(id string) error
	DeleteAliases(ids []string) error
	MinSortIndex() (int, error) // 当前最小排序键，本地新建记录排在它之前
}

// ReplicaStore 定义复制存储的读写操作。
// 复制存储由其他设备独立写入，这里只读取快照和发布本机的修改。
type ReplicaStore interface {
	Snapshot(ctx context.Context) ([]domain.ReplicatedAlias, error)
	Publish(ctx context.Context, alias *domain.AliasRecord) error
}

// Store 定义完整的本地存储接口。
type Store interface {
	AliasRepository

	Close() error
	Health() error
}
