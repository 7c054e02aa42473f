package memory

import (
	"sync"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// Store 使用内存保存别名记录，主要用于开发验证和测试。
type Store struct {
	mu        sync.RWMutex
	aliases   map[string]*domain.AliasRecord // aliasID -> record
	byAddress map[string]string              // 标准化地址 -> aliasID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		aliases:   make(map[string]*domain.AliasRecord),
		byAddress: make(map[string]string),
	}
}

// SaveAlias 保存别名记录。
func (s *Store) SaveAlias(alias *domain.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveLocked(alias)
	return nil
}

// SaveAliases 批量保存别名记录。
func (s *Store) SaveAliases(aliases []*domain.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alias := range aliases {
		s.saveLocked(alias)
	}
	return nil
}

func (s *Store) saveLocked(alias *domain.AliasRecord) {
	// 同一记录地址变更时清理旧索引
	if existing, ok := s.aliases[alias.ID]; ok {
		if existing.NormalizedAddress() != alias.NormalizedAddress() {
			delete(s.byAddress, existing.NormalizedAddress())
		}
	}

	copied := *alias
	s.aliases[alias.ID] = &copied
	s.byAddress[alias.NormalizedAddress()] = alias.ID
}

// GetAlias 根据 ID 获取别名记录。
func (s *Store) GetAlias(id string) (*domain.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alias, ok := s.aliases[id]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	copied := *alias
	return &copied, nil
}

// GetAliasByAddress 根据标准化地址获取别名记录。
func (s *Store) GetAliasByAddress(address string) (*domain.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[domain.NormalizeAddress(address)]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	alias, ok := s.aliases[id]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	copied := *alias
	return &copied, nil
}

// ListAliases 返回全部别名记录。
// 注意：地址索引只保留每个地址最后写入的记录，而去重引擎需要看到
// 所有重复项，因此这里直接遍历主表。
func (s *Store) ListAliases() ([]*domain.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AliasRecord, 0, len(s.aliases))
	for _, alias := range s.aliases {
		copied := *alias
		out = append(out, &copied)
	}
	return out, nil
}

// ListAliasesByZone 返回指定区域的别名记录。
func (s *Store) ListAliasesByZone(zoneID string) ([]*domain.AliasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AliasRecord, 0)
	for _, alias := range s.aliases {
		if alias.ZoneID == zoneID {
			copied := *alias
			out = append(out, &copied)
		}
	}
	return out, nil
}

// DeleteAlias 删除别名记录。
func (s *Store) DeleteAlias(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(id)
}

// DeleteAliases 批量删除别名记录。
func (s *Store) DeleteAliases(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if err := s.deleteLocked(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteLocked(id string) error {
	alias, ok := s.aliases[id]
	if !ok {
		return storage.ErrAliasNotFound
	}
	// 地址索引可能已指向同地址的其他记录，只在指向自己时清理
	if indexed, ok := s.byAddress[alias.NormalizedAddress()]; ok && indexed == id {
		delete(s.byAddress, alias.NormalizedAddress())
	}
	delete(s.aliases, id)
	return nil
}

// MinSortIndex 返回当前最小排序键，没有记录时返回 0。
func (s *Store) MinSortIndex() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	min := 0
	first := true
	for _, alias := range s.aliases {
		if first || alias.SortIndex < min {
			min = alias.SortIndex
			first = false
		}
	}
	return min, nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储健康状态。
func (s *Store) Health() error {
	return nil
}
