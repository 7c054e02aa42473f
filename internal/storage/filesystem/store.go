package filesystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// Store 文件系统存储实现。
// 每条别名记录对应 basePath/aliases/{id}.json 一个文件，启动时全量
// 加载到内存索引，读走内存、写同时落盘。记录数在百条量级，全量加载
// 没有压力。
type Store struct {
	basePath      string
	platformUtils *PlatformUtils

	mu        sync.RWMutex
	aliases   map[string]*domain.AliasRecord // aliasID -> record
	byAddress map[string]string              // 标准化地址 -> aliasID
}

// NewStore 创建文件系统存储实例，并加载已有记录。
func NewStore(basePath string) (*Store, error) {
	platformUtils := NewPlatformUtils()

	if err := platformUtils.ValidatePath(basePath); err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}
	normalizedPath := platformUtils.NormalizePath(basePath)

	if err := os.MkdirAll(filepath.Join(normalizedPath, "aliases"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	s := &Store{
		basePath:      normalizedPath,
		platformUtils: platformUtils,
		aliases:       make(map[string]*domain.AliasRecord),
		byAddress:     make(map[string]string),
	}

	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("failed to load alias records: %w", err)
	}

	return s, nil
}

// loadAll 启动时读入全部记录文件。
// 单个文件损坏时跳过，不阻塞其余记录的加载。
func (s *Store) loadAll() error {
	aliasDir := filepath.Join(s.basePath, "aliases")

	entries, err := os.ReadDir(aliasDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(aliasDir, entry.Name()))
		if err != nil {
			continue
		}

		var alias domain.AliasRecord
		if err := json.Unmarshal(data, &alias); err != nil || alias.ID == "" {
			continue
		}

		s.aliases[alias.ID] = &alias
		s.byAddress[alias.NormalizedAddress()] = alias.ID
	}

	return nil
}

// SaveAlias 保存别名记录并落盘。
func (s *Store) SaveAlias(alias *domain.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(alias)
}

// SaveAliases 批量保存别名记录，逐条尽力写入。
func (s *Store) SaveAliases(aliases []*domain.AliasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, alias := range aliases {
		if err := s.saveLocked(alias); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) saveLocked(alias *domain.AliasRecord) error {
	if err := s.writeRecord(alias); err != nil {
		return err
	}

	// 同一记录地址变更时清理旧索引
	if existing, ok := s.aliases[alias.ID]; ok {
		if existing.NormalizedAddress() != alias.NormalizedAddress() {
			delete(s.byAddress, existing.NormalizedAddress())
		}
	}

	copied := *alias
	s.aliases[alias.ID] = &copied
	s.byAddress[alias.NormalizedAddress()] = alias.ID
	return nil
}

// writeRecord 原子写入记录文件：先写临时文件再改名，崩溃时不会留下半截 JSON。
func (s *Store) writeRecord(alias *domain.AliasRecord) error {
	data, err := json.MarshalIndent(alias, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alias record: %w", err)
	}

	target := s.recordPath(alias.ID)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write alias record: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit alias record: %w", err)
	}

	return nil
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
// 去重引擎需要看到所有重复项，这里遍历主表而不是地址索引。
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

// DeleteAlias 删除别名记录及其文件。
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

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove alias record: %w", err)
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

// Close 关闭存储。所有写入都已同步落盘，这里无需冲刷。
func (s *Store) Close() error {
	return nil
}

// Health 检查存储目录是否仍然可访问。
func (s *Store) Health() error {
	if _, err := os.Stat(filepath.Join(s.basePath, "aliases")); err != nil {
		return fmt.Errorf("alias directory inaccessible: %w", err)
	}
	return nil
}

// recordPath 获取记录文件路径。
// ID 由本系统生成（UUID），清理一遍只是防御外部篡改过的文件名。
func (s *Store) recordPath(id string) string {
	return filepath.Join(s.basePath, "aliases", s.platformUtils.SanitizeFilename(id)+".json")
}
