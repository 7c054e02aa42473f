package sql

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aliasflare/backend/internal/domain"
	"aliasflare/backend/internal/storage"
)

// SaveAlias 保存或更新别名记录。
func (s *Store) SaveAlias(alias *domain.AliasRecord) error {
	result := s.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(alias)
	if result.Error != nil {
		return fmt.Errorf("failed to save alias: %w", result.Error)
	}
	return nil
}

// SaveAliases 批量保存别名记录。
// 逐条写入：同步引擎要求部分失败不影响已成功的写入，
// 因此不使用整体事务，出错时继续写剩余记录并返回首个错误。
func (s *Store) SaveAliases(aliases []*domain.AliasRecord) error {
	var firstErr error
	for _, alias := range aliases {
		if err := s.SaveAlias(alias); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetAlias 根据 ID 获取别名记录。
func (s *Store) GetAlias(id string) (*domain.AliasRecord, error) {
	var alias domain.AliasRecord
	result := s.gormDB.Where("id = ?", id).First(&alias)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAliasNotFound
		}
		return nil, fmt.Errorf("failed to get alias: %w", result.Error)
	}
	return &alias, nil
}

// GetAliasByAddress 根据标准化地址获取别名记录。
func (s *Store) GetAliasByAddress(address string) (*domain.AliasRecord, error) {
	var alias domain.AliasRecord
	result := s.gormDB.Where("LOWER(email_address) = ?", domain.NormalizeAddress(address)).First(&alias)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAliasNotFound
		}
		return nil, fmt.Errorf("failed to get alias by address: %w", result.Error)
	}
	return &alias, nil
}

// ListAliases 返回全部别名记录。
func (s *Store) ListAliases() ([]*domain.AliasRecord, error) {
	var aliases []*domain.AliasRecord
	result := s.gormDB.Order("sort_index ASC").Find(&aliases)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", result.Error)
	}
	return aliases, nil
}

// ListAliasesByZone 返回指定区域的别名记录。
func (s *Store) ListAliasesByZone(zoneID string) ([]*domain.AliasRecord, error) {
	var aliases []*domain.AliasRecord
	result := s.gormDB.Where("zone_id = ?", zoneID).Order("sort_index ASC").Find(&aliases)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list aliases by zone: %w", result.Error)
	}
	return aliases, nil
}

// DeleteAlias 删除别名记录。
func (s *Store) DeleteAlias(id string) error {
	result := s.gormDB.Where("id = ?", id).Delete(&domain.AliasRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete alias: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrAliasNotFound
	}
	return nil
}

// DeleteAliases 批量删除别名记录。
func (s *Store) DeleteAliases(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	result := s.gormDB.Where("id IN ?", ids).Delete(&domain.AliasRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete aliases: %w", result.Error)
	}
	return nil
}

// MinSortIndex 返回当前最小排序键，没有记录时返回 0。
func (s *Store) MinSortIndex() (int, error) {
	var min *int
	result := s.gormDB.Model(&domain.AliasRecord{}).Select("MIN(sort_index)").Scan(&min)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to query min sort index: %w", result.Error)
	}
	if min == nil {
		return 0, nil
	}
	return *min, nil
}
