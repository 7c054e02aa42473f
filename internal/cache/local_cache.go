package cache

import (
	"sync"
	"time"
)

// LocalCache 进程内 TTL 缓存。
// 公开端点的聚合结果（如转发目标列表）走这里，避免每个请求
// 都全量扫描记录集。
type LocalCache struct {
	data sync.Map
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存，ttl 是条目的默认过期时间。
func NewLocalCache(ttl time.Duration) *LocalCache {
	c := &LocalCache{
		ttl:  ttl,
		stop: make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// Get 获取缓存值，过期条目视为不存在。
func (c *LocalCache) Get(key string) (interface{}, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.data.Delete(key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间。
func (c *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.data.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
}

// Delete 删除缓存值
func (c *LocalCache) Delete(key string) {
	c.data.Delete(key)
}

// Clear 清空所有缓存
func (c *LocalCache) Clear() {
	c.data.Range(func(key, _ interface{}) bool {
		c.data.Delete(key)
		return true
	})
}

// Close 停止后台清理协程。
func (c *LocalCache) Close() {
	c.once.Do(func() {
		close(c.stop)
	})
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(key, value interface{}) bool {
				if now.After(value.(*cacheEntry).expiresAt) {
					c.data.Delete(key)
				}
				return true
			})
		}
	}
}
