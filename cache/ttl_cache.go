package cache

import (
	"sync"
	"time"
)

// TTLCache 进程内的带过期时间的键值缓存，流水线用它记住已探测过的媒体元数据。
// 清扫协程随缓存实例走完整的生命周期：第一次写入时启动，清空后自行退出，
// 不使用包级单例。
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]ttlEntry
	ttl     time.Duration
	sweep   time.Duration
	running bool
	stop    chan struct{}
}

type ttlEntry struct {
	value    interface{}
	expireAt time.Time
}

// NewTTLCache creates a cache whose entries live for ttl and are swept every
// sweep interval.
func NewTTLCache(ttl, sweep time.Duration) *TTLCache {
	return &TTLCache{
		entries: make(map[string]ttlEntry),
		ttl:     ttl,
		sweep:   sweep,
	}
}

// Set 写入一个键，必要时启动清扫协程
func (c *TTLCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry{value: value, expireAt: time.Now().Add(c.ttl)}
	if !c.running {
		c.running = true
		c.stop = make(chan struct{})
		go c.gcLoop(c.stop)
	}
}

// Get 读取一个键，过期视为未命中
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expireAt) {
		return nil, false
	}
	return e.value, true
}

// Len 返回当前未过期条目数
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := time.Now()
	for _, e := range c.entries {
		if now.Before(e.expireAt) {
			n++
		}
	}
	return n
}

// Close 停止清扫协程并清空缓存
func (c *TTLCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]ttlEntry)
	c.stopLocked()
}

// stopLocked 关闭清扫协程，调用方必须持有锁
func (c *TTLCache) stopLocked() {
	if c.running {
		close(c.stop)
		c.running = false
	}
}

// gcLoop 周期性清理过期条目，缓存清空后协程退出
func (c *TTLCache) gcLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for k, e := range c.entries {
				if now.After(e.expireAt) {
					delete(c.entries, k)
				}
			}
			if len(c.entries) == 0 {
				// 空了就退出，下次写入会再启动
				c.running = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		case <-stop:
			return
		}
	}
}
