package logstore

import (
	"context"
	"sync"

	"github.com/forever-free1/FlashKV/storage"
)

// Shared 是可以被多个调用方共享的存储引擎
// 所有操作通过互斥锁串行化
type Shared struct {
	mu sync.Mutex
	s  *Storage
}

// NewShared 包装一个存储引擎
func NewShared(s *Storage) *Shared {
	return &Shared{s: s}
}

// Get 根据键获取最新的值
func (sh *Shared) Get(ctx context.Context, key string) ([]byte, bool, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Get(ctx, key)
}

// Insert 追加写入键值对
func (sh *Shared) Insert(ctx context.Context, key string, value []byte) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Insert(ctx, key, value)
}

// Remove 删除键值对
func (sh *Shared) Remove(ctx context.Context, key string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Remove(ctx, key)
}

// EraseAll 擦除整个区间
func (sh *Shared) EraseAll(ctx context.Context) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.EraseAll(ctx)
}

// Stats 返回统计信息
func (sh *Shared) Stats(ctx context.Context) (Stats, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Stats(ctx)
}

// Keys 遍历所有存活的键
// 遍历期间持有锁，fn 中不能再调用 Shared 的方法
func (sh *Shared) Keys(ctx context.Context, fn func(key string) bool) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Keys(ctx, fn)
}

// Do 在持有锁的情况下执行 fn，用于组合多个操作
func (sh *Shared) Do(fn func(s *Storage) error) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return fn(sh.s)
}

// Close 关闭底层引擎
func (sh *Shared) Close() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.s.Close()
}

// 确保 Shared 实现了 Engine 接口
var _ storage.Engine = (*Shared)(nil)
