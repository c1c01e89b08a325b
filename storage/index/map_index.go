package index

import (
	"github.com/forever-free1/FlashKV/storage"
)

// MapIndex 是基于 Go 内置 map 的键位置缓存
type MapIndex struct {
	data map[string]*storage.Position
}

// NewMapIndex 创建一个新的 Map 索引实例
func NewMapIndex() *MapIndex {
	return &MapIndex{
		data: make(map[string]*storage.Position),
	}
}

// Put 写入键对应的位置
func (idx *MapIndex) Put(key []byte, pos *storage.Position) {
	idx.data[string(key)] = pos
}

// Get 根据键获取位置，不存在返回 nil
func (idx *MapIndex) Get(key []byte) *storage.Position {
	return idx.data[string(key)]
}

// Delete 删除键
func (idx *MapIndex) Delete(key []byte) bool {
	if _, exists := idx.data[string(key)]; exists {
		delete(idx.data, string(key))
		return true
	}
	return false
}

// Size 返回缓存的键数量
func (idx *MapIndex) Size() int {
	return len(idx.data)
}

// Reset 清空缓存
func (idx *MapIndex) Reset() {
	clear(idx.data)
}

// Close 关闭 Map 索引
func (idx *MapIndex) Close() {
	idx.data = nil
}

// 确保 MapIndex 实现了 Index 接口
var _ Index = (*MapIndex)(nil)
