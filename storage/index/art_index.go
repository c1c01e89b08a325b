package index

import (
	"github.com/forever-free1/FlashKV/storage"
	art "github.com/plar/go-adaptive-radix-tree"
)

// ARTIndex 是基于自适应基数树（Adaptive Radix Tree）的键位置缓存
// 键通常共享前缀（例如 "wifi/ssid"、"wifi/pass"），ART 对这种键更省内存
type ARTIndex struct {
	tree art.Tree
}

// NewARTIndex 创建一个新的 ART 索引实例
func NewARTIndex() *ARTIndex {
	return &ARTIndex{
		tree: art.New(),
	}
}

// Put 写入键对应的位置
// 参数：
//   - key: 键
//   - pos: 位置指针
func (idx *ARTIndex) Put(key []byte, pos *storage.Position) {
	// ART 会持有 key，调用方的缓冲区可能被复用，这里复制一份
	k := make([]byte, len(key))
	copy(k, key)
	idx.tree.Insert(art.Key(k), pos)
}

// Get 根据键获取位置
// 返回：
//   - *storage.Position: 位置指针，不存在返回 nil
func (idx *ARTIndex) Get(key []byte) *storage.Position {
	value, found := idx.tree.Search(art.Key(key))
	if !found {
		return nil
	}
	return value.(*storage.Position)
}

// Delete 从 ART 索引中删除键
func (idx *ARTIndex) Delete(key []byte) bool {
	_, deleted := idx.tree.Delete(art.Key(key))
	return deleted
}

// Size 返回缓存的键数量
func (idx *ARTIndex) Size() int {
	return idx.tree.Size()
}

// Reset 清空缓存
func (idx *ARTIndex) Reset() {
	idx.tree = art.New()
}

// Close 关闭 ART 索引
func (idx *ARTIndex) Close() {
	// ART 树没有需要关闭的资源，GC 会自动回收
}

// 确保 ARTIndex 实现了 Index 接口
var _ Index = (*ARTIndex)(nil)
