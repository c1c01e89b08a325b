package index

import "github.com/forever-free1/FlashKV/storage"

// Index 是键位置缓存的抽象接口
// 负责存储键到最新记录位置（Position）的映射。
// 缓存只服务于单个引擎实例，不做并发保护。
type Index interface {
	// Put 写入键对应的最新位置
	// 参数：
	//   - key: 键
	//   - pos: 位置指针
	Put(key []byte, pos *storage.Position)

	// Get 根据键获取位置
	// 参数：
	//   - key: 键
	// 返回：
	//   - *storage.Position: 位置指针，不存在返回 nil
	Get(key []byte) *storage.Position

	// Delete 根据键删除缓存
	// 返回：
	//   - bool: 是否删除成功
	Delete(key []byte) bool

	// Size 返回缓存的键数量
	Size() int

	// Reset 清空缓存（页回收后位置失效）
	Reset()

	// Close 关闭索引，释放资源
	Close()
}
