package storage

import "context"

// Position 表示一条记录在闪存区间中的位置
type Position struct {
	Page      uint32 // 页序号（相对于存储区间起点）
	Offset    uint32 // 页内偏移量
	Size      uint32 // 记录大小（含对齐填充）
	Tombstone bool   // 是否为删除标记
}

// Engine 是闪存键值存储引擎的抽象接口
// 实现了键值存储的基本操作：Get、Insert、Remove、EraseAll
//
// 引擎假定只有一个使用者，不做内部加锁；多处调用需要由外部串行化。
type Engine interface {
	// Get 根据键获取最新的值
	// 参数：
	//   - key: 键
	// 返回：
	//   - []byte: 值
	//   - bool: 是否找到（从未写入或已删除时为 false，不是错误）
	//   - error: 读取错误
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Insert 追加写入键值对
	// 失败时不影响该键之前的值
	Insert(ctx context.Context, key string, value []byte) error

	// Remove 删除键值对
	// 仅支持可重复编程的闪存，需要扫描整个区间
	Remove(ctx context.Context, key string) error

	// EraseAll 擦除整个区间，恢复到初始状态
	EraseAll(ctx context.Context) error
}
