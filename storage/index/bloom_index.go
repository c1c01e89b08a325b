package index

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 是布隆过滤器的包装
// 用于快速判断一个键是否一定从未写入过
type BloomFilter struct {
	filter *bloom.BloomFilter
}

// NewBloomFilter 创建一个新的布隆过滤器
// 参数：
//   - n: 预期存储的元素数量
//   - fp: 期望的误判率
//
// 返回：
//   - *BloomFilter: 布隆过滤器指针
func NewBloomFilter(n uint, fp float64) *BloomFilter {
	// 使用 NewWithEstimates 自动计算最优的 m 和 k
	return &BloomFilter{
		filter: bloom.NewWithEstimates(n, fp),
	}
}

// Add 添加一个键
func (bf *BloomFilter) Add(key []byte) {
	bf.filter.Add(key)
}

// Test 测试一个键是否可能存在
// 返回：
//   - bool: true 表示可能存在，false 表示一定不存在
func (bf *BloomFilter) Test(key []byte) bool {
	return bf.filter.Test(key)
}

// Reset 重置布隆过滤器
func (bf *BloomFilter) Reset() {
	bf.filter.ClearAll()
}

// K 返回布隆过滤器使用的哈希函数数量
func (bf *BloomFilter) K() uint {
	return bf.filter.K()
}

// Cap 返回布隆过滤器的位数
func (bf *BloomFilter) Cap() uint {
	return bf.filter.Cap()
}
