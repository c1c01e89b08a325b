package logstore

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultMaxKeyLen 是键长度上限的默认值
	DefaultMaxKeyLen = 64
	// DefaultDataBufferSize 是读写缓冲区的默认大小
	DefaultDataBufferSize = 128
)

// Recorder 接收引擎的运行指标
type Recorder interface {
	// ObserveOp 记录一次操作，kind 为空表示成功
	ObserveOp(op string, kind string, d time.Duration)
	// PageErased 记录一次页擦除
	PageErased(page int)
	// Compacted 记录一次页回收，moved 为搬迁的记录数
	Compacted(moved int)
	// PageStates 报告各状态的页数量
	PageStates(empty, open, closed, dirty int)
}

// IndexType 定义键位置缓存的索引类型
type IndexType int

const (
	// IndexTypeNone 不缓存，每次查找都扫描闪存（默认）
	IndexTypeNone IndexType = iota
	// IndexTypeMap 使用内置 Map
	IndexTypeMap
	// IndexTypeART 使用自适应基数树
	IndexTypeART
)

// Options 定义 Storage 的配置选项
type Options struct {
	// MaxKeyLen 键长度上限，不超过 126
	MaxKeyLen int

	// DataBufferSize 读写缓冲区大小，对齐后的单条记录必须能放入
	DataBufferSize int

	// IndexType 键位置缓存类型
	IndexType IndexType

	// MaxCachedKeys 缓存的键数量上限，超出后退化为扫描
	MaxCachedKeys int

	// BloomFilterFP 布隆过滤器的期望误判率
	BloomFilterFP float64

	// Logger 日志
	Logger hclog.Logger

	// Recorder 指标，可以为空
	Recorder Recorder
}

// Option 定义 Options 的配置函数
type Option func(*Options)

// WithMaxKeyLen 设置键长度上限
func WithMaxKeyLen(n int) Option {
	return func(o *Options) {
		o.MaxKeyLen = n
	}
}

// WithDataBufferSize 设置读写缓冲区大小
func WithDataBufferSize(n int) Option {
	return func(o *Options) {
		o.DataBufferSize = n
	}
}

// WithCache 启用键位置缓存
// 参数：
//   - indexType: 索引类型
//   - maxKeys: 缓存的键数量上限
func WithCache(indexType IndexType, maxKeys int) Option {
	return func(o *Options) {
		o.IndexType = indexType
		o.MaxCachedKeys = maxKeys
	}
}

// WithBloomFilterFP 设置布隆过滤器的期望误判率
func WithBloomFilterFP(fp float64) Option {
	return func(o *Options) {
		o.BloomFilterFP = fp
	}
}

// WithLogger 设置日志
func WithLogger(logger hclog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithRecorder 设置指标接收者
func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.Recorder = r
	}
}

func defaultOptions() *Options {
	return &Options{
		MaxKeyLen:      DefaultMaxKeyLen,
		DataBufferSize: DefaultDataBufferSize,
		IndexType:      IndexTypeNone,
		MaxCachedKeys:  1024,
		BloomFilterFP:  0.01,
		Logger:         hclog.NewNullLogger(),
	}
}
