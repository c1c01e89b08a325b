package flash

import (
	"context"
	"errors"
	"sync"
)

// ErrPowerLoss 表示注入的掉电故障，写入被截断
var ErrPowerLoss = errors.New("simulated power loss")

// ErrAlreadyProgrammed 表示对未擦除的字再次编程
var ErrAlreadyProgrammed = errors.New("word already programmed")

// MemFlash 是内存中的 NOR 闪存模拟器
// 严格模式下向已编程的字写入会失败；重复编程模式下按位与写入。
type MemFlash struct {
	mem        []byte
	readSize   int
	writeSize  int
	eraseSize  int
	multiwrite bool

	eraseCounts []uint32
	failAfter   int // 下一次写入只编程前 failAfter 字节，-1 表示不注入
	mu          sync.Mutex
}

// MemOption 定义 MemFlash 的配置选项
type MemOption func(*MemFlash)

// WithReadSize 设置读取粒度
func WithReadSize(n int) MemOption {
	return func(m *MemFlash) {
		m.readSize = n
	}
}

// WithWriteSize 设置写入粒度
func WithWriteSize(n int) MemOption {
	return func(m *MemFlash) {
		m.writeSize = n
	}
}

// NewMem 创建一个严格模式的内存闪存
// 参数：
//   - pages: 页数量
//   - pageSize: 页大小（擦除粒度）
//   - opts: 配置选项
//
// 返回：
//   - *MemFlash: 已擦除的闪存
func NewMem(pages, pageSize int, opts ...MemOption) *MemFlash {
	m := &MemFlash{
		mem:         make([]byte, pages*pageSize),
		readSize:    1,
		writeSize:   4,
		eraseSize:   pageSize,
		eraseCounts: make([]uint32, pages),
		failAfter:   -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range m.mem {
		m.mem[i] = ErasedByte
	}
	return m
}

// MultiwriteMem 是支持重复编程的内存闪存
type MultiwriteMem struct {
	*MemFlash
}

// NewMultiwriteMem 创建一个支持重复编程的内存闪存
func NewMultiwriteMem(pages, pageSize int, opts ...MemOption) *MultiwriteMem {
	m := NewMem(pages, pageSize, opts...)
	m.multiwrite = true
	return &MultiwriteMem{MemFlash: m}
}

// Multiwrite 实现 MultiwriteNorFlash
func (m *MultiwriteMem) Multiwrite() {}

func (m *MemFlash) ReadSize() int  { return m.readSize }
func (m *MemFlash) WriteSize() int { return m.writeSize }
func (m *MemFlash) EraseSize() int { return m.eraseSize }
func (m *MemFlash) Capacity() int  { return len(m.mem) }

// Read 读取数据
func (m *MemFlash) Read(ctx context.Context, offset uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRead(m, offset, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(buf, m.mem[offset:int(offset)+len(buf)])
	return nil
}

// Write 编程数据
// 注入掉电时只编程前 failAfter 字节并返回错误
func (m *MemFlash) Write(ctx context.Context, offset uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckWrite(m, offset, len(data)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.multiwrite {
		for i := 0; i < len(data); i += m.writeSize {
			word := m.mem[int(offset)+i : int(offset)+i+min(m.writeSize, len(data)-i)]
			for _, b := range word {
				if b != ErasedByte {
					return &Error{Op: "write", Kind: KindOther, Offset: offset + uint32(i), Err: ErrAlreadyProgrammed}
				}
			}
		}
	}

	n := len(data)
	torn := m.failAfter >= 0 && m.failAfter < n
	if torn {
		n = m.failAfter
	}
	m.failAfter = -1
	for i := 0; i < n; i++ {
		m.mem[int(offset)+i] &= data[i]
	}
	if torn {
		return &Error{Op: "write", Kind: KindOther, Offset: offset, Err: ErrPowerLoss}
	}
	return nil
}

// Erase 擦除 [from, to)
func (m *MemFlash) Erase(ctx context.Context, from, to uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckErase(m, from, to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := from; i < to; i++ {
		m.mem[i] = ErasedByte
	}
	for p := from / uint32(m.eraseSize); p < to/uint32(m.eraseSize); p++ {
		m.eraseCounts[p]++
	}
	return nil
}

// FailAfterBytes 让下一次写入只编程前 n 字节后失败，用于模拟掉电
func (m *MemFlash) FailAfterBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
}

// EraseCounts 返回每个页的擦除次数
func (m *MemFlash) EraseCounts() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, len(m.eraseCounts))
	copy(out, m.eraseCounts)
	return out
}

// Bytes 返回底层内存，测试中用于直接破坏数据
func (m *MemFlash) Bytes() []byte {
	return m.mem
}

var _ NorFlash = (*MemFlash)(nil)
var _ MultiwriteNorFlash = (*MultiwriteMem)(nil)
