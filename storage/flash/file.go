package flash

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FileFlash 是以镜像文件模拟的闪存
// 支持重复编程（按位与写入），在 unix 平台上通过 mmap 读写，其他平台回退到 ReadAt/WriteAt
type FileFlash struct {
	path      string
	file      *os.File
	data      []byte // mmap 映射区，为空时使用文件读写
	size      int
	pageSize  int
	writeSize int
	mu        sync.RWMutex
}

// FileOption 定义 FileFlash 的配置选项
type FileOption func(*FileFlash)

// WithFileWriteSize 设置写入粒度
func WithFileWriteSize(n int) FileOption {
	return func(f *FileFlash) {
		f.writeSize = n
	}
}

// CreateFile 创建一个已擦除的镜像文件
// 参数：
//   - path: 镜像文件路径
//   - pages: 页数量
//   - pageSize: 页大小
//
// 返回：
//   - *FileFlash: 闪存
//   - error: 创建错误
func CreateFile(path string, pages, pageSize int, opts ...FileOption) (*FileFlash, error) {
	if pages <= 0 || pageSize <= 0 {
		return nil, fmt.Errorf("非法的镜像尺寸: pages=%d pageSize=%d", pages, pageSize)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("创建镜像文件失败: %w", err)
	}
	erased := make([]byte, pageSize)
	for i := range erased {
		erased[i] = ErasedByte
	}
	for p := 0; p < pages; p++ {
		if _, err := file.WriteAt(erased, int64(p*pageSize)); err != nil {
			file.Close()
			return nil, fmt.Errorf("初始化镜像文件失败: %w", err)
		}
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("关闭镜像文件失败: %w", err)
	}
	return OpenFile(path, pageSize, opts...)
}

// OpenFile 打开已有的镜像文件
// 文件大小必须是页大小的整数倍
func OpenFile(path string, pageSize int, opts ...FileOption) (*FileFlash, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开镜像文件失败: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("获取文件状态失败: %w", err)
	}
	if pageSize <= 0 || stat.Size() == 0 || stat.Size()%int64(pageSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("镜像大小 %d 不是页大小 %d 的整数倍", stat.Size(), pageSize)
	}

	f := &FileFlash{
		path:      path,
		file:      file,
		size:      int(stat.Size()),
		pageSize:  pageSize,
		writeSize: 4,
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.mmap(); err != nil {
		file.Close()
		return nil, fmt.Errorf("映射镜像文件失败: %w", err)
	}
	return f, nil
}

func (f *FileFlash) ReadSize() int  { return 1 }
func (f *FileFlash) WriteSize() int { return f.writeSize }
func (f *FileFlash) EraseSize() int { return f.pageSize }
func (f *FileFlash) Capacity() int  { return f.size }

// Multiwrite 实现 MultiwriteNorFlash
func (f *FileFlash) Multiwrite() {}

// Read 读取数据
func (f *FileFlash) Read(ctx context.Context, offset uint32, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRead(f, offset, len(buf)); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.file == nil {
		return &Error{Op: "read", Kind: KindOther, Offset: offset, Err: os.ErrClosed}
	}
	if f.data != nil {
		copy(buf, f.data[offset:int(offset)+len(buf)])
		return nil
	}
	if _, err := f.file.ReadAt(buf, int64(offset)); err != nil {
		return &Error{Op: "read", Kind: KindOther, Offset: offset, Err: err}
	}
	return nil
}

// Write 按位与编程数据
func (f *FileFlash) Write(ctx context.Context, offset uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckWrite(f, offset, len(data)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return &Error{Op: "write", Kind: KindOther, Offset: offset, Err: os.ErrClosed}
	}
	if f.data != nil {
		for i, b := range data {
			f.data[int(offset)+i] &= b
		}
		return nil
	}

	cur := make([]byte, len(data))
	if _, err := f.file.ReadAt(cur, int64(offset)); err != nil {
		return &Error{Op: "write", Kind: KindOther, Offset: offset, Err: err}
	}
	for i, b := range data {
		cur[i] &= b
	}
	if _, err := f.file.WriteAt(cur, int64(offset)); err != nil {
		return &Error{Op: "write", Kind: KindOther, Offset: offset, Err: err}
	}
	return nil
}

// Erase 擦除 [from, to)
func (f *FileFlash) Erase(ctx context.Context, from, to uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckErase(f, from, to); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return &Error{Op: "erase", Kind: KindOther, Offset: from, Err: os.ErrClosed}
	}
	if f.data != nil {
		for i := from; i < to; i++ {
			f.data[i] = ErasedByte
		}
		return nil
	}
	erased := make([]byte, to-from)
	for i := range erased {
		erased[i] = ErasedByte
	}
	if _, err := f.file.WriteAt(erased, int64(from)); err != nil {
		return &Error{Op: "erase", Kind: KindOther, Offset: from, Err: err}
	}
	return nil
}

// Sync 将映射区或文件缓冲同步到磁盘
func (f *FileFlash) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.file == nil {
		return os.ErrClosed
	}
	if f.data != nil {
		if err := f.msync(); err != nil {
			return fmt.Errorf("同步映射区失败: %w", err)
		}
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("同步数据到磁盘失败: %w", err)
	}
	return nil
}

// Close 同步并关闭镜像文件
func (f *FileFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	if f.data != nil {
		if err := f.msync(); err != nil {
			return fmt.Errorf("关闭前同步映射区失败: %w", err)
		}
		f.munmap()
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("关闭前同步数据失败: %w", err)
	}
	err := f.file.Close()
	f.file = nil
	if err != nil {
		return fmt.Errorf("关闭文件失败: %w", err)
	}
	return nil
}

// Path 返回镜像文件路径
func (f *FileFlash) Path() string {
	return f.path
}

var _ MultiwriteNorFlash = (*FileFlash)(nil)
