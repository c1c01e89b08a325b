//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix)

package flash

// 非 unix 平台不做映射，读写回退到 ReadAt/WriteAt
func (f *FileFlash) mmap() error { return nil }

func (f *FileFlash) msync() error { return nil }

func (f *FileFlash) munmap() {}
