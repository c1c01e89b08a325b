//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix

package flash

import (
	"golang.org/x/sys/unix"
)

// mmap 以读写方式映射整个镜像文件
func (f *FileFlash) mmap() error {
	b, err := unix.Mmap(int(f.file.Fd()), 0, f.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	f.data = b
	return nil
}

func (f *FileFlash) msync() error {
	return unix.Msync(f.data, unix.MS_SYNC)
}

func (f *FileFlash) munmap() {
	if f.data != nil {
		_ = unix.Munmap(f.data)
		f.data = nil
	}
}
