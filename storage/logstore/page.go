package logstore

import (
	"context"
	"encoding/binary"
	"hash/crc32"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/flash"
)

// 页格式：
//
//	| Header: Magic (4B) | Generation (4B) | CRC32 (4B) | 填充 | Marker | Items ... | 空闲 | Trailer |
//
// Header 在页从 Empty 变为 Open 时一次写入；Trailer 在页关闭时写为全 0。
// Marker 在回收搬迁完成、新记录落盘之后写为全 0，此后才擦除被回收的页。
const (
	pageMagic       uint32 = 0x464B5631
	pageHeaderBytes        = 12
	pageMarkerSize         = 4
	pageTrailerSize        = 4
)

// PageState 是页的生命周期状态
type PageState int

const (
	// PageEmpty 已擦除，可以打开
	PageEmpty PageState = iota
	// PageOpen 有有效页头，正在追加
	PageOpen
	// PageClosed 已写满并关闭
	PageClosed
	// PageDirty 页头写入被打断，不含有效数据，使用前需要擦除
	PageDirty
)

func (s PageState) String() string {
	switch s {
	case PageEmpty:
		return "empty"
	case PageOpen:
		return "open"
	case PageClosed:
		return "closed"
	case PageDirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// free 判断页是否可以在不丢数据的情况下直接使用
func (s PageState) free() bool {
	return s == PageEmpty || s == PageDirty
}

// hasData 判断页中是否可能有记录
func (s PageState) hasData() bool {
	return s == PageOpen || s == PageClosed
}

// pageInfo 是页在内存中的状态
type pageInfo struct {
	state  PageState
	gen    uint32
	cursor uint32 // 仅对打开的页有效：下一条记录的页内偏移
}

// layout 描述页内各区域的边界
type layout struct {
	pageSize   uint32
	writeSize  int
	readSize   int
	headerLen  uint32
	markerLen  uint32
	trailerLen uint32
}

func newLayout(f flash.NorFlash) layout {
	return layout{
		pageSize:   uint32(f.EraseSize()),
		writeSize:  f.WriteSize(),
		readSize:   f.ReadSize(),
		headerLen:  uint32(alignUp(pageHeaderBytes, f.WriteSize())),
		markerLen:  uint32(alignUp(pageMarkerSize, f.WriteSize())),
		trailerLen: uint32(alignUp(pageTrailerSize, f.WriteSize())),
	}
}

// markerOff 返回回收完成标记的页内偏移
func (l layout) markerOff() uint32 {
	return l.headerLen
}

// itemsStart 返回记录区起点
func (l layout) itemsStart() uint32 {
	return l.headerLen + l.markerLen
}

// itemsEnd 返回记录区终点（不含）
func (l layout) itemsEnd() uint32 {
	return l.pageSize - l.trailerLen
}

// capacity 返回单页可容纳的记录字节数
func (l layout) capacity() int {
	if l.itemsEnd() <= l.itemsStart() {
		return 0
	}
	return int(l.itemsEnd() - l.itemsStart())
}

// encodeHeader 编码页头，buf 长度为 headerLen
func encodeHeader(buf []byte, gen uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], pageMagic)
	binary.LittleEndian.PutUint32(buf[4:8], gen)
	binary.LittleEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(buf[0:8]))
	for i := pageHeaderBytes; i < len(buf); i++ {
		buf[i] = flash.ErasedByte
	}
}

// decodeHeader 解析页头
// 返回：
//   - uint32: 代数
//   - PageState: PageEmpty（全部擦除）、PageOpen（有效）或 PageDirty（无效）
func decodeHeader(buf []byte) (uint32, PageState) {
	if isErased(buf) {
		return 0, PageEmpty
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != pageMagic {
		return 0, PageDirty
	}
	if crc32.ChecksumIEEE(buf[0:8]) != binary.LittleEndian.Uint32(buf[8:12]) {
		return 0, PageDirty
	}
	return binary.LittleEndian.Uint32(buf[4:8]), PageOpen
}

func isErased(buf []byte) bool {
	for _, b := range buf {
		if b != flash.ErasedByte {
			return false
		}
	}
	return true
}

// ==================== 记录读取 ====================

// itemStatus 是读取一条记录的结果
type itemStatus int

const (
	itemValid   itemStatus = iota
	itemErased             // 已擦除，页内数据结束
	itemCorrupt            // 长度可信但校验失败，可以跳过
	itemBroken             // 长度不可信，无法继续遍历该页
)

type itemRead struct {
	status itemStatus
	item   Item
	size   uint32 // 对齐后的长度，仅 itemValid / itemCorrupt 有效
}

// pageAddr 返回页内偏移对应的闪存地址
func (s *Storage) pageAddr(page int, off uint32) uint32 {
	return s.rng.Start + uint32(page)*s.layout.pageSize + off
}

// readItem 读取页内 off 处的记录到读缓冲区
func (s *Storage) readItem(ctx context.Context, page int, off uint32) (itemRead, error) {
	end := s.layout.itemsEnd()
	if off >= end {
		return itemRead{status: itemErased}, nil
	}
	n := min(len(s.rbuf), int(end-off))
	if s.layout.readSize > 1 {
		n -= n % s.layout.readSize
	}
	if n == 0 {
		return itemRead{}, storage.ErrBufferTooSmall
	}
	buf := s.rbuf[:n]
	if err := s.flash.Read(ctx, s.pageAddr(page, off), buf); err != nil {
		return itemRead{}, storage.FromFlash("read", err)
	}
	if buf[0] == erasedKeyLen {
		return itemRead{status: itemErased}, nil
	}

	need := headerLen(buf[0])
	if need > n {
		if need > int(end-off) {
			return itemRead{status: itemBroken}, nil
		}
		return itemRead{}, storage.ErrBufferTooSmall
	}
	total := recordLen(buf)
	size := alignUp(total, s.layout.writeSize)
	if size > int(end-off) {
		return itemRead{status: itemBroken}, nil
	}
	if total > n {
		return itemRead{}, storage.ErrBufferTooSmall
	}

	item, _, err := DecodeItem(buf[:total])
	if err != nil {
		return itemRead{status: itemCorrupt, size: uint32(size)}, nil
	}
	return itemRead{status: itemValid, item: item, size: uint32(size)}, nil
}

// walkFunc 处理页内的一条有效记录，返回 true 表示停止遍历
// it.item 引用读缓冲区，回调中再次读取闪存后失效
type walkFunc func(off uint32, it itemRead) (bool, error)

// walkPage 顺序遍历页内的有效记录
// 返回：
//   - uint32: 第一个空闲位置（遍历被回调终止时为终止处的偏移）
//   - bool: 页尾是否存在被截断的记录（掉电）
//   - error: 损坏记录后仍有有效记录时返回 ErrCorrupted
func (s *Storage) walkPage(ctx context.Context, page int, fn walkFunc) (uint32, bool, error) {
	off := s.layout.itemsStart()
	pendingCorrupt := false
	for {
		it, err := s.readItem(ctx, page, off)
		if err != nil {
			return off, false, err
		}
		switch it.status {
		case itemErased:
			return off, pendingCorrupt, nil
		case itemBroken:
			return off, true, nil
		case itemCorrupt:
			if !pendingCorrupt {
				s.logger.Warn("发现校验失败的记录", "page", page, "offset", off)
			}
			pendingCorrupt = true
			off += it.size
			continue
		}

		if pendingCorrupt {
			s.logger.Error("页中间存在损坏记录", "page", page, "offset", off)
			return off, false, storage.ErrCorrupted
		}
		if fn != nil {
			stop, err := fn(off, it)
			if err != nil {
				return off, false, err
			}
			if stop {
				return off, false, nil
			}
		}
		off += it.size
	}
}
