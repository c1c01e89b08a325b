package logstore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/forever-free1/FlashKV/storage"
)

// 记录格式：| KeyLen (1B) | Key | ValueLen (2B) | Value | CRC32 (4B) | 0xFF 填充到写入粒度 |
//
// KeyLen 的最高位是存活标记：写入时置 1，Remove 在可重复编程的闪存上原地清零。
// 校验和计算时该位视为 1，因此清零后记录仍然有效。
// KeyLen == 0xFF 表示已擦除区域（页内数据结束）；ValueLen == 0xFFFF 表示删除标记。
const (
	keyLenSize    = 1
	valueLenSize  = 2
	crcSize       = 4
	itemOverhead  = keyLenSize + valueLenSize + crcSize
	liveFlag      = 0x80
	keyLenMask    = 0x7F
	erasedKeyLen  = 0xFF
	tombstoneLen  = 0xFFFF
	maxValueLen   = tombstoneLen - 1
	keyLenLimit   = 126
	maxHeaderSize = keyLenSize + keyLenLimit + valueLenSize
)

// Item 是解码后的记录
// Key 和 Value 引用解码缓冲区，下一次读取后失效
type Item struct {
	Key       []byte
	Value     []byte
	Tombstone bool
	Live      bool
}

// encodedLen 返回记录未对齐时的长度
func encodedLen(keyLen, valueLen int, tombstone bool) int {
	if tombstone {
		valueLen = 0
	}
	return itemOverhead + keyLen + valueLen
}

// alignUp 将 n 向上对齐到 size
func alignUp(n, size int) int {
	if size <= 1 {
		return n
	}
	return (n + size - 1) / size * size
}

// EncodeItem 将记录编码到缓冲区
// 参数：
//   - key: 键
//   - value: 值，删除标记时忽略
//   - tombstone: 是否为删除标记
//   - buf: 编码缓冲区
//   - writeSize: 写入粒度，编码结果用 0xFF 填充到该粒度
//
// 返回：
//   - int: 写入缓冲区的字节数（含填充）
//   - error: ErrKeyTooLarge、ErrBufferTooBig 或 ErrSerializationBufferTooSmall
func EncodeItem(key, value []byte, tombstone bool, buf []byte, writeSize int) (int, error) {
	if len(key) > keyLenLimit {
		return 0, storage.ErrKeyTooLarge
	}
	if !tombstone && len(value) > maxValueLen {
		return 0, storage.ErrBufferTooBig
	}
	total := encodedLen(len(key), len(value), tombstone)
	padded := alignUp(total, writeSize)
	if padded > len(buf) {
		return 0, storage.ErrSerializationBufferTooSmall
	}

	buf[0] = byte(len(key)) | liveFlag
	n := keyLenSize
	n += copy(buf[n:], key)
	if tombstone {
		binary.LittleEndian.PutUint16(buf[n:], tombstoneLen)
		n += valueLenSize
	} else {
		binary.LittleEndian.PutUint16(buf[n:], uint16(len(value)))
		n += valueLenSize
		n += copy(buf[n:], value)
	}
	binary.LittleEndian.PutUint32(buf[n:], itemChecksum(buf[:n]))
	n += crcSize

	for i := n; i < padded; i++ {
		buf[i] = 0xFF
	}
	return padded, nil
}

// itemChecksum 计算校验和，存活标记位按 1 参与计算
func itemChecksum(data []byte) uint32 {
	first := [1]byte{data[0] | liveFlag}
	crc := crc32.Update(0, crc32.IEEETable, first[:])
	return crc32.Update(crc, crc32.IEEETable, data[1:])
}

// headerLen 返回读取 ValueLen 所需的字节数
func headerLen(first byte) int {
	return keyLenSize + int(first&keyLenMask) + valueLenSize
}

// recordLen 根据已读取的头部计算记录未对齐的长度
// data 至少包含 headerLen(data[0]) 字节
func recordLen(data []byte) int {
	keyLen := int(data[0] & keyLenMask)
	valueLen := binary.LittleEndian.Uint16(data[keyLenSize+keyLen:])
	return encodedLen(keyLen, int(valueLen), valueLen == tombstoneLen)
}

// DecodeItem 从缓冲区解码一条记录
// 参数：
//   - data: 以记录起点开始的字节
//
// 返回：
//   - Item: 解码结果，引用 data
//   - int: 记录未对齐的长度
//   - error: 长度字段越界返回 ErrSerializationInvalidData，校验失败返回 ErrSerializationInvalidFormat
func DecodeItem(data []byte) (Item, int, error) {
	if len(data) < 1 || len(data) < headerLen(data[0]) {
		return Item{}, 0, storage.ErrSerializationInvalidData
	}
	total := recordLen(data)
	if len(data) < total {
		return Item{}, 0, storage.ErrSerializationInvalidData
	}

	keyLen := int(data[0] & keyLenMask)
	valueLen := int(binary.LittleEndian.Uint16(data[keyLenSize+keyLen:]))
	item := Item{
		Key:  data[keyLenSize : keyLenSize+keyLen],
		Live: data[0]&liveFlag != 0,
	}
	valueStart := keyLenSize + keyLen + valueLenSize
	if valueLen == tombstoneLen {
		item.Tombstone = true
	} else {
		item.Value = data[valueStart : valueStart+valueLen]
	}

	want := binary.LittleEndian.Uint32(data[total-crcSize : total])
	if itemChecksum(data[:total-crcSize]) != want {
		return Item{}, total, storage.ErrSerializationInvalidFormat
	}
	return item, total, nil
}

// isTombstone 判断已编码的记录是否为删除标记
func isTombstone(data []byte) bool {
	keyLen := int(data[0] & keyLenMask)
	return binary.LittleEndian.Uint16(data[keyLenSize+keyLen:]) == tombstoneLen
}
