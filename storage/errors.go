package storage

import (
	"errors"
	"fmt"

	"github.com/forever-free1/FlashKV/storage/flash"
)

// Kind 对引擎错误进行分类
type Kind int

const (
	KindUnknown Kind = iota
	KindFlashNotAligned
	KindFlashOutOfBounds
	KindFlashOther
	KindFullStorage
	KindCorrupted
	KindBufferTooBig
	KindBufferTooSmall
	KindItemTooBig
	KindKeyTooLarge
	KindSerializationBufferTooSmall
	KindSerializationInvalidFormat
	KindSerializationInvalidData
	KindUnsupported
	KindInvalidRange
)

// ErrFlashNotAligned 表示闪存访问未按粒度对齐
var ErrFlashNotAligned = errors.New("flash access not aligned")

// ErrFlashOutOfBounds 表示闪存访问越界
var ErrFlashOutOfBounds = errors.New("flash access out of bounds")

// ErrFlashOther 表示闪存驱动的其他错误
var ErrFlashOther = errors.New("flash error")

// ErrFullStorage 表示没有可用空间，且无法安全回收
var ErrFullStorage = errors.New("storage is full")

// ErrCorrupted 表示页头或记录校验失败
var ErrCorrupted = errors.New("storage is corrupted")

// ErrBufferTooBig 表示缓冲区大于页可容纳的记录大小
var ErrBufferTooBig = errors.New("buffer too big")

// ErrBufferTooSmall 表示缓冲区不足以读取闪存中的记录
var ErrBufferTooSmall = errors.New("buffer too small")

// ErrItemTooBig 表示记录无法放入一个页
var ErrItemTooBig = errors.New("item too big")

// ErrKeyTooLarge 表示键长度超过上限
var ErrKeyTooLarge = errors.New("key too large")

// ErrSerializationBufferTooSmall 表示编码缓冲区不足
var ErrSerializationBufferTooSmall = errors.New("serialization buffer too small")

// ErrSerializationInvalidFormat 表示记录校验和不匹配
var ErrSerializationInvalidFormat = errors.New("serialization invalid format")

// ErrSerializationInvalidData 表示长度字段越界
var ErrSerializationInvalidData = errors.New("serialization invalid data")

// ErrUnsupported 表示闪存不支持该操作
var ErrUnsupported = errors.New("operation not supported by flash")

// ErrInvalidRange 表示存储区间不合法
var ErrInvalidRange = errors.New("invalid storage range")

var kindErrors = map[Kind]error{
	KindFlashNotAligned:             ErrFlashNotAligned,
	KindFlashOutOfBounds:            ErrFlashOutOfBounds,
	KindFlashOther:                  ErrFlashOther,
	KindFullStorage:                 ErrFullStorage,
	KindCorrupted:                   ErrCorrupted,
	KindBufferTooBig:                ErrBufferTooBig,
	KindBufferTooSmall:              ErrBufferTooSmall,
	KindItemTooBig:                  ErrItemTooBig,
	KindKeyTooLarge:                 ErrKeyTooLarge,
	KindSerializationBufferTooSmall: ErrSerializationBufferTooSmall,
	KindSerializationInvalidFormat:  ErrSerializationInvalidFormat,
	KindSerializationInvalidData:    ErrSerializationInvalidData,
	KindUnsupported:                 ErrUnsupported,
	KindInvalidRange:                ErrInvalidRange,
}

func (k Kind) String() string {
	switch k {
	case KindFlashNotAligned:
		return "FlashNotAligned"
	case KindFlashOutOfBounds:
		return "FlashOutOfBounds"
	case KindFlashOther:
		return "FlashOther"
	case KindFullStorage:
		return "FullStorage"
	case KindCorrupted:
		return "Corrupted"
	case KindBufferTooBig:
		return "BufferTooBig"
	case KindBufferTooSmall:
		return "BufferTooSmall"
	case KindItemTooBig:
		return "ItemTooBig"
	case KindKeyTooLarge:
		return "KeyTooLarge"
	case KindSerializationBufferTooSmall:
		return "SerializationBufferTooSmall"
	case KindSerializationInvalidFormat:
		return "SerializationInvalidFormat"
	case KindSerializationInvalidData:
		return "SerializationInvalidData"
	case KindUnsupported:
		return "Unsupported"
	case KindInvalidRange:
		return "InvalidRange"
	default:
		return "Unknown"
	}
}

// Recoverable 判断该类错误是否可由调用方调整大小后恢复
func (k Kind) Recoverable() bool {
	switch k {
	case KindBufferTooBig, KindBufferTooSmall, KindItemTooBig, KindKeyTooLarge, KindSerializationBufferTooSmall:
		return true
	}
	return false
}

// Error 是引擎对外报告的统一错误类型
type Error struct {
	Op   string // 出错的操作：get、insert、remove、erase_all ...
	Key  string // 相关的键，可能为空
	Kind Kind   // 错误分类
	Err  error  // 底层错误
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %q: %s", e.Op, e.Key, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrFullStorage) 等按分类匹配
func (e *Error) Is(target error) bool {
	sentinel, ok := kindErrors[e.Kind]
	return ok && sentinel == target
}

// NewError 创建一个分类错误
// 参数：
//   - op: 操作名
//   - key: 相关的键
//   - err: 底层错误，会通过 KindOf 推断分类
//
// 返回：
//   - error: 分类后的错误，err 为 nil 时返回 nil
func NewError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Op == op && se.Key == key {
			return se
		}
		return &Error{Op: op, Key: key, Kind: se.Kind, Err: se.Err}
	}
	return &Error{Op: op, Key: key, Kind: KindOf(err), Err: err}
}

// KindOf 推断错误的分类
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, flash.ErrNotAligned):
		return KindFlashNotAligned
	case errors.Is(err, flash.ErrOutOfBounds):
		return KindFlashOutOfBounds
	case errors.Is(err, flash.ErrOther):
		return KindFlashOther
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// FromFlash 将闪存驱动的错误原样转换为引擎错误
// 闪存错误从不在引擎内部重试
func FromFlash(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindFlashOther
	var fe *flash.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case flash.KindNotAligned:
			kind = KindFlashNotAligned
		case flash.KindOutOfBounds:
			kind = KindFlashOutOfBounds
		}
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
