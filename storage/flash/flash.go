// Package flash 定义存储引擎所依赖的 NOR 闪存契约。
//
// 闪存只能按页擦除（擦除后所有位为 1，即字节 0xFF），写入只能把位从 1 变为 0，
// 直到下一次擦除。读写需要按驱动声明的粒度对齐。
package flash

import (
	"context"
	"errors"
	"fmt"
)

// ErasedByte 是擦除后每个字节的值
const ErasedByte = 0xFF

// Kind 是闪存错误的分类
type Kind int

const (
	KindOther Kind = iota
	KindNotAligned
	KindOutOfBounds
)

// ErrNotAligned 表示访问地址或长度未对齐
var ErrNotAligned = errors.New("flash: not aligned")

// ErrOutOfBounds 表示访问超出闪存容量
var ErrOutOfBounds = errors.New("flash: out of bounds")

// ErrOther 表示其他闪存故障（例如重复编程、掉电）
var ErrOther = errors.New("flash: other error")

// Error 是闪存驱动返回的错误
type Error struct {
	Op     string // read、write、erase
	Kind   Kind
	Offset uint32
	Err    error // 具体原因，可能为空
}

func (e *Error) Error() string {
	var base error
	switch e.Kind {
	case KindNotAligned:
		base = ErrNotAligned
	case KindOutOfBounds:
		base = ErrOutOfBounds
	default:
		base = ErrOther
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at 0x%x: %v: %v", e.Op, e.Offset, base, e.Err)
	}
	return fmt.Sprintf("%s at 0x%x: %v", e.Op, e.Offset, base)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按分类匹配 ErrNotAligned / ErrOutOfBounds / ErrOther
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotAligned:
		return e.Kind == KindNotAligned
	case ErrOutOfBounds:
		return e.Kind == KindOutOfBounds
	case ErrOther:
		return e.Kind == KindOther
	}
	return false
}

// NorFlash 是 NOR 闪存驱动的抽象接口
type NorFlash interface {
	// ReadSize 返回读取粒度（字节）
	ReadSize() int

	// WriteSize 返回写入粒度（字节），写入地址和长度必须按此对齐
	WriteSize() int

	// EraseSize 返回擦除粒度，即页大小
	EraseSize() int

	// Capacity 返回闪存总容量
	Capacity() int

	// Read 从 offset 处读取 len(buf) 字节
	Read(ctx context.Context, offset uint32, buf []byte) error

	// Write 在 offset 处编程 data，只能把位从 1 变为 0
	Write(ctx context.Context, offset uint32, data []byte) error

	// Erase 擦除 [from, to)，两端必须按页对齐
	Erase(ctx context.Context, from, to uint32) error
}

// MultiwriteNorFlash 表示可以对已编程的字再次编程的闪存
// 再次编程仍然只能清除位
type MultiwriteNorFlash interface {
	NorFlash
	Multiwrite()
}

// IsMultiwrite 判断闪存是否支持重复编程
func IsMultiwrite(f NorFlash) bool {
	_, ok := f.(MultiwriteNorFlash)
	return ok
}

// CheckRead 检查读取参数
func CheckRead(f NorFlash, offset uint32, n int) error {
	if err := checkBounds(f, "read", offset, n); err != nil {
		return err
	}
	if !aligned(offset, n, f.ReadSize()) {
		return &Error{Op: "read", Kind: KindNotAligned, Offset: offset}
	}
	return nil
}

// CheckWrite 检查写入参数
func CheckWrite(f NorFlash, offset uint32, n int) error {
	if err := checkBounds(f, "write", offset, n); err != nil {
		return err
	}
	if !aligned(offset, n, f.WriteSize()) {
		return &Error{Op: "write", Kind: KindNotAligned, Offset: offset}
	}
	return nil
}

// CheckErase 检查擦除参数
func CheckErase(f NorFlash, from, to uint32) error {
	if from > to || int(to) > f.Capacity() {
		return &Error{Op: "erase", Kind: KindOutOfBounds, Offset: from}
	}
	page := uint32(f.EraseSize())
	if from%page != 0 || to%page != 0 {
		return &Error{Op: "erase", Kind: KindNotAligned, Offset: from}
	}
	return nil
}

func checkBounds(f NorFlash, op string, offset uint32, n int) error {
	if n < 0 || int(offset)+n > f.Capacity() {
		return &Error{Op: op, Kind: KindOutOfBounds, Offset: offset}
	}
	return nil
}

func aligned(offset uint32, n, size int) bool {
	if size <= 1 {
		return true
	}
	return int(offset)%size == 0 && n%size == 0
}
