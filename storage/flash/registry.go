package flash

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyClaimed 表示区间已被其他使用者占用
var ErrAlreadyClaimed = errors.New("flash range already claimed")

// ErrClaimReleased 表示使用已释放的占用凭证
var ErrClaimReleased = errors.New("flash claim released")

// Range 是闪存上的地址区间 [Start, End)
type Range struct {
	Start uint32
	End   uint32
}

// Len 返回区间长度
func (r Range) Len() uint32 {
	return r.End - r.Start
}

// Pages 返回区间包含的页数
func (r Range) Pages(pageSize int) int {
	return int(r.Len()) / pageSize
}

func (r Range) overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End)
}

// Whole 返回覆盖整个闪存的区间
func Whole(f NorFlash) Range {
	return Range{Start: 0, End: uint32(f.Capacity())}
}

// Registry 在运行时保证每个闪存区间只被占用一次
type Registry struct {
	mu     sync.Mutex
	claims map[NorFlash][]Range
}

// NewRegistry 创建新的占用登记表
func NewRegistry() *Registry {
	return &Registry{
		claims: make(map[NorFlash][]Range),
	}
}

// DefaultRegistry 是进程内共享的登记表
var DefaultRegistry = NewRegistry()

// Claim 是对闪存区间的独占凭证，只能通过 Registry.Claim 获得
type Claim struct {
	flash    NorFlash
	rng      Range
	registry *Registry
	released bool
}

// Claim 占用闪存上的一个区间
// 参数：
//   - f: 闪存
//   - rng: 区间，两端必须按页对齐且不超出容量
//
// 返回：
//   - *Claim: 独占凭证
//   - error: 区间非法，或与已占用区间重叠时返回 ErrAlreadyClaimed
func (r *Registry) Claim(f NorFlash, rng Range) (*Claim, error) {
	if rng.Start >= rng.End || int(rng.End) > f.Capacity() {
		return nil, &Error{Op: "claim", Kind: KindOutOfBounds, Offset: rng.Start}
	}
	page := uint32(f.EraseSize())
	if rng.Start%page != 0 || rng.End%page != 0 {
		return nil, &Error{Op: "claim", Kind: KindNotAligned, Offset: rng.Start}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, held := range r.claims[f] {
		if held.overlaps(rng) {
			return nil, fmt.Errorf("%w: %s overlaps %s", ErrAlreadyClaimed, rng, held)
		}
	}
	r.claims[f] = append(r.claims[f], rng)
	return &Claim{flash: f, rng: rng, registry: r}, nil
}

func (r *Registry) release(f NorFlash, rng Range) {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.claims[f]
	for i, h := range held {
		if h == rng {
			held = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(held) == 0 {
		delete(r.claims, f)
	} else {
		r.claims[f] = held
	}
}

// Flash 返回被占用的闪存
func (c *Claim) Flash() NorFlash {
	return c.flash
}

// Range 返回被占用的区间
func (c *Claim) Range() Range {
	return c.rng
}

// Released 判断凭证是否已释放
func (c *Claim) Released() bool {
	return c.released
}

// Release 释放占用，重复调用无副作用
func (c *Claim) Release() {
	if c.released {
		return
	}
	c.released = true
	c.registry.release(c.flash, c.rng)
}
