package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/flash"
	"github.com/forever-free1/FlashKV/storage/index"
	"github.com/hashicorp/go-hclog"
)

// Storage 是基于日志结构的闪存键值存储引擎
// 数据按页追加写入，页写满后关闭并打开下一页；始终保留一个空闲页，
// 打开最后一个空闲页时回收最旧的页。
//
// Storage 不做内部加锁，多个调用方需要通过 Shared 串行化。
type Storage struct {
	flash    flash.NorFlash
	claim    *flash.Claim // 通过 Open 创建时持有的区间凭证
	rng      flash.Range
	layout   layout
	options  *Options
	logger   hclog.Logger
	recorder Recorder

	pages      []pageInfo
	order      []int // 按代数从新到旧排列的有数据页，nil 表示需要重建
	open       int   // 当前打开的页，-1 表示没有
	maxGen     uint32
	ready      bool // false 表示下一次操作前需要重新扫描闪存
	multiwrite bool

	rbuf []byte // 读缓冲区
	wbuf []byte // 待写入记录的编码缓冲区
	hbuf []byte // 页头 / 页尾 / 失效标记使用的小缓冲区

	index      index.Index
	bloom      *index.BloomFilter
	bloomReady bool // 布隆过滤器是否覆盖了闪存上的全部键
}

// New 在闪存区间上创建存储引擎
// 区间内容在第一次操作时才会被扫描
// 参数：
//   - f: 闪存
//   - rng: 存储区间，两端按页对齐，至少两页
//   - opts: 配置选项
//
// 返回：
//   - *Storage: 引擎指针
//   - error: 配置非法
func New(f flash.NorFlash, rng flash.Range, opts ...Option) (*Storage, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}

	l := newLayout(f)
	if err := validate(f, rng, l, options); err != nil {
		return nil, storage.NewError("new", "", err)
	}

	s := &Storage{
		flash:      f,
		rng:        rng,
		layout:     l,
		options:    options,
		logger:     options.Logger.Named("logstore"),
		recorder:   options.Recorder,
		pages:      make([]pageInfo, rng.Pages(int(l.pageSize))),
		open:       -1,
		multiwrite: flash.IsMultiwrite(f),
		rbuf:       make([]byte, options.DataBufferSize),
		wbuf:       make([]byte, options.DataBufferSize),
		hbuf:       make([]byte, max(l.headerLen, l.markerLen, l.trailerLen, uint32(l.writeSize))),
	}

	switch options.IndexType {
	case IndexTypeMap:
		s.index = index.NewMapIndex()
	case IndexTypeART:
		s.index = index.NewARTIndex()
	}
	if s.index != nil {
		s.bloom = index.NewBloomFilter(uint(max(options.MaxCachedKeys, 1)), options.BloomFilterFP)
	}
	return s, nil
}

// Open 在已占用的闪存区间上创建存储引擎
// Close 时释放占用
func Open(claim *flash.Claim, opts ...Option) (*Storage, error) {
	if claim == nil || claim.Released() {
		return nil, storage.NewError("open", "", flash.ErrClaimReleased)
	}
	s, err := New(claim.Flash(), claim.Range(), opts...)
	if err != nil {
		return nil, err
	}
	s.claim = claim
	return s, nil
}

func validate(f flash.NorFlash, rng flash.Range, l layout, o *Options) error {
	if l.pageSize == 0 || rng.Start >= rng.End || int(rng.End) > f.Capacity() {
		return fmt.Errorf("区间 %s 超出闪存容量 %d: %w", rng, f.Capacity(), storage.ErrInvalidRange)
	}
	if rng.Start%l.pageSize != 0 || rng.End%l.pageSize != 0 {
		return fmt.Errorf("区间 %s 未按页大小 %d 对齐: %w", rng, l.pageSize, storage.ErrInvalidRange)
	}
	if rng.Pages(int(l.pageSize)) < 2 {
		return fmt.Errorf("区间 %s 少于两页: %w", rng, storage.ErrInvalidRange)
	}
	if l.writeSize%l.readSize != 0 || int(l.pageSize)%l.writeSize != 0 {
		return fmt.Errorf("读写粒度 %d/%d 与页大小 %d 不匹配: %w", l.readSize, l.writeSize, l.pageSize, storage.ErrInvalidRange)
	}
	if l.capacity() == 0 {
		return fmt.Errorf("页大小 %d 放不下页头和页尾: %w", l.pageSize, storage.ErrInvalidRange)
	}
	if o.MaxKeyLen < 1 || o.MaxKeyLen > keyLenLimit {
		return fmt.Errorf("键长度上限 %d 超出范围 [1, %d]: %w", o.MaxKeyLen, keyLenLimit, storage.ErrKeyTooLarge)
	}
	if o.DataBufferSize%l.writeSize != 0 {
		return fmt.Errorf("缓冲区大小 %d 未按写入粒度 %d 对齐: %w", o.DataBufferSize, l.writeSize, storage.ErrBufferTooSmall)
	}
	if o.DataBufferSize < alignUp(itemOverhead+1, l.writeSize) || o.DataBufferSize < int(l.headerLen) {
		return fmt.Errorf("缓冲区大小 %d 放不下一条记录: %w", o.DataBufferSize, storage.ErrBufferTooSmall)
	}
	return nil
}

// Close 释放区间占用和缓存
// 引擎本身不持有需要刷新的状态
func (s *Storage) Close() error {
	if s.claim != nil {
		s.claim.Release()
	}
	if s.index != nil {
		s.index.Close()
	}
	return nil
}

// Flash 返回底层闪存
func (s *Storage) Flash() flash.NorFlash {
	return s.flash
}

// Range 返回存储区间
func (s *Storage) Range() flash.Range {
	return s.rng
}

// ==================== 对外操作 ====================

// Get 根据键获取最新的值
// 参数：
//   - key: 键
//
// 返回：
//   - []byte: 值的副本
//   - bool: 是否找到，从未写入或已删除时为 false
//   - error: 读取错误
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.get(ctx, []byte(key))
	err = storage.NewError("get", key, err)
	s.observe("get", start, err)
	return value, found, err
}

// Insert 追加写入键值对
// 校验失败时不访问闪存；写入失败时该键之前的值保持不变
func (s *Storage) Insert(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := storage.NewError("insert", key, s.insert(ctx, []byte(key), value))
	s.observe("insert", start, err)
	return err
}

// Remove 删除键值对
// 追加删除标记后扫描整个区间，将该键的旧值原地标记为失效。
// 闪存不支持重复编程时返回 ErrUnsupported。
func (s *Storage) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := storage.NewError("remove", key, s.remove(ctx, []byte(key)))
	s.observe("remove", start, err)
	return err
}

// EraseAll 擦除整个区间，恢复到初始状态
func (s *Storage) EraseAll(ctx context.Context) error {
	start := time.Now()
	err := storage.NewError("erase_all", "", s.eraseAll(ctx))
	s.observe("erase_all", start, err)
	return err
}

func (s *Storage) get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if len(key) > s.options.MaxKeyLen {
		return nil, false, storage.ErrKeyTooLarge
	}
	if err := s.mount(ctx); err != nil {
		return nil, false, err
	}

	pos, found, err := s.lookup(ctx, key)
	if err != nil || !found || pos.Tombstone {
		return nil, false, err
	}
	it, err := s.readItem(ctx, int(pos.Page), pos.Offset)
	if err != nil {
		return nil, false, err
	}
	if it.status != itemValid || !bytes.Equal(it.item.Key, key) {
		return nil, false, storage.ErrCorrupted
	}
	value := make([]byte, len(it.item.Value))
	copy(value, it.item.Value)
	return value, true, nil
}

func (s *Storage) insert(ctx context.Context, key, value []byte) error {
	if len(key) > s.options.MaxKeyLen {
		return storage.ErrKeyTooLarge
	}
	n, err := EncodeItem(key, value, false, s.wbuf, s.layout.writeSize)
	if err != nil {
		return err
	}
	if n > s.layout.capacity() {
		return storage.ErrItemTooBig
	}
	if err := s.mount(ctx); err != nil {
		return err
	}

	pos, err := s.append(ctx, n, key)
	if err != nil {
		return err
	}
	s.cachePut(key, pos)
	return nil
}

func (s *Storage) remove(ctx context.Context, key []byte) error {
	if !s.multiwrite {
		return storage.ErrUnsupported
	}
	if len(key) > s.options.MaxKeyLen {
		return storage.ErrKeyTooLarge
	}
	if err := s.mount(ctx); err != nil {
		return err
	}

	pos, found, err := s.lookup(ctx, key)
	if err != nil {
		return err
	}
	if found && !pos.Tombstone {
		n, err := EncodeItem(key, nil, true, s.wbuf, s.layout.writeSize)
		if err != nil {
			return err
		}
		tpos, err := s.append(ctx, n, key)
		if err != nil {
			return err
		}
		s.cachePut(key, tpos)
	}
	return s.invalidate(ctx, key)
}

func (s *Storage) eraseAll(ctx context.Context) error {
	if err := s.flash.Erase(ctx, s.rng.Start, s.rng.End); err != nil {
		s.ready = false
		return storage.FromFlash("erase", err)
	}
	for p := range s.pages {
		s.pages[p] = pageInfo{state: PageEmpty}
		if s.recorder != nil {
			s.recorder.PageErased(p)
		}
	}
	s.open = -1
	s.maxGen = 0
	s.order = nil
	s.resetCache()
	s.bloomReady = s.bloom != nil
	s.ready = true
	s.logger.Info("已擦除整个存储区间", "range", s.rng.String(), "pages", len(s.pages))
	s.reportPageStates()
	return nil
}

// ==================== 启动扫描 ====================

// mount 扫描闪存，重建页状态
// 仅在第一次操作或写入失败后执行
func (s *Storage) mount(ctx context.Context) error {
	if s.ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.resetCache()
	s.bloomReady = false
	s.open = -1
	s.maxGen = 0
	s.order = nil

	hdr := s.hbuf[:s.layout.headerLen]
	trl := s.hbuf[:s.layout.trailerLen]
	for p := range s.pages {
		if err := s.flash.Read(ctx, s.pageAddr(p, 0), hdr); err != nil {
			return storage.FromFlash("read", err)
		}
		gen, state := decodeHeader(hdr)
		if state == PageEmpty {
			// 页头已擦除但其余部分有数据，说明擦除被中断
			erased, err := s.regionErased(ctx, p, s.layout.headerLen, s.layout.pageSize)
			if err != nil {
				return err
			}
			if !erased {
				s.logger.Warn("页头已擦除但页内仍有数据，标记为待擦除", "page", p)
				state = PageDirty
			}
		}
		if state == PageOpen {
			if err := s.flash.Read(ctx, s.pageAddr(p, s.layout.itemsEnd()), trl); err != nil {
				return storage.FromFlash("read", err)
			}
			if !isErased(trl) {
				state = PageClosed
			}
		}
		s.pages[p] = pageInfo{state: state, gen: gen}
		if !state.hasData() {
			continue
		}
		s.maxGen = max(s.maxGen, gen)
		if state == PageOpen {
			// 多个打开的页只保留代数最大的一个，其余按已关闭处理
			if s.open < 0 || gen > s.pages[s.open].gen {
				if s.open >= 0 {
					s.pages[s.open].state = PageClosed
				}
				s.open = p
			} else {
				s.pages[p].state = PageClosed
			}
		}
	}

	// 没有空闲页却有打开的页，说明回收被中断。
	// 搬迁目标有完成标记时中断发生在擦除旧页期间，重新擦除最旧的页；
	// 否则旧页完好，丢弃搬迁目标即可恢复
	if s.open >= 0 && s.freeCount() == 0 {
		if err := s.recoverCompaction(ctx); err != nil {
			return err
		}
	}

	if s.open >= 0 {
		cursor, torn, err := s.walkPage(ctx, s.open, nil)
		if err != nil {
			return err
		}
		if !torn {
			// 追加位置之后必须全部是擦除状态，否则后续写入都会失败
			erased, err := s.regionErased(ctx, s.open, cursor, s.layout.itemsEnd())
			if err != nil {
				return err
			}
			torn = !erased
		}
		if torn {
			s.logger.Warn("打开的页末尾存在未写完的数据，关闭该页", "page", s.open, "offset", cursor)
			if err := s.closePage(ctx, s.open); err != nil {
				return err
			}
		} else {
			s.pages[s.open].cursor = cursor
		}
	}

	if s.bloom != nil {
		if err := s.fillBloom(ctx); err != nil {
			return err
		}
	}

	s.ready = true
	s.logger.Debug("存储区间扫描完成", "pages", len(s.pages), "open", s.open, "generation", s.maxGen)
	s.reportPageStates()
	return nil
}

// recoverCompaction 处理中断的回收，调用时没有空闲页
func (s *Storage) recoverCompaction(ctx context.Context) error {
	target := s.open
	done, err := s.compactionDone(ctx, target)
	if err != nil {
		return err
	}
	if oldest := s.oldestPage(); done && oldest >= 0 && oldest != target {
		s.logger.Warn("旧页擦除被中断，重新擦除", "page", oldest, "generation", s.pages[oldest].gen, "target", target)
		return s.erasePage(ctx, oldest)
	}

	s.logger.Warn("回收过程被中断，丢弃搬迁目标页", "page", target, "generation", s.pages[target].gen)
	if err := s.erasePage(ctx, target); err != nil {
		return err
	}
	s.open = -1
	return nil
}

// regionErased 检查页内 [from, to) 是否全部为擦除状态
func (s *Storage) regionErased(ctx context.Context, p int, from, to uint32) (bool, error) {
	for off := from; off < to; {
		buf := s.rbuf[:min(len(s.rbuf), int(to-off))]
		if err := s.flash.Read(ctx, s.pageAddr(p, off), buf); err != nil {
			return false, storage.FromFlash("read", err)
		}
		if !isErased(buf) {
			return false, nil
		}
		off += uint32(len(buf))
	}
	return true, nil
}

// fillBloom 将闪存上的全部键写入布隆过滤器
func (s *Storage) fillBloom(ctx context.Context) error {
	for _, p := range s.dataPages() {
		_, _, err := s.walkPage(ctx, p, func(_ uint32, it itemRead) (bool, error) {
			s.bloom.Add(it.item.Key)
			return false, nil
		})
		if err != nil {
			return err
		}
	}
	s.bloomReady = true
	return nil
}

// ==================== 页管理 ====================

// dataPages 返回按代数从新到旧排列的有数据页
// 返回的切片在页状态变化前保持不变
func (s *Storage) dataPages() []int {
	if s.order != nil {
		return s.order
	}
	order := make([]int, 0, len(s.pages))
	for p, info := range s.pages {
		if info.state.hasData() {
			order = append(order, p)
		}
	}
	slices.SortFunc(order, func(a, b int) int {
		ga, gb := s.pages[a].gen, s.pages[b].gen
		switch {
		case ga > gb:
			return -1
		case ga < gb:
			return 1
		}
		return 0
	})
	s.order = order
	return order
}

func (s *Storage) freeCount() int {
	n := 0
	for _, info := range s.pages {
		if info.state.free() {
			n++
		}
	}
	return n
}

// oldestPage 返回代数最小的有数据页，没有时返回 -1
func (s *Storage) oldestPage() int {
	order := s.dataPages()
	if len(order) == 0 {
		return -1
	}
	return order[len(order)-1]
}

// nextPage 返回下一个要打开的页
func (s *Storage) nextPage() int {
	if s.open >= 0 {
		return (s.open + 1) % len(s.pages)
	}
	order := s.dataPages()
	if len(order) == 0 {
		return 0
	}
	return (order[0] + 1) % len(s.pages)
}

// openPage 写入页头，将页变为打开状态
func (s *Storage) openPage(ctx context.Context, p int) error {
	if s.pages[p].state != PageEmpty {
		if err := s.erasePage(ctx, p); err != nil {
			return err
		}
	}
	gen := s.maxGen + 1
	hdr := s.hbuf[:s.layout.headerLen]
	encodeHeader(hdr, gen)
	if err := s.flash.Write(ctx, s.pageAddr(p, 0), hdr); err != nil {
		s.ready = false
		return storage.FromFlash("write", err)
	}
	s.maxGen = gen
	s.pages[p] = pageInfo{state: PageOpen, gen: gen, cursor: s.layout.itemsStart()}
	s.open = p
	s.order = nil
	s.logger.Debug("打开新页", "page", p, "generation", gen)
	return nil
}

// closePage 写入页尾，将页变为关闭状态
func (s *Storage) closePage(ctx context.Context, p int) error {
	trl := s.hbuf[:s.layout.trailerLen]
	clear(trl)
	if err := s.flash.Write(ctx, s.pageAddr(p, s.layout.itemsEnd()), trl); err != nil {
		s.ready = false
		return storage.FromFlash("write", err)
	}
	s.pages[p].state = PageClosed
	s.pages[p].cursor = 0
	if s.open == p {
		s.open = -1
	}
	s.logger.Debug("关闭页", "page", p, "generation", s.pages[p].gen)
	return nil
}

// markCompacted 写入回收完成标记
func (s *Storage) markCompacted(ctx context.Context, p int) error {
	marker := s.hbuf[:s.layout.markerLen]
	clear(marker)
	if err := s.flash.Write(ctx, s.pageAddr(p, s.layout.markerOff()), marker); err != nil {
		s.ready = false
		return storage.FromFlash("write", err)
	}
	return nil
}

// compactionDone 判断页上是否有回收完成标记
func (s *Storage) compactionDone(ctx context.Context, p int) (bool, error) {
	marker := s.hbuf[:s.layout.markerLen]
	if err := s.flash.Read(ctx, s.pageAddr(p, s.layout.markerOff()), marker); err != nil {
		return false, storage.FromFlash("read", err)
	}
	return !isErased(marker), nil
}

// erasePage 擦除一个页
func (s *Storage) erasePage(ctx context.Context, p int) error {
	from := s.pageAddr(p, 0)
	if err := s.flash.Erase(ctx, from, from+s.layout.pageSize); err != nil {
		s.ready = false
		return storage.FromFlash("erase", err)
	}
	s.pages[p] = pageInfo{state: PageEmpty}
	s.order = nil
	if s.recorder != nil {
		s.recorder.PageErased(p)
	}
	return nil
}

// writeRaw 将已编码的记录写入页的追加位置
func (s *Storage) writeRaw(ctx context.Context, p int, data []byte) (storage.Position, error) {
	off := s.pages[p].cursor
	if err := s.flash.Write(ctx, s.pageAddr(p, off), data); err != nil {
		s.ready = false
		return storage.Position{}, storage.FromFlash("write", err)
	}
	s.pages[p].cursor = off + uint32(len(data))
	return storage.Position{Page: uint32(p), Offset: off, Size: uint32(len(data))}, nil
}

// append 写入编码缓冲区中的前 n 字节
// 当前页放不下时打开下一页；打开最后一个空闲页时先回收最旧的页。
// 回收后仍放不下时不做任何写入，返回 ErrFullStorage。
//
// 参数：
//   - n: 编码后的记录长度
//   - key: 记录的键，回收时不搬迁该键的旧记录
func (s *Storage) append(ctx context.Context, n int, key []byte) (storage.Position, error) {
	tombstone := isTombstone(s.wbuf[:n])
	if s.open >= 0 && s.pages[s.open].cursor+uint32(n) <= s.layout.itemsEnd() {
		pos, err := s.writeRaw(ctx, s.open, s.wbuf[:n])
		pos.Tombstone = tombstone
		return pos, err
	}

	next := s.nextPage()
	if !s.pages[next].state.free() {
		return storage.Position{}, storage.ErrFullStorage
	}

	oldest := -1
	if s.freeCount() == 1 {
		oldest = s.oldestPage()
		if oldest >= 0 {
			live, err := s.liveSize(ctx, oldest, key)
			if err != nil {
				return storage.Position{}, err
			}
			if live+n > s.layout.capacity() {
				s.logger.Debug("回收后空间不足", "oldest", oldest, "live", live, "item", n)
				return storage.Position{}, storage.ErrFullStorage
			}
		}
	}

	if s.open >= 0 {
		if err := s.closePage(ctx, s.open); err != nil {
			return storage.Position{}, err
		}
	}
	if err := s.openPage(ctx, next); err != nil {
		return storage.Position{}, err
	}

	moved := 0
	if oldest >= 0 {
		var err error
		moved, err = s.compact(ctx, oldest, next, key)
		if err != nil {
			return storage.Position{}, err
		}
	}

	pos, err := s.writeRaw(ctx, next, s.wbuf[:n])
	if err != nil {
		return storage.Position{}, err
	}
	pos.Tombstone = tombstone

	if oldest >= 0 {
		// 新记录落盘并写入完成标记后才擦除旧页
		if err := s.markCompacted(ctx, next); err != nil {
			return storage.Position{}, err
		}
		if err := s.erasePage(ctx, oldest); err != nil {
			return storage.Position{}, err
		}
		if s.index != nil {
			s.index.Reset()
		}
		if s.recorder != nil {
			s.recorder.Compacted(moved)
		}
		s.logger.Info("回收最旧的页", "page", oldest, "moved", moved, "target", next)
	}
	s.reportPageStates()
	return pos, nil
}

// ==================== 回收 ====================

// survives 判断页内 off 处的记录在回收时是否需要搬迁
// 删除标记、已失效的记录、被更新版本覆盖的记录以及 skip 键的记录都不搬迁
func (s *Storage) survives(ctx context.Context, p int, off uint32, it itemRead, skip []byte, target int) (bool, error) {
	if it.item.Tombstone || !it.item.Live || bytes.Equal(it.item.Key, skip) {
		return false, nil
	}
	var kb [keyLenLimit]byte
	key := kb[:copy(kb[:], it.item.Key)]
	pos, found, err := s.newest(ctx, key, target)
	if err != nil {
		return false, err
	}
	return found && int(pos.Page) == p && pos.Offset == off, nil
}

// liveSize 计算页内需要搬迁的记录总长度
func (s *Storage) liveSize(ctx context.Context, p int, skip []byte) (int, error) {
	total := 0
	_, _, err := s.walkPage(ctx, p, func(off uint32, it itemRead) (bool, error) {
		size := it.size
		ok, err := s.survives(ctx, p, off, it, skip, -1)
		if ok {
			total += int(size)
		}
		return false, err
	})
	return total, err
}

// compact 将 from 页中仍然有效的记录原样复制到 to 页
// 返回：
//   - int: 搬迁的记录数
func (s *Storage) compact(ctx context.Context, from, to int, skip []byte) (int, error) {
	moved := 0
	_, _, err := s.walkPage(ctx, from, func(off uint32, it itemRead) (bool, error) {
		size := it.size
		ok, err := s.survives(ctx, from, off, it, skip, to)
		if err != nil || !ok {
			return false, err
		}
		// 查找覆盖了读缓冲区，重新读取原始字节
		raw := s.rbuf[:size]
		if err := s.flash.Read(ctx, s.pageAddr(from, off), raw); err != nil {
			return false, storage.FromFlash("read", err)
		}
		if _, err := s.writeRaw(ctx, to, raw); err != nil {
			return false, err
		}
		moved++
		return false, nil
	})
	return moved, err
}

// ==================== 查找与失效 ====================

// newest 查找键的最新记录，包括删除标记
// 参数：
//   - key: 键，不能引用读缓冲区
//   - skip: 跳过的页，-1 表示不跳过
func (s *Storage) newest(ctx context.Context, key []byte, skip int) (storage.Position, bool, error) {
	for _, p := range s.dataPages() {
		if p == skip {
			continue
		}
		var pos storage.Position
		found := false
		_, _, err := s.walkPage(ctx, p, func(off uint32, it itemRead) (bool, error) {
			if it.item.Live && bytes.Equal(it.item.Key, key) {
				pos = storage.Position{Page: uint32(p), Offset: off, Size: it.size, Tombstone: it.item.Tombstone}
				found = true
			}
			return false, nil
		})
		if err != nil {
			return storage.Position{}, false, err
		}
		if found {
			return pos, true, nil
		}
	}
	return storage.Position{}, false, nil
}

// lookup 先查缓存，未命中时扫描闪存
func (s *Storage) lookup(ctx context.Context, key []byte) (storage.Position, bool, error) {
	if s.bloomReady && !s.bloom.Test(key) {
		return storage.Position{}, false, nil
	}
	if s.index != nil {
		if pos := s.index.Get(key); pos != nil {
			return *pos, true, nil
		}
	}
	pos, found, err := s.newest(ctx, key, -1)
	if err != nil || !found {
		return pos, found, err
	}
	s.cachePut(key, pos)
	return pos, true, nil
}

// invalidate 将键的所有旧值原地标记为失效
// 清除 KeyLen 的存活标记位，只会把 1 变为 0
func (s *Storage) invalidate(ctx context.Context, key []byte) error {
	word := s.hbuf[:s.layout.writeSize]
	for _, p := range s.dataPages() {
		_, _, err := s.walkPage(ctx, p, func(off uint32, it itemRead) (bool, error) {
			if it.item.Tombstone || !it.item.Live || !bytes.Equal(it.item.Key, key) {
				return false, nil
			}
			addr := s.pageAddr(p, off)
			if err := s.flash.Read(ctx, addr, word); err != nil {
				return false, storage.FromFlash("read", err)
			}
			word[0] &^= liveFlag
			if err := s.flash.Write(ctx, addr, word); err != nil {
				s.ready = false
				return false, storage.FromFlash("write", err)
			}
			return false, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ==================== 缓存 ====================

// cachePut 记录键的最新位置，超过上限时不再缓存新键
func (s *Storage) cachePut(key []byte, pos storage.Position) {
	if s.bloom != nil {
		s.bloom.Add(key)
	}
	if s.index == nil {
		return
	}
	if s.index.Get(key) == nil && s.index.Size() >= s.options.MaxCachedKeys {
		return
	}
	s.index.Put(key, &pos)
}

func (s *Storage) resetCache() {
	if s.index != nil {
		s.index.Reset()
	}
	if s.bloom != nil {
		s.bloom.Reset()
	}
}

// ==================== 指标 ====================

func (s *Storage) observe(op string, start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	kind := ""
	if err != nil {
		kind = storage.KindOf(err).String()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = "Canceled"
		}
	}
	s.recorder.ObserveOp(op, kind, time.Since(start))
}

func (s *Storage) reportPageStates() {
	if s.recorder == nil {
		return
	}
	var empty, open, closed, dirty int
	for _, info := range s.pages {
		switch info.state {
		case PageEmpty:
			empty++
		case PageOpen:
			open++
		case PageClosed:
			closed++
		case PageDirty:
			dirty++
		}
	}
	s.recorder.PageStates(empty, open, closed, dirty)
}

// 确保 Storage 实现了 Engine 接口
var _ storage.Engine = (*Storage)(nil)
