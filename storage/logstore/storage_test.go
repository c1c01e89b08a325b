package logstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/flash"
)

// faultFlash 在第 failAt 次写入时返回掉电错误，且不写入任何数据；
// 在第 eraseFailAt 次擦除时只擦除一部分，[keepFrom, keepTo) 保留原内容
type faultFlash struct {
	flash.NorFlash
	writes int
	failAt int

	erases      int
	eraseFailAt int
	keepFrom    uint32
	keepTo      uint32
}

func (f *faultFlash) Write(ctx context.Context, offset uint32, data []byte) error {
	f.writes++
	if f.writes == f.failAt {
		return &flash.Error{Op: "write", Kind: flash.KindOther, Offset: offset, Err: flash.ErrPowerLoss}
	}
	return f.NorFlash.Write(ctx, offset, data)
}

func (f *faultFlash) Erase(ctx context.Context, from, to uint32) error {
	f.erases++
	if f.erases != f.eraseFailAt {
		return f.NorFlash.Erase(ctx, from, to)
	}

	kept := make([]byte, f.keepTo-f.keepFrom)
	if err := f.NorFlash.Read(ctx, from+f.keepFrom, kept); err != nil {
		return err
	}
	if err := f.NorFlash.Erase(ctx, from, to); err != nil {
		return err
	}
	if err := f.NorFlash.Write(ctx, from+f.keepFrom, kept); err != nil {
		return err
	}
	return &flash.Error{Op: "erase", Kind: flash.KindOther, Offset: from, Err: flash.ErrPowerLoss}
}

// countingRecorder 记录引擎上报的指标
type countingRecorder struct {
	ops        map[string]int
	erased     int
	compacted  int
	lastClosed int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int)}
}

func (r *countingRecorder) ObserveOp(op, kind string, _ time.Duration) {
	r.ops[op+"/"+kind]++
}
func (r *countingRecorder) PageErased(int) { r.erased++ }
func (r *countingRecorder) Compacted(int) { r.compacted++ }
func (r *countingRecorder) PageStates(_, _, closed, _ int) {
	r.lastClosed = closed
}

func newStorage(t *testing.T, f flash.NorFlash, opts ...Option) *Storage {
	t.Helper()
	s, err := New(f, flash.Whole(f), opts...)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	return s
}

func mustInsert(t *testing.T, s storage.Engine, key, value string) {
	t.Helper()
	if err := s.Insert(context.Background(), key, []byte(value)); err != nil {
		t.Fatalf("Insert %s 失败: %v", key, err)
	}
}

func expectValue(t *testing.T, s storage.Engine, key, want string) {
	t.Helper()
	got, found, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get %s 失败: %v", key, err)
	}
	if !found {
		t.Fatalf("Get %s: 未找到, want %s", key, want)
	}
	if string(got) != want {
		t.Errorf("Get %s: got %s, want %s", key, got, want)
	}
}

func expectMissing(t *testing.T, s storage.Engine, key string) {
	t.Helper()
	got, found, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get %s 失败: %v", key, err)
	}
	if found {
		t.Errorf("Get %s: 期望不存在, 得到 %s", key, got)
	}
}

// checkEngine 是各种缓存配置共用的行为检查
func checkEngine(t *testing.T, opts ...Option) {
	ctx := context.Background()
	m := flash.NewMultiwriteMem(4, 256)
	s := newStorage(t, m, opts...)

	expectMissing(t, s, "never")

	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "22")
	mustInsert(t, s, "a", "3")
	expectValue(t, s, "a", "3")
	expectValue(t, s, "b", "22")

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove 失败: %v", err)
	}
	expectMissing(t, s, "a")
	expectValue(t, s, "b", "22")

	// 反复覆盖，触发多轮回收
	for i := 0; i < 200; i++ {
		mustInsert(t, s, fmt.Sprintf("k%d", i%5), fmt.Sprintf("v%d", i))
	}
	for i := 195; i < 200; i++ {
		expectValue(t, s, fmt.Sprintf("k%d", i%5), fmt.Sprintf("v%d", i))
	}
	expectValue(t, s, "b", "22")
	expectMissing(t, s, "a")

	// 重新扫描后结果一致
	s2 := newStorage(t, m, opts...)
	for i := 195; i < 200; i++ {
		expectValue(t, s2, fmt.Sprintf("k%d", i%5), fmt.Sprintf("v%d", i))
	}
	expectValue(t, s2, "b", "22")
	expectMissing(t, s2, "a")
}

func TestStorage_NoCache(t *testing.T) {
	checkEngine(t)
}

func TestStorage_MapCache(t *testing.T) {
	checkEngine(t, WithCache(IndexTypeMap, 16))
}

func TestStorage_ARTCache(t *testing.T) {
	checkEngine(t, WithCache(IndexTypeART, 16))
}

func TestStorage_TinyCache(t *testing.T) {
	checkEngine(t, WithCache(IndexTypeART, 1))
}

func TestStorage_ConcreteScenario(t *testing.T) {
	m := flash.NewMem(2, 256)
	s := newStorage(t, m)

	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "22")
	mustInsert(t, s, "a", "3")
	expectValue(t, s, "a", "3")
	expectValue(t, s, "b", "22")

	full := false
	for i := 0; i < 100; i++ {
		err := s.Insert(context.Background(), fmt.Sprintf("f%02d", i), []byte("x"))
		if errors.Is(err, storage.ErrFullStorage) {
			full = true
			break
		}
		if err != nil {
			t.Fatalf("Insert f%02d 失败: %v", i, err)
		}
	}
	if !full {
		t.Fatal("期望最终返回 ErrFullStorage")
	}
	expectValue(t, s, "a", "3")
	expectValue(t, s, "b", "22")
	expectValue(t, s, "f00", "x")
}

func TestStorage_FullStorageKeepsData(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(3, 128)
	s := newStorage(t, m)

	inserted := 0
	for i := 0; i < 100; i++ {
		err := s.Insert(ctx, fmt.Sprintf("key%03d", i), []byte("value"))
		if errors.Is(err, storage.ErrFullStorage) {
			break
		}
		if err != nil {
			t.Fatalf("Insert 失败: %v", err)
		}
		inserted++
	}
	if inserted == 0 || inserted == 100 {
		t.Fatalf("写入数量异常: %d", inserted)
	}

	// 失败不影响已有数据，再次失败结果相同
	if err := s.Insert(ctx, "extra", []byte("value")); !errors.Is(err, storage.ErrFullStorage) {
		t.Errorf("期望 ErrFullStorage, 得到: %v", err)
	}
	for i := 0; i < inserted; i++ {
		expectValue(t, s, fmt.Sprintf("key%03d", i), "value")
	}
	expectMissing(t, s, "extra")

	s2 := newStorage(t, m)
	for i := 0; i < inserted; i++ {
		expectValue(t, s2, fmt.Sprintf("key%03d", i), "value")
	}
}

func TestStorage_SizeViolationsDoNotTouchFlash(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(2, 64)
	s := newStorage(t, m)

	err := s.Insert(ctx, strings.Repeat("k", DefaultMaxKeyLen+1), []byte("v"))
	if !errors.Is(err, storage.ErrKeyTooLarge) {
		t.Errorf("期望 ErrKeyTooLarge, 得到: %v", err)
	}
	if !storage.KindOf(err).Recoverable() {
		t.Error("ErrKeyTooLarge 应可恢复")
	}
	if err := s.Insert(ctx, "k", make([]byte, 60)); !errors.Is(err, storage.ErrItemTooBig) {
		t.Errorf("期望 ErrItemTooBig, 得到: %v", err)
	}
	if err := s.Insert(ctx, "k", make([]byte, 200)); !errors.Is(err, storage.ErrSerializationBufferTooSmall) {
		t.Errorf("期望 ErrSerializationBufferTooSmall, 得到: %v", err)
	}
	if _, _, err := s.Get(ctx, strings.Repeat("k", DefaultMaxKeyLen+1)); !errors.Is(err, storage.ErrKeyTooLarge) {
		t.Errorf("Get 期望 ErrKeyTooLarge, 得到: %v", err)
	}

	for i, b := range m.Bytes() {
		if b != flash.ErasedByte {
			t.Fatalf("闪存字节 %d 被修改", i)
		}
	}
	for p, c := range m.EraseCounts() {
		if c != 0 {
			t.Errorf("页 %d 被擦除 %d 次", p, c)
		}
	}
}

func TestStorage_RemoveUnsupported(t *testing.T) {
	m := flash.NewMem(2, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")

	err := s.Remove(context.Background(), "a")
	if !errors.Is(err, storage.ErrUnsupported) {
		t.Errorf("期望 ErrUnsupported, 得到: %v", err)
	}
	expectValue(t, s, "a", "1")
}

func TestStorage_RemoveInvalidatesOlderValues(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMultiwriteMem(4, 256)
	s := newStorage(t, m)

	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")
	mustInsert(t, s, "a", "3")

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove 失败: %v", err)
	}
	// 删除不存在的键不是错误
	if err := s.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove 不存在的键失败: %v", err)
	}
	expectMissing(t, s, "a")

	// 旧值的存活标记已被清除
	if m.Bytes()[s.layout.itemsStart()]&liveFlag != 0 {
		t.Error("第一条记录的存活标记应被清除")
	}

	var keys []string
	if err := s.Keys(ctx, func(key string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		t.Fatalf("Keys 失败: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("Keys 结果不匹配: %v", keys)
	}

	// 删除后重新写入
	mustInsert(t, s, "a", "4")
	expectValue(t, s, "a", "4")

	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "4")
	expectValue(t, s2, "b", "2")
}

func TestStorage_PowerLossDuringInsert(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(4, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")

	m.FailAfterBytes(6)
	err := s.Insert(ctx, "a", []byte("2"))
	if !errors.Is(err, flash.ErrPowerLoss) {
		t.Fatalf("期望掉电错误, 得到: %v", err)
	}
	if !errors.Is(err, storage.ErrFlashOther) {
		t.Errorf("掉电错误应分类为 FlashOther, 得到: %v", storage.KindOf(err))
	}

	// 同一实例重新扫描
	expectValue(t, s, "a", "1")
	mustInsert(t, s, "a", "3")
	expectValue(t, s, "a", "3")

	// 新实例
	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "3")
}

func TestStorage_InterruptedCompaction(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(2, 256)
	ff := &faultFlash{NorFlash: m}
	s := newStorage(t, ff)

	// 19 条 12 字节的记录写满第一页
	mustInsert(t, s, "a", "0")
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")
	for i := 0; i < 16; i++ {
		mustInsert(t, s, fmt.Sprintf("k%02d", i), "x")
	}

	// 关闭页、写新页头成功，第一条搬迁失败
	ff.failAt = ff.writes + 3
	if err := s.Insert(ctx, "z", []byte("9")); !errors.Is(err, flash.ErrPowerLoss) {
		t.Fatalf("期望掉电错误, 得到: %v", err)
	}

	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "1")
	expectValue(t, s2, "b", "2")
	expectValue(t, s2, "k15", "x")
	expectMissing(t, s2, "z")

	mustInsert(t, s2, "z", "9")
	expectValue(t, s2, "z", "9")
	expectValue(t, s2, "a", "1")
	expectValue(t, s2, "k00", "x")
}

// fillFirstPage 在两页的闪存上写满第一页，下一次写入会触发回收
func fillFirstPage(t *testing.T, s *Storage) {
	t.Helper()
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")
	for i := 0; i < 17; i++ {
		mustInsert(t, s, "k", fmt.Sprintf("v%02d", i))
	}
	if s.open != 0 || s.freeCount() != 1 {
		t.Fatalf("第一页应已写满: open=%d free=%d", s.open, s.freeCount())
	}
}

func TestStorage_InterruptedErase(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(2, 256)
	ff := &faultFlash{NorFlash: m}
	s := newStorage(t, ff)
	fillFirstPage(t, s)

	// 搬迁和新记录都已落盘，擦除旧页时掉电，页头和前几条记录仍在
	ff.eraseFailAt = ff.erases + 1
	ff.keepFrom, ff.keepTo = 0, 64
	if err := s.Insert(ctx, "z", []byte("9")); !errors.Is(err, flash.ErrPowerLoss) {
		t.Fatalf("期望掉电错误, 得到: %v", err)
	}

	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "1")
	expectValue(t, s2, "b", "2")
	expectValue(t, s2, "k", "v16")
	expectValue(t, s2, "z", "9")

	st, err := s2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if st.OpenPage != 1 || st.FreePages != 1 || st.Pages[0].StateName != "empty" {
		t.Errorf("恢复后页状态不正确: %+v", st)
	}

	// 继续写入并再次回收
	for i := 0; i < 40; i++ {
		mustInsert(t, s2, "k", fmt.Sprintf("w%02d", i))
	}
	expectValue(t, s2, "a", "1")
	expectValue(t, s2, "z", "9")
	expectValue(t, s2, "k", "w39")
}

func TestStorage_InterruptedEraseLosesHeader(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(2, 256)
	ff := &faultFlash{NorFlash: m}
	s := newStorage(t, ff)
	fillFirstPage(t, s)

	// 页头已擦除，页中间的记录还在
	ff.eraseFailAt = ff.erases + 1
	ff.keepFrom, ff.keepTo = 64, 128
	if err := s.Insert(ctx, "z", []byte("9")); !errors.Is(err, flash.ErrPowerLoss) {
		t.Fatalf("期望掉电错误, 得到: %v", err)
	}

	s2 := newStorage(t, m)
	st, err := s2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if st.Pages[0].StateName != "dirty" || st.FreePages != 1 {
		t.Errorf("残留数据的页应标记为 dirty: %+v", st)
	}

	// 回收到该页前必须先擦除
	for i := 0; i < 40; i++ {
		mustInsert(t, s2, "k", fmt.Sprintf("w%02d", i))
	}
	expectValue(t, s2, "a", "1")
	expectValue(t, s2, "b", "2")
	expectValue(t, s2, "z", "9")
	expectValue(t, s2, "k", "w39")
}

func TestStorage_ProgrammedFreeSpace(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(4, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")

	// 写入被打断：下一条记录的首字节仍是擦除状态，后面的字被编程
	cursor := s.layout.itemsStart() + 12
	m.Bytes()[cursor+4] = 0x31

	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "1")
	mustInsert(t, s2, "b", "2")
	expectValue(t, s2, "b", "2")

	st, err := s2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if st.Pages[0].StateName != "closed" || st.OpenPage != 1 {
		t.Errorf("空闲区被编程的页应被关闭: %+v", st)
	}

	s3 := newStorage(t, m)
	expectValue(t, s3, "a", "1")
	expectValue(t, s3, "b", "2")
}

func TestStorage_CorruptedItem(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(2, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")
	mustInsert(t, s, "c", "3")

	// 第二条记录的值，后面还有有效记录
	m.Bytes()[s.layout.itemsStart()+12+4] ^= 0x01

	s2 := newStorage(t, m)
	_, _, err := s2.Get(ctx, "a")
	if !errors.Is(err, storage.ErrCorrupted) {
		t.Errorf("期望 ErrCorrupted, 得到: %v", err)
	}
}

func TestStorage_TornTail(t *testing.T) {
	m := flash.NewMem(2, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")

	// 最后一条记录损坏视为写入中断
	m.Bytes()[s.layout.itemsStart()+12+4] ^= 0x01

	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "1")
	expectMissing(t, s2, "b")
	mustInsert(t, s2, "b", "3")
	expectValue(t, s2, "b", "3")
}

func TestStorage_EraseAll(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMultiwriteMem(3, 256)
	s := newStorage(t, m, WithCache(IndexTypeMap, 8))
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "2")

	if err := s.EraseAll(ctx); err != nil {
		t.Fatalf("EraseAll 失败: %v", err)
	}
	expectMissing(t, s, "a")
	expectMissing(t, s, "b")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if st.FreePages != 3 || st.OpenPage != -1 {
		t.Errorf("擦除后统计不正确: %+v", st)
	}

	mustInsert(t, s, "a", "5")
	expectValue(t, s, "a", "5")
	s2 := newStorage(t, m)
	expectValue(t, s2, "a", "5")
	expectMissing(t, s2, "b")
}

func TestStorage_WearLeveling(t *testing.T) {
	m := flash.NewMem(4, 256)
	rec := newCountingRecorder()
	s := newStorage(t, m, WithRecorder(rec))

	for i := 0; i < 1000; i++ {
		mustInsert(t, s, "counter", fmt.Sprintf("%d", i))
	}
	expectValue(t, s, "counter", "999")

	counts := m.EraseCounts()
	lo, hi := counts[0], counts[0]
	for _, c := range counts {
		lo = min(lo, c)
		hi = max(hi, c)
	}
	if lo == 0 {
		t.Errorf("所有页都应被擦除过: %v", counts)
	}
	if hi-lo > 1 {
		t.Errorf("擦除次数不均匀: %v", counts)
	}
	if rec.compacted == 0 || rec.erased == 0 {
		t.Errorf("应记录回收和擦除: compacted=%d erased=%d", rec.compacted, rec.erased)
	}
	if rec.ops["insert/"] != 1000 {
		t.Errorf("insert 计数不匹配: %d", rec.ops["insert/"])
	}
}

func TestStorage_Stats(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMem(3, 256)
	s := newStorage(t, m)
	mustInsert(t, s, "a", "1")
	mustInsert(t, s, "b", "22")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if len(st.Pages) != 3 || st.OpenPage != 0 || st.FreePages != 2 {
		t.Errorf("统计不正确: %+v", st)
	}
	if st.Pages[0].Items != 2 || st.Pages[0].Used != 24 {
		t.Errorf("页 0 统计不正确: %+v", st.Pages[0])
	}
	if st.Pages[0].StateName != "open" || st.Pages[0].Generation != 1 {
		t.Errorf("页 0 状态不正确: %+v", st.Pages[0])
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	m := flash.NewMem(4, 256)

	if _, err := New(m, flash.Range{Start: 0, End: 256}); !errors.Is(err, storage.ErrInvalidRange) {
		t.Errorf("单页区间期望 ErrInvalidRange, 得到: %v", err)
	}
	if _, err := New(m, flash.Range{Start: 10, End: 512}); !errors.Is(err, storage.ErrInvalidRange) {
		t.Errorf("未对齐区间期望 ErrInvalidRange, 得到: %v", err)
	}
	if _, err := New(m, flash.Range{Start: 0, End: 2048}); !errors.Is(err, storage.ErrInvalidRange) {
		t.Errorf("越界区间期望 ErrInvalidRange, 得到: %v", err)
	}
	if _, err := New(m, flash.Whole(m), WithMaxKeyLen(127)); !errors.Is(err, storage.ErrKeyTooLarge) {
		t.Errorf("键长度上限过大期望 ErrKeyTooLarge, 得到: %v", err)
	}
	if _, err := New(m, flash.Whole(m), WithDataBufferSize(6)); !errors.Is(err, storage.ErrBufferTooSmall) {
		t.Errorf("缓冲区过小期望 ErrBufferTooSmall, 得到: %v", err)
	}
}

func TestStorage_SubRange(t *testing.T) {
	m := flash.NewMem(6, 256)
	reg := flash.NewRegistry()

	c1, err := reg.Claim(m, flash.Range{Start: 0, End: 768})
	if err != nil {
		t.Fatalf("占用区间失败: %v", err)
	}
	c2, err := reg.Claim(m, flash.Range{Start: 768, End: 1536})
	if err != nil {
		t.Fatalf("占用区间失败: %v", err)
	}

	s1, err := Open(c1)
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	s2, err := Open(c2)
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}

	mustInsert(t, s1, "k", "one")
	mustInsert(t, s2, "k", "two")
	expectValue(t, s1, "k", "one")
	expectValue(t, s2, "k", "two")

	s1.Close()
	if !c1.Released() {
		t.Error("Close 后应释放区间")
	}
	if _, err := Open(c1); !errors.Is(err, flash.ErrClaimReleased) {
		t.Errorf("期望 ErrClaimReleased, 得到: %v", err)
	}
	if _, err := reg.Claim(m, flash.Range{Start: 0, End: 512}); err != nil {
		t.Errorf("释放后应可以重新占用: %v", err)
	}
}

func TestShared(t *testing.T) {
	ctx := context.Background()
	m := flash.NewMultiwriteMem(3, 256)
	sh := NewShared(newStorage(t, m))

	done := make(chan error, 4)
	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := 0; i < 20; i++ {
				if err := sh.Insert(ctx, fmt.Sprintf("w%d", w), []byte(fmt.Sprintf("%d", i))); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(w)
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("并发写入失败: %v", err)
		}
	}
	for w := 0; w < 4; w++ {
		expectValue(t, sh, fmt.Sprintf("w%d", w), "19")
	}

	err := sh.Do(func(s *Storage) error {
		return s.Remove(ctx, "w0")
	})
	if err != nil {
		t.Fatalf("Do 失败: %v", err)
	}
	expectMissing(t, sh, "w0")
}

func TestStorage_FileFlash(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.img")
	f, err := flash.CreateFile(path, 4, 256)
	if err != nil {
		t.Fatalf("创建镜像失败: %v", err)
	}
	s := newStorage(t, f, WithCache(IndexTypeART, 32))
	mustInsert(t, s, "host", "example.org")
	mustInsert(t, s, "port", "8080")
	if err := s.Remove(ctx, "port"); err != nil {
		t.Fatalf("Remove 失败: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("关闭镜像失败: %v", err)
	}

	f, err = flash.OpenFile(path, 256)
	if err != nil {
		t.Fatalf("重新打开镜像失败: %v", err)
	}
	defer f.Close()
	s2 := newStorage(t, f)
	expectValue(t, s2, "host", "example.org")
	expectMissing(t, s2, "port")
}
