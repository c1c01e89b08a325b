package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/flash"
	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorder(t *testing.T) {
	ctx := context.Background()
	m := New(prometheus.NewRegistry())

	s, err := logstore.New(flash.NewMem(2, 256), flash.Range{Start: 0, End: 512}, logstore.WithRecorder(m))
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	if err := s.Insert(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}
	if _, _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("期望 ErrUnsupported, 得到: %v", err)
	}

	if v := testutil.ToFloat64(m.ops.WithLabelValues("insert")); v != 1 {
		t.Errorf("insert 计数: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.errors.WithLabelValues("remove", "Unsupported")); v != 1 {
		t.Errorf("remove 错误计数: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.pageStates.WithLabelValues("open")); v != 1 {
		t.Errorf("打开的页数量: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.pageStates.WithLabelValues("empty")); v != 1 {
		t.Errorf("空页数量: got %v, want 1", v)
	}
}

func TestMetrics_Compaction(t *testing.T) {
	ctx := context.Background()
	m := New(prometheus.NewRegistry())

	s, err := logstore.New(flash.NewMem(2, 256), flash.Range{Start: 0, End: 512}, logstore.WithRecorder(m))
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := s.Insert(ctx, "counter", []byte{byte(i)}); err != nil {
			t.Fatalf("Insert 失败: %v", err)
		}
	}
	if v := testutil.ToFloat64(m.compacts); v == 0 {
		t.Error("应记录回收次数")
	}
	if v := testutil.ToFloat64(m.erases.WithLabelValues("0")); v == 0 {
		t.Error("页 0 应被擦除过")
	}
}
