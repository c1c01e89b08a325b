package logstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/forever-free1/FlashKV/storage/flash"
)

type wifiConfig struct {
	SSID    string
	Channel int
	Hidden  bool
}

func TestValue_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t, flash.NewMem(2, 256))

	want := wifiConfig{SSID: "office", Channel: 6, Hidden: true}
	if err := InsertValue(ctx, s, "wifi", want); err != nil {
		t.Fatalf("InsertValue 失败: %v", err)
	}
	got, found, err := GetValue[wifiConfig](ctx, s, "wifi")
	if err != nil {
		t.Fatalf("GetValue 失败: %v", err)
	}
	if !found || got != want {
		t.Errorf("值不匹配: got %+v, want %+v", got, want)
	}

	if _, found, err := GetValue[wifiConfig](ctx, s, "missing"); err != nil || found {
		t.Errorf("不存在的键: found=%v err=%v", found, err)
	}
}

func TestValue_Compression(t *testing.T) {
	long := strings.Repeat("a", 100)
	data, err := EncodeValue(long)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if data[0] != codecSnappy {
		t.Errorf("重复数据应被压缩, 标记: %d", data[0])
	}
	if len(data) >= len(long) {
		t.Errorf("压缩后长度 %d 不应超过原始长度", len(data))
	}
	got, err := DecodeValue[string](data)
	if err != nil || got != long {
		t.Errorf("解码结果不匹配: %q, %v", got, err)
	}

	small, err := EncodeValue(5)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if small[0] != codecRaw {
		t.Errorf("短数据不应压缩, 标记: %d", small[0])
	}
	n, err := DecodeValue[int](small)
	if err != nil || n != 5 {
		t.Errorf("解码结果不匹配: %d, %v", n, err)
	}
}

func TestValue_InvalidData(t *testing.T) {
	if _, err := DecodeValue[int](nil); !errors.Is(err, storage.ErrSerializationInvalidData) {
		t.Errorf("期望 ErrSerializationInvalidData, 得到: %v", err)
	}
	if _, err := DecodeValue[int]([]byte{9, 1}); !errors.Is(err, storage.ErrSerializationInvalidFormat) {
		t.Errorf("期望 ErrSerializationInvalidFormat, 得到: %v", err)
	}
	if _, err := DecodeValue[int]([]byte{codecSnappy, 0xFF, 0xFF}); !errors.Is(err, storage.ErrSerializationInvalidFormat) {
		t.Errorf("损坏的压缩数据期望 ErrSerializationInvalidFormat, 得到: %v", err)
	}
}
