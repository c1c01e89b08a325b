package logstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/forever-free1/FlashKV/storage"
	"github.com/golang/snappy"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// 类型化的值在 msgpack 编码后加 1 字节编码标记
const (
	codecRaw    byte = 0
	codecSnappy byte = 1
)

// EncodeValue 将值编码为 msgpack，压缩后更短时使用 snappy
func EncodeValue[V any](v V) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecRaw)
	enc := codec.NewEncoder(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("编码值失败: %w", err)
	}
	raw := buf.Bytes()

	compressed := snappy.Encode(nil, raw[1:])
	if len(compressed) < len(raw)-1 {
		out := make([]byte, 1+len(compressed))
		out[0] = codecSnappy
		copy(out[1:], compressed)
		return out, nil
	}
	return raw, nil
}

// DecodeValue 解码 EncodeValue 的结果
func DecodeValue[V any](data []byte) (V, error) {
	var v V
	if len(data) == 0 {
		return v, storage.ErrSerializationInvalidData
	}
	payload := data[1:]
	switch data[0] {
	case codecRaw:
	case codecSnappy:
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return v, fmt.Errorf("解压值失败: %w: %w", storage.ErrSerializationInvalidFormat, err)
		}
		payload = decoded
	default:
		return v, fmt.Errorf("未知的编码标记 %d: %w", data[0], storage.ErrSerializationInvalidFormat)
	}

	dec := codec.NewDecoderBytes(payload, &codec.MsgpackHandle{})
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("解码值失败: %w: %w", storage.ErrSerializationInvalidFormat, err)
	}
	return v, nil
}

// InsertValue 编码并写入类型化的值
func InsertValue[V any](ctx context.Context, e storage.Engine, key string, v V) error {
	data, err := EncodeValue(v)
	if err != nil {
		return storage.NewError("insert", key, err)
	}
	return e.Insert(ctx, key, data)
}

// GetValue 读取并解码类型化的值
// 返回：
//   - V: 值，未找到时为零值
//   - bool: 是否找到
//   - error: 读取或解码错误
func GetValue[V any](ctx context.Context, e storage.Engine, key string) (V, bool, error) {
	var zero V
	data, found, err := e.Get(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	v, err := DecodeValue[V](data)
	if err != nil {
		return zero, false, storage.NewError("get", key, err)
	}
	return v, true, nil
}
