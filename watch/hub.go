package watch

import (
	"fmt"
	"sync"
	"sync/atomic"

	art "github.com/plar/go-adaptive-radix-tree"
)

// ==================== 事件定义 ====================

// EventType 定义事件类型
type EventType string

const (
	EventInsert   EventType = "insert"
	EventRemove   EventType = "remove"
	EventEraseAll EventType = "erase_all"
)

// Event 表示一次存储变更
type Event struct {
	Seq   uint64    `json:"seq"`             // 由 Hub 分配的递增序号
	Type  EventType `json:"type"`            // insert、remove 或 erase_all
	Key   string    `json:"key,omitempty"`   // 变更的键，erase_all 时为空
	Value []byte    `json:"value,omitempty"` // 写入的值，仅 insert 有
}

// ==================== Watcher 定义 ====================

// Watcher 是一个事件订阅者
type Watcher struct {
	// 事件通道，通道满时新事件被丢弃
	Ch chan *Event

	// 关注的前缀，为空表示关注所有键
	Prefix string

	dropped atomic.Uint64
	closed  bool
}

func newWatcher(prefix string, bufferSize int) *Watcher {
	return &Watcher{
		Ch:     make(chan *Event, bufferSize),
		Prefix: prefix,
	}
}

// Dropped 返回因通道已满而丢弃的事件数
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Watcher) send(event *Event) {
	select {
	case w.Ch <- event:
	default:
		w.dropped.Add(1)
	}
}

func (w *Watcher) close() {
	if !w.closed {
		close(w.Ch)
		w.closed = true
	}
}

// ==================== Hub 定义 ====================

// Hub 将存储变更分发给订阅者
// 订阅者按前缀登记在 ART 树中，通知时只需查找键的各个前缀
type Hub struct {
	mu       sync.RWMutex
	all      []*Watcher // 关注所有键的订阅者
	prefixes art.Tree   // 前缀 -> []*Watcher
	count    int
	seq      atomic.Uint64
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		prefixes: art.New(),
	}
}

// Watch 注册一个订阅者
//
// 参数：
//   - prefix: 关注的前缀，为空表示关注所有键
//   - bufferSize: 事件通道的缓冲区大小
//
// 返回：
//   - *Watcher: 订阅者，使用完后需要调用 Unregister
func (h *Hub) Watch(prefix string, bufferSize int) *Watcher {
	w := newWatcher(prefix, bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if prefix == "" {
		h.all = append(h.all, w)
	} else {
		var list []*Watcher
		if val, found := h.prefixes.Search(art.Key(prefix)); found {
			list = val.([]*Watcher)
		}
		h.prefixes.Insert(art.Key(prefix), append(list, w))
	}
	h.count++
	return w
}

// Unregister 取消注册并关闭订阅者的通道
func (h *Hub) Unregister(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if w.closed {
		return
	}
	if w.Prefix == "" {
		h.all = removeWatcher(h.all, w)
	} else if val, found := h.prefixes.Search(art.Key(w.Prefix)); found {
		list := removeWatcher(val.([]*Watcher), w)
		if len(list) > 0 {
			h.prefixes.Insert(art.Key(w.Prefix), list)
		} else {
			h.prefixes.Delete(art.Key(w.Prefix))
		}
	}
	w.close()
	h.count--
}

// ==================== 事件通知 ====================

// Notify 将事件发送给所有匹配的订阅者，发送不阻塞
// erase_all 事件发送给所有订阅者
func (h *Hub) Notify(event *Event) {
	event.Seq = h.seq.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, w := range h.all {
		w.send(event)
	}
	if event.Type == EventEraseAll {
		h.prefixes.ForEach(func(node art.Node) bool {
			for _, w := range node.Value().([]*Watcher) {
				w.send(event)
			}
			return true
		})
		return
	}
	for i := 1; i <= len(event.Key); i++ {
		if val, found := h.prefixes.Search(art.Key(event.Key[:i])); found {
			for _, w := range val.([]*Watcher) {
				w.send(event)
			}
		}
	}
}

// NotifyInsert 通知写入事件
func (h *Hub) NotifyInsert(key string, value []byte) {
	h.Notify(&Event{Type: EventInsert, Key: key, Value: value})
}

// NotifyRemove 通知删除事件
func (h *Hub) NotifyRemove(key string) {
	h.Notify(&Event{Type: EventRemove, Key: key})
}

// NotifyEraseAll 通知整个区间被擦除
func (h *Hub) NotifyEraseAll() {
	h.Notify(&Event{Type: EventEraseAll})
}

// ==================== 工具方法 ====================

// Count 返回当前注册的订阅者数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close 关闭所有订阅者
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, w := range h.all {
		w.close()
	}
	h.prefixes.ForEach(func(node art.Node) bool {
		for _, w := range node.Value().([]*Watcher) {
			w.close()
		}
		return true
	})
	h.all = nil
	h.prefixes = art.New()
	h.count = 0
}

func (h *Hub) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("Hub{watchers: %d}", h.count)
}

func removeWatcher(list []*Watcher, w *Watcher) []*Watcher {
	for i, x := range list {
		if x == w {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
