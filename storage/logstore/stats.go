package logstore

import (
	"context"

	"github.com/forever-free1/FlashKV/storage"
)

// PageStat 是单个页的统计信息
type PageStat struct {
	Page       int       `json:"page"`
	State      PageState `json:"-"`
	StateName  string    `json:"state"`
	Generation uint32    `json:"generation"`
	Used       uint32    `json:"used"`  // 记录占用的字节数
	Items      int       `json:"items"` // 记录条数，包括删除标记和失效记录
}

// Stats 是存储区间的统计信息
type Stats struct {
	Pages      []PageStat `json:"pages"`
	PageSize   int        `json:"page_size"`
	Capacity   int        `json:"capacity"` // 单页记录区大小
	FreePages  int        `json:"free_pages"`
	OpenPage   int        `json:"open_page"`
	Generation uint32     `json:"generation"`
	Multiwrite bool       `json:"multiwrite"`
	CachedKeys int        `json:"cached_keys"`
}

// Stats 扫描所有页并返回统计信息
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	if err := s.mount(ctx); err != nil {
		return Stats{}, storage.NewError("stats", "", err)
	}

	st := Stats{
		Pages:      make([]PageStat, 0, len(s.pages)),
		PageSize:   int(s.layout.pageSize),
		Capacity:   s.layout.capacity(),
		FreePages:  s.freeCount(),
		OpenPage:   s.open,
		Generation: s.maxGen,
		Multiwrite: s.multiwrite,
	}
	if s.index != nil {
		st.CachedKeys = s.index.Size()
	}

	for p, info := range s.pages {
		ps := PageStat{Page: p, State: info.state, StateName: info.state.String(), Generation: info.gen}
		if info.state.hasData() {
			cursor, _, err := s.walkPage(ctx, p, func(uint32, itemRead) (bool, error) {
				ps.Items++
				return false, nil
			})
			if err != nil {
				return Stats{}, storage.NewError("stats", "", err)
			}
			ps.Used = cursor - s.layout.itemsStart()
		}
		st.Pages = append(st.Pages, ps)
	}
	return st, nil
}

// Keys 遍历所有存活的键，每个键只出现一次
// fn 返回 false 时停止遍历；fn 中不能再调用 Storage 的方法
func (s *Storage) Keys(ctx context.Context, fn func(key string) bool) error {
	if err := s.mount(ctx); err != nil {
		return storage.NewError("keys", "", err)
	}
	for _, p := range s.dataPages() {
		stop := false
		_, _, err := s.walkPage(ctx, p, func(off uint32, it itemRead) (bool, error) {
			if it.item.Tombstone || !it.item.Live {
				return false, nil
			}
			var kb [keyLenLimit]byte
			key := kb[:copy(kb[:], it.item.Key)]
			pos, found, err := s.newest(ctx, key, -1)
			if err != nil {
				return false, err
			}
			if found && int(pos.Page) == p && pos.Offset == off && !pos.Tombstone {
				stop = !fn(string(key))
			}
			return stop, nil
		})
		if err != nil {
			return storage.NewError("keys", "", err)
		}
		if stop {
			return nil
		}
	}
	return nil
}
