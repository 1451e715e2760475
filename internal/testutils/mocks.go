package testutils

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/store"
)

// MemoryFeedStore 實作 store.Backend 介面的記憶體後端
//
// 語義對齊關聯式後端：(owner, post) 唯一、created_at 由新到舊、
// 多取一筆探測 has_more。
type MemoryFeedStore struct {
	mu      sync.RWMutex
	entries map[int64][]feed.Entry

	// 記錄呼叫次數
	CreateCalls atomic.Int32
	QueryCalls  atomic.Int32

	// 錯誤注入：>0 時接下來 N 次 Create 失敗
	FailCreates atomic.Int32
	FailError   error
}

// NewMemoryFeedStore 創建記憶體後端
func NewMemoryFeedStore() *MemoryFeedStore {
	return &MemoryFeedStore{entries: make(map[int64][]feed.Entry)}
}

// Create 實作 store.Backend
func (m *MemoryFeedStore) Create(ctx context.Context, e feed.Entry) error {
	m.CreateCalls.Add(1)

	if m.FailCreates.Load() > 0 {
		m.FailCreates.Add(-1)
		return m.FailError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 冪等：同一 (owner, post) 重複建立是 no-op
	for _, existing := range m.entries[e.OwnerID] {
		if existing.PostID == e.PostID {
			return nil
		}
	}

	list := append(m.entries[e.OwnerID], e)
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt > list[j].CreatedAt
	})
	m.entries[e.OwnerID] = list
	return nil
}

// QueryPage 實作 store.Backend
func (m *MemoryFeedStore) QueryPage(ctx context.Context, ownerID int64, cursor *store.Cursor, limit int) (store.Page, error) {
	m.QueryCalls.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []feed.Entry
	for _, e := range m.entries[ownerID] {
		if cursor != nil && e.CreatedAt >= cursor.CreatedAt {
			continue
		}
		filtered = append(filtered, e)
	}

	hasMore := len(filtered) > limit
	if hasMore {
		filtered = filtered[:limit]
	}

	page := store.Page{Entries: filtered, HasMore: hasMore}
	if len(filtered) > 0 {
		pos := 0
		if cursor != nil {
			pos = cursor.Position
		}
		page.NextCursor = &store.Cursor{
			Position:  pos + len(filtered),
			CreatedAt: filtered[len(filtered)-1].CreatedAt,
		}
	}
	return page, nil
}

// Count 全部項目數
func (m *MemoryFeedStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, list := range m.entries {
		total += len(list)
	}
	return total
}

// EntriesFor 某 owner 的全部項目（由新到舊）
func (m *MemoryFeedStore) EntriesFor(ownerID int64) []feed.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]feed.Entry, len(m.entries[ownerID]))
	copy(out, m.entries[ownerID])
	return out
}

// MemoryTable 實作 store.Table 介面的記憶體寬列表
//
// key 按位元組字典序維持有序，Scan 為正向範圍掃描
type MemoryTable struct {
	mu   sync.RWMutex
	keys [][]byte
	vals map[string][]byte
}

// NewMemoryTable 創建記憶體寬列表
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{vals: make(map[string][]byte)}
}

// Put 實作 store.Table
func (m *MemoryTable) Put(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := string(key)
	if _, exists := m.vals[k]; !exists {
		idx := sort.Search(len(m.keys), func(i int) bool {
			return bytes.Compare(m.keys[i], key) >= 0
		})
		m.keys = append(m.keys, nil)
		copy(m.keys[idx+1:], m.keys[idx:])
		m.keys[idx] = append([]byte(nil), key...)
	}
	m.vals[k] = append([]byte(nil), value...)
	return nil
}

// Scan 實作 store.Table
func (m *MemoryTable) Scan(ctx context.Context, start, stop []byte, limit int) ([]store.KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.KV
	idx := sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i], start) >= 0
	})
	for ; idx < len(m.keys) && len(out) < limit; idx++ {
		if bytes.Compare(m.keys[idx], stop) >= 0 {
			break
		}
		out = append(out, store.KV{
			Key:   append([]byte(nil), m.keys[idx]...),
			Value: append([]byte(nil), m.vals[string(m.keys[idx])]...),
		})
	}
	return out, nil
}

// StaticFollowers 實作 fanout.FollowerProvider 的固定追蹤表
type StaticFollowers struct {
	mu        sync.RWMutex
	followers map[int64][]int64
}

// NewStaticFollowers 創建固定追蹤表
func NewStaticFollowers() *StaticFollowers {
	return &StaticFollowers{followers: make(map[int64][]int64)}
}

// Add 為 userID 增加一個追蹤者
func (s *StaticFollowers) Add(userID, followerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followers[userID] = append(s.followers[userID], followerID)
}

// FollowerIDs 實作 fanout.FollowerProvider
func (s *StaticFollowers) FollowerIDs(ctx context.Context, userID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.followers[userID]...), nil
}

// RecordingPusher 實作 fanout.CachePusher，記錄每個 owner 收到的推送
type RecordingPusher struct {
	mu     sync.Mutex
	pushed map[int64][]feed.Entry
}

// NewRecordingPusher 創建推送記錄器
func NewRecordingPusher() *RecordingPusher {
	return &RecordingPusher{pushed: make(map[int64][]feed.Entry)}
}

// PushEntry 實作 fanout.CachePusher
func (r *RecordingPusher) PushEntry(ctx context.Context, ownerID int64, e feed.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed[ownerID] = append(r.pushed[ownerID], e)
	return nil
}

// PushedTo 某 owner 收到的全部推送
func (r *RecordingPusher) PushedTo(ownerID int64) []feed.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feed.Entry(nil), r.pushed[ownerID]...)
}
