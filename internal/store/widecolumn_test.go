package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/store"
	"github.com/koopa0/newsfeed/internal/testutils"
)

// seedWideColumn 寫入 n 筆由舊到新的動態項目並回傳由新到舊的期望序列
func seedWideColumn(t *testing.T, s *store.WideColumnFeedStore, ownerID int64, n int) []feed.Entry {
	t.Helper()

	ctx := context.Background()
	expected := make([]feed.Entry, n)
	for i := 0; i < n; i++ {
		e := feed.Entry{
			OwnerID:   ownerID,
			PostID:    uuid.New(),
			CreatedAt: int64((i + 1) * 1000),
		}
		require.NoError(t, s.Create(ctx, e))
		expected[n-1-i] = e
	}
	return expected
}

// TestWideColumnFeedStore_NewestFirst 測試前綴掃描由新到舊
func TestWideColumnFeedStore_NewestFirst(t *testing.T) {
	s := store.NewWideColumnFeedStore(testutils.NewMemoryTable(), testutils.NewTestLogger())
	expected := seedWideColumn(t, s, 1, 5)

	page, err := s.QueryPage(context.Background(), 1, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, expected, page.Entries)
	assert.False(t, page.HasMore)
}

// TestWideColumnFeedStore_Pagination 測試游標翻頁不重不漏
func TestWideColumnFeedStore_Pagination(t *testing.T) {
	s := store.NewWideColumnFeedStore(testutils.NewMemoryTable(), testutils.NewTestLogger())
	expected := seedWideColumn(t, s, 1, 7)

	ctx := context.Background()
	var got []feed.Entry
	var cursor *store.Cursor

	for {
		page, err := s.QueryPage(ctx, 1, cursor, 3)
		require.NoError(t, err)
		got = append(got, page.Entries...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, expected, got)
}

// TestWideColumnFeedStore_CreateIsIdempotent 測試重複建立為 no-op
func TestWideColumnFeedStore_CreateIsIdempotent(t *testing.T) {
	s := store.NewWideColumnFeedStore(testutils.NewMemoryTable(), testutils.NewTestLogger())
	ctx := context.Background()

	e := feed.Entry{OwnerID: 1, PostID: uuid.New(), CreatedAt: 1000}
	require.NoError(t, s.Create(ctx, e))
	require.NoError(t, s.Create(ctx, e), "duplicate create must be a no-op success")

	page, err := s.QueryPage(ctx, 1, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)
}

// TestWideColumnFeedStore_OwnerIsolation 測試不同 owner 的項目互不可見
func TestWideColumnFeedStore_OwnerIsolation(t *testing.T) {
	s := store.NewWideColumnFeedStore(testutils.NewMemoryTable(), testutils.NewTestLogger())
	seedWideColumn(t, s, 1, 3)
	expected := seedWideColumn(t, s, 2, 2)

	page, err := s.QueryPage(context.Background(), 2, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, expected, page.Entries)
}

// TestRedisTable_ScanRange 測試 Redis sorted set 寬列表的範圍掃描
func TestRedisTable_ScanRange(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	table := store.NewRedisTable(rdb, "newsfeeds", feed.RowKeyLen, testutils.NewTestLogger())
	s := store.NewWideColumnFeedStore(table, testutils.NewTestLogger())

	expected := seedWideColumn(t, s, 42, 6)

	ctx := context.Background()
	page, err := s.QueryPage(ctx, 42, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, expected[:4], page.Entries)
	assert.True(t, page.HasMore)

	page, err = s.QueryPage(ctx, 42, page.NextCursor, 4)
	require.NoError(t, err)
	assert.Equal(t, expected[4:], page.Entries)
	assert.False(t, page.HasMore)
}

// TestRedisTable_PutIsIdempotent 測試同鍵重複寫入不產生重複成員
func TestRedisTable_PutIsIdempotent(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	table := store.NewRedisTable(rdb, "newsfeeds", feed.RowKeyLen, testutils.NewTestLogger())

	key := feed.EncodeRowKey(feed.Entry{OwnerID: 1, PostID: uuid.New(), CreatedAt: 500})
	ctx := context.Background()

	require.NoError(t, table.Put(ctx, key, nil))
	require.NoError(t, table.Put(ctx, key, nil))

	start, stop := feed.OwnerScanRange(1)
	kvs, err := table.Scan(ctx, start, stop, 10)
	require.NoError(t, err)
	assert.Len(t, kvs, 1)
}

// TestRedisTable_RejectsBadKeyLength 測試 row key 長度檢查
func TestRedisTable_RejectsBadKeyLength(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	table := store.NewRedisTable(rdb, "newsfeeds", feed.RowKeyLen, testutils.NewTestLogger())

	err := table.Put(context.Background(), []byte("short"), nil)
	assert.Error(t, err)
}
