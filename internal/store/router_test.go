package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/gatekeeper"
	"github.com/koopa0/newsfeed/internal/store"
	"github.com/koopa0/newsfeed/internal/testutils"
)

// newTestRouter 建出雙記憶體後端的路由
func newTestRouter(percent int) (*store.Router, *testutils.MemoryFeedStore, *testutils.MemoryFeedStore) {
	relational := testutils.NewMemoryFeedStore()
	wideColumn := testutils.NewMemoryFeedStore()
	gk := gatekeeper.New(map[string]int{store.SwitchNewsfeedToWideColumn: percent})
	return store.NewRouter(relational, wideColumn, gk, testutils.NewTestLogger()), relational, wideColumn
}

// TestRouter_AllTrafficOneBackend 測試 0% 與 100% 的全量路由
func TestRouter_AllTrafficOneBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("switch off routes to relational", func(t *testing.T) {
		router, relational, wideColumn := newTestRouter(0)

		for id := int64(1); id <= 20; id++ {
			e := feed.Entry{OwnerID: id, PostID: uuid.New(), CreatedAt: 100}
			require.NoError(t, router.Create(ctx, e))
		}
		assert.Equal(t, 20, relational.Count())
		assert.Equal(t, 0, wideColumn.Count())
	})

	t.Run("switch full routes to wide column", func(t *testing.T) {
		router, relational, wideColumn := newTestRouter(100)

		for id := int64(1); id <= 20; id++ {
			e := feed.Entry{OwnerID: id, PostID: uuid.New(), CreatedAt: 100}
			require.NoError(t, router.Create(ctx, e))
		}
		assert.Equal(t, 0, relational.Count())
		assert.Equal(t, 20, wideColumn.Count())
	})
}

// TestRouter_SameOwnerAlwaysSameBackend 測試同一 owner 的讀寫落在同一後端
func TestRouter_SameOwnerAlwaysSameBackend(t *testing.T) {
	router, relational, wideColumn := newTestRouter(50)
	ctx := context.Background()

	for id := int64(1); id <= 50; id++ {
		e := feed.Entry{OwnerID: id, PostID: uuid.New(), CreatedAt: 100}
		require.NoError(t, router.Create(ctx, e))

		// 寫入後立刻讀取：必須讀得到剛寫入的項目
		page, err := router.QueryPage(ctx, id, nil, 10)
		require.NoError(t, err)
		require.Len(t, page.Entries, 1, "read must hit the backend the write landed on")
		assert.Equal(t, e, page.Entries[0])
	}

	// 灰度 50% 時兩個後端都應有流量
	assert.Positive(t, relational.Count())
	assert.Positive(t, wideColumn.Count())
	assert.Equal(t, 50, relational.Count()+wideColumn.Count())
}

// TestRouter_CodecFollowsBackend 測試快取編解碼器跟隨路由決策
//
// 同一個快取鍵底下的位元組永遠屬於同一種線格式，
// 否則灰度切換會讓解碼在兩種格式之間失敗。
func TestRouter_CodecFollowsBackend(t *testing.T) {
	router, _, _ := newTestRouter(50)

	for id := int64(1); id <= 50; id++ {
		e := feed.Entry{OwnerID: id, PostID: uuid.New(), CreatedAt: 7}
		codec := router.CodecFor(id)

		data, err := codec.Encode(e)
		require.NoError(t, err)

		if router.UsesWideColumn(id) {
			assert.Len(t, data, feed.RowKeyLen, "wide-column owners use the row key wire format")
		} else {
			assert.JSONEq(t, string(mustJSON(t, e)), string(data), "relational owners use the JSON wire format")
		}

		decoded, err := codec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, e, decoded)
	}
}

func mustJSON(t *testing.T, e feed.Entry) []byte {
	t.Helper()
	data, err := feed.EntryJSONCodec{}.Encode(e)
	require.NoError(t, err)
	return data
}
