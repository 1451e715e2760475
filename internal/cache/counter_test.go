package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/cache"
	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/testutils"
)

// fakeCounterSource 模擬持久層上的反正規化計數欄位
type fakeCounterSource struct {
	value int64
	gone  bool
	reads int
}

func (s *fakeCounterSource) backfill(ctx context.Context) (int64, error) {
	s.reads++
	if s.gone {
		return 0, apperrors.ErrCounterSourceNotFound
	}
	return s.value, nil
}

var likeRef = feed.EntityRef{Type: "Tweet", ID: "t-1"}

// TestCounterCache_IncrementMissReturnsBackfillUnchanged 測試未命中時回填值原樣返回
//
// 回填語義的關鍵契約：呼叫 Increment 前持久值已經 +1，
// 回填快照已包含這次變更，絕不能再疊加。
func TestCounterCache_IncrementMissReturnsBackfillUnchanged(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, time.Hour, testutils.NewTestLogger())
	ctx := context.Background()

	// 持久值 5（已含呼叫方剛完成的 +1）
	source := &fakeCounterSource{value: 5}

	got, err := counters.Increment(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got, "miss must return the backfilled value, not value+1")
	assert.Equal(t, 1, source.reads)

	// 命中路徑：原子加一，不再回填
	source.value = 6
	got, err = counters.Increment(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	assert.Equal(t, 1, source.reads, "hit path must not touch the store")
}

// TestCounterCache_DecrementMissReturnsBackfillUnchanged 測試減一路徑的回填語義
func TestCounterCache_DecrementMissReturnsBackfillUnchanged(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, time.Hour, testutils.NewTestLogger())
	ctx := context.Background()

	// 持久值 3（已含呼叫方剛完成的 -1）
	source := &fakeCounterSource{value: 3}

	got, err := counters.Decrement(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got, "miss must return the backfilled value, not value-1")

	source.value = 2
	got, err = counters.Decrement(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, 1, source.reads)
}

// TestCounterCache_GetBackfillsAndCaches 測試讀取的回填與快取
func TestCounterCache_GetBackfillsAndCaches(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, time.Hour, testutils.NewTestLogger())
	ctx := context.Background()

	source := &fakeCounterSource{value: 42}

	got, err := counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.Equal(t, 1, source.reads)

	got, err = counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.Equal(t, 1, source.reads, "second get must be a cache hit")
}

// TestCounterCache_NotFoundIsNotCached 測試「不存在」不被快取
func TestCounterCache_NotFoundIsNotCached(t *testing.T) {
	_, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, time.Hour, testutils.NewTestLogger())
	ctx := context.Background()

	source := &fakeCounterSource{gone: true}

	_, err := counters.Get(ctx, likeRef, "likes_count", source.backfill)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = counters.Increment(ctx, likeRef, "likes_count", source.backfill)
	assert.True(t, apperrors.IsNotFound(err))

	// 來源恢復後，下一次讀取必須重新回填而非命中殘值
	source.gone = false
	source.value = 7

	got, err := counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

// TestCounterCache_TTLExpiryTriggersBackfill 測試過期後重新回填
func TestCounterCache_TTLExpiryTriggersBackfill(t *testing.T) {
	const ttl = time.Minute
	mr, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, ttl, testutils.NewTestLogger())
	ctx := context.Background()

	source := &fakeCounterSource{value: 10}

	_, err := counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, 1, source.reads)

	mr.FastForward(ttl + time.Second)
	source.value = 11

	got, err := counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got)
	assert.Equal(t, 2, source.reads)
}

// TestCounterCache_DegradesWhenRedisDown 測試 Redis 故障時降級直讀
func TestCounterCache_DegradesWhenRedisDown(t *testing.T) {
	mr, rdb := testutils.NewTestRedis(t)
	counters := cache.NewCounterCache(rdb, time.Hour, testutils.NewTestLogger())
	ctx := context.Background()

	source := &fakeCounterSource{value: 9}
	mr.Close()

	got, err := counters.Increment(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)

	got, err = counters.Get(ctx, likeRef, "likes_count", source.backfill)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)
}
