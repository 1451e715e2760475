package pagination_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/feed"
	"github.com/koopa0/newsfeed/internal/gatekeeper"
	"github.com/koopa0/newsfeed/internal/pagination"
	"github.com/koopa0/newsfeed/internal/store"
	"github.com/koopa0/newsfeed/internal/testutils"
)

// fakeFeedSource 模擬有界列表快取：持久層排序的連續前綴，裁剪到 L
type fakeFeedSource struct {
	entries []feed.Entry
	limit   int64
}

func (s *fakeFeedSource) LoadFeed(ctx context.Context, ownerID int64) ([]feed.Entry, error) {
	if int64(len(s.entries)) > s.limit {
		return s.entries[:s.limit], nil
	}
	return s.entries, nil
}

func (s *fakeFeedSource) Limit() int64 { return s.limit }

// newPaginatorFixture 建出 total 筆資料：全部在持久層，前 limit 筆在快取
func newPaginatorFixture(t *testing.T, ownerID int64, total int, limit int64) (*pagination.Paginator, []feed.Entry, *testutils.MemoryFeedStore) {
	t.Helper()

	backend := testutils.NewMemoryFeedStore()
	ctx := context.Background()

	dataset := make([]feed.Entry, total)
	for i := 0; i < total; i++ {
		e := feed.Entry{
			OwnerID:   ownerID,
			PostID:    uuid.New(),
			CreatedAt: int64((total - i) * 1000), // 由新到舊
		}
		dataset[i] = e
		require.NoError(t, backend.Create(ctx, e))
	}

	gk := gatekeeper.New(nil)
	router := store.NewRouter(backend, testutils.NewMemoryFeedStore(), gk, testutils.NewTestLogger())
	source := &fakeFeedSource{entries: dataset, limit: limit}

	return pagination.New(source, router, testutils.NewTestLogger()), dataset, backend
}

// collectPages 從第一頁翻到底，回傳串接結果與頁數
func collectPages(t *testing.T, p *pagination.Paginator, ownerID int64, pageSize int) ([]feed.Entry, int) {
	t.Helper()

	ctx := context.Background()
	var all []feed.Entry
	token := ""
	pages := 0

	for {
		res, err := p.Page(ctx, ownerID, token, pageSize)
		require.NoError(t, err)
		all = append(all, res.Items...)
		pages++

		if !res.HasMore {
			return all, pages
		}
		require.NotEmpty(t, res.NextToken, "has_more implies a next token")
		token = res.NextToken
	}
}

// TestPaginator_FullyCachedDataset 測試整個資料集都在快取時的分頁
func TestPaginator_FullyCachedDataset(t *testing.T) {
	const ownerID = int64(1)
	p, dataset, backend := newPaginatorFixture(t, ownerID, 10, 50)

	all, _ := collectPages(t, p, ownerID, 3)
	assert.Equal(t, dataset, all, "concatenated pages must equal the dataset exactly")
	assert.Zero(t, backend.QueryCalls.Load(), "in-bounds paging must not touch the store")
}

// TestPaginator_GapFreeAcrossCacheBoundary 測試跨越快取邊界時不重不漏
//
// 關鍵性質：序列中途從快取切到持久層，
// 串接結果仍然恰好等於完整資料集。
func TestPaginator_GapFreeAcrossCacheBoundary(t *testing.T) {
	testCases := []struct {
		name     string
		total    int
		limit    int64
		pageSize int
	}{
		{"boundary mid page", 25, 10, 4},
		{"boundary on page edge", 30, 10, 5},
		{"page size one", 15, 8, 1},
		{"page larger than cache", 12, 4, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			const ownerID = int64(1)
			p, dataset, backend := newPaginatorFixture(t, ownerID, tc.total, tc.limit)

			all, _ := collectPages(t, p, ownerID, tc.pageSize)
			assert.Equal(t, dataset, all, "no gaps or duplicates across the cache/store boundary")
			assert.Positive(t, backend.QueryCalls.Load(), "pages past the cache bound must hit the store")
		})
	}
}

// TestPaginator_EmptyFeed 測試空動態流
func TestPaginator_EmptyFeed(t *testing.T) {
	const ownerID = int64(1)
	p, _, _ := newPaginatorFixture(t, ownerID, 0, 10)

	res, err := p.Page(context.Background(), ownerID, "", 5)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.HasMore)
	assert.Empty(t, res.NextToken)
}

// TestPaginator_CursorPastEnd 測試游標越過資料集末端
func TestPaginator_CursorPastEnd(t *testing.T) {
	const ownerID = int64(1)
	p, dataset, _ := newPaginatorFixture(t, ownerID, 5, 50)

	token := pagination.EncodeToken(store.Cursor{
		Position:  len(dataset),
		CreatedAt: dataset[len(dataset)-1].CreatedAt,
	})

	res, err := p.Page(context.Background(), ownerID, token, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.False(t, res.HasMore)
}

// TestPaginator_InvalidToken 測試非法游標令牌
func TestPaginator_InvalidToken(t *testing.T) {
	const ownerID = int64(1)
	p, _, _ := newPaginatorFixture(t, ownerID, 5, 50)

	testCases := []struct {
		name  string
		token string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"base64 but not json", "bm90LWpzb24"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Page(context.Background(), ownerID, tc.token, 5)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCursor)
		})
	}
}

// TestPaginator_TokenRoundTrip 測試游標令牌編解碼往返
func TestPaginator_TokenRoundTrip(t *testing.T) {
	c := store.Cursor{Position: 37, CreatedAt: 1700000000000000000}

	decoded, err := pagination.DecodeToken(pagination.EncodeToken(c))
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, c, *decoded)

	decoded, err = pagination.DecodeToken("")
	require.NoError(t, err)
	assert.Nil(t, decoded, "empty token means first page")
}
