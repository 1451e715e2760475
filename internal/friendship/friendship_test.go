package friendship_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koopa0/newsfeed/pkg/errors"

	"github.com/koopa0/newsfeed/internal/friendship"
	"github.com/koopa0/newsfeed/internal/testutils"
)

// TestFriendshipStore_Integration 測試追蹤關係存取（需要 Docker）
//
// 以 NEWSFEED_INTEGRATION=1 啟用。
func TestFriendshipStore_Integration(t *testing.T) {
	env := testutils.SetupIntegrationEnv(t)
	s := friendship.NewStore(env.Pool, testutils.NewTestLogger())
	ctx := context.Background()

	t.Run("follow and has followed", func(t *testing.T) {
		env.TruncateTables(t)

		require.NoError(t, s.Follow(ctx, 1, 2))

		followed, err := s.HasFollowed(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, followed)

		followed, err = s.HasFollowed(ctx, 2, 1)
		require.NoError(t, err)
		assert.False(t, followed, "follow edges are directed")
	})

	t.Run("duplicate follow", func(t *testing.T) {
		env.TruncateTables(t)

		require.NoError(t, s.Follow(ctx, 1, 2))
		err := s.Follow(ctx, 1, 2)
		assert.True(t, apperrors.IsAlreadyExists(err))
	})

	t.Run("self follow rejected", func(t *testing.T) {
		err := s.Follow(ctx, 1, 1)
		assert.ErrorIs(t, err, apperrors.ErrSelfFollow)
	})

	t.Run("unfollow", func(t *testing.T) {
		env.TruncateTables(t)

		require.NoError(t, s.Follow(ctx, 1, 2))

		deleted, err := s.Unfollow(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Unfollow(ctx, 1, 2)
		require.NoError(t, err)
		assert.False(t, deleted, "second unfollow deletes nothing")
	})

	t.Run("follower ids newest first", func(t *testing.T) {
		env.TruncateTables(t)

		require.NoError(t, s.Follow(ctx, 10, 1))
		require.NoError(t, s.Follow(ctx, 11, 1))
		require.NoError(t, s.Follow(ctx, 12, 1))

		ids, err := s.FollowerIDs(ctx, 1)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{10, 11, 12}, ids)
	})
}
