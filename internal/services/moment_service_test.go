package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotusmap/backend/internal/models"
	"github.com/lotusmap/backend/internal/storage"
)

func TestMomentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMomentService(storage.NewMemoryStore(), testLogger(t))

	_, err := s.Create(ctx, &models.CreateMomentRequest{Caption: "Sunrise"}, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.Create(ctx, &models.CreateMomentRequest{}, alice)
	assert.ErrorIs(t, err, ErrValidation)

	permanent, err := s.Create(ctx, &models.CreateMomentRequest{Caption: "Sunrise"}, alice)
	require.NoError(t, err)
	assert.Nil(t, permanent.ExpiresAt)
	assert.Equal(t, "Alice", permanent.CreatedByName)
	assert.NotNil(t, permanent.Comments)

	ephemeral, err := s.Create(ctx, &models.CreateMomentRequest{Quote: "Be calmly active", Ephemeral: true}, alice)
	require.NoError(t, err)
	require.NotNil(t, ephemeral.ExpiresAt)
	assert.Equal(t, models.MomentLifetime, ephemeral.ExpiresAt.Sub(ephemeral.CreatedAt))
}

func TestMomentFeedSkipsExpired(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := NewMomentService(store, testLogger(t))

	live, err := s.Create(ctx, &models.CreateMomentRequest{Caption: "Still here", Ephemeral: true}, alice)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	expired := models.Moment{
		ID:        "expired",
		Caption:   "Gone",
		Comments:  []models.MomentComment{},
		CreatedAt: past.Add(-models.MomentLifetime),
		ExpiresAt: &past,
	}
	require.NoError(t, store.Collection(CollectionMoments).Insert(ctx, expired.ID, expired))

	page, err := s.Feed(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, live.ID, page.Items[0].ID)
	assert.Empty(t, page.NextCursor)

	_, err = s.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Like(ctx, expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMomentFeedPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMomentService(storage.NewMemoryStore(), testLogger(t))
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, &models.CreateMomentRequest{Caption: "Moment"}, bob)
		require.NoError(t, err)
	}

	first, err := s.Feed(ctx, Page{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := s.Feed(ctx, Page{Cursor: first.NextCursor, Limit: 3})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, m := range append(first.Items, second.Items...) {
		assert.False(t, seen[m.ID], "moment %s returned twice", m.ID)
		seen[m.ID] = true
	}
}

func TestMomentLikeAndComment(t *testing.T) {
	stores := map[string]func() storage.Store{
		"atomic": func() storage.Store { return storage.NewMemoryStore() },
		"plain":  plainStore,
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewMomentService(newStore(), testLogger(t))

			m, err := s.Create(ctx, &models.CreateMomentRequest{Caption: "Satsang"}, alice)
			require.NoError(t, err)

			_, err = s.Like(ctx, m.ID)
			require.NoError(t, err)
			liked, err := s.Like(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), liked.Likes)

			_, err = s.Comment(ctx, m.ID, &models.CommentRequest{Text: "Lovely"}, nil)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			_, err = s.Comment(ctx, m.ID, &models.CommentRequest{Text: ""}, bob)
			assert.ErrorIs(t, err, ErrValidation)

			c, err := s.Comment(ctx, m.ID, &models.CommentRequest{Text: "Lovely"}, bob)
			require.NoError(t, err)
			assert.Equal(t, "Bob", c.AuthorName)

			got, err := s.Get(ctx, m.ID)
			require.NoError(t, err)
			require.Len(t, got.Comments, 1)
			assert.Equal(t, "Lovely", got.Comments[0].Text)

			_, err = s.Like(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
