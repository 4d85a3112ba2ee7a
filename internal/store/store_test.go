package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Save(ctx, &Record{ID: "old", CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Save(ctx, &Record{ID: "new", CreatedAt: now}))

	got, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "old", got.ID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save and get", func(mt *mtest.T) {
		ctx := context.Background()
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s, err := NewMongoStore(ctx, mt.Coll)
		require.NoError(mt, err)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, s.Save(ctx, &Record{ID: "abc", Mode: "single"}))

		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "abc"},
			{Key: "mode", Value: "single"},
			{Key: "width", Value: 4},
		}))
		got, err := s.Get(ctx, "abc")
		require.NoError(mt, err)
		assert.Equal(mt, "single", got.Mode)
		assert.Equal(mt, 4, got.Width)
	})

	mt.Run("get missing", func(mt *mtest.T) {
		ctx := context.Background()
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s, err := NewMongoStore(ctx, mt.Coll)
		require.NoError(mt, err)

		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err = s.Get(ctx, "nope")
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}
