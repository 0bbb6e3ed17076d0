// ABOUTME: Tests for message posting, range listing, deletion, and retention sweeps
// ABOUTME: Listing windows are exercised with real mint times separated by short sleeps

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/messenger/internal/snowflake"
)

func TestMessages_PostAndList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	author := snowflake.NewGenerator().Next(snowflake.TagUser)

	first, err := db.Messages.Post(ctx, author, "first")
	require.NoError(t, err)
	second, err := db.Messages.Post(ctx, author, "second")
	require.NoError(t, err)

	assert.Equal(t, snowflake.TagMessage, snowflake.TypeOf(first))

	msgs, err := db.Messages.List(ctx, -1, -1, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Newest first.
	assert.Equal(t, second, msgs[0].ID)
	assert.Equal(t, "second", msgs[0].Content)
	assert.Equal(t, first, msgs[1].ID)
	assert.Equal(t, author, msgs[1].Author)
}

func TestMessages_Post_EmptyContent(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Messages.Post(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestMessages_List_LimitReturnsNewest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []snowflake.ID
	for _, content := range []string{"one", "two", "three"} {
		id, err := db.Messages.Post(ctx, 1, content)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond) // distinct mint times
	}

	msgs, err := db.Messages.List(ctx, 2, -1, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ids[2], msgs[0].ID)
	assert.Equal(t, ids[1], msgs[1].ID)
}

func TestMessages_List_TimeWindow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Messages.Post(ctx, 1, "early")
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)

	after := time.Now().UnixMilli()
	time.Sleep(3 * time.Millisecond)

	mid, err := db.Messages.Post(ctx, 1, "mid")
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)

	before := time.Now().UnixMilli()
	time.Sleep(3 * time.Millisecond)

	_, err = db.Messages.Post(ctx, 1, "late")
	require.NoError(t, err)

	// Only messages minted strictly between after and before qualify.
	msgs, err := db.Messages.List(ctx, -1, before, after)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, mid, msgs[0].ID)
}

func TestMessages_Delete_ReturnsDeletedRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Messages.Post(ctx, 7, "bye")
	require.NoError(t, err)

	msg, err := db.Messages.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.EqualValues(t, 7, msg.Author)
	assert.Equal(t, "bye", msg.Content)

	msgs, err := db.Messages.List(ctx, -1, -1, -1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessages_Delete_Missing(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Messages.Delete(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessages_DeleteOlderThan_IsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c"} {
		_, err := db.Messages.Post(ctx, 1, content)
		require.NoError(t, err)
	}

	cutoff := time.Now().Add(time.Second)

	n, err := db.Messages.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = db.Messages.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMessages_DeleteOlderThan_WritesLogEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Messages.Post(ctx, 1, "old")
	require.NoError(t, err)

	_, err = db.Messages.DeleteOlderThan(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)

	entries, err := db.Logs.List(ctx, -1, -1, -1)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Contains(t, entries[0].Message, "Deleted 1 messages")
}

func TestMessages_DeleteOlderThan_SparesNewerMessages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Messages.Post(ctx, 1, "old")
	require.NoError(t, err)
	time.Sleep(3 * time.Millisecond)

	cutoff := time.Now()
	time.Sleep(3 * time.Millisecond)

	kept, err := db.Messages.Post(ctx, 1, "new")
	require.NoError(t, err)

	n, err := db.Messages.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	msgs, err := db.Messages.List(ctx, -1, -1, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, kept, msgs[0].ID)
}
