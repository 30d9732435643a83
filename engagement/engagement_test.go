package engagement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
)

func testManager(t *testing.T) (*gorm.DB, *Manager) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)
	return db, NewManager(db)
}

func TestCreatePostDefaultsToPublished(t *testing.T) {
	assert := assert.New(t)
	_, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "hello", "")
	require.NoError(t, err)
	assert.Equal(models.PostStatusPublished, post.Status)
	assert.Equal(models.ActorKindHuman, post.Author)
	assert.Nil(post.ReplyTo)
}

func TestCreatePostRejectsUnknownStatus(t *testing.T) {
	_, m := testManager(t)

	_, err := m.CreatePost(context.TODO(), 1, "hello", "shouted")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestReplyBumpsParentCount(t *testing.T) {
	assert := assert.New(t)
	db, m := testManager(t)

	parent, err := m.CreatePost(context.TODO(), 1, "parent", "")
	require.NoError(t, err)

	reply, err := m.CreateReply(context.TODO(), 2, parent.ID, "me too")
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(parent.ID, *reply.ReplyTo)

	var fresh models.Post
	assert.NoError(db.First(&fresh, parent.ID).Error)
	assert.Equal(int64(1), fresh.ReplyCount)
}

func TestReplyToDraftFails(t *testing.T) {
	_, m := testManager(t)

	draft, err := m.CreatePost(context.TODO(), 1, "not out yet", models.PostStatusDraft)
	require.NoError(t, err)

	_, err = m.CreateReply(context.TODO(), 2, draft.ID, "sneaky")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListOwnIncludesDrafts(t *testing.T) {
	_, m := testManager(t)

	_, err := m.CreatePost(context.TODO(), 1, "live", "")
	require.NoError(t, err)
	_, err = m.CreatePost(context.TODO(), 1, "still cooking", models.PostStatusDraft)
	require.NoError(t, err)
	_, err = m.CreatePost(context.TODO(), 2, "not mine", "")
	require.NoError(t, err)

	posts, err := m.ListOwn(context.TODO(), 1, 0, 50)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestGetOwnChecksOwnership(t *testing.T) {
	_, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "mine", "")
	require.NoError(t, err)

	_, err = m.GetOwn(context.TODO(), post.ID, 2)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = m.GetOwn(context.TODO(), 999, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdatePostMarksEdited(t *testing.T) {
	assert := assert.New(t)
	db, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "v1", "")
	require.NoError(t, err)

	_, err = m.UpdatePost(context.TODO(), post.ID, 1, "v2")
	require.NoError(t, err)

	var fresh models.Post
	assert.NoError(db.First(&fresh, post.ID).Error)
	assert.Equal("v2", fresh.Content)
	assert.True(fresh.Edited)
	// a human editing their own words is not an override signal
	assert.False(fresh.EditedByUser)
}

func TestDeleteReplyDecrementsParent(t *testing.T) {
	assert := assert.New(t)
	db, m := testManager(t)

	parent, err := m.CreatePost(context.TODO(), 1, "parent", "")
	require.NoError(t, err)
	reply, err := m.CreateReply(context.TODO(), 2, parent.ID, "me too")
	require.NoError(t, err)

	require.NoError(t, m.DeletePost(context.TODO(), reply.ID, 2))

	var fresh models.Post
	assert.NoError(db.First(&fresh, parent.ID).Error)
	assert.Zero(fresh.ReplyCount)

	// repeat delete is a no-op on the counter
	require.NoError(t, m.DeletePost(context.TODO(), reply.ID, 2))
	assert.NoError(db.First(&fresh, parent.ID).Error)
	assert.Zero(fresh.ReplyCount)
}

func TestLikeAndUnlike(t *testing.T) {
	assert := assert.New(t)
	db, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "likeable", "")
	require.NoError(t, err)

	_, err = m.Like(context.TODO(), 2, post.ID, "")
	require.NoError(t, err)

	liked, err := m.HasLiked(context.TODO(), 2, post.ID)
	require.NoError(t, err)
	assert.True(liked)

	var fresh models.Post
	assert.NoError(db.First(&fresh, post.ID).Error)
	assert.Equal(int64(1), fresh.LikeCount)

	require.NoError(t, m.Unlike(context.TODO(), 2, post.ID))
	assert.NoError(db.First(&fresh, post.ID).Error)
	assert.Zero(fresh.LikeCount)

	liked, err = m.HasLiked(context.TODO(), 2, post.ID)
	require.NoError(t, err)
	assert.False(liked)
}

func TestDuplicateLike(t *testing.T) {
	_, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "likeable", "")
	require.NoError(t, err)

	_, err = m.Like(context.TODO(), 2, post.ID, "")
	require.NoError(t, err)
	_, err = m.Like(context.TODO(), 2, post.ID, "")
	assert.ErrorIs(t, err, models.ErrDuplicateLike)
}

func TestUnlikeWithoutLike(t *testing.T) {
	db, m := testManager(t)

	post, err := m.CreatePost(context.TODO(), 1, "likeable", "")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Unlike(context.TODO(), 2, post.ID), models.ErrNotFound)

	// the counter must not budge on a failed unlike
	var fresh models.Post
	require.NoError(t, db.First(&fresh, post.ID).Error)
	assert.Zero(t, fresh.LikeCount)
}

func TestLikeUnpublishedPost(t *testing.T) {
	_, m := testManager(t)

	draft, err := m.CreatePost(context.TODO(), 1, "draft", models.PostStatusDraft)
	require.NoError(t, err)

	_, err = m.Like(context.TODO(), 2, draft.ID, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListRepliesOldestFirst(t *testing.T) {
	assert := assert.New(t)
	_, m := testManager(t)

	parent, err := m.CreatePost(context.TODO(), 1, "parent", "")
	require.NoError(t, err)

	first, err := m.CreateReply(context.TODO(), 2, parent.ID, "first")
	require.NoError(t, err)
	second, err := m.CreateReply(context.TODO(), 3, parent.ID, "second")
	require.NoError(t, err)

	replies, err := m.ListReplies(context.TODO(), parent.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Equal(first.ID, replies[0].ID)
	assert.Equal(second.ID, replies[1].ID)
}
