// Package engagement handles human-authored posts and replies, likes, and
// the monotone engagement counters on posts. Counter adjustments are single
// guarded UPDATE statements so concurrent likes and unlikes can neither lose
// updates nor drive a counter negative.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
)

type Manager struct {
	db *gorm.DB

	log *slog.Logger
}

func NewManager(db *gorm.DB) *Manager {
	db.AutoMigrate(&models.Post{})
	db.AutoMigrate(&models.LikeRecord{})

	return &Manager{
		db:  db,
		log: slog.Default().With("system", "engagement"),
	}
}

// CreatePost creates a human-authored top-level post. Humans are their own
// reviewers: the post goes straight to whatever status they chose.
func (m *Manager) CreatePost(ctx context.Context, userID uint, content string, status models.PostStatus) (*models.Post, error) {
	if status == "" {
		status = models.PostStatusPublished
	}
	switch status {
	case models.PostStatusDraft, models.PostStatusPublished, models.PostStatusScheduled:
	default:
		return nil, fmt.Errorf("unknown post status %q: %w", status, models.ErrInvalidState)
	}

	post := models.Post{
		UserID:  userID,
		Content: content,
		Author:  models.ActorKindHuman,
		Status:  status,
	}
	if err := m.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// CreateReply creates a human comment under a published post and bumps the
// parent's reply count in the same transaction.
func (m *Manager) CreateReply(ctx context.Context, userID, parentID uint, content string) (*models.Post, error) {
	parent, err := m.published(ctx, parentID)
	if err != nil {
		return nil, err
	}

	reply := models.Post{
		UserID:  userID,
		ReplyTo: &parent.ID,
		Content: content,
		Author:  models.ActorKindHuman,
		Status:  models.PostStatusPublished,
	}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reply).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", parent.ID).
			Update("reply_count", gorm.Expr("reply_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (m *Manager) published(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	err := m.db.WithContext(ctx).
		First(&post, "id = ? AND deleted = ? AND status = ?", postID, false, models.PostStatusPublished).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", postID, models.ErrNotFound)
		}
		return nil, err
	}
	return &post, nil
}

// GetOwn fetches a post for its owner, drafts included.
func (m *Manager) GetOwn(ctx context.Context, postID, requester uint) (*models.Post, error) {
	var post models.Post
	err := m.db.WithContext(ctx).First(&post, "id = ? AND deleted = ?", postID, false).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %d: %w", postID, models.ErrNotFound)
		}
		return nil, err
	}
	if post.UserID != requester {
		return nil, fmt.Errorf("post %d belongs to another user: %w", postID, models.ErrForbidden)
	}
	return &post, nil
}

// ListOwn pages through the user's own posts, drafts included.
func (m *Manager) ListOwn(ctx context.Context, userID uint, skip, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ? AND reply_to IS NULL", userID, false).
		Order("created_at desc, id desc").
		Offset(skip).Limit(limit).
		Find(&posts).Error
	return posts, err
}

// ListReplies pages through a post's visible replies, oldest first.
func (m *Manager) ListReplies(ctx context.Context, postID uint, skip, limit int) ([]models.Post, error) {
	if _, err := m.published(ctx, postID); err != nil {
		return nil, err
	}

	var replies []models.Post
	err := m.db.WithContext(ctx).
		Where("reply_to = ? AND deleted = ? AND status = ?", postID, false, models.PostStatusPublished).
		Order("created_at asc, id asc").
		Offset(skip).Limit(limit).
		Find(&replies).Error
	return replies, err
}

// UpdatePost lets the owner rewrite content. Agent-authored posts keep a
// record that a human touched them.
func (m *Manager) UpdatePost(ctx context.Context, postID, requester uint, content string) (*models.Post, error) {
	post, err := m.GetOwn(ctx, postID, requester)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{
		"content": content,
		"edited":  true,
	}
	if post.Author == models.ActorKindAgent {
		changes["edited_by_user"] = true
	}
	if err := m.db.WithContext(ctx).Model(post).Updates(changes).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost soft-deletes the owner's post. A visible reply stops counting
// against its parent.
func (m *Manager) DeletePost(ctx context.Context, postID, requester uint) error {
	post, err := m.GetOwn(ctx, postID, requester)
	if err != nil {
		return err
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).
			Where("id = ? AND deleted = ?", post.ID, false).
			Update("deleted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if post.ReplyTo != nil && post.Status == models.PostStatusPublished {
			return tx.Model(&models.Post{}).
				Where("id = ? AND reply_count > 0", *post.ReplyTo).
				Update("reply_count", gorm.Expr("reply_count - 1")).Error
		}
		return nil
	})
}

// Like records one user's like on a published post or comment and bumps the
// like counter. A second like from the same user fails with ErrDuplicateLike;
// the unique index backstops the check under concurrency.
func (m *Manager) Like(ctx context.Context, userID, postID uint, actor models.ActorKind) (*models.LikeRecord, error) {
	post, err := m.published(ctx, postID)
	if err != nil {
		return nil, err
	}
	if actor == "" {
		actor = models.ActorKindHuman
	}

	like := models.LikeRecord{UserID: userID, PostID: post.ID, Actor: actor}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.LikeRecord{}).
			Where("user_id = ? AND post_id = ?", userID, post.ID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return models.ErrDuplicateLike
		}
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			Update("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrDuplicateLike
		}
		return nil, err
	}
	return &like, nil
}

// Unlike removes the user's like, if any, and decrements the counter. The
// guard keeps like_count from ever going negative.
func (m *Manager) Unlike(ctx context.Context, userID, postID uint) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).
			Delete(&models.LikeRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("like on post %d: %w", postID, models.ErrNotFound)
		}
		return tx.Model(&models.Post{}).
			Where("id = ? AND like_count > 0", postID).
			Update("like_count", gorm.Expr("like_count - 1")).Error
	})
}

// HasLiked reports whether the user currently likes the post.
func (m *Manager) HasLiked(ctx context.Context, userID, postID uint) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.LikeRecord{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	return count > 0, err
}
