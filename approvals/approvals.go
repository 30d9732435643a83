// Package approvals owns the lifecycle of a proposed agent action after a
// human weighs in: approve, reject, edit, delete. Transitions are guarded
// updates so two concurrent decisions on one action can never both apply.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/agents"
	"github.com/proxypost-social/proxypost/models"
)

type Manager struct {
	db     *gorm.DB
	policy agents.FeedbackPolicy

	log *slog.Logger
}

func NewManager(db *gorm.DB, policy agents.FeedbackPolicy) *Manager {
	db.AutoMigrate(&models.AgentAction{})
	db.AutoMigrate(&models.Post{})

	if policy == nil {
		policy = agents.NoopPolicy{}
	}

	return &Manager{
		db:     db,
		policy: policy,
		log:    slog.Default().With("system", "approvals"),
	}
}

// loadOwned fetches the action if it belongs to the requester. Actions owned
// by someone else look identical to missing ones.
func (m *Manager) loadOwned(ctx context.Context, actionID, userID uint) (*models.AgentAction, error) {
	var action models.AgentAction
	err := m.db.WithContext(ctx).First(&action, "id = ? AND user_id = ?", actionID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &action, nil
}

// Approve moves a pending action to approved and publishes its draft
// artifact. Only one of two racing approve/reject calls can win; the loser
// sees ErrInvalidState.
func (m *Manager) Approve(ctx context.Context, actionID, userID uint) (*models.Post, error) {
	action, err := m.loadOwned(ctx, actionID, userID)
	if err != nil {
		return nil, err
	}

	var post *models.Post
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AgentAction{}).
			Where("id = ? AND status = ?", action.ID, models.ActionPendingApproval).
			Updates(map[string]any{
				"status":   models.ActionApproved,
				"feedback": models.FeedbackPositive,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("action %d is not pending approval: %w", action.ID, models.ErrInvalidState)
		}

		if action.PostID == nil {
			return nil
		}

		var p models.Post
		if err := tx.First(&p, *action.PostID).Error; err != nil {
			return err
		}
		res = tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", p.ID, models.PostStatusDraft).
			Update("status", models.PostStatusPublished)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 && p.ReplyTo != nil {
			// reply becomes visible now, so it starts counting
			err := tx.Model(&models.Post{}).Where("id = ?", *p.ReplyTo).
				Update("reply_count", gorm.Expr("reply_count + 1")).Error
			if err != nil {
				return err
			}
		}
		p.Status = models.PostStatusPublished
		post = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	decisionsTotal.WithLabelValues("approve").Inc()
	m.applyFeedback(ctx, action)
	m.log.Info("action approved", "action", action.ID, "user", userID)
	return post, nil
}

// Reject moves a pending action to rejected and soft-deletes its draft
// artifact. The artifact row is retained for the audit trail.
func (m *Manager) Reject(ctx context.Context, actionID, userID uint) error {
	action, err := m.loadOwned(ctx, actionID, userID)
	if err != nil {
		return err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AgentAction{}).
			Where("id = ? AND status = ?", action.ID, models.ActionPendingApproval).
			Updates(map[string]any{
				"status":   models.ActionRejected,
				"feedback": models.FeedbackNegative,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("action %d is not pending approval: %w", action.ID, models.ErrInvalidState)
		}

		if action.PostID == nil {
			return nil
		}
		return tx.Model(&models.Post{}).Where("id = ?", *action.PostID).
			Update("deleted", true).Error
	})
	if err != nil {
		return err
	}

	decisionsTotal.WithLabelValues("reject").Inc()
	m.applyFeedback(ctx, action)
	m.log.Info("action rejected", "action", action.ID, "user", userID)
	return nil
}

// Edit replaces the artifact content after a human rewrite. It is allowed
// whenever the artifact still exists and is not deleted, including after an
// approve, and records edited_by_user as a learning signal.
func (m *Manager) Edit(ctx context.Context, actionID, userID uint, newContent string) (*models.Post, error) {
	action, err := m.loadOwned(ctx, actionID, userID)
	if err != nil {
		return nil, err
	}
	if action.PostID == nil {
		return nil, fmt.Errorf("action %d has no content to edit: %w", action.ID, models.ErrInvalidState)
	}

	var post models.Post
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, *action.PostID).Error; err != nil {
			return err
		}
		if post.Deleted {
			return fmt.Errorf("content of action %d is deleted: %w", action.ID, models.ErrInvalidState)
		}

		changes := map[string]any{
			"content": newContent,
			"edited":  true,
		}
		if post.Author == models.ActorKindAgent {
			changes["edited_by_user"] = true
		}
		if err := tx.Model(&post).Updates(changes).Error; err != nil {
			return err
		}

		return tx.Model(&models.AgentAction{}).Where("id = ?", action.ID).
			Updates(map[string]any{
				"status":   models.ActionEditedByUser,
				"feedback": models.FeedbackNeutral,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	decisionsTotal.WithLabelValues("edit").Inc()
	m.applyFeedback(ctx, action)
	return &post, nil
}

// Delete soft-deletes the artifact and marks the action deleted_by_user.
// Deleting an already-deleted action is a no-op success.
func (m *Manager) Delete(ctx context.Context, actionID, userID uint) error {
	action, err := m.loadOwned(ctx, actionID, userID)
	if err != nil {
		return err
	}
	if action.Status == models.ActionDeletedByUser {
		return nil
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if action.PostID != nil {
			var p models.Post
			if err := tx.First(&p, *action.PostID).Error; err != nil {
				return err
			}
			// guarded update so only one deleter wins and runs the
			// parent decrement
			res := tx.Model(&models.Post{}).
				Where("id = ? AND deleted = ?", p.ID, false).
				Update("deleted", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 && p.ReplyTo != nil && p.Status == models.PostStatusPublished {
				err := tx.Model(&models.Post{}).
					Where("id = ? AND reply_count > 0", *p.ReplyTo).
					Update("reply_count", gorm.Expr("reply_count - 1")).Error
				if err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.AgentAction{}).Where("id = ?", action.ID).
			Updates(map[string]any{
				"status":   models.ActionDeletedByUser,
				"feedback": models.FeedbackNegative,
			}).Error
	})
	if err != nil {
		return err
	}

	decisionsTotal.WithLabelValues("delete").Inc()
	m.applyFeedback(ctx, action)
	return nil
}

// ListForUser pages through the user's action history, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID uint, skip, limit int) ([]models.AgentAction, error) {
	var actions []models.AgentAction
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(skip).Limit(limit).
		Find(&actions).Error
	return actions, err
}

func (m *Manager) applyFeedback(ctx context.Context, action *models.AgentAction) {
	var agent models.Agent
	if err := m.db.WithContext(ctx).First(&agent, action.AgentID).Error; err != nil {
		m.log.Warn("loading agent for feedback", "agent", action.AgentID, "err", err)
		return
	}
	if err := m.policy.ApplyFeedback(ctx, &agent, action); err != nil {
		m.log.Warn("feedback policy failed", "action", action.ID, "err", err)
	}
}
