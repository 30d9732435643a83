// Package governor decides whether an agent-proposed action executes
// immediately or waits for human approval, and records the audit trail
// either way.
package governor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
	"github.com/proxypost-social/proxypost/quota"
)

// DefaultApprovalThreshold is the autonomy level at or above which content
// actions publish without human review.
const DefaultApprovalThreshold = 7

type Config struct {
	ApprovalThreshold int
}

func (c Config) threshold() int {
	if c.ApprovalThreshold > 0 {
		return c.ApprovalThreshold
	}
	return DefaultApprovalThreshold
}

type Governor struct {
	db   *gorm.DB
	gate *quota.Gate
	gen  Generator
	cfg  Config

	// injected clock, for deterministic day-rollover tests
	Now func() time.Time

	log *slog.Logger
}

func NewGovernor(db *gorm.DB, gate *quota.Gate, gen Generator, cfg Config) *Governor {
	db.AutoMigrate(&models.Post{})
	db.AutoMigrate(&models.AgentAction{})

	return &Governor{
		db:   db,
		gate: gate,
		gen:  gen,
		cfg:  cfg,
		Now:  time.Now,
		log:  slog.Default().With("system", "governor"),
	}
}

type ProposeRequest struct {
	Kind models.ActionType `json:"kind"`

	// reply and like targets
	TargetPostID uint `json:"target_post_id,omitempty"`
	// connection request and message targets
	TargetUserID uint `json:"target_user_id,omitempty"`

	// pre-supplied content skips generation
	Content string `json:"content,omitempty"`
}

type Proposal struct {
	Action    *models.AgentAction `json:"action"`
	Post      *models.Post        `json:"post,omitempty"`
	Remaining int                 `json:"actions_remaining"`
}

// needsApproval applies the autonomy policy per action kind. Reaching out to
// other people (connection requests, direct messages) always goes through a
// human; internal task completions never do.
func (g *Governor) needsApproval(agent *models.Agent, kind models.ActionType) bool {
	switch kind {
	case models.ActionConnectionRequested, models.ActionMessageSent:
		return true
	case models.ActionTaskCompleted:
		return false
	}
	return agent.AutonomyLevel < g.cfg.threshold()
}

func producesArtifact(kind models.ActionType) bool {
	return kind == models.ActionPostCreated || kind == models.ActionCommentCreated
}

type actionMetadata struct {
	ContentLength int  `json:"content_length,omitempty"`
	TargetPostID  uint `json:"target_post_id,omitempty"`
	TargetUserID  uint `json:"target_user_id,omitempty"`
}

// Propose runs the full governance pipeline for one agent action: inactive
// check, content generation, quota consumption, artifact and audit record
// creation. The quota consume and all record writes commit in one
// transaction; on any failure nothing is visible.
func (g *Governor) Propose(ctx context.Context, userID uint, req ProposeRequest) (*Proposal, error) {
	ctx, span := otel.Tracer("governor").Start(ctx, "Propose")
	defer span.End()

	switch req.Kind {
	case models.ActionPostCreated, models.ActionCommentCreated, models.ActionLikeGiven,
		models.ActionConnectionRequested, models.ActionMessageSent, models.ActionTaskCompleted:
	default:
		return nil, fmt.Errorf("unknown action kind %q: %w", req.Kind, models.ErrInvalidState)
	}

	var agent models.Agent
	if err := g.db.WithContext(ctx).First(&agent, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	if !agent.Active {
		proposalsTotal.WithLabelValues(string(req.Kind), "inactive").Inc()
		return nil, models.ErrAgentInactive
	}

	// resolve the target before consuming anything
	var target *models.Post
	if req.Kind == models.ActionCommentCreated || req.Kind == models.ActionLikeGiven {
		var p models.Post
		err := g.db.WithContext(ctx).
			First(&p, "id = ? AND deleted = ? AND status = ?", req.TargetPostID, false, models.PostStatusPublished).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("target post %d: %w", req.TargetPostID, models.ErrNotFound)
			}
			return nil, err
		}
		target = &p
	}

	content := req.Content
	if content == "" && producesArtifact(req.Kind) {
		var err error
		switch req.Kind {
		case models.ActionPostCreated:
			content, err = g.gen.GeneratePost(ctx, &agent)
		case models.ActionCommentCreated:
			content, err = g.gen.GenerateReply(ctx, &agent, target.Content)
		}
		if err != nil {
			proposalsTotal.WithLabelValues(string(req.Kind), "generation_failed").Inc()
			return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
		}
	}

	now := g.Now()
	needsApproval := g.needsApproval(&agent, req.Kind)

	out := Proposal{}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		allowed, remaining, err := g.gate.TryConsume(tx, &agent, now)
		if err != nil {
			return err
		}
		if !allowed {
			return models.ErrRateLimitExceeded
		}
		out.Remaining = remaining

		meta := actionMetadata{TargetUserID: req.TargetUserID}
		var postID *uint

		if producesArtifact(req.Kind) {
			status := models.PostStatusPublished
			if needsApproval {
				status = models.PostStatusDraft
			}
			post := models.Post{
				UserID:  userID,
				AgentID: &agent.ID,
				Content: content,
				Author:  models.ActorKindAgent,
				Status:  status,
			}
			if target != nil {
				post.ReplyTo = &target.ID
			}
			if err := tx.Create(&post).Error; err != nil {
				return fmt.Errorf("creating post: %w", err)
			}
			// a reply only counts against its parent once visible
			if post.ReplyTo != nil && status == models.PostStatusPublished {
				err := tx.Model(&models.Post{}).Where("id = ?", *post.ReplyTo).
					Update("reply_count", gorm.Expr("reply_count + 1")).Error
				if err != nil {
					return err
				}
			}
			postID = &post.ID
			out.Post = &post
			meta.ContentLength = len(content)
		}
		if target != nil {
			meta.TargetPostID = target.ID
		}

		status := models.ActionCompleted
		if needsApproval {
			status = models.ActionPendingApproval
		}

		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}

		action := models.AgentAction{
			AgentID:     agent.ID,
			UserID:      userID,
			PostID:      postID,
			Kind:        req.Kind,
			Status:      status,
			Description: describe(req.Kind, content),
			Metadata:    string(metaJSON),
		}
		if err := tx.Create(&action).Error; err != nil {
			return fmt.Errorf("creating action record: %w", err)
		}
		out.Action = &action

		return tx.Model(&models.Agent{}).Where("id = ?", agent.ID).
			Update("last_action_at", now).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			proposalsTotal.WithLabelValues(string(req.Kind), "rate_limited").Inc()
		} else {
			proposalsTotal.WithLabelValues(string(req.Kind), "error").Inc()
		}
		return nil, err
	}

	outcome := "auto"
	if needsApproval {
		outcome = "pending"
	}
	proposalsTotal.WithLabelValues(string(req.Kind), outcome).Inc()

	g.log.Info("action proposed",
		"agent", agent.ID,
		"kind", req.Kind,
		"status", out.Action.Status,
		"remaining", out.Remaining)

	return &out, nil
}

func describe(kind models.ActionType, content string) string {
	if content == "" {
		return string(kind)
	}
	snippet := content
	if len(snippet) > 50 {
		cut := 50
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut] + "..."
	}
	switch kind {
	case models.ActionPostCreated:
		return "Generated post: " + snippet
	case models.ActionCommentCreated:
		return "Generated comment: " + snippet
	}
	return string(kind)
}
