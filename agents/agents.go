// Package agents manages agent onboarding, configuration, and the feedback
// hook invoked when humans override agent actions.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
	"github.com/proxypost-social/proxypost/quota"
)

type Service struct {
	db   *gorm.DB
	gate *quota.Gate

	log *slog.Logger
}

func NewService(db *gorm.DB, gate *quota.Gate) *Service {
	db.AutoMigrate(&models.User{})
	db.AutoMigrate(&models.Agent{})

	return &Service{
		db:   db,
		gate: gate,
		log:  slog.Default().With("system", "agents"),
	}
}

// Create onboards an agent for the user. Each user owns at most one agent;
// a second create fails with ErrAgentExists.
func (s *Service) Create(ctx context.Context, userID uint, q Questionnaire) (*models.Agent, error) {
	if q.AutonomyPreference < 1 || q.AutonomyPreference > 10 {
		return nil, fmt.Errorf("autonomy preference must be between 1 and 10: %w", models.ErrInvalidState)
	}

	personality, err := json.Marshal(Personality{
		UseCase:            q.UseCase,
		CommunicationStyle: q.CommunicationStyle,
		Topics:             q.Topics,
	})
	if err != nil {
		return nil, err
	}
	prefs, err := json.Marshal(Preferences{
		PostingFrequency:  q.PostingFrequency,
		AdditionalContext: q.AdditionalContext,
	})
	if err != nil {
		return nil, err
	}

	agent := models.Agent{
		UserID:        userID,
		Name:          "My Agent",
		SystemPrompt:  BuildSystemPrompt(q),
		Personality:   string(personality),
		Preferences:   string(prefs),
		AutonomyLevel: q.AutonomyPreference,
		Active:        true,
	}

	if err := s.db.WithContext(ctx).Create(&agent).Error; err != nil {
		// the unique index on user_id enforces one agent per user
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrAgentExists
		}
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	s.log.Info("agent onboarded", "user", userID, "agent", agent.ID, "autonomy", agent.AutonomyLevel)
	return &agent, nil
}

// GetForUser returns the user's agent, or ErrNotFound if onboarding has not
// happened yet.
func (s *Service) GetForUser(ctx context.Context, userID uint) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.WithContext(ctx).First(&agent, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

// Update is a partial configuration update; nil fields are left alone.
type Update struct {
	Name          *string `json:"name"`
	SystemPrompt  *string `json:"system_prompt"`
	AutonomyLevel *int    `json:"autonomy_level"`
	Active        *bool   `json:"active"`
}

func (s *Service) Update(ctx context.Context, userID uint, upd Update) (*models.Agent, error) {
	agent, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if upd.Name != nil {
		changes["name"] = *upd.Name
	}
	if upd.SystemPrompt != nil {
		changes["system_prompt"] = *upd.SystemPrompt
	}
	if upd.AutonomyLevel != nil {
		if *upd.AutonomyLevel < 1 || *upd.AutonomyLevel > 10 {
			return nil, fmt.Errorf("autonomy level must be between 1 and 10: %w", models.ErrInvalidState)
		}
		changes["autonomy_level"] = *upd.AutonomyLevel
	}
	if upd.Active != nil {
		changes["active"] = *upd.Active
	}

	if len(changes) == 0 {
		return agent, nil
	}

	if err := s.db.WithContext(ctx).Model(agent).Updates(changes).Error; err != nil {
		return nil, err
	}

	return agent, nil
}

type Dashboard struct {
	Agent            *models.Agent `json:"agent"`
	ActionsToday     int           `json:"actions_today"`
	ActionsRemaining int           `json:"actions_remaining"`
	LastActionAt     *time.Time    `json:"last_action_at"`
	TotalPosts       int64         `json:"total_posts"`
	PendingActions   int64         `json:"pending_actions"`
	Connections      int64         `json:"connections"`
}

// GetDashboard summarizes today's activity for the user's agent.
func (s *Service) GetDashboard(ctx context.Context, userID uint, now time.Time) (*Dashboard, error) {
	agent, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	out := Dashboard{
		Agent:            agent,
		ActionsRemaining: s.gate.Remaining(agent, now),
		LastActionAt:     agent.LastActionAt,
	}
	if agent.LastActionDay == quota.Day(now) {
		out.ActionsToday = agent.ActionsToday
	}

	if err := db.Model(&models.Post{}).Where("agent_id = ? AND deleted = ?", agent.ID, false).Count(&out.TotalPosts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.AgentAction{}).Where("agent_id = ? AND status = ?", agent.ID, models.ActionPendingApproval).Count(&out.PendingActions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Connection{}).
		Where("(user_id = ? OR peer_id = ?) AND status = ?", userID, userID, models.ConnectionAccepted).
		Count(&out.Connections).Error; err != nil {
		return nil, err
	}

	return &out, nil
}
