package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
	"github.com/proxypost-social/proxypost/quota"
)

func testService(t *testing.T) (*gorm.DB, *Service) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Post{}, &models.AgentAction{}, &models.Connection{}))
	return db, NewService(db, &quota.Gate{MaxActionsPerDay: 10})
}

func testUser(t *testing.T, db *gorm.DB, handle string) *models.User {
	u := models.User{Handle: handle}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func sampleQuestionnaire() Questionnaire {
	return Questionnaire{
		UseCase:            "productivity",
		CommunicationStyle: "professional",
		Topics:             []string{"golang", "databases"},
		PostingFrequency:   "daily",
		AutonomyPreference: 6,
	}
}

func TestCreateAgentFromQuestionnaire(t *testing.T) {
	assert := assert.New(t)
	db, s := testService(t)
	u := testUser(t, db, "alice")

	agent, err := s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	require.NoError(t, err)

	assert.Equal("My Agent", agent.Name)
	assert.Equal(6, agent.AutonomyLevel)
	assert.True(agent.Active)
	assert.Contains(agent.SystemPrompt, "golang, databases")
	assert.Contains(agent.SystemPrompt, "Autonomy Level: 6/10")
	assert.Contains(agent.SystemPrompt, "Maintain a professional tone")
	assert.Contains(agent.Personality, `"communication_style":"professional"`)
}

func TestCreateSecondAgentFails(t *testing.T) {
	db, s := testService(t)
	u := testUser(t, db, "alice")

	_, err := s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	require.NoError(t, err)

	_, err = s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	assert.ErrorIs(t, err, models.ErrAgentExists)
}

func TestCreateValidatesAutonomy(t *testing.T) {
	db, s := testService(t)
	u := testUser(t, db, "alice")

	q := sampleQuestionnaire()
	q.AutonomyPreference = 0
	_, err := s.Create(context.TODO(), u.ID, q)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	q.AutonomyPreference = 11
	_, err = s.Create(context.TODO(), u.ID, q)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestGetForUserMissing(t *testing.T) {
	_, s := testService(t)

	_, err := s.GetForUser(context.TODO(), 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdatePartial(t *testing.T) {
	assert := assert.New(t)
	db, s := testService(t)
	u := testUser(t, db, "alice")

	_, err := s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	require.NoError(t, err)

	name := "Scout"
	inactive := false
	agent, err := s.Update(context.TODO(), u.ID, Update{Name: &name, Active: &inactive})
	require.NoError(t, err)

	var fresh models.Agent
	require.NoError(t, db.First(&fresh, agent.ID).Error)
	assert.Equal("Scout", fresh.Name)
	assert.False(fresh.Active)
	// untouched fields stay put
	assert.Equal(6, fresh.AutonomyLevel)

	bad := 42
	_, err = s.Update(context.TODO(), u.ID, Update{AutonomyLevel: &bad})
	assert.ErrorIs(err, models.ErrInvalidState)
}

func TestDashboardCountsToday(t *testing.T) {
	assert := assert.New(t)
	db, s := testService(t)
	u := testUser(t, db, "alice")

	agent, err := s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	require.NoError(t, err)

	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(agent).Updates(map[string]any{
		"actions_today":   4,
		"last_action_day": quota.Day(now),
	}).Error)

	dash, err := s.GetDashboard(context.TODO(), u.ID, now)
	require.NoError(t, err)
	assert.Equal(4, dash.ActionsToday)
	assert.Equal(6, dash.ActionsRemaining)
}

func TestDashboardStaleDayReadsAsZero(t *testing.T) {
	assert := assert.New(t)
	db, s := testService(t)
	u := testUser(t, db, "alice")

	agent, err := s.Create(context.TODO(), u.ID, sampleQuestionnaire())
	require.NoError(t, err)

	require.NoError(t, db.Model(agent).Updates(map[string]any{
		"actions_today":   9,
		"last_action_day": "2024-05-01",
	}).Error)

	// next day: the counter has not been reset yet, but the dashboard must
	// report a fresh budget
	now := time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC)
	dash, err := s.GetDashboard(context.TODO(), u.ID, now)
	require.NoError(t, err)
	assert.Zero(dash.ActionsToday)
	assert.Equal(10, dash.ActionsRemaining)
}

func TestParsePersonalityDegrades(t *testing.T) {
	assert := assert.New(t)

	p := ParsePersonality("{not json")
	assert.Equal("casual", p.CommunicationStyle)

	p = ParsePersonality("")
	assert.Equal("casual", p.CommunicationStyle)

	p = ParsePersonality(`{"communication_style":"friendly","topics_of_interest":["art"]}`)
	assert.Equal("friendly", p.CommunicationStyle)
	assert.Equal([]string{"art"}, p.Topics)
}

func TestBuildSystemPromptBranches(t *testing.T) {
	assert := assert.New(t)

	q := sampleQuestionnaire()
	q.AdditionalContext = "never discuss politics"
	prompt := BuildSystemPrompt(q)
	assert.Contains(prompt, "Focus on professional content")
	assert.Contains(prompt, "Additional Context: never discuss politics")

	q.UseCase = "social"
	q.CommunicationStyle = "casual"
	prompt = BuildSystemPrompt(q)
	assert.Contains(prompt, "Focus on engaging conversations")
	assert.Contains(prompt, "relaxed, conversational tone")

	q.Topics = nil
	prompt = BuildSystemPrompt(q)
	assert.Contains(prompt, "general topics")
}
