package quota

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
)

func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Agent{}))
	return db
}

func testAgent(t *testing.T, db *gorm.DB) *models.Agent {
	u := models.User{Handle: "alice", DisplayName: "Alice"}
	require.NoError(t, db.Create(&u).Error)
	a := models.Agent{UserID: u.ID, AutonomyLevel: 5, Active: true}
	require.NoError(t, db.Create(&a).Error)
	return &a
}

func TestGateConsumesUpToLimit(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	agent := testAgent(t, db)

	g := &Gate{MaxActionsPerDay: 3}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, remaining, err := g.TryConsume(db, agent, now)
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(2-i, remaining)
	}

	ok, remaining, err := g.TryConsume(db, agent, now)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(0, remaining)

	// disallow must not consume
	var fresh models.Agent
	assert.NoError(db.First(&fresh, agent.ID).Error)
	assert.Equal(3, fresh.ActionsToday)
}

func TestGateRollsOverAtUTCMidnight(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	agent := testAgent(t, db)

	g := &Gate{MaxActionsPerDay: 2}
	day1 := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, _, err := g.TryConsume(db, agent, day1)
		assert.NoError(err)
		assert.True(ok)
	}
	ok, _, err := g.TryConsume(db, agent, day1)
	assert.NoError(err)
	assert.False(ok)

	// two minutes later it is a new UTC day and the budget is fresh
	day2 := time.Date(2024, 5, 2, 0, 1, 0, 0, time.UTC)
	ok, remaining, err := g.TryConsume(db, agent, day2)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(1, remaining)

	var fresh models.Agent
	assert.NoError(db.First(&fresh, agent.ID).Error)
	assert.Equal(1, fresh.ActionsToday)
	assert.Equal("2024-05-02", fresh.LastActionDay)
}

func TestGateFreshAgentHasFullBudget(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	agent := testAgent(t, db)

	g := &Gate{}
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(DefaultMaxActionsPerDay, g.Remaining(agent, now))

	ok, remaining, err := g.TryConsume(db, agent, now)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(DefaultMaxActionsPerDay-1, remaining)
	assert.Equal(DefaultMaxActionsPerDay-1, g.Remaining(agent, now))
}

func TestGateConcurrentConsumersNeverOversell(t *testing.T) {
	assert := assert.New(t)
	db := testDB(t)
	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	agent := testAgent(t, db)

	g := &Gate{MaxActionsPerDay: 10}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := *agent
			ok, _, err := g.TryConsume(db, &local, now)
			assert.NoError(err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(int64(10), allowed.Load())

	var fresh models.Agent
	assert.NoError(db.First(&fresh, agent.ID).Error)
	assert.Equal(10, fresh.ActionsToday)
}
