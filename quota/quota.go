// Package quota enforces the per-agent daily action budget.
package quota

import (
	"time"

	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
)

const DefaultMaxActionsPerDay = 10

// Gate is a fixed-window (one UTC calendar day) counter over the agent row.
// The window resets lazily at consume time; there is no background job.
type Gate struct {
	MaxActionsPerDay int
}

func (g *Gate) limit() int {
	if g.MaxActionsPerDay > 0 {
		return g.MaxActionsPerDay
	}
	return DefaultMaxActionsPerDay
}

// Day formats t as the UTC calendar date used for quota windows.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// TryConsume consumes one action from the agent's budget for the day
// containing now, or reports that the budget is exhausted. Both paths are
// single guarded UPDATE statements, so two concurrent calls can never both
// win the last slot: the check and the increment commit as one unit at the
// storage layer. Nothing is written on disallow. The agent struct is
// refreshed from the row on success.
func (g *Gate) TryConsume(tx *gorm.DB, agent *models.Agent, now time.Time) (allowed bool, remaining int, err error) {
	today := Day(now)

	// first action of a new day resets the counter
	res := tx.Model(&models.Agent{}).
		Where("id = ? AND last_action_day <> ?", agent.ID, today).
		Updates(map[string]any{"actions_today": 1, "last_action_day": today})
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		// same day: guarded increment
		res = tx.Model(&models.Agent{}).
			Where("id = ? AND last_action_day = ? AND actions_today < ?", agent.ID, today, g.limit()).
			Update("actions_today", gorm.Expr("actions_today + 1"))
		if res.Error != nil {
			return false, 0, res.Error
		}
		if res.RowsAffected == 0 {
			return false, 0, nil
		}
	}

	if err := tx.First(agent, agent.ID).Error; err != nil {
		return false, 0, err
	}
	return true, g.limit() - agent.ActionsToday, nil
}

// Remaining reports the budget left for the day containing now, without
// consuming anything.
func (g *Gate) Remaining(agent *models.Agent, now time.Time) int {
	if agent.LastActionDay != Day(now) {
		return g.limit()
	}
	if agent.ActionsToday >= g.limit() {
		return 0
	}
	return g.limit() - agent.ActionsToday
}
