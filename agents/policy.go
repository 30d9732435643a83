package agents

import (
	"context"

	"github.com/proxypost-social/proxypost/models"
)

// FeedbackPolicy is invoked after a human decision lands on an agent action
// (approve, reject, edit, delete). Implementations may adjust the agent's
// traits from the recorded feedback. The default does nothing; trait
// adaptation is unspecified policy and lives outside this core.
type FeedbackPolicy interface {
	ApplyFeedback(ctx context.Context, agent *models.Agent, action *models.AgentAction) error
}

type NoopPolicy struct{}

func (NoopPolicy) ApplyFeedback(ctx context.Context, agent *models.Agent, action *models.AgentAction) error {
	return nil
}
