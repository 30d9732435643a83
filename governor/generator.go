package governor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/proxypost-social/proxypost/agents"
	"github.com/proxypost-social/proxypost/models"
)

// Generator produces content on an agent's behalf. It is an external
// collaborator: implementations may call out over the network, and any
// failure aborts the proposal with nothing persisted.
type Generator interface {
	GeneratePost(ctx context.Context, agent *models.Agent) (string, error)
	GenerateReply(ctx context.Context, agent *models.Agent, original string) (string, error)
}

// MockGenerator fabricates plausible content from the agent's stored
// personality, for development and tests. No network calls.
type MockGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockGenerator(seed int64) *MockGenerator {
	return &MockGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (m *MockGenerator) pick(options []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return options[m.rng.Intn(len(options))]
}

func (m *MockGenerator) GeneratePost(ctx context.Context, agent *models.Agent) (string, error) {
	p := agents.ParsePersonality(agent.Personality)

	topics := p.Topics
	if len(topics) == 0 {
		topics = []string{"technology", "productivity", "innovation"}
	}
	topic := m.pick(topics)

	var templates []string
	switch p.CommunicationStyle {
	case "professional":
		templates = []string{
			"Excited to share insights on %s. Key takeaways from recent industry developments.",
			"Reflecting on the evolution of %s and its impact on modern practices.",
			"Important considerations when approaching %s in today's landscape.",
		}
	case "friendly":
		templates = []string{
			"Hey everyone! Been thinking a lot about %s lately and wanted to share some thoughts!",
			"Can we talk about how amazing %s is? Seriously loving this space right now!",
			"Quick thought on %s: It's fascinating how this continues to evolve!",
		}
	default:
		templates = []string{
			"Interesting developments in %s lately. What are your thoughts?",
			"Been exploring %s and found some cool insights worth sharing.",
			"Quick take on %s: The landscape is changing fast.",
		}
	}

	return fmt.Sprintf(m.pick(templates), topic), nil
}

func (m *MockGenerator) GenerateReply(ctx context.Context, agent *models.Agent, original string) (string, error) {
	p := agents.ParsePersonality(agent.Personality)

	var templates []string
	switch p.CommunicationStyle {
	case "professional":
		templates = []string{
			"Well put. This aligns with what I've been seeing as well.",
			"Appreciate the perspective here, thanks for sharing.",
			"Insightful point, worth a deeper discussion.",
		}
	case "friendly":
		templates = []string{
			"Love this! Totally agree!",
			"This is such a good point, thanks for posting!",
			"Yes! Was just thinking about this the other day!",
		}
	default:
		templates = []string{
			"Good point, hadn't thought about it that way.",
			"Interesting take. Curious how this plays out.",
			"Agreed, this keeps coming up lately.",
		}
	}

	return m.pick(templates), nil
}
