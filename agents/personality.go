package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Questionnaire holds the onboarding answers an agent is seeded from.
type Questionnaire struct {
	UseCase            string   `json:"use_case"`
	CommunicationStyle string   `json:"communication_style"`
	Topics             []string `json:"topics_of_interest"`
	PostingFrequency   string   `json:"posting_frequency"`
	AutonomyPreference int      `json:"autonomy_preference"`
	AdditionalContext  string   `json:"additional_context,omitempty"`
}

// Personality is the serialized trait blob stored on the agent row.
type Personality struct {
	UseCase            string   `json:"use_case"`
	CommunicationStyle string   `json:"communication_style"`
	Topics             []string `json:"topics_of_interest"`
}

func ParsePersonality(raw string) Personality {
	var p Personality
	if raw != "" {
		// a malformed blob degrades to defaults rather than failing the call
		_ = json.Unmarshal([]byte(raw), &p)
	}
	if p.CommunicationStyle == "" {
		p.CommunicationStyle = "casual"
	}
	return p
}

type Preferences struct {
	PostingFrequency  string `json:"posting_frequency"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// BuildSystemPrompt assembles the standing instruction block handed to the
// content generator for every call on this agent's behalf.
func BuildSystemPrompt(q Questionnaire) string {
	topics := "general topics"
	if len(q.Topics) > 0 {
		topics = strings.Join(q.Topics, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are a social media agent with the following characteristics:

Use Case: %s
Communication Style: %s
Topics of Interest: %s
Posting Frequency: %s
Autonomy Level: %d/10

Your goal is to represent your user authentically on social media platforms. `,
		q.UseCase, q.CommunicationStyle, topics, q.PostingFrequency, q.AutonomyPreference)

	if q.UseCase == "productivity" {
		b.WriteString("Focus on professional content, networking, and sharing valuable insights related to the user's interests. ")
	} else {
		b.WriteString("Focus on engaging conversations, building connections, and sharing interesting content related to the user's interests. ")
	}

	switch q.CommunicationStyle {
	case "professional":
		b.WriteString("Maintain a professional tone in all interactions. Be polite, respectful, and articulate.")
	case "casual":
		b.WriteString("Use a relaxed, conversational tone. Be friendly and approachable.")
	default:
		b.WriteString("Be warm, enthusiastic, and personable in your interactions. Show genuine interest in conversations.")
	}

	if q.AdditionalContext != "" {
		fmt.Fprintf(&b, "\n\nAdditional Context: %s", q.AdditionalContext)
	}

	return b.String()
}
