package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/proxypost-social/proxypost/agents"
	"github.com/proxypost-social/proxypost/models"
	"github.com/proxypost-social/proxypost/util"
)

// RemoteGenerator talks to an OpenAI-compatible chat completions endpoint.
// Requests are rate limited client-side so a burst of proposals cannot
// hammer the upstream.
type RemoteGenerator struct {
	host    string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter

	log *slog.Logger
}

func NewRemoteGenerator(host, apiKey, model string, requestsPerSecond int) *RemoteGenerator {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &RemoteGenerator{
		host:    strings.TrimSuffix(host, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  util.RobustHTTPClient(),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		log:     slog.Default().With("system", "generator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *RemoteGenerator) chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		g.log.Warn("generator request failed", "status", resp.StatusCode, "body", string(msg))
		return "", fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding generator response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}

	return stripWrappingQuotes(strings.TrimSpace(out.Choices[0].Message.Content)), nil
}

// models sometimes wrap their whole reply in quotes
func stripWrappingQuotes(s string) string {
	for _, q := range []string{`"`, `'`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (g *RemoteGenerator) GeneratePost(ctx context.Context, agent *models.Agent) (string, error) {
	p := agents.ParsePersonality(agent.Personality)

	topics := "general topics"
	if len(p.Topics) > 0 {
		topics = strings.Join(p.Topics, ", ")
	}

	user := fmt.Sprintf(`Generate a social media post. Keep it under 200 characters.

Communication style: %s
Topics you care about: %s

Guidelines:
- Be authentic and natural
- Match the communication style
- Make it engaging and conversational
- Each post should feel unique and spontaneous
`, p.CommunicationStyle, topics)

	return g.chat(ctx, agent.SystemPrompt, user, 1.0, 200)
}

func (g *RemoteGenerator) GenerateReply(ctx context.Context, agent *models.Agent, original string) (string, error) {
	p := agents.ParsePersonality(agent.Personality)

	user := fmt.Sprintf(`Generate a short, natural comment response to this post:

%q

Communication style: %s

Guidelines:
- Keep it very brief (under 100 characters)
- Be authentic and conversational
- Match the communication style
`, original, p.CommunicationStyle)

	return g.chat(ctx, agent.SystemPrompt, user, 0.7, 100)
}
