package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/chandler767/live-debate-arena/pkg/types"

	"github.com/sashabaranov/go-openai"
)

// Preset debaters. Paul argues the left (in favour) side by default and
// Charlotte the right.
var (
	Paul = types.AgentProfile{
		ID:          "proper-paul",
		DisplayName: "Proper Paul",
		VoiceID:     "Fenrir",
		PersonaText: "You are Proper Paul, a retired etiquette instructor with a booming voice, a dry wit and absolute confidence in tradition",
		Color:       "#4285f4",
		Style:       types.Adversarial,
	}
	Charlotte = types.AgentProfile{
		ID:          "chic-charlotte",
		DisplayName: "Chic Charlotte",
		VoiceID:     "Aoede",
		PersonaText: "You are Chic Charlotte, an impeccably dressed trend forecaster who finds most opinions charmingly outdated",
		Color:       "#f538a0",
		Style:       types.Adversarial,
	}
	Shane = types.AgentProfile{
		ID:          "chef-shane",
		DisplayName: "Chef Shane",
		VoiceID:     "Charon",
		PersonaText: "You are Chef Shane, a fiery head chef who judges every idea as if it were a dish sent back by a customer",
		Color:       "#fa7b17",
		Style:       types.Humorous,
	}
	Penny = types.AgentProfile{
		ID:          "passport-penny",
		DisplayName: "Passport Penny",
		VoiceID:     "Leda",
		PersonaText: "You are Passport Penny, a relentlessly upbeat travel blogger who backs every claim with an anecdote from abroad",
		Color:       "#34a853",
		Style:       types.Pragmatic,
	}
)

// Presets returns every built-in debater.
func Presets() []types.AgentProfile {
	return []types.AgentProfile{Paul, Charlotte, Shane, Penny}
}

// Lookup finds a preset by id or display name, case-insensitively.
func Lookup(name string) (types.AgentProfile, bool) {
	name = strings.TrimSpace(name)
	for _, p := range Presets() {
		if strings.EqualFold(p.ID, name) || strings.EqualFold(p.DisplayName, name) {
			return p, true
		}
	}
	return types.AgentProfile{}, false
}

// RandomDebateStyle returns a random debate style
func RandomDebateStyle() types.DebateStyle {
	styles := types.AllDebateStyles()
	return styles[rand.Intn(len(styles))]
}

// SystemInstruction builds the standing instruction for self when debating
// opponent. opponentTrait colours how self sees the opponent, e.g.
// "loud and wrong".
func SystemInstruction(self, opponent types.AgentProfile, opponentTrait string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. %s.\n", self.DisplayName, strings.TrimSuffix(self.PersonaText, "."))
	fmt.Fprintf(&sb, "You are participating in a debate. You are currently DEBATING against %s.\n", opponent.DisplayName)
	if opponentTrait != "" {
		fmt.Fprintf(&sb, "Your opponent is %s.\n", opponentTrait)
	}
	if self.Style != "" {
		fmt.Fprintf(&sb, "Your debate style is %s.\n", self.Style)
	}
	sb.WriteString("Keep your responses short (max 2 sentences), punchy, and witty.\n")
	sb.WriteString("Listen to your opponent's argument and rebut it directly.")
	return sb.String()
}

// TopicGenerator asks an OpenAI chat model for debate topics.
type TopicGenerator struct {
	client *openai.Client
	model  string
}

// NewTopicGenerator creates a generator using the public OpenAI API.
func NewTopicGenerator(apiKey, model string) *TopicGenerator {
	return NewTopicGeneratorWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewTopicGeneratorWithConfig creates a generator from a client config,
// e.g. one pointing at a compatible endpoint.
func NewTopicGeneratorWithConfig(cfg openai.ClientConfig, model string) *TopicGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &TopicGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate returns a new debate topic.
func (g *TopicGenerator) Generate(ctx context.Context) (string, error) {
	// Prepare the prompt
	prompt := `Generate a fun, light-hearted and controversial debate topic. The topic should be:
1. Engaging and open-ended
2. Something two people could argue about passionately in a few sentences
3. Not overly political or divisive
4. Short enough to read aloud in one breath

Respond with only the debate topic as a single sentence.`

	// Create the OpenAI request
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt,
			},
		},
		MaxTokens:   60,
		Temperature: 1.0,
	}

	// Call OpenAI
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	topic := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if topic == "" {
		return "", fmt.Errorf("OpenAI returned an empty topic")
	}
	return topic, nil
}
