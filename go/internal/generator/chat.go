package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Profile configures one OpenAI-compatible chat completion upstream.
type Profile struct {
	ID          string        `yaml:"id"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatBackend struct {
	profile Profile
	client  *BaseClient
}

// ChatGenerator routes requests to the profile the subject picked, falling back to the
// default profile when the pick is unknown.
type ChatGenerator struct {
	backends       map[string]*chatBackend
	defaultProfile string
}

// NewChatGenerator builds a generator over profiles. API keys are read from each
// profile's APIKeyEnv variable.
func NewChatGenerator(profiles []Profile, defaultProfile string) *ChatGenerator {
	g := &ChatGenerator{
		backends:       make(map[string]*chatBackend, len(profiles)),
		defaultProfile: defaultProfile,
	}
	for _, p := range profiles {
		client := NewBaseClient(strings.TrimRight(p.BaseURL, "/"))
		client.SetHeader("Content-Type", "application/json")
		if p.APIKeyEnv != "" {
			if key := os.Getenv(p.APIKeyEnv); key != "" {
				client.SetHeader("Authorization", "Bearer "+key)
			}
		}
		if p.Timeout > 0 {
			client.SetTimeout(p.Timeout)
		}
		g.backends[p.ID] = &chatBackend{profile: p, client: client}
		if g.defaultProfile == "" {
			g.defaultProfile = p.ID
		}
	}
	return g
}

// Profiles returns the configured profile ids.
func (g *ChatGenerator) Profiles() []string {
	ids := make([]string, 0, len(g.backends))
	for id := range g.backends {
		ids = append(ids, id)
	}
	return ids
}

func (g *ChatGenerator) Generate(ctx context.Context, instruction string, convo Conversation) (string, error) {
	backend, ok := g.backends[convo.ProfileID]
	if !ok {
		backend, ok = g.backends[g.defaultProfile]
	}
	if !ok {
		return "", ErrUnavailable
	}

	body, err := json.Marshal(chatRequest{
		Model:       backend.profile.Model,
		Messages:    buildMessages(instruction, convo),
		Temperature: backend.profile.Temperature,
		MaxTokens:   backend.profile.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	start := time.Now()
	raw, err := backend.client.Post(ctx, "/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat completion via %s: %w", backend.profile.ID, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion via %s: empty choices", backend.profile.ID)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion via %s: empty answer", backend.profile.ID)
	}

	log.Debug().
		Str("room_code", convo.RoomCode).
		Str("profile", backend.profile.ID).
		Dur("latency", time.Since(start)).
		Msg("generated answer")
	return text, nil
}

func buildMessages(instruction string, convo Conversation) []chatMessage {
	system := "You are standing in for a player in a party game. Answer the question briefly, " +
		"in the player's voice, so the other players cannot tell you apart from them."
	if convo.Nickname != "" {
		system += " The player's nickname is " + convo.Nickname + "."
	}
	if instruction != "" {
		system += "\n\nThe player's own instructions:\n" + instruction
	}

	msgs := []chatMessage{{Role: "system", Content: system}}
	for _, ex := range convo.History {
		msgs = append(msgs,
			chatMessage{Role: "user", Content: ex.Question},
			chatMessage{Role: "assistant", Content: ex.Answer},
		)
	}
	return append(msgs, chatMessage{Role: "user", Content: convo.Question})
}
