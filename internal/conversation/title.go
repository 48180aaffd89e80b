package conversation

import (
	"context"
	"strings"

	"github.com/egt-labs/egt-gpt/internal/ai"
)

const titlePrompt = "Summarize the conversation so far in 4 words or less."

const maxTitleWords = 4

// synthesizeTitle asks the provider for a short summary of the message list.
// It never fails the turn: when the aux call errors or returns nothing, the
// second-to-last message's content is reused instead and fallback is true.
func (s *Service) synthesizeTitle(ctx context.Context, messages []ai.Message) (title string, fallback bool) {
	title, err := s.titleCompletion(ctx, messages)
	if err == nil && title != "" {
		return title, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("title generation failed, using fallback")
	}
	return fallbackTitle(messages), true
}

// titleCompletion is the aux non-streaming call shared with the retitle
// worker. Unlike synthesizeTitle it reports failure to the caller.
func (s *Service) titleCompletion(ctx context.Context, messages []ai.Message) (string, error) {
	prompt := make([]ai.Message, 0, len(messages)+1)
	for _, m := range messages {
		if m.Role == "user" {
			prompt = append(prompt, m)
		}
	}
	prompt = append(prompt, ai.Message{Role: "user", Content: titlePrompt})

	params := s.params
	params.Model = s.models.Resolve("")
	params.Stream = false
	params.Temperature = 1
	params.MaxTokens = s.titleMaxTokens

	res, err := s.provider.Chat(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	return clipWords(strings.Trim(res.Content, "\" \n"), maxTitleWords), nil
}

func fallbackTitle(messages []ai.Message) string {
	// Prefer the second-to-last message, then walk back for any content.
	for i := len(messages) - 2; i >= 0; i-- {
		if t := clipWords(messages[i].Content, maxTitleWords); t != "" {
			return t
		}
	}
	if len(messages) > 0 {
		if t := clipWords(messages[len(messages)-1].Content, maxTitleWords); t != "" {
			return t
		}
	}
	return "New chat"
}

func clipWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
