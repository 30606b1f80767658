// Package convo adapts an LLM provider into the conversation operations the
// call orchestrator needs: generating spoken replies, post-call analysis, and
// the utterance-level classifications (end phrases, irrelevant replies) that
// drive the loop breakers.
package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/ringward/ringward/internal/callerr"
	"github.com/ringward/ringward/pkg/provider/llm"
	"github.com/ringward/ringward/pkg/types"
)

const defaultSystemPrompt = `You are a polite Hindi-speaking telephone agent making an outbound call on behalf of a business. Reply in one or two short spoken sentences in simple Hindi (Devanagari or Roman script, matching the caller). Never mention that you are an AI. If you do not know something, apologise briefly.`

const analysisPrompt = `Review the conversation transcript and respond with exactly three lines:
INTEREST: <0-100, how interested the callee sounded>
RESULT: <one of: interested, not_interested, callback, no_answer, unclear>
SUMMARY: <one sentence summary of the call>`

// End-of-call phrases matched fuzzily against each word the callee says.
var endPhrases = []string{"bye", "nahi", "no", "bas", "cut", "band", "rakhiye", "busy"}

// Apology fragments that mark a model reply as irrelevant to the callee's
// utterance. Four of these in a row trip the orchestrator's breaker.
var irrelevantMarkers = []string{"maaf", "pata nahi", "samajh nahi"}

// Analysis is the post-call assessment extracted from the model.
type Analysis struct {
	// Interest is the callee's interest level in [0, 100].
	Interest int
	// Outcome is a short machine-readable result label.
	Outcome string
	// Summary is a one-sentence human-readable description.
	Summary string
}

// Option configures a Service.
type Option func(*Service)

// WithSystemPrompt replaces the default agent persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature for replies.
func WithTemperature(t float64) Option {
	return func(s *Service) {
		s.temperature = t
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// Service generates replies and analyses over an LLM provider.
// Safe for concurrent use; it holds no mutable state.
type Service struct {
	provider     llm.Provider
	log          *slog.Logger
	systemPrompt string
	temperature  float64
}

// New creates a conversation service backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Service {
	s := &Service{
		provider:     provider,
		log:          slog.Default(),
		systemPrompt: defaultSystemPrompt,
		temperature:  0.7,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reply generates the agent's next spoken line for the callee's utterance.
// history is the prior conversation in order; utterance is appended as the
// final user turn.
func (s *Service) Reply(ctx context.Context, utterance string, history []types.ConversationTurn) (string, error) {
	messages := historyToMessages(history)
	messages = append(messages, types.Message{Role: "user", Content: utterance})

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		Temperature:  s.temperature,
		MaxTokens:    150,
		SystemPrompt: s.systemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", callerr.ErrReplyGeneration, err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", callerr.ErrReplyGeneration)
	}
	return reply, nil
}

// Analyze asks the model to assess the finished conversation. An empty
// history returns a neutral analysis without calling the model. Parse
// failures degrade to defaults rather than erroring; only a transport
// failure returns a non-nil error.
func (s *Service) Analyze(ctx context.Context, history []types.ConversationTurn) (Analysis, error) {
	if len(history) == 0 {
		return Analysis{Interest: 0, Outcome: "no_answer", Summary: "no conversation took place"}, nil
	}

	messages := historyToMessages(history)
	messages = append(messages, types.Message{Role: "user", Content: analysisPrompt})

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		Temperature:  0,
		MaxTokens:    200,
		SystemPrompt: "You are an assistant that evaluates sales call transcripts.",
	})
	if err != nil {
		return Analysis{Outcome: "unknown"}, fmt.Errorf("analyze call: %w", err)
	}
	return parseAnalysis(resp.Content), nil
}

// IsIrrelevant reports whether a generated reply is an apology for not
// understanding, i.e. the model could not engage with what the callee said.
func (s *Service) IsIrrelevant(reply string) bool {
	lower := strings.ToLower(reply)
	for _, marker := range irrelevantMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// MatchesEndPhrase reports whether the callee's utterance contains a phrase
// asking to end the call. Each word is compared against the end-phrase list
// with a Levenshtein threshold of 1 to tolerate STT noise; words of three or
// fewer characters must match exactly so that "ab" cannot match "bas".
func (s *Service) MatchesEndPhrase(utterance string) bool {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(utterance)))
	for _, word := range words {
		word = strings.Trim(word, ".,!?।")
		if word == "" {
			continue
		}
		for _, phrase := range endPhrases {
			if word == phrase {
				return true
			}
			if len(word) <= 3 || len(phrase) <= 3 {
				continue
			}
			if matchr.Levenshtein(word, phrase) <= 1 {
				return true
			}
		}
	}
	return false
}

func historyToMessages(history []types.ConversationTurn) []types.Message {
	messages := make([]types.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, types.Message{Role: turn.Role, Content: turn.Text})
	}
	return messages
}

// parseAnalysis extracts the INTEREST/RESULT/SUMMARY lines from the model's
// response. Missing or malformed fields fall back to zero interest and an
// "unknown" outcome.
func parseAnalysis(content string) Analysis {
	a := Analysis{Outcome: "unknown"}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "INTEREST:"):
			val := strings.TrimSpace(line[len("INTEREST:"):])
			if n, err := strconv.Atoi(val); err == nil {
				if n < 0 {
					n = 0
				} else if n > 100 {
					n = 100
				}
				a.Interest = n
			}
		case strings.HasPrefix(upper, "RESULT:"):
			if val := strings.ToLower(strings.TrimSpace(line[len("RESULT:"):])); val != "" {
				a.Outcome = val
			}
		case strings.HasPrefix(upper, "SUMMARY:"):
			a.Summary = strings.TrimSpace(line[len("SUMMARY:"):])
		}
	}
	return a
}
