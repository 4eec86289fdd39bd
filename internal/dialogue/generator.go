package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-cast/internal/chat"
	"github.com/loqalabs/loqa-cast/internal/config"
)

// Generator runs the round-based dialogue loop against a chat backend.
type Generator struct {
	completer chat.Completer
	cfg       config.DialogueConfig
	log       *slog.Logger
	clock     func() time.Time
}

func NewGenerator(completer chat.Completer, cfg config.DialogueConfig, log *slog.Logger) *Generator {
	return &Generator{
		completer: completer,
		cfg:       cfg,
		log:       log.With(slog.String("component", "dialogue")),
		clock:     time.Now,
	}
}

// Generate produces the full dialogue for a topic. Rounds accumulate until
// the estimated duration reaches the target, the round ceiling is hit, or
// the optional wall-clock deadline passes. The result is token-budget
// truncated and renumbered; an empty result is an error.
func (g *Generator) Generate(ctx context.Context, topic, contextText string) ([]Turn, error) {
	var deadline time.Time
	if g.cfg.DeadlineSeconds > 0 {
		deadline = g.clock().Add(time.Duration(g.cfg.DeadlineSeconds) * time.Second)
	}

	var turns []Turn
	for round := 0; round < g.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if g.estimatedSeconds(turns) >= g.cfg.TargetDurationSeconds {
			break
		}
		if !deadline.IsZero() && !g.clock().Before(deadline) {
			g.log.Warn("dialogue deadline reached",
				slog.Int("rounds", round),
				slog.Int("turns", len(turns)))
			break
		}

		remaining := g.cfg.TargetDurationSeconds - g.estimatedSeconds(turns)
		raw, err := g.completer.Complete(ctx, chat.Request{
			System:      systemPrompt,
			User:        roundPrompt(topic, contextText, turns, remaining),
			Temperature: 0.8,
			MaxTokens:   g.cfg.TokenBudget,
			JSONOutput:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("dialogue round %d: %w", round+1, err)
		}

		// A malformed reply wastes this round but does not end the run;
		// the round ceiling bounds the loop either way.
		roundTurns := ParseRound(raw)
		if len(roundTurns) == 0 {
			g.log.Warn("round produced no parsable turns, skipping",
				slog.Int("round", round+1))
			continue
		}
		turns = append(turns, roundTurns...)
		Renumber(turns)

		// Only the opening round carries the full context block; later
		// rounds see the running conversation instead.
		contextText = ""
	}

	turns = truncateToBudget(turns, g.cfg.TokenBudget)
	Renumber(turns)

	if len(turns) == 0 {
		return nil, errors.New("dialogue generation produced no turns")
	}
	return turns, nil
}

func (g *Generator) estimatedSeconds(turns []Turn) int {
	return len(turns) * g.cfg.AvgSecondsPerTurn
}

// estimateTokens approximates tokens from the word count (about 4 tokens
// per 3 words for conversational English).
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}

// truncateToBudget drops tail turns until the estimated total fits the
// budget, always keeping at least the first turn.
func truncateToBudget(turns []Turn, budget int) []Turn {
	if len(turns) == 0 || budget <= 0 {
		return turns
	}
	total := 0
	for _, t := range turns {
		total += estimateTokens(t.Text)
	}
	for total > budget && len(turns) > 1 {
		last := turns[len(turns)-1]
		total -= estimateTokens(last.Text)
		turns = turns[:len(turns)-1]
	}
	return turns
}
