package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-cast/internal/chat"
)

// Question is one survey question presented to the listener.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Survey captures listener preferences for a topic before a program is
// planned.
type Survey struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
}

// Analysis is the interpreted result of submitted responses.
type Analysis struct {
	ID        string   `json:"id"`
	SurveyID  string   `json:"survey_id"`
	Summary   string   `json:"summary"`
	Interests []string `json:"interests,omitempty"`
}

// ProgramPlan outlines the episode derived from an analysis.
type ProgramPlan struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// Generator drives the survey flow against a chat backend.
type Generator struct {
	completer chat.Completer
	log       *slog.Logger
}

func NewGenerator(completer chat.Completer, log *slog.Logger) *Generator {
	return &Generator{
		completer: completer,
		log:       log.With(slog.String("component", "survey")),
	}
}

const surveySystemPrompt = "You design short listener surveys for a two-host audio program. Respond with JSON only."

// Generate produces a survey for the topic. The id is caller-supplied: it
// is the key the client uses on submit, so the generator never mints one.
func (g *Generator) Generate(ctx context.Context, id, topic string) (*Survey, error) {
	prompt := fmt.Sprintf(`Create a survey of 3 to 5 questions that discovers what a listener wants from an audio program about %q.
Respond as a JSON object: {"questions": [{"id": 1, "text": "...", "options": ["...", "..."]}]}`, topic)

	raw, err := g.completer.Complete(ctx, chat.Request{
		System:     surveySystemPrompt,
		User:       prompt,
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate survey: %w", err)
	}

	var parsed struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse survey response: %w", err)
	}
	if len(parsed.Questions) == 0 {
		return nil, fmt.Errorf("survey response contained no questions")
	}

	for i := range parsed.Questions {
		parsed.Questions[i].ID = i + 1
	}
	return &Survey{
		ID:        id,
		Topic:     topic,
		Questions: parsed.Questions,
	}, nil
}

// Analyze interprets responses against the survey they answer.
func (g *Generator) Analyze(ctx context.Context, s *Survey, responses map[string]string) (*Analysis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Survey topic: %s\n", s.Topic)
	for _, q := range s.Questions {
		answer := responses[fmt.Sprintf("%d", q.ID)]
		fmt.Fprintf(&b, "Q%d: %s\nAnswer: %s\n", q.ID, q.Text, answer)
	}
	prompt := fmt.Sprintf(`Analyze these survey answers and summarize what the listener wants.
%s
Respond as a JSON object: {"summary": "...", "interests": ["...", "..."]}`, b.String())

	raw, err := g.completer.Complete(ctx, chat.Request{
		System:     surveySystemPrompt,
		User:       prompt,
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze responses: %w", err)
	}

	var parsed struct {
		Summary   string   `json:"summary"`
		Interests []string `json:"interests"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("analysis response had no summary")
	}
	return &Analysis{
		ID:        uuid.NewString(),
		SurveyID:  s.ID,
		Summary:   parsed.Summary,
		Interests: parsed.Interests,
	}, nil
}

// Plan derives a program outline from an analysis.
func (g *Generator) Plan(ctx context.Context, a *Analysis) (*ProgramPlan, error) {
	prompt := fmt.Sprintf(`Plan a two-host audio program for a listener with these preferences.
Summary: %s
Interests: %s
Respond as a JSON object: {"title": "...", "sections": ["...", "..."]}`,
		a.Summary, strings.Join(a.Interests, ", "))

	raw, err := g.completer.Complete(ctx, chat.Request{
		System:     surveySystemPrompt,
		User:       prompt,
		JSONOutput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate program plan: %w", err)
	}

	var parsed struct {
		Title    string   `json:"title"`
		Sections []string `json:"sections"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse plan response: %w", err)
	}
	if parsed.Title == "" && len(parsed.Sections) == 0 {
		return nil, fmt.Errorf("plan response was empty")
	}
	return &ProgramPlan{
		ID:       uuid.NewString(),
		Title:    parsed.Title,
		Sections: parsed.Sections,
	}, nil
}

// Describe renders the plan as context text for dialogue generation.
func (p *ProgramPlan) Describe() string {
	var b strings.Builder
	if p.Title != "" {
		fmt.Fprintf(&b, "Program: %s\n", p.Title)
	}
	for i, section := range p.Sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, section)
	}
	return strings.TrimRight(b.String(), "\n")
}

// extractJSONObject tolerates models that wrap their JSON in markdown
// fences or prose by slicing from the first '{' to the last '}'.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
