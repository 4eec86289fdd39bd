package survey

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-cast/internal/chat"
)

type scriptedCompleter struct {
	responses []string
	err       error
	requests  []chat.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req chat.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func newTestGenerator(c chat.Completer) *Generator {
	return NewGenerator(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateSurvey(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"questions":[{"text":"How deep should we go?","options":["overview","detail"]},{"text":"Preferred tone?"}]}`,
	}}
	g := newTestGenerator(completer)

	s, err := g.Generate(context.Background(), "sv-42", "quantum computing")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if s.ID != "sv-42" {
		t.Fatalf("expected the caller-supplied id, got %q", s.ID)
	}
	if s.Topic != "quantum computing" {
		t.Fatalf("unexpected topic: %q", s.Topic)
	}
	if len(s.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %v", s.Questions)
	}
	if s.Questions[0].ID != 1 || s.Questions[1].ID != 2 {
		t.Fatalf("expected renumbered question ids, got %v", s.Questions)
	}
	if !completer.requests[0].JSONOutput {
		t.Fatal("expected JSON output request")
	}
}

func TestGenerateSurveyToleratesFencedJSON(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"Here you go:\n```json\n{\"questions\":[{\"text\":\"Q1\"}]}\n```",
	}}
	g := newTestGenerator(completer)

	s, err := g.Generate(context.Background(), "sv-1", "topic")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(s.Questions) != 1 {
		t.Fatalf("expected 1 question, got %v", s.Questions)
	}
}

func TestGenerateSurveyEmptyQuestionsFails(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`{"questions":[]}`}}
	g := newTestGenerator(completer)
	if _, err := g.Generate(context.Background(), "sv-1", "topic"); err == nil {
		t.Fatal("expected error for empty question list")
	}
}

func TestAnalyzeIncludesAnswersInPrompt(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"summary":"wants practical detail","interests":["hardware","error correction"]}`,
	}}
	g := newTestGenerator(completer)

	s := &Survey{
		ID:    "s1",
		Topic: "quantum computing",
		Questions: []Question{
			{ID: 1, Text: "How deep?"},
		},
	}
	a, err := g.Analyze(context.Background(), s, map[string]string{"1": "very deep"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.SurveyID != "s1" || a.Summary != "wants practical detail" {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if len(a.Interests) != 2 {
		t.Fatalf("unexpected interests: %v", a.Interests)
	}
	if !strings.Contains(completer.requests[0].User, "very deep") {
		t.Fatalf("answer missing from prompt: %q", completer.requests[0].User)
	}
}

func TestPlanDescribe(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"title":"Deep Dive","sections":["Intro","Hardware","Wrap-up"]}`,
	}}
	g := newTestGenerator(completer)

	plan, err := g.Plan(context.Background(), &Analysis{ID: "a1", Summary: "detail"})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	desc := plan.Describe()
	if !strings.Contains(desc, "Program: Deep Dive") || !strings.Contains(desc, "2. Hardware") {
		t.Fatalf("unexpected description: %q", desc)
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("backend down")}
	g := newTestGenerator(completer)
	if _, err := g.Generate(context.Background(), "sv-1", "topic"); err == nil {
		t.Fatal("expected provider error")
	}
}
