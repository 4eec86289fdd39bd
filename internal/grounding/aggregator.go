package grounding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-cast/internal/retrieval"
	"github.com/loqalabs/loqa-cast/internal/search"
)

// Ranker is the retrieval surface the aggregator needs.
type Ranker interface {
	Query(ctx context.Context, query string) ([]retrieval.Match, error)
}

// Input carries everything the aggregator may fold into dialogue context.
// PlanText and DocumentText come from session state; chunk ranking and web
// search are fetched here.
type Input struct {
	Topic        string
	UseContext   bool
	PlanText     string
	DocumentText string
}

// Aggregator assembles the grounding context for a dialogue request.
type Aggregator struct {
	ranker   Ranker
	searcher search.Searcher
	log      *slog.Logger
}

func New(ranker Ranker, searcher search.Searcher, log *slog.Logger) *Aggregator {
	return &Aggregator{
		ranker:   ranker,
		searcher: searcher,
		log:      log.With(slog.String("component", "grounding")),
	}
}

// Gather returns the labeled context text for the topic. When UseContext is
// false it returns empty immediately, before any provider call. Topic
// retrieval is the primary source and its failure aborts; web search
// degrades to an omitted section. Sections keep a fixed order regardless of
// which goroutine finishes first.
func (a *Aggregator) Gather(ctx context.Context, in Input) (string, error) {
	if !in.UseContext {
		return "", nil
	}

	var matches []retrieval.Match
	var searchDigest string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = a.ranker.Query(gctx, in.Topic)
		if err != nil {
			return fmt.Errorf("topic retrieval: %w", err)
		}
		return nil
	})
	if a.searcher != nil {
		g.Go(func() error {
			digest, err := a.searcher.Search(gctx, in.Topic)
			if err != nil {
				a.log.Warn("web search degraded",
					slog.String("topic", in.Topic),
					slog.String("error", err.Error()))
				return nil
			}
			searchDigest = digest
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sections []string
	if in.PlanText != "" {
		sections = append(sections, "Program plan:\n"+in.PlanText)
	}
	if in.DocumentText != "" {
		sections = append(sections, "Document content:\n"+in.DocumentText)
	}
	if len(matches) > 0 {
		var b strings.Builder
		b.WriteString("Relevant background:")
		for _, m := range matches {
			b.WriteString("\n- ")
			b.WriteString(m.Text)
		}
		sections = append(sections, b.String())
	}
	if searchDigest != "" {
		sections = append(sections, "Web search findings:\n"+searchDigest)
	}

	return strings.Join(sections, "\n\n"), nil
}
