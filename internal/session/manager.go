package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-cast/internal/audio"
	"github.com/loqalabs/loqa-cast/internal/dialogue"
	"github.com/loqalabs/loqa-cast/internal/document"
	"github.com/loqalabs/loqa-cast/internal/grounding"
	"github.com/loqalabs/loqa-cast/internal/protocol"
	"github.com/loqalabs/loqa-cast/internal/retrieval"
	"github.com/loqalabs/loqa-cast/internal/search"
	"github.com/loqalabs/loqa-cast/internal/survey"
)

// Indexer is the retrieval surface the manager needs.
type Indexer interface {
	IndexDocument(ctx context.Context, docID, text string) (int, error)
	HasDocument(docID string) bool
	Query(ctx context.Context, query string) ([]retrieval.Match, error)
}

// TimelineSink receives lifecycle events for the observability plane. It
// must not block; publishing failures are the sink's own problem.
type TimelineSink func(evt protocol.TimelineEvent)

// Deps bundles the collaborators a Manager dispatches into.
type Deps struct {
	Indexer    Indexer
	Aggregator *grounding.Aggregator
	Searcher   search.Searcher
	Documents  *document.Processor
	Files      *document.FileStore
	Surveys    *survey.Generator
	Dialogue   *dialogue.Generator
	Pipeline   *audio.Pipeline
	Timeline   TimelineSink
	Logger     *slog.Logger
}

// Manager dispatches request envelopes against per-connection sessions.
// Each connection runs one request at a time; the gateway enforces that by
// not reading the next envelope until Dispatch returns.
type Manager struct {
	deps  Deps
	log   *slog.Logger
	clock func() time.Time
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:  deps,
		log:   deps.Logger.With(slog.String("component", "session")),
		clock: time.Now,
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// NewSession creates fresh per-connection state.
func (m *Manager) NewSession() *Session {
	return NewSession()
}

// Dispatch handles one envelope, emitting the full ordered event sequence
// for it. Handler failures become a single error event; Dispatch itself only
// returns an error when emitting fails, which means the connection is gone.
func (m *Manager) Dispatch(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	m.record(sess, env.Type, protocol.TimelineRequest, env.Topic)

	err := m.handle(ctx, sess, env, emit)
	if err == nil {
		m.record(sess, env.Type, protocol.TimelineComplete, "")
		return nil
	}

	m.log.Warn("request failed",
		slog.String("session_id", sess.ID),
		slog.String("type", env.Type),
		slog.String("kind", string(KindOf(err))),
		slogError(err))
	m.record(sess, env.Type, protocol.TimelineError, err.Error())

	if emitErr := emit(protocol.ErrorEvent{Error: err.Error()}); emitErr != nil {
		return fmt.Errorf("emit error event: %w", emitErr)
	}
	return nil
}

func (m *Manager) handle(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	switch env.Type {
	case protocol.TypeDialogue:
		return m.handleDialogue(ctx, sess, env, emit)
	case protocol.TypeFileProcess:
		return m.handleFileProcess(ctx, sess, env, emit)
	case protocol.TypeRAGQuery:
		return m.handleRAGQuery(ctx, sess, env, emit)
	case protocol.TypeSearch:
		return m.handleSearch(ctx, env, emit)
	case protocol.TypeFileList:
		return m.handleFileList(emit)
	case protocol.TypeSurveyGenerate:
		return m.handleSurveyGenerate(ctx, sess, env, emit)
	case protocol.TypeSurveySubmit:
		return m.handleSurveySubmit(ctx, sess, env, emit)
	case protocol.TypeProgramPlan:
		return m.handleProgramPlan(ctx, sess, env, emit)
	default:
		return validationf("unknown request type %q", env.Type)
	}
}

func (m *Manager) handleDialogue(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	if env.Topic == "" {
		return validationf("dialogue request requires a topic")
	}
	useContext := true
	if env.UseContext != nil {
		useContext = *env.UseContext
	}

	// Plan and document grounding are scoped to the ids on this request;
	// an absent or unresolvable id simply omits that section.
	var planText, documentText string
	if env.SurveyID != "" {
		planText = sess.planText(env.SurveyID)
	}
	if env.FileID != "" {
		documentText, _ = sess.document(env.FileID)
	}

	contextText, err := m.deps.Aggregator.Gather(ctx, grounding.Input{
		Topic:        env.Topic,
		UseContext:   useContext,
		PlanText:     planText,
		DocumentText: documentText,
	})
	if err != nil {
		return providerErr("context aggregation failed", err)
	}

	turns, err := m.deps.Dialogue.Generate(ctx, env.Topic, contextText)
	if err != nil {
		return providerErr("dialogue generation failed", err)
	}

	// Section events also land on the timeline as they go out.
	recordingEmit := func(event any) error {
		if section, ok := event.(protocol.SectionReady); ok {
			m.record(sess, env.Type, protocol.TimelineSection, fmt.Sprintf("turn %d", section.ID))
		}
		return emit(event)
	}
	if err := m.deps.Pipeline.Deliver(ctx, turns, recordingEmit); err != nil {
		return providerErr("audio delivery failed", err)
	}
	return nil
}

func (m *Manager) handleFileProcess(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	name := env.FilePath
	if name == "" {
		name = env.FileID
	}
	if name == "" {
		return validationf("file_process request requires file_path")
	}

	path, err := m.deps.Files.Resolve(name)
	if err != nil {
		return notFoundf("file %q not found", name)
	}
	text, err := m.deps.Documents.Extract(path)
	if err != nil {
		return &Error{Kind: KindParse, Msg: fmt.Sprintf("could not extract %q", name), Err: err}
	}

	chunks, err := m.deps.Indexer.IndexDocument(ctx, name, text)
	if err != nil {
		return providerErr("document indexing failed", err)
	}
	sess.putDocument(name, text)

	return emit(protocol.NewSuccess(map[string]any{
		"file_id": name,
		"chunks":  chunks,
	}))
}

func (m *Manager) handleRAGQuery(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	if env.Query == "" {
		return validationf("rag_query request requires a query")
	}
	if env.FileID != "" {
		if _, ok := sess.document(env.FileID); !ok && !m.deps.Indexer.HasDocument(env.FileID) {
			return notFoundf("file %q has not been processed", env.FileID)
		}
	}

	matches, err := m.deps.Indexer.Query(ctx, env.Query)
	if err != nil {
		return providerErr("retrieval failed", err)
	}

	results := make([]map[string]any, 0, len(matches))
	for _, match := range matches {
		results = append(results, map[string]any{
			"file_id": match.DocID,
			"text":    match.Text,
			"score":   match.Score,
		})
	}
	return emit(protocol.NewSuccess(map[string]any{"matches": results}))
}

func (m *Manager) handleSearch(ctx context.Context, env protocol.Envelope, emit audio.Emitter) error {
	if env.Query == "" {
		return validationf("search request requires a query")
	}
	if m.deps.Searcher == nil {
		return preconditionf("web search is disabled")
	}
	digest, err := m.deps.Searcher.Search(ctx, env.Query)
	if err != nil {
		return providerErr("web search failed", err)
	}
	return emit(protocol.NewSuccess(map[string]any{"results": digest}))
}

func (m *Manager) handleFileList(emit audio.Emitter) error {
	infos, err := m.deps.Files.List()
	if err != nil {
		return providerErr("listing uploads failed", err)
	}
	files := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		files = append(files, map[string]any{
			"name":     info.Name,
			"size":     info.Size,
			"modified": info.Modified,
		})
	}
	return emit(protocol.NewSuccess(map[string]any{"files": files}))
}

func (m *Manager) handleSurveyGenerate(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	if env.Topic == "" {
		return validationf("survey_generate request requires a topic")
	}
	if env.SurveyID == "" {
		return validationf("survey_generate request requires survey_id")
	}
	sv, err := m.deps.Surveys.Generate(ctx, env.SurveyID, env.Topic)
	if err != nil {
		return providerErr("survey generation failed", err)
	}
	sess.putSurvey(sv)
	return emit(protocol.NewSuccess(map[string]any{"survey": sv}))
}

func (m *Manager) handleSurveySubmit(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	if env.SurveyID == "" {
		return validationf("survey_submit request requires survey_id")
	}
	if len(env.Responses) == 0 {
		return validationf("survey_submit request requires responses")
	}
	state, ok := sess.surveyByID(env.SurveyID)
	if !ok {
		return notFoundf("survey %q not found", env.SurveyID)
	}

	analysis, err := m.deps.Surveys.Analyze(ctx, state.survey, env.Responses)
	if err != nil {
		return providerErr("response analysis failed", err)
	}
	sess.putAnalysis(env.SurveyID, analysis)
	return emit(protocol.NewSuccess(map[string]any{"analysis": analysis}))
}

func (m *Manager) handleProgramPlan(ctx context.Context, sess *Session, env protocol.Envelope, emit audio.Emitter) error {
	if env.SurveyID == "" {
		return validationf("program_plan request requires survey_id")
	}
	state, ok := sess.surveyByID(env.SurveyID)
	if !ok {
		return notFoundf("survey %q not found", env.SurveyID)
	}
	if state.analysis == nil {
		return preconditionf("survey %q has no analysis; submit responses first", env.SurveyID)
	}

	plan, err := m.deps.Surveys.Plan(ctx, state.analysis)
	if err != nil {
		return providerErr("program planning failed", err)
	}
	sess.putPlan(env.SurveyID, plan)
	return emit(protocol.NewSuccess(map[string]any{"plan": plan}))
}

func (m *Manager) record(sess *Session, requestType, kind, detail string) {
	if m.deps.Timeline == nil {
		return
	}
	m.deps.Timeline(protocol.TimelineEvent{
		SessionID:   sess.ID,
		RequestType: requestType,
		Kind:        kind,
		Detail:      detail,
		Timestamp:   m.clock().UTC(),
	})
}
