package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-cast/internal/survey"
)

// surveyState tracks one survey through the generate -> submit -> plan flow.
// The derived plan lives here, on the survey record, not session-wide.
type surveyState struct {
	survey   *survey.Survey
	analysis *survey.Analysis
	plan     *survey.ProgramPlan
}

// Session is the per-connection state. It is owned by a single connection:
// requests on a connection run one at a time, so the mutex only guards
// against inspection from other goroutines (timeline, tests).
type Session struct {
	ID string

	mu        sync.Mutex
	documents map[string]string
	surveys   map[string]*surveyState
}

func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		documents: make(map[string]string),
		surveys:   make(map[string]*surveyState),
	}
}

func (s *Session) putDocument(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[id] = text
}

func (s *Session) document(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.documents[id]
	return text, ok
}

func (s *Session) putSurvey(sv *survey.Survey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[sv.ID] = &surveyState{survey: sv}
}

func (s *Session) surveyByID(id string) (*surveyState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.surveys[id]
	return state, ok
}

func (s *Session) putAnalysis(surveyID string, a *survey.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.surveys[surveyID]; ok {
		state.analysis = a
	}
}

func (s *Session) putPlan(surveyID string, p *survey.ProgramPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.surveys[surveyID]; ok {
		state.plan = p
	}
}

// planText renders the plan attached to the given survey, or "" when the id
// does not resolve or no plan has been derived yet.
func (s *Session) planText(surveyID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.surveys[surveyID]
	if !ok || state.plan == nil {
		return ""
	}
	return state.plan.Describe()
}
