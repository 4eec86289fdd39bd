package protocol

import "time"

// Envelope is a single client request read from the websocket. Type selects
// the handler; the remaining fields are read by whichever handler needs them.
type Envelope struct {
	Type       string            `json:"type"`
	Topic      string            `json:"topic,omitempty"`
	UseContext *bool             `json:"use_context,omitempty"`
	Query      string            `json:"query,omitempty"`
	FileID     string            `json:"file_id,omitempty"`
	FilePath   string            `json:"file_path,omitempty"`
	SurveyID   string            `json:"survey_id,omitempty"`
	Responses  map[string]string `json:"responses,omitempty"`
}

// Request types carried in Envelope.Type.
const (
	TypeDialogue       = "dialogue"
	TypeFileProcess    = "file_process"
	TypeRAGQuery       = "rag_query"
	TypeSearch         = "search"
	TypeFileList       = "file_list"
	TypeSurveyGenerate = "survey_generate"
	TypeSurveySubmit   = "survey_submit"
	TypeProgramPlan    = "program_plan"
)

// SectionReady announces one finished dialogue turn with its audio artifact.
type SectionReady struct {
	Status    string `json:"status"`
	ID        int    `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	AudioFile string `json:"audio_file"`
}

// Complete terminates a dialogue event stream.
type Complete struct {
	Status string `json:"status"`
}

// Success is the terminal event for non-dialogue requests. Payload holds the
// handler-specific result keyed the way clients expect it.
type Success struct {
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ErrorEvent is the single event a failed request produces.
type ErrorEvent struct {
	Error string `json:"error"`
}

const (
	StatusSectionReady = "section_ready"
	StatusComplete     = "complete"
	StatusSuccess      = "success"
)

func NewSectionReady(id int, user, text, audioFile string) SectionReady {
	return SectionReady{
		Status:    StatusSectionReady,
		ID:        id,
		User:      user,
		Text:      text,
		AudioFile: audioFile,
	}
}

func NewComplete() Complete {
	return Complete{Status: StatusComplete}
}

func NewSuccess(payload map[string]any) Success {
	return Success{Status: StatusSuccess, Payload: payload}
}

// TimelineEvent is the observability record published on the bus for every
// request lifecycle step and consumed by the timeline store.
type TimelineEvent struct {
	SessionID   string    `json:"session_id"`
	RequestType string    `json:"request_type"`
	Kind        string    `json:"kind"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Timeline event kinds.
const (
	TimelineRequest  = "request"
	TimelineSection  = "section"
	TimelineComplete = "complete"
	TimelineError    = "error"
)

const (
	SubjectTimelinePrefix     = "cast.timeline"
	SubjectCapabilityAnnounce = "cast.capability.announce"
)

// TimelineSubject returns the per-session publish subject under
// SubjectTimelinePrefix.
func TimelineSubject(sessionID string) string {
	return SubjectTimelinePrefix + "." + sessionID
}
