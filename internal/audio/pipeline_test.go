package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/loqa-cast/internal/config"
	"github.com/loqalabs/loqa-cast/internal/dialogue"
	"github.com/loqalabs/loqa-cast/internal/protocol"
	"github.com/loqalabs/loqa-cast/internal/tts"
)

// recordingSynth captures the voices it was asked for and can fail on a
// chosen call.
type recordingSynth struct {
	voices  []string
	failOn  int
	calls   int
	samples []byte
}

func (r *recordingSynth) Synthesize(_ context.Context, _ string, voice string) (tts.Clip, error) {
	r.calls++
	if r.failOn > 0 && r.calls == r.failOn {
		return tts.Clip{}, errors.New("synthesis backend failed")
	}
	r.voices = append(r.voices, voice)
	pcm := r.samples
	if pcm == nil {
		pcm = []byte{0x00, 0x01}
	}
	return tts.Clip{PCM: pcm, SampleRate: 22050, Channels: 1}, nil
}

func collectEvents() (Emitter, *[]any) {
	var events []any
	return func(event any) error {
		events = append(events, event)
		return nil
	}, &events
}

func newTestPipeline(t *testing.T, synth tts.Synthesizer) *Pipeline {
	t.Helper()
	store, err := NewStore(config.AudioConfig{Dir: t.TempDir(), PublicPrefix: "/audio"}, testLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewPipeline(synth, store, "onyx", "alloy", 0, testLogger())
}

func sampleTurns() []dialogue.Turn {
	return []dialogue.Turn{
		{ID: 1, Speaker: dialogue.RoleMale, Text: "Welcome to the show."},
		{ID: 2, Speaker: dialogue.RoleFemale, Text: "Glad to be here."},
		{ID: 3, Speaker: dialogue.RoleMale, Text: "Let's dig in."},
	}
}

func TestDeliverOrderedSectionsThenComplete(t *testing.T) {
	synth := &recordingSynth{}
	p := newTestPipeline(t, synth)
	emit, events := collectEvents()

	if err := p.Deliver(context.Background(), sampleTurns(), emit); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(*events) != 4 {
		t.Fatalf("expected 3 sections + complete, got %d events", len(*events))
	}
	for i := 0; i < 3; i++ {
		section, ok := (*events)[i].(protocol.SectionReady)
		if !ok {
			t.Fatalf("event %d is %T", i, (*events)[i])
		}
		if section.ID != i+1 {
			t.Fatalf("sections out of order: %+v", *events)
		}
		if section.Status != protocol.StatusSectionReady {
			t.Fatalf("unexpected status %q", section.Status)
		}
		if section.AudioFile == "" {
			t.Fatal("section missing audio file")
		}
	}
	complete, ok := (*events)[3].(protocol.Complete)
	if !ok || complete.Status != protocol.StatusComplete {
		t.Fatalf("last event is not completion: %+v", (*events)[3])
	}
}

func TestDeliverVoiceMapping(t *testing.T) {
	synth := &recordingSynth{}
	p := newTestPipeline(t, synth)
	emit, _ := collectEvents()

	if err := p.Deliver(context.Background(), sampleTurns(), emit); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	want := []string{"onyx", "alloy", "onyx"}
	for i, v := range want {
		if synth.voices[i] != v {
			t.Fatalf("voice %d: got %q, want %q", i, synth.voices[i], v)
		}
	}
}

func TestDeliverSynthesisFailureIsFatal(t *testing.T) {
	synth := &recordingSynth{failOn: 2}
	p := newTestPipeline(t, synth)
	emit, events := collectEvents()

	err := p.Deliver(context.Background(), sampleTurns(), emit)
	if err == nil {
		t.Fatal("expected synthesis failure to abort")
	}
	// The first section made it out, nothing after the failure did.
	if len(*events) != 1 {
		t.Fatalf("expected exactly 1 event before failure, got %d", len(*events))
	}
	if _, ok := (*events)[0].(protocol.SectionReady); !ok {
		t.Fatalf("unexpected event: %+v", (*events)[0])
	}
}

func TestDeliverStopsOnCancel(t *testing.T) {
	synth := &recordingSynth{}
	p := newTestPipeline(t, synth)
	emit, _ := collectEvents()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Deliver(ctx, sampleTurns(), emit); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDeliverEmitErrorAborts(t *testing.T) {
	synth := &recordingSynth{}
	p := newTestPipeline(t, synth)

	calls := 0
	emit := func(any) error {
		calls++
		return errors.New("client gone")
	}
	if err := p.Deliver(context.Background(), sampleTurns(), emit); err == nil {
		t.Fatal("expected emit failure to abort")
	}
	if calls != 1 {
		t.Fatalf("expected no further emits after failure, got %d", calls)
	}
}
