package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-cast/internal/dialogue"
	"github.com/loqalabs/loqa-cast/internal/protocol"
	"github.com/loqalabs/loqa-cast/internal/tts"
)

// Emitter delivers one outbound event to the client. Calls happen strictly
// in delivery order; a returned error aborts the pipeline.
type Emitter func(event any) error

// Pipeline synthesizes dialogue turns and delivers section events in turn
// order, finishing with a completion event.
type Pipeline struct {
	synth       tts.Synthesizer
	store       *Store
	voiceMale   string
	voiceFemale string
	pace        time.Duration
	log         *slog.Logger
}

func NewPipeline(synth tts.Synthesizer, store *Store, voiceMale, voiceFemale string, pace time.Duration, log *slog.Logger) *Pipeline {
	return &Pipeline{
		synth:       synth,
		store:       store,
		voiceMale:   voiceMale,
		voiceFemale: voiceFemale,
		pace:        pace,
		log:         log.With(slog.String("component", "audio-pipeline")),
	}
}

// Voice returns the configured voice for a speaker role.
func (p *Pipeline) Voice(role dialogue.Role) string {
	if role == dialogue.RoleFemale {
		return p.voiceFemale
	}
	return p.voiceMale
}

// Deliver runs the turns through synthesis in ascending id order. Each turn
// is synthesized, stored, and emitted before the next begins; a short pacing
// delay follows every section so clients can start playback. Any synthesis
// or storage failure aborts without a completion event.
func (p *Pipeline) Deliver(ctx context.Context, turns []dialogue.Turn, emit Emitter) error {
	for _, turn := range turns {
		if err := ctx.Err(); err != nil {
			return err
		}

		voice := p.Voice(turn.Speaker)
		clip, err := p.synth.Synthesize(ctx, turn.Text, voice)
		if err != nil {
			return fmt.Errorf("synthesize turn %d: %w", turn.ID, err)
		}
		publicPath, err := p.store.Save(turn.ID, clip)
		if err != nil {
			return fmt.Errorf("store turn %d: %w", turn.ID, err)
		}

		if err := emit(protocol.NewSectionReady(turn.ID, string(turn.Speaker), turn.Text, publicPath)); err != nil {
			return fmt.Errorf("emit section %d: %w", turn.ID, err)
		}

		if p.pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pace):
			}
		}
	}

	if err := emit(protocol.NewComplete()); err != nil {
		return fmt.Errorf("emit completion: %w", err)
	}
	return nil
}
