package tts

import "context"

// Clip is one fully synthesized utterance. Backends produce either raw PCM
// (16-bit little-endian, Format empty) that the artifact store WAV-encodes,
// or pre-encoded container bytes with Format naming the extension.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Encoded    []byte
	Format     string
}

// Synthesizer is the contract for producing audio for one turn of text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (Clip, error)
}
