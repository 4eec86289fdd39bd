package tts

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

// Synthesize produces a short tone whose pitch depends on the voice, so
// different hosts are audibly distinct in mock runs.
func (m *mockSynth) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	select {
	case <-ctx.Done():
		return Clip{}, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}

	freq := 220.0
	for _, r := range voice {
		freq += float64(r % 16)
	}

	samples := m.sampleRate / 5 // 200ms
	pcm := make([]byte, samples*2*m.channels)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate)))
		for ch := 0; ch < m.channels; ch++ {
			binary.LittleEndian.PutUint16(pcm[(i*m.channels+ch)*2:], uint16(v))
		}
	}

	return Clip{
		PCM:        pcm,
		SampleRate: m.sampleRate,
		Channels:   m.channels,
	}, nil
}
