package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiSynth struct {
	client openai.Client
	model  string
}

func NewOpenAISynth(apiKey, model string) (Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts backend requires an API key")
	}
	return &openaiSynth{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (s *openaiSynth) Synthesize(ctx context.Context, text, voice string) (Clip, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("read openai speech response: %w", err)
	}
	if len(data) == 0 {
		return Clip{}, errors.New("openai returned empty audio")
	}
	return Clip{Encoded: data, Format: "mp3"}, nil
}
