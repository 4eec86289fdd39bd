package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/loqa-cast/internal/config"
	"github.com/loqalabs/loqa-cast/internal/tts"
)

// Store writes audio artifacts to disk and maps them to public URLs.
// Artifacts are named after the turn they voice, so a client can correlate
// files with section events.
type Store struct {
	dir          string
	publicPrefix string
	log          *slog.Logger
	clock        func() time.Time
}

func NewStore(cfg config.AudioConfig, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Store{
		dir:          cfg.Dir,
		publicPrefix: cfg.PublicPrefix,
		log:          log.With(slog.String("component", "audio-store")),
		clock:        time.Now,
	}, nil
}

// Dir returns the artifact directory for static file serving.
func (s *Store) Dir() string { return s.dir }

// Save persists the clip for a turn and returns its public path. Raw PCM is
// WAV-encoded; pre-encoded clips are written as-is under their format
// extension.
func (s *Store) Save(turnID int, clip tts.Clip) (string, error) {
	ext := clip.Format
	if ext == "" {
		ext = "wav"
	}
	name := fmt.Sprintf("voice%d.%s", turnID, ext)
	full := filepath.Join(s.dir, name)

	if clip.Format != "" {
		if err := os.WriteFile(full, clip.Encoded, 0o644); err != nil {
			return "", fmt.Errorf("write audio artifact: %w", err)
		}
		return path.Join(s.publicPrefix, name), nil
	}

	if err := s.writeWAV(full, clip); err != nil {
		return "", err
	}
	return path.Join(s.publicPrefix, name), nil
}

func (s *Store) writeWAV(full string, clip tts.Clip) error {
	if len(clip.PCM)%2 != 0 {
		return fmt.Errorf("pcm byte length %d is not 16-bit aligned", len(clip.PCM))
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	samples := make([]int, len(clip.PCM)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(clip.PCM[i*2:])))
	}

	enc := wav.NewEncoder(f, clip.SampleRate, 16, clip.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: clip.Channels,
			SampleRate:  clip.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

// Sweep deletes artifacts older than maxAge and returns how many went.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read audio dir: %w", err)
	}
	cutoff := s.clock().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.log.Warn("failed to remove stale artifact",
				slog.String("name", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}

// RunSweeper sweeps on the interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(maxAge)
			if err != nil {
				s.log.Warn("artifact sweep failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				s.log.Info("swept stale audio artifacts", slog.Int("removed", removed))
			}
		}
	}
}
