package audio

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-cast/internal/config"
	"github.com/loqalabs/loqa-cast/internal/tts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.AudioConfig{
		Dir:          t.TempDir(),
		PublicPrefix: "/audio",
	}, testLogger())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSaveWAV(t *testing.T) {
	store := newTestStore(t)
	clip := tts.Clip{
		PCM:        []byte{0x00, 0x10, 0x00, 0x20, 0x00, 0x30},
		SampleRate: 22050,
		Channels:   1,
	}

	publicPath, err := store.Save(3, clip)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if publicPath != "/audio/voice3.wav" {
		t.Fatalf("unexpected public path: %q", publicPath)
	}

	data, err := os.ReadFile(filepath.Join(store.Dir(), "voice3.wav"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(data) < 44 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("artifact is not a wav file: % x", data[:12])
	}
}

func TestSaveEncoded(t *testing.T) {
	store := newTestStore(t)
	clip := tts.Clip{Encoded: []byte("mp3-bytes"), Format: "mp3"}

	publicPath, err := store.Save(1, clip)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if publicPath != "/audio/voice1.mp3" {
		t.Fatalf("unexpected public path: %q", publicPath)
	}
	data, err := os.ReadFile(filepath.Join(store.Dir(), "voice1.mp3"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestSaveRejectsUnalignedPCM(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save(1, tts.Clip{PCM: []byte{0x01}, SampleRate: 22050, Channels: 1}); err == nil {
		t.Fatal("expected error for odd pcm length")
	}
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	store := newTestStore(t)

	stale := filepath.Join(store.Dir(), "voice1.wav")
	fresh := filepath.Join(store.Dir(), "voice2.wav")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file survived sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}
