package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-cast/internal/audio"
	"github.com/loqalabs/loqa-cast/internal/bus"
	"github.com/loqalabs/loqa-cast/internal/capability"
	"github.com/loqalabs/loqa-cast/internal/chat"
	"github.com/loqalabs/loqa-cast/internal/config"
	"github.com/loqalabs/loqa-cast/internal/dialogue"
	"github.com/loqalabs/loqa-cast/internal/document"
	"github.com/loqalabs/loqa-cast/internal/eventstore"
	"github.com/loqalabs/loqa-cast/internal/gateway"
	"github.com/loqalabs/loqa-cast/internal/grounding"
	"github.com/loqalabs/loqa-cast/internal/natsserver"
	"github.com/loqalabs/loqa-cast/internal/protocol"
	"github.com/loqalabs/loqa-cast/internal/retrieval"
	"github.com/loqalabs/loqa-cast/internal/search"
	"github.com/loqalabs/loqa-cast/internal/session"
	"github.com/loqalabs/loqa-cast/internal/survey"
	"github.com/loqalabs/loqa-cast/internal/tts"
)

const version = "0.1.0-dev"

// Version returns the daemon version string, also stamped into telemetry
// resources.
func Version() string { return version }

// Runtime wires every service together and owns their lifecycle: embedded
// bus, timeline recorder, provider backends, session manager, and the HTTP
// surface (websocket gateway, audio artifacts, health, metrics).
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	natsServer  *natsserver.EmbeddedServer
	busClient   *bus.Client
	timeline    *eventstore.Store
	recorder    *eventstore.Recorder
	cache       *retrieval.Cache
	registry    *capability.Registry

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the runtime up and blocks until ctx is cancelled, then shuts
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		ns, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = ns
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}

	busClient, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		r.shutdownInfra()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	timeline, err := eventstore.Open(ctx, r.cfg.Timeline, r.logger)
	if err != nil {
		r.shutdownInfra()
		return fmt.Errorf("failed to open timeline store: %w", err)
	}
	r.timeline = timeline

	r.recorder = eventstore.NewRecorder(ctx, timeline, busClient, r.logger)
	if err := r.recorder.Start(); err != nil {
		r.shutdownInfra()
		return fmt.Errorf("failed to start timeline recorder: %w", err)
	}

	manager, audioStore, err := r.buildManager(ctx)
	if err != nil {
		r.shutdownInfra()
		return err
	}

	if interval := r.cfg.Audio.CleanupIntervalS; interval > 0 {
		maxAge := time.Duration(r.cfg.Audio.MaxAgeSeconds) * time.Second
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			audioStore.RunSweeper(ctx, time.Duration(interval)*time.Second, maxAge)
		}()
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", r.handleHealth)
	router.Get("/readyz", r.handleReady)
	router.Get("/backends", r.handleBackends)
	if metricHandler != nil {
		router.Handle("/metrics", metricHandler)
	}
	router.Handle("/ws", gateway.NewHandler(manager, r.logger))

	prefix := strings.TrimSuffix(r.cfg.Audio.PublicPrefix, "/")
	if prefix == "" {
		prefix = "/audio"
	}
	router.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(audioStore.Dir()))))

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("environment", r.cfg.Environment))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	r.shutdownInfra()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildManager probes the configured provider backends, constructs the
// retrieval, search, document, survey, dialogue, and audio services, and
// assembles the session manager on top of them.
func (r *Runtime) buildManager(ctx context.Context) (*session.Manager, *audio.Store, error) {
	r.registry = capability.NewRegistry(r.busClient, r.logger)

	completer, err := r.buildCompleter(ctx)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := r.buildEmbedder(ctx)
	if err != nil {
		return nil, nil, err
	}
	synth, err := r.buildSynthesizer(ctx)
	if err != nil {
		return nil, nil, err
	}

	chunker := retrieval.NewChunker(r.cfg.Retrieval.ChunkSize, r.cfg.Retrieval.ChunkOverlap)
	engine := retrieval.NewEngine(chunker, embedder, r.cfg.Retrieval.TopK, r.cfg.Retrieval.Threshold, r.logger)

	var searcher search.Searcher
	if r.cfg.Search.Enabled {
		searcher = search.NewWebSearcher(
			r.cfg.Search.Endpoint,
			r.cfg.Search.ResultLimit,
			r.cfg.Search.PageLimit,
			r.cfg.Search.UserAgent,
			r.logger)
	}

	files, err := document.NewFileStore(r.cfg.Files.UploadDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload dir: %w", err)
	}

	audioStore, err := audio.NewStore(r.cfg.Audio, r.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audio store: %w", err)
	}

	pace := time.Duration(r.cfg.Audio.PaceMS) * time.Millisecond
	pipeline := audio.NewPipeline(synth, audioStore,
		r.cfg.TTS.VoiceMale, r.cfg.TTS.VoiceFemale, pace, r.logger)

	manager := session.NewManager(session.Deps{
		Indexer:    engine,
		Aggregator: grounding.New(engine, searcher, r.logger),
		Searcher:   searcher,
		Documents:  document.NewProcessor(r.logger),
		Files:      files,
		Surveys:    survey.NewGenerator(completer, r.logger),
		Dialogue:   dialogue.NewGenerator(completer, r.cfg.Dialogue, r.logger),
		Pipeline:   pipeline,
		Timeline:   r.timelineSink(),
		Logger:     r.logger,
	})
	return manager, audioStore, nil
}

func (r *Runtime) buildCompleter(ctx context.Context) (chat.Completer, error) {
	cfg := r.cfg.Chat
	r.registry.Register(ctx, "chat", cfg.Mode, func(ctx context.Context) (bool, string) {
		switch cfg.Mode {
		case "ollama":
			if !chat.Ping(ctx, cfg.Endpoint) {
				return false, fmt.Sprintf("ollama unreachable at %s", cfg.Endpoint)
			}
			return true, ""
		case "openai":
			if strings.TrimSpace(cfg.APIKey) == "" {
				return false, "api key not configured"
			}
			return true, ""
		default:
			return false, fmt.Sprintf("unknown chat mode %q", cfg.Mode)
		}
	})

	switch r.registry.Resolve("chat", cfg.Mode) {
	case "ollama":
		return chat.NewOllamaCompleter(cfg.Endpoint, cfg.Model), nil
	case "openai":
		return chat.NewOpenAICompleter(cfg.APIKey, cfg.Model)
	default:
		return chat.NewMockCompleter(), nil
	}
}

func (r *Runtime) buildEmbedder(ctx context.Context) (retrieval.Embedder, error) {
	cfg := r.cfg.Embedding
	r.registry.Register(ctx, "embedding", cfg.Mode, func(ctx context.Context) (bool, string) {
		switch cfg.Mode {
		case "ollama":
			if !chat.Ping(ctx, cfg.Endpoint) {
				return false, fmt.Sprintf("ollama unreachable at %s", cfg.Endpoint)
			}
			return true, ""
		case "openai":
			if strings.TrimSpace(cfg.APIKey) == "" {
				return false, "api key not configured"
			}
			return true, ""
		default:
			return false, fmt.Sprintf("unknown embedding mode %q", cfg.Mode)
		}
	})

	var backend retrieval.Embedder
	switch r.registry.Resolve("embedding", cfg.Mode) {
	case "ollama":
		backend = retrieval.NewOllamaEmbedder(cfg.Endpoint, cfg.Model)
	case "openai":
		var err error
		backend, err = retrieval.NewOpenAIEmbedder(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
	default:
		backend = retrieval.NewMockEmbedder(256)
	}

	cache, err := retrieval.OpenCache(ctx, cfg.CachePath, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	r.cache = cache
	return retrieval.NewCachingEmbedder(backend, cache, cfg.Model), nil
}

func (r *Runtime) buildSynthesizer(ctx context.Context) (tts.Synthesizer, error) {
	cfg := r.cfg.TTS
	r.registry.Register(ctx, "tts", cfg.Mode, func(context.Context) (bool, string) {
		switch cfg.Mode {
		case "exec":
			args, err := shellwords.Parse(cfg.Command)
			if err != nil || len(args) == 0 {
				return false, "tts command not configured"
			}
			if _, err := exec.LookPath(args[0]); err != nil {
				return false, fmt.Sprintf("tts command not found: %s", args[0])
			}
			return true, ""
		case "openai":
			if strings.TrimSpace(cfg.APIKey) == "" {
				return false, "api key not configured"
			}
			return true, ""
		default:
			return false, fmt.Sprintf("unknown tts mode %q", cfg.Mode)
		}
	})

	switch r.registry.Resolve("tts", cfg.Mode) {
	case "exec":
		return tts.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "openai":
		return tts.NewOpenAISynth(cfg.APIKey, cfg.Model)
	default:
		return tts.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	}
}

// timelineSink publishes session timeline events to the bus, where the
// recorder persists them. Delivery to the client never waits on this path.
func (r *Runtime) timelineSink() session.TimelineSink {
	busClient := r.busClient
	log := r.logger.With(slog.String("component", "timeline-sink"))
	return func(evt protocol.TimelineEvent) {
		payload, err := json.Marshal(evt)
		if err != nil {
			return
		}
		if err := busClient.Publish(protocol.TimelineSubject(evt.SessionID), payload); err != nil {
			log.Warn("failed to publish timeline event", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) shutdownInfra() {
	if r.recorder != nil {
		r.recorder.Close()
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			r.logger.Warn("embedding cache close error", slog.String("error", err.Error()))
		}
	}
	if r.timeline != nil {
		if err := r.timeline.Close(); err != nil {
			r.logger.Warn("timeline store close error", slog.String("error", err.Error()))
		}
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	r.natsServer.Shutdown()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.recorder.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleBackends(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.registry.Snapshot()); err != nil {
		r.logger.Warn("failed to encode backends", slog.String("error", err.Error()))
	}
}
