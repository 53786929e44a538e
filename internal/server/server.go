// Package server runs the caselight HTTP API and owns the Qdrant container
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/boundary"
	"github.com/caselight/caselight/internal/chunker"
	"github.com/caselight/caselight/internal/classify"
	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/dedupe"
	"github.com/caselight/caselight/internal/encode"
	"github.com/caselight/caselight/internal/facts"
	"github.com/caselight/caselight/internal/filesource"
	"github.com/caselight/caselight/internal/home"
	"github.com/caselight/caselight/internal/orchestrator"
	"github.com/caselight/caselight/internal/pagefeat"
	"github.com/caselight/caselight/internal/progress"
	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/server/endpoints"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// Server is the main caselight HTTP server.
// It manages the Qdrant container lifecycle when configured to, starting it
// on server start and stopping it on shutdown.
type Server struct {
	httpServer    *http.Server
	qdrantManager *vectorstore.DockerManager
	store         *vectorstore.Store
	orch          *orchestrator.Orchestrator
	configMgr     *config.Manager
	homeDir       *home.Dir
	logger        *slog.Logger
	access        types.AccessOracle

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the caselight home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// Access authorizes callers per case. Nil allows any caller that
	// presents a matching case identity.
	Access types.AccessOracle
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		var err error
		cfg.Home, err = home.New("")
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Home.EnsureExists(); err != nil {
		return nil, err
	}

	appCfg := cfg.ConfigManager.Get()

	s := &Server{
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
		access:    cfg.Access,
	}

	if appCfg.VectorStore.ManageContainer {
		manager, err := vectorstore.NewDockerManager(vectorstore.DockerConfig{
			ContainerName: appCfg.VectorStore.ContainerName,
			Image:         appCfg.VectorStore.ContainerImage,
			DataPath:      cfg.Home.QdrantDataPath(),
			HostPort:      appCfg.VectorStore.HostPort,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant manager: %w", err)
		}
		s.qdrantManager = manager
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{QdrantManager: s.qdrantManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	// No WriteTimeout: the events endpoint holds SSE streams open for the
	// life of a job.
	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s, nil
}

// Start starts the server and, when managed, the Qdrant container.
// It blocks until the context is cancelled or an error occurs.
// If an existing Qdrant container exists, it validates the configuration
// matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	appCfg := s.configMgr.Get()

	qdrantURL := appCfg.VectorStore.URL
	if s.qdrantManager != nil {
		// Validate any existing container matches our config
		if err := s.qdrantManager.ValidateExisting(ctx); err != nil {
			s.setNotRunning()
			return fmt.Errorf("existing Qdrant container incompatible: %w", err)
		}

		s.logger.Info("starting Qdrant")
		if err := s.qdrantManager.Start(ctx); err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to start Qdrant: %w", err)
		}
		qdrantURL = s.qdrantManager.URL()
	}

	// Create client after Qdrant is up
	qdrantClient := vectorstore.NewClient(qdrantURL)
	if err := qdrantClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("Qdrant health check failed: %w", err)
	}
	s.logger.Info("Qdrant is ready", "url", qdrantURL)

	if err := s.buildServices(appCfg, qdrantClient); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices wires the pipeline from the loaded configuration. Config
// changes picked up by the watcher apply to jobs submitted after the
// reload; in-flight jobs keep the knobs they started with.
func (s *Server) buildServices(appCfg *config.Config, client *vectorstore.Client) error {
	apiKey := appCfg.ResolveAPIKey()
	if apiKey == "" {
		s.logger.Warn("no OpenAI API key configured; model calls will fail")
	}
	oai := providers.NewOpenAIClient(providers.OpenAIConfig{
		APIKey:     apiKey,
		ChatModel:  appCfg.OpenAI.ChatModel,
		EmbedModel: appCfg.OpenAI.EmbedModel,
		EmbedDim:   appCfg.VectorStore.VectorDim,
		RateLimit:  appCfg.OpenAI.RateLimit,
		Logger:     s.logger,
	})

	s.store = vectorstore.New(client, vectorstore.Config{
		VectorDim:       appCfg.VectorStore.VectorDim,
		UpsertBatchSize: appCfg.VectorStore.UpsertBatchSize,
		Shared:          appCfg.VectorStore.SharedCollections,
		MaxAttempts:     appCfg.Retry.MaxAttempts,
		MaxDelay:        appCfg.Retry.MaxDelay,
	}, s.logger)

	dense := encode.NewDense(encode.DenseConfig{
		BatchSize:   appCfg.OpenAI.EmbedBatchSize,
		MaxAttempts: appCfg.Retry.MaxAttempts,
		MaxDelay:    appCfg.Retry.MaxDelay,
	}, oai, s.logger)
	keywords := encode.NewSparse(encode.SparseConfig{MaxEntries: appCfg.VectorStore.SparseMaxEntries})
	citations := encode.NewCitations(encode.SparseConfig{MaxEntries: appCfg.VectorStore.SparseMaxEntries})

	registry := dedupe.NewRegistry(s.homeDir.RegistryPath())
	bus := progress.NewBus(0, s.logger)
	extractor := facts.New(facts.Config{
		DedupCosine:  appCfg.Facts.DedupCosine,
		DedupTextSim: appCfg.Facts.DedupTextSim,
	}, oai, oai, s.store, s.logger)

	s.orch = orchestrator.New(orchestrator.Config{
		FileConcurrency:     appCfg.Pipeline.FileConcurrency,
		SegmentConcurrency:  appCfg.Pipeline.SegmentConcurrency,
		EmbedInflight:       appCfg.Pipeline.EmbedInflight,
		UpsertInflight:      appCfg.Pipeline.UpsertInflight,
		SegmentFailureAbort: appCfg.Pipeline.SegmentFailureAbort,
		BoundaryTimeout:     appCfg.Timeouts.BoundaryDetect,
		ClassifyTimeout:     appCfg.Timeouts.Classify,
		EmbedBatchTimeout:   appCfg.Timeouts.EmbedBatch,
		UpsertBatchTimeout:  appCfg.Timeouts.UpsertBatch,
		FactExtractTimeout:  appCfg.Timeouts.FactExtract,
	}, orchestrator.Deps{
		Pages: pagefeat.NewProvider(),
		Boundary: boundary.New(boundary.Config{
			SoftThreshold:  appCfg.Boundary.SoftThreshold,
			OCRRelaxFactor: appCfg.Boundary.OCRRelaxFactor,
		}, s.logger),
		Classifier: classify.New(classify.Config{
			LLMFloor: appCfg.Facts.ClassifyFloor,
		}, nil, oai, s.logger),
		Chunker: chunker.New(chunker.Config{
			TargetTokens:  appCfg.Chunking.TargetTokens,
			OverlapTokens: appCfg.Chunking.OverlapTokens,
		}, nil),
		Dense:     dense,
		Keywords:  keywords,
		Citations: citations,
		Store:     s.store,
		Registry:  registry,
		Facts:     extractor,
		Files:     &filesource.Local{},
		Bus:       bus,
		Home:      s.homeDir,
		Logger:    s.logger,
	})

	// Services struct for context enrichment
	s.services = &svcctx.Services{
		Store:        s.store,
		Orchestrator: s.orch,
		Registry:     registry,
		Facts:        extractor,
		Bus:          bus,
		Keywords:     keywords,
		Citations:    citations,
		Dense:        dense,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
		Access:       s.access,
	}
	return nil
}

// shutdown performs graceful shutdown of the HTTP server and Qdrant.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.qdrantManager != nil {
		s.logger.Info("stopping Qdrant")
		if err := s.qdrantManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("Qdrant stop error", "error", err)
		}
		if err := s.qdrantManager.Close(); err != nil {
			s.logger.Error("Qdrant manager close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the vector store adapter.
// Returns nil if the server hasn't started yet.
func (s *Server) Store() *vectorstore.Store {
	return s.store
}

// Orchestrator returns the job orchestrator.
// Returns nil if the server hasn't started yet.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or orchestrator aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil || s.orch == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
