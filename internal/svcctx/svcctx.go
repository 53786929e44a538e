// Package svcctx provides service context for dependency injection via
// context. This package is separate from server to avoid import cycles with
// endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/caselight/caselight/internal/config"
	"github.com/caselight/caselight/internal/dedupe"
	"github.com/caselight/caselight/internal/encode"
	"github.com/caselight/caselight/internal/facts"
	"github.com/caselight/caselight/internal/home"
	"github.com/caselight/caselight/internal/orchestrator"
	"github.com/caselight/caselight/internal/progress"
	"github.com/caselight/caselight/internal/types"
	"github.com/caselight/caselight/internal/vectorstore"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store        *vectorstore.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *dedupe.Registry
	Facts        *facts.Extractor
	Bus          *progress.Bus
	Keywords     *encode.SparseEncoder
	Citations    *encode.CitationEncoder
	Dense        *encode.DenseEncoder
	ConfigMgr    *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
	Access       types.AccessOracle
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the vector store from context.
func StoreFrom(ctx context.Context) *vectorstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// OrchestratorFrom extracts the orchestrator from context.
func OrchestratorFrom(ctx context.Context) *orchestrator.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// RegistryFrom extracts the document registry from context.
func RegistryFrom(ctx context.Context) *dedupe.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// FactsFrom extracts the fact extractor from context.
func FactsFrom(ctx context.Context) *facts.Extractor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Facts
	}
	return nil
}

// BusFrom extracts the progress bus from context.
func BusFrom(ctx context.Context) *progress.Bus {
	if s := ServicesFrom(ctx); s != nil {
		return s.Bus
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// AccessFrom extracts the access oracle from context. Nil means allow.
func AccessFrom(ctx context.Context) types.AccessOracle {
	if s := ServicesFrom(ctx); s != nil {
		return s.Access
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}
