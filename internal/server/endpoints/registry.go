package endpoints

import (
	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/vectorstore"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	QdrantManager *vectorstore.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&ServerStatusEndpoint{QdrantManager: cfg.QdrantManager},

		// Processing endpoints
		&ProcessEndpoint{},
		&StatusEndpoint{},
		&CancelEndpoint{},
		&EventsEndpoint{},

		// Retrieval endpoints
		&SearchEndpoint{},
		&ListDocumentsEndpoint{},
		&DeleteDocumentEndpoint{},

		// Fact endpoints
		&ListFactsEndpoint{},
		&EditFactEndpoint{},
		&DeleteFactEndpoint{},

		// API documentation
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}
