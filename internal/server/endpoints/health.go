package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/vectorstore"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Qdrant string `json:"qdrant,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Qdrant: "ok"}

	store := svcctx.StoreFrom(r.Context())
	if store == nil {
		resp.Status = "degraded"
		resp.Qdrant = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := store.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Qdrant = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes Qdrant)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.Qdrant != "" {
				fmt.Printf("Qdrant: %s\n", resp.Qdrant)
			}
			return nil
		},
	}
}

// ServerStatusResponse is the detailed status response.
type ServerStatusResponse struct {
	Server string       `json:"server"`
	Qdrant QdrantStatus `json:"qdrant"`
}

// QdrantStatus shows Qdrant container and health status.
type QdrantStatus struct {
	Container string `json:"container"`
	Health    string `json:"health"`
	URL       string `json:"url"`
}

// ServerStatusEndpoint handles GET /status.
type ServerStatusEndpoint struct {
	// QdrantManager is set by the server since it is not in Services.
	QdrantManager *vectorstore.DockerManager
}

func (e *ServerStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *ServerStatusEndpoint) RequiresInit() bool { return false }

func (e *ServerStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := ServerStatusResponse{
		Server: "running",
	}

	if e.QdrantManager != nil {
		status, err := e.QdrantManager.Status(r.Context())
		if err != nil {
			resp.Qdrant.Container = "error"
		} else {
			resp.Qdrant.Container = string(status)
		}
		resp.Qdrant.URL = e.QdrantManager.URL()
	} else {
		resp.Qdrant.Container = "not_initialized"
	}

	store := svcctx.StoreFrom(r.Context())
	if store != nil {
		if err := store.HealthCheck(r.Context()); err != nil {
			resp.Qdrant.Health = "unhealthy"
		} else {
			resp.Qdrant.Health = "healthy"
		}
	} else {
		resp.Qdrant.Health = "not_initialized"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ServerStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "server-status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ServerStatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Qdrant:\n")
			fmt.Printf("  Container: %s\n", resp.Qdrant.Container)
			fmt.Printf("  Health:    %s\n", resp.Qdrant.Health)
			fmt.Printf("  URL:       %s\n", resp.Qdrant.URL)
			return nil
		},
	}
}
