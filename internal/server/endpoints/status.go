package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// StatusEndpoint handles GET /discovery/status/{processingId}.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/discovery/status/{processingId}", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a processing job snapshot
//	@Tags			discovery
//	@Produce		json
//	@Param			processingId	path		string	true	"Processing ID"
//	@Success		200				{object}	types.ProcessingJob
//	@Failure		404				{object}	ErrorResponse
//	@Router			/discovery/status/{processingId} [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("processingId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "processing id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}
	job, err := orch.Status(id)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <processing-id>",
		Short: "Get a processing job snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var job types.ProcessingJob
			if err := client.Get(cmd.Context(), "/discovery/status/"+args[0], &job); err != nil {
				return err
			}
			return api.Output(job)
		},
	}
}

// CancelEndpoint handles POST /discovery/cancel/{processingId}.
type CancelEndpoint struct{}

func (e *CancelEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/discovery/cancel/{processingId}", e.handler
}

func (e *CancelEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a processing job
//	@Tags			discovery
//	@Param			processingId	path	string	true	"Processing ID"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/discovery/cancel/{processingId} [post]
func (e *CancelEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("processingId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "processing id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}
	if err := orch.Cancel(id); err != nil {
		writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *CancelEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <processing-id>",
		Short: "Cancel a processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			return client.Post(cmd.Context(), "/discovery/cancel/"+args[0], nil, nil)
		},
	}
}
