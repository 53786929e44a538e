package endpoints

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// ProcessFileInput is one inline file in a process request.
type ProcessFileInput struct {
	Name          string `json:"name"`
	ContentBase64 string `json:"contentBase64"`
}

// ProcessRequest is the request body for starting a processing job.
type ProcessRequest struct {
	CaseName                 string             `json:"caseName"`
	Files                    []ProcessFileInput `json:"files,omitempty"`
	RemoteFolderRef          string             `json:"remoteFolderRef,omitempty"`
	ProductionMetadata       map[string]string  `json:"productionMetadata,omitempty"`
	EnableFactExtraction     bool               `json:"enableFactExtraction"`
	EnableDeficiencyAnalysis bool               `json:"enableDeficiencyAnalysis"`
	RTPDocumentID            string             `json:"rtpDocumentId,omitempty"`
	OCResponseDocumentID     string             `json:"ocResponseDocumentId,omitempty"`
}

// ProcessResponse acknowledges an accepted job.
type ProcessResponse struct {
	ProcessingID   string `json:"processingId"`
	WebsocketTopic string `json:"websocketTopic"`
}

// ProcessEndpoint handles POST /discovery/process.
type ProcessEndpoint struct{}

func (e *ProcessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/discovery/process", e.handler
}

func (e *ProcessEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start processing a discovery production
//	@Description	Accepts PDF files (inline or by folder ref) and starts the processing pipeline
//	@Tags			discovery
//	@Accept			json
//	@Produce		json
//	@Param			X-Case-Id	header		string			true	"Case identity"
//	@Param			request		body		ProcessRequest	true	"Process request"
//	@Success		202			{object}	ProcessResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/discovery/process [post]
func (e *ProcessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caseID, ok := requireCase(w, r, req.CaseName)
	if !ok {
		return
	}

	files := make([]types.InputFile, 0, len(req.Files))
	for _, f := range req.Files {
		data, err := base64.StdEncoding.DecodeString(f.ContentBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s: invalid base64 content", f.Name))
			return
		}
		files = append(files, types.InputFile{Name: f.Name, Bytes: data})
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	processingID, topic, err := orch.Submit(&types.JobRequest{
		CaseName:                 caseID,
		Files:                    files,
		RemoteFolderRef:          req.RemoteFolderRef,
		ProductionMetadata:       req.ProductionMetadata,
		EnableFactExtraction:     req.EnableFactExtraction,
		EnableDeficiencyAnalysis: req.EnableDeficiencyAnalysis,
		RTPDocumentID:            req.RTPDocumentID,
		OCResponseDocumentID:     req.OCResponseDocumentID,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ProcessResponse{
		ProcessingID:   processingID,
		WebsocketTopic: topic,
	})
}

func (e *ProcessEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		caseName   string
		folderRef  string
		withFacts  bool
		production string
	)
	cmd := &cobra.Command{
		Use:   "process [files...]",
		Short: "Start processing discovery PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" {
				return fmt.Errorf("--case is required")
			}
			req := ProcessRequest{
				CaseName:             caseName,
				RemoteFolderRef:      folderRef,
				EnableFactExtraction: withFacts,
			}
			if production != "" {
				req.ProductionMetadata = map[string]string{"productionBatch": production}
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				req.Files = append(req.Files, ProcessFileInput{
					Name:          path,
					ContentBase64: base64.StdEncoding.EncodeToString(data),
				})
			}

			ctx := cmd.Context()
			client := api.NewClient(getServerURL()).WithCase(caseName)
			var resp ProcessResponse
			if err := client.Post(ctx, "/discovery/process", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	cmd.Flags().StringVar(&folderRef, "folder", "", "Server-side folder of PDFs instead of inline files")
	cmd.Flags().BoolVar(&withFacts, "facts", false, "Enable fact extraction")
	cmd.Flags().StringVar(&production, "production-batch", "", "Production batch label")
	return cmd
}
