package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// DocumentsResponse lists a case's registered documents.
type DocumentsResponse struct {
	Documents []*types.Document `json:"documents"`
}

// ListDocumentsEndpoint handles GET /discovery/documents/{case}.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/discovery/documents/{case}", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List a case's documents
//	@Tags			discovery
//	@Produce		json
//	@Param			X-Case-Id	header		string	true	"Case identity"
//	@Param			case		path		string	true	"Case name"
//	@Success		200			{object}	DocumentsResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/discovery/documents/{case} [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	caseID, ok := requireCase(w, r, r.PathValue("case"))
	if !ok {
		return
	}

	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "registry not initialized")
		return
	}
	docs, err := registry.ListDocuments(caseID)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "documents <case>",
		Short: "List a case's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithCase(args[0])
			var resp DocumentsResponse
			if err := client.Get(cmd.Context(), "/discovery/documents/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteDocumentEndpoint handles DELETE /discovery/documents/{case}/{documentId}:
// it removes the document's chunks from the vector collections.
type DeleteDocumentEndpoint struct{}

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/discovery/documents/{case}/{documentId}", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

// DeleteDocumentResponse reports how many chunks were removed.
type DeleteDocumentResponse struct {
	ChunksDeleted int `json:"chunksDeleted"`
}

// handler godoc
//
//	@Summary		Delete a document's chunks
//	@Tags			discovery
//	@Produce		json
//	@Param			X-Case-Id	header		string	true	"Case identity"
//	@Param			case		path		string	true	"Case name"
//	@Param			documentId	path		string	true	"Document ID"
//	@Success		200			{object}	DeleteDocumentResponse
//	@Failure		403			{object}	ErrorResponse
//	@Router			/discovery/documents/{case}/{documentId} [delete]
func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	caseID, ok := requireCase(w, r, r.PathValue("case"))
	if !ok {
		return
	}

	store := svcctx.StoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store not initialized")
		return
	}
	count, err := store.Delete(r.Context(), caseID, r.PathValue("documentId"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteDocumentResponse{ChunksDeleted: count})
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var caseName string
	cmd := &cobra.Command{
		Use:   "delete-document <document-id>",
		Short: "Delete a document's chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" {
				return fmt.Errorf("--case is required")
			}
			client := api.NewClient(getServerURL()).WithCase(caseName)
			return client.Delete(cmd.Context(),
				"/discovery/documents/"+caseName+"/"+args[0])
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	return cmd
}
