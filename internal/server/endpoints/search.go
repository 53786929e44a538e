package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/vectorstore"
)

// SearchRequest is the request body for hybrid search.
type SearchRequest struct {
	CaseName string              `json:"caseName"`
	Query    string              `json:"query"`
	TopK     int                 `json:"topK,omitempty"`
	Filters  map[string]string   `json:"filters,omitempty"`
	Weights  vectorstore.Weights `json:"weights,omitempty"`
}

// SearchResponse carries the fused hits.
type SearchResponse struct {
	Hits []vectorstore.Hit `json:"hits"`
}

// SearchEndpoint handles POST /discovery/search.
type SearchEndpoint struct{}

func (e *SearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/discovery/search", e.handler
}

func (e *SearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Hybrid search over a case's chunks
//	@Description	Dense + keyword + citation retrieval fused with weighted RRF
//	@Tags			discovery
//	@Accept			json
//	@Produce		json
//	@Param			X-Case-Id	header		string			true	"Case identity"
//	@Param			request		body		SearchRequest	true	"Search request"
//	@Success		200			{object}	SearchResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Router			/discovery/search [post]
func (e *SearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caseID, ok := requireCase(w, r, req.CaseName)
	if !ok {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil || svcs.Store == nil || svcs.Dense == nil {
		writeError(w, http.StatusServiceUnavailable, "server not initialized")
		return
	}

	vecs, err := svcs.Dense.Encode(r.Context(), []string{req.Query})
	if err != nil {
		writeKindError(w, err)
		return
	}

	hits, err := svcs.Store.Search(r.Context(), caseID, vectorstore.Query{
		DenseVec:        vecs[0],
		SparseKeywords:  svcs.Keywords.Encode(req.Query),
		SparseCitations: svcs.Citations.Encode(req.Query),
		TopK:            req.TopK,
		Filters:         req.Filters,
		Weights:         req.Weights,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits})
}

func (e *SearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		caseName string
		topK     int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over a case's chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" {
				return fmt.Errorf("--case is required")
			}
			client := api.NewClient(getServerURL()).WithCase(caseName)
			var resp SearchResponse
			req := SearchRequest{CaseName: caseName, Query: args[0], TopK: topK}
			if err := client.Post(cmd.Context(), "/discovery/search", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	cmd.Flags().IntVar(&topK, "top-k", 10, "Number of results")
	return cmd
}
