package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/api"
	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// FactsResponse lists a case's facts.
type FactsResponse struct {
	Facts []*types.Fact `json:"facts"`
}

// ListFactsEndpoint handles GET /discovery/facts/{case}.
type ListFactsEndpoint struct{}

func (e *ListFactsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/discovery/facts/{case}", e.handler
}

func (e *ListFactsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List a case's facts
//	@Tags			facts
//	@Produce		json
//	@Param			X-Case-Id	header		string	true	"Case identity"
//	@Param			case		path		string	true	"Case name"
//	@Param			documentId	query		string	false	"Filter by document"
//	@Success		200			{object}	FactsResponse
//	@Failure		403			{object}	ErrorResponse
//	@Router			/discovery/facts/{case} [get]
func (e *ListFactsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	caseID, ok := requireCase(w, r, r.PathValue("case"))
	if !ok {
		return
	}

	extractor := svcctx.FactsFrom(r.Context())
	if extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "fact extractor not initialized")
		return
	}
	facts, err := extractor.List(r.Context(), caseID, r.URL.Query().Get("documentId"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FactsResponse{Facts: facts})
}

func (e *ListFactsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var documentID string
	cmd := &cobra.Command{
		Use:   "facts <case>",
		Short: "List a case's facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL()).WithCase(args[0])
			path := "/discovery/facts/" + args[0]
			if documentID != "" {
				path += "?documentId=" + documentID
			}
			var resp FactsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "Filter by document id")
	return cmd
}

// EditFactRequest is the body for editing a fact.
type EditFactRequest struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason,omitempty"`
}

// EditFactEndpoint handles PATCH /discovery/facts/{case}/{factId}.
type EditFactEndpoint struct{}

func (e *EditFactEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/discovery/facts/{case}/{factId}", e.handler
}

func (e *EditFactEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Edit a fact's content
//	@Description	Appends to the fact's edit history and re-embeds the new wording
//	@Tags			facts
//	@Accept			json
//	@Produce		json
//	@Param			X-Case-Id	header		string			true	"Case identity"
//	@Param			case		path		string			true	"Case name"
//	@Param			factId		path		string			true	"Fact ID"
//	@Param			request		body		EditFactRequest	true	"Edit request"
//	@Success		200			{object}	types.Fact
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/discovery/facts/{case}/{factId} [patch]
func (e *EditFactEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	caseID, ok := requireCase(w, r, r.PathValue("case"))
	if !ok {
		return
	}
	var req EditFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "content and userId are required")
		return
	}

	extractor := svcctx.FactsFrom(r.Context())
	if extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "fact extractor not initialized")
		return
	}
	fact, err := extractor.EditFact(r.Context(), caseID, r.PathValue("factId"), req.Content, req.UserID, req.Reason)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (e *EditFactEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		caseName string
		content  string
		userID   string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "edit-fact <fact-id>",
		Short: "Edit a fact's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" || content == "" || userID == "" {
				return fmt.Errorf("--case, --content, and --user are required")
			}
			client := api.NewClient(getServerURL()).WithCase(caseName)
			var fact types.Fact
			req := EditFactRequest{Content: content, UserID: userID, Reason: reason}
			path := "/discovery/facts/" + caseName + "/" + args[0]
			if err := client.Patch(cmd.Context(), path, req, &fact); err != nil {
				return err
			}
			return api.Output(fact)
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	cmd.Flags().StringVar(&content, "content", "", "New fact content (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Editing user id (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Edit reason")
	return cmd
}

// DeleteFactRequest carries the audit fields for a soft delete.
type DeleteFactRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// DeleteFactEndpoint handles POST /discovery/facts/{case}/{factId}/delete.
// Deletion is soft: the record is flagged and filtered on read.
type DeleteFactEndpoint struct{}

func (e *DeleteFactEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/discovery/facts/{case}/{factId}/delete", e.handler
}

func (e *DeleteFactEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Soft-delete a fact
//	@Tags			facts
//	@Accept			json
//	@Param			X-Case-Id	header	string				true	"Case identity"
//	@Param			case		path	string				true	"Case name"
//	@Param			factId		path	string				true	"Fact ID"
//	@Param			request		body	DeleteFactRequest	true	"Delete request"
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Router			/discovery/facts/{case}/{factId}/delete [post]
func (e *DeleteFactEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	caseID, ok := requireCase(w, r, r.PathValue("case"))
	if !ok {
		return
	}
	var req DeleteFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	extractor := svcctx.FactsFrom(r.Context())
	if extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "fact extractor not initialized")
		return
	}
	if err := extractor.DeleteFact(r.Context(), caseID, r.PathValue("factId"), req.UserID, req.Reason); err != nil {
		writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteFactEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		caseName string
		userID   string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "delete-fact <fact-id>",
		Short: "Soft-delete a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" || userID == "" {
				return fmt.Errorf("--case and --user are required")
			}
			client := api.NewClient(getServerURL()).WithCase(caseName)
			req := DeleteFactRequest{UserID: userID, Reason: reason}
			path := "/discovery/facts/" + caseName + "/" + args[0] + "/delete"
			return client.Post(cmd.Context(), path, req, nil)
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	cmd.Flags().StringVar(&userID, "user", "", "Deleting user id (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Deletion reason")
	return cmd
}
