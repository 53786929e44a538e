package endpoints

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/svcctx"
	"github.com/caselight/caselight/internal/types"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// EventsEndpoint streams a job's progress topic over server-sent events.
// The first frame is hello { lastSeq }; clients reconcile missed ranges
// with a status call.
type EventsEndpoint struct{}

func (e *EventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/discovery/events/{processingId}", e.handler
}

func (e *EventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream progress events for a job
//	@Description	Server-sent events on the job's topic; frames are JSON {seq, ts, type, payload}
//	@Tags			discovery
//	@Produce		text/event-stream
//	@Param			X-Case-Id		header	string	true	"Case identity"
//	@Param			processingId	path	string	true	"Processing ID"
//	@Success		200
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/discovery/events/{processingId} [get]
func (e *EventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("processingId")
	caseID, ok := requireCase(w, r, "")
	if !ok {
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	bus := svcctx.BusFrom(r.Context())
	if orch == nil || bus == nil {
		writeError(w, http.StatusServiceUnavailable, "server not initialized")
		return
	}
	job, err := orch.Status(id)
	if err != nil {
		writeKindError(w, err)
		return
	}
	if job.CaseName != caseID {
		writeError(w, http.StatusForbidden, "job belongs to another case")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	topic := types.TopicKey(caseID, id)
	sub := bus.Subscribe(topic)
	defer bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeFrame(w, "hello", map[string]any{"lastSeq": bus.LastSeq(topic)})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-sub.C:
			if !open {
				return
			}
			writeFrame(w, string(event.Type), event)
			flusher.Flush()
			if event.Type.Terminal() {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, eventName string, data any) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, encoded)
}

func (e *EventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var caseName string
	cmd := &cobra.Command{
		Use:   "events <processing-id>",
		Short: "Stream progress events for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" {
				return fmt.Errorf("--case is required")
			}
			req, err := http.NewRequestWithContext(cmd.Context(), "GET",
				getServerURL()+"/discovery/events/"+args[0], nil)
			if err != nil {
				return err
			}
			req.Header.Set(caseHeader, caseName)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned status %d", resp.StatusCode)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				fmt.Fprintln(os.Stdout, scanner.Text())
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&caseName, "case", "", "Case name (required)")
	return cmd
}
