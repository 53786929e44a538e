package vectorstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caselight/caselight/internal/types"
)

func statusServer(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClientErrorKinds(t *testing.T) {
	ctx := context.Background()

	t.Run("404 maps to not found", func(t *testing.T) {
		c := statusServer(t, http.StatusNotFound, `{"status":{"error":"no such collection"}}`)
		_, err := c.CollectionExists(ctx, "missing")
		if types.KindOf(err) != types.ErrKindNotFound {
			t.Errorf("kind = %v, want not_found", types.KindOf(err))
		}
	})

	t.Run("5xx maps to transient", func(t *testing.T) {
		c := statusServer(t, http.StatusBadGateway, "")
		err := c.UpsertPoints(ctx, "col", []Point{{ID: "a"}})
		if types.KindOf(err) != types.ErrKindTransient {
			t.Errorf("kind = %v, want transient", types.KindOf(err))
		}
	})

	t.Run("4xx maps to component failure", func(t *testing.T) {
		c := statusServer(t, http.StatusBadRequest, `{"status":{"error":"bad vector size"}}`)
		err := c.UpsertPoints(ctx, "col", []Point{{ID: "a"}})
		if types.KindOf(err) != types.ErrKindComponentFailure {
			t.Errorf("kind = %v, want component_failure", types.KindOf(err))
		}
	})

	t.Run("connection refused maps to transient", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1")
		err := c.UpsertPoints(ctx, "col", []Point{{ID: "a"}})
		if types.KindOf(err) != types.ErrKindTransient {
			t.Errorf("kind = %v, want transient", types.KindOf(err))
		}
	})
}

func TestHealthCheck(t *testing.T) {
	t.Run("ok on 200", func(t *testing.T) {
		c := statusServer(t, http.StatusOK, "")
		if err := c.HealthCheck(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unhealthy sentinel on failure", func(t *testing.T) {
		c := statusServer(t, http.StatusServiceUnavailable, "")
		err := c.HealthCheck(context.Background())
		if !errors.Is(err, ErrUnhealthy) {
			t.Errorf("expected ErrUnhealthy, got %v", err)
		}
	})
}

func TestRetrievedPointDenseVector(t *testing.T) {
	t.Run("named vector map", func(t *testing.T) {
		p := RetrievedPoint{Vector: []byte(`{"dense":[0.1,0.2]}`)}
		vec := p.DenseVector()
		if len(vec) != 2 {
			t.Fatalf("len = %d, want 2", len(vec))
		}
	})

	t.Run("bare vector array", func(t *testing.T) {
		p := RetrievedPoint{Vector: []byte(`[0.1,0.2,0.3]`)}
		if len(p.DenseVector()) != 3 {
			t.Error("bare array not decoded")
		}
	})

	t.Run("empty vector", func(t *testing.T) {
		p := RetrievedPoint{}
		if p.DenseVector() != nil {
			t.Error("expected nil for empty vector")
		}
	})
}
