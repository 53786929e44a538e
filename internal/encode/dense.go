// Package encode turns chunk text into dense and sparse vector
// representations.
package encode

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/caselight/caselight/internal/providers"
	"github.com/caselight/caselight/internal/types"
)

// DenseConfig tunes the dense encoder.
type DenseConfig struct {
	// BatchSize is the number of texts per embedding request. Default 32.
	BatchSize int

	// MaxAttempts and MaxDelay bound retries on transient embedding errors.
	MaxAttempts uint
	MaxDelay    time.Duration
}

// DenseEncoder embeds chunk texts in batches.
type DenseEncoder struct {
	cfg      DenseConfig
	embedder providers.Embedder
	logger   *slog.Logger
}

// NewDense creates a dense encoder.
func NewDense(cfg DenseConfig, embedder providers.Embedder, logger *slog.Logger) *DenseEncoder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DenseEncoder{cfg: cfg, embedder: embedder, logger: logger}
}

// EncodeChunks fills DenseVector on each chunk. A batch that keeps failing
// after retries fails the whole call; partial results are not written.
func (d *DenseEncoder) EncodeChunks(ctx context.Context, chunks []*types.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := d.Encode(ctx, texts)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		c.DenseVector = vecs[i]
	}
	return nil
}

// Encode embeds texts in order, batching and retrying transient failures.
// Every returned vector is L2-normalized.
func (d *DenseEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var vecs [][]float32
		err := retry.Do(
			func() error {
				var err error
				vecs, err = d.embedder.Embed(ctx, batch)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(d.cfg.MaxAttempts),
			retry.MaxDelay(d.cfg.MaxDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return types.KindOf(err).IsRetryable()
			}),
			retry.OnRetry(func(n uint, err error) {
				d.logger.Warn("embedding batch retry",
					"attempt", n+1,
					"batch_start", start,
					"error", err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, types.Errorf(types.ErrKindComponentFailure,
				"embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for _, v := range vecs {
			Normalize(v)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as-is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
