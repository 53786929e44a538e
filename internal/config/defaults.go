package config

import "time"

// DefaultSharedCollections are the read-only collections that live outside
// any case namespace. The set is closed at startup.
var DefaultSharedCollections = []string{
	"florida_statutes",
	"fmcsr_regulations",
	"federal_rules",
	"case_law_precedents",
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			APIKey:         "${OPENAI_API_KEY}",
			ChatModel:      "gpt-4o-mini",
			EmbedModel:     "text-embedding-3-small",
			RateLimit:      10,
			EmbedBatchSize: 32,
		},
		VectorStore: VectorStoreConfig{
			URL:               "http://127.0.0.1:6333",
			VectorDim:         1536,
			UpsertBatchSize:   64,
			SparseMaxEntries:  4096,
			SharedCollections: DefaultSharedCollections,
			ManageContainer:   true,
			ContainerImage:    "qdrant/qdrant:latest",
			ContainerName:     "caselight-qdrant",
			HostPort:          "6333",
		},
		Pipeline: PipelineConfig{
			FileConcurrency:     4,
			SegmentConcurrency:  8,
			EmbedInflight:       2,
			UpsertInflight:      4,
			SegmentFailureAbort: 0.25,
		},
		Boundary: BoundaryConfig{
			SoftThreshold:  0.55,
			OCRRelaxFactor: 0.75,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  1400,
			OverlapTokens: 200,
		},
		Facts: FactsConfig{
			DedupCosine:   0.95,
			DedupTextSim:  0.9,
			ClassifyFloor: 0.6,
		},
		Timeouts: TimeoutConfig{
			BoundaryDetect: 120 * time.Second,
			Classify:       30 * time.Second,
			EmbedBatch:     60 * time.Second,
			UpsertBatch:    30 * time.Second,
			FactExtract:    60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			MaxDelay:    30 * time.Second,
		},
	}
}
