package config

// EmbeddingConfig configures the embeddings service capability.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"` // "none" (keyword-only) | "openai" | "deterministic" (test)
	APIKey        string `yaml:"-"`
	BackfillBatch int    `yaml:"backfill_batch"`
	MaxRetries    int    `yaml:"max_retries"`
	BackoffBaseMs int    `yaml:"backoff_base_ms"`
	BackoffCapMs  int    `yaml:"backoff_cap_ms"`
	QueueCapacity int    `yaml:"queue_capacity"`
}
