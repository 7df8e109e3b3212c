// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"time"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/reembed"
	"github.com/poiesic/cinevec/storage/qdrant"
)

// Index backends.
const (
	BackendBadger = "badger"
	BackendQdrant = "qdrant"
)

// Config is the application configuration.
type Config struct {
	Embedding EmbeddingConfig `koanf:"embedding"`
	Index     IndexConfig     `koanf:"index"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Concepts  ConceptsConfig  `koanf:"concepts"`
	Server    ServerConfig    `koanf:"server"`
	Reembed   ReembedConfig   `koanf:"reembed"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// EmbeddingConfig addresses the OpenAI-compatible embedding provider.
type EmbeddingConfig struct {
	Host      string `koanf:"host" validate:"required,url"`
	Model     string `koanf:"model" validate:"required"`
	APIKey    string `koanf:"api_key"`
	Dimension int    `koanf:"dimension" validate:"gte=0"`
	BatchSize int    `koanf:"batch_size" validate:"gte=1"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Backend    string       `koanf:"backend" validate:"oneof=badger qdrant"`
	Collection string       `koanf:"collection" validate:"required,excludesall=:/\\"`
	Badger     BadgerConfig `koanf:"badger"`
	Qdrant     QdrantConfig `koanf:"qdrant"`
}

// BadgerConfig configures the embedded index.
type BadgerConfig struct {
	Path        string `koanf:"path"`
	InMemory    bool   `koanf:"in_memory"`
	SnapshotDir string `koanf:"snapshot_dir"`
}

// QdrantConfig configures the Qdrant index.
type QdrantConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=0,lte=65535"`
	RESTURL string        `koanf:"rest_url" validate:"omitempty,url"`
	APIKey  string        `koanf:"api_key"`
	UseTLS  bool          `koanf:"use_tls"`
	Timeout time.Duration `koanf:"timeout"`
}

// CatalogConfig locates the metadata store.
type CatalogConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ConceptsConfig configures the concept store and composition.
type ConceptsConfig struct {
	Collection  string  `koanf:"collection" validate:"required,excludesall=:/\\"`
	ScaleFactor float64 `koanf:"scale_factor" validate:"gt=0,lte=1"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow      time.Duration `koanf:"rate_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// ReembedConfig tunes the re-embedding job.
type ReembedConfig struct {
	BatchSize         int           `koanf:"batch_size" validate:"gte=1"`
	PoolSize          int           `koanf:"pool_size" validate:"gte=1"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=1"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

func defaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Embedding: EmbeddingConfig{
			Host:      aiDefaults.EmbeddingHost,
			Model:     aiDefaults.EmbeddingModel,
			APIKey:    aiDefaults.APIKey,
			Dimension: 0, // learned from the provider
			BatchSize: aiDefaults.BatchSize,
		},
		Index: IndexConfig{
			Backend:    BackendBadger,
			Collection: "movies",
			Badger: BadgerConfig{
				Path:        "data/index",
				SnapshotDir: "data/snapshots",
			},
			Qdrant: QdrantConfig{
				Host:    "localhost",
				Port:    6334,
				Timeout: 5 * time.Minute,
			},
		},
		Catalog: CatalogConfig{
			Path: "data/catalog.db",
		},
		Concepts: ConceptsConfig{
			Collection:  "movie_concepts",
			ScaleFactor: 0.3,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateWindow:      time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Reembed: ReembedConfig{
			BatchSize:  reembed.DefaultBatchSize,
			PoolSize:   4,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// AI converts the embedding section to provider options.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimension(c.Embedding.Dimension),
		ai.WithBatchSize(c.Embedding.BatchSize),
	)
}

// QdrantIndex converts the qdrant section to index configuration.
func (c *Config) QdrantIndex() qdrant.Config {
	q := c.Index.Qdrant
	return qdrant.Config{
		Host:    q.Host,
		Port:    q.Port,
		RESTURL: q.RESTURL,
		APIKey:  q.APIKey,
		UseTLS:  q.UseTLS,
		Timeout: q.Timeout,
	}
}

// ReembedJob converts the reembed section to job configuration.
func (c *Config) ReembedJob() *reembed.Config {
	r := c.Reembed
	return &reembed.Config{
		Collection:        c.Index.Collection,
		BatchSize:         r.BatchSize,
		PoolSize:          r.PoolSize,
		ReportInterval:    r.BatchSize,
		MaxRetries:        r.MaxRetries,
		RetryDelay:        r.RetryDelay,
		RequestsPerSecond: r.RequestsPerSecond,
	}
}
