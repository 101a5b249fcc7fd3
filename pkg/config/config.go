// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file and the environment, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mudler/faqrecall/rag/types"
)

// Store engines.
const (
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
	EngineChromem  = "chromem"
	EngineQdrant   = "qdrant"
)

// Similarity encoders.
const (
	EncoderLocal = "local"
	EncoderHF    = "hf"
)

// Config holds all application configuration.
type Config struct {
	API         APIConfig         `yaml:"api"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	Store       StoreConfig       `yaml:"store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Cache       CacheConfig       `yaml:"cache"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Support     SupportConfig     `yaml:"support"`
	Ingest      IngestConfig      `yaml:"ingest"`

	// RequestTimeout bounds every external call (embedding, search, generation, judging).
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" yaml:"request_timeout"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `envconfig:"API_HOST" yaml:"host"`
	Port int    `envconfig:"API_PORT" yaml:"port"`
	// InlineEvaluation runs the LLM judge on successful answers before responding.
	InlineEvaluation bool `envconfig:"EVAL_INLINE" yaml:"inline_evaluation"`
}

// Address returns the listen address.
func (c APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OpenAIConfig holds settings for the OpenAI-compatible API used for backend A,
// generation and judging.
type OpenAIConfig struct {
	APIKey         string `envconfig:"OPENAI_API_KEY" yaml:"api_key"`
	BaseURL        string `envconfig:"OPENAI_API_BASE_URL" yaml:"base_url"`
	Model          string `envconfig:"OPENAI_MODEL" yaml:"model"`
	EmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" yaml:"embedding_model"`
	JudgeModel     string `envconfig:"EVAL_JUDGE_MODEL" yaml:"judge_model"`
	// NoTemperatureModels extends the built-in list of model families rejecting temperature.
	NoTemperatureModels []string `envconfig:"LLM_NO_TEMPERATURE_MODELS" yaml:"no_temperature_models"`
}

// HuggingFaceConfig holds settings for backend B.
type HuggingFaceConfig struct {
	APIKey string `envconfig:"HUGGING_FACE_API" yaml:"api_key"`
	URL    string `envconfig:"HF_EMBEDDING_URL" yaml:"url"`
}

// StoreConfig selects and configures the document store engine.
type StoreConfig struct {
	Engine string `envconfig:"STORE_ENGINE" yaml:"engine"`

	MongoURI        string `envconfig:"MONGODB_URI" yaml:"mongo_uri"`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" yaml:"mongo_database"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION_FAQS" yaml:"mongo_collection"`
	IndexOpenAI     string `envconfig:"MONGODB_VECTOR_INDEX_OPENAI" yaml:"index_openai"`
	IndexHF         string `envconfig:"MONGODB_VECTOR_INDEX_HF" yaml:"index_hf"`
	NumCandidates   int    `envconfig:"MONGODB_VECTOR_NUM_CANDIDATES" yaml:"num_candidates"`

	// AllowInvalidCertificates disables TLS certificate validation for the store connection.
	// It is never enabled implicitly.
	AllowInvalidCertificates bool `envconfig:"STORE_TLS_ALLOW_INVALID_CERTIFICATES" yaml:"allow_invalid_certificates"`

	DatabaseURL   string `envconfig:"DATABASE_URL" yaml:"database_url"`
	PostgresTable string `envconfig:"POSTGRES_TABLE" yaml:"postgres_table"`

	ChromemPath       string `envconfig:"CHROMEM_PATH" yaml:"chromem_path"`
	ChromemCollection string `envconfig:"CHROMEM_COLLECTION" yaml:"chromem_collection"`

	QdrantHost       string `envconfig:"QDRANT_HOST" yaml:"qdrant_host"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" yaml:"qdrant_port"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY" yaml:"qdrant_api_key"`
	QdrantUseTLS     bool   `envconfig:"QDRANT_USE_TLS" yaml:"qdrant_use_tls"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" yaml:"qdrant_collection"`

	DimsOpenAI int `envconfig:"EMBEDDING_DIMS_OPENAI" yaml:"dims_openai"`
	DimsHF     int `envconfig:"EMBEDDING_DIMS_HF" yaml:"dims_hf"`
}

// IndexFor returns the similarity index name configured for a provider.
func (c StoreConfig) IndexFor(p types.Provider) string {
	if p == types.ProviderHuggingFace {
		return c.IndexHF
	}
	return c.IndexOpenAI
}

// DimensionsFor returns the vector size configured for a provider.
func (c StoreConfig) DimensionsFor(p types.Provider) int {
	if p == types.ProviderHuggingFace {
		return c.DimsHF
	}
	return c.DimsOpenAI
}

// Indexes returns the index name of every provider.
func (c StoreConfig) Indexes() map[types.Provider]string {
	indexes := map[types.Provider]string{}
	for _, p := range types.Providers {
		indexes[p] = c.IndexFor(p)
	}
	return indexes
}

// RetrievalConfig holds answer generation retrieval settings.
type RetrievalConfig struct {
	Limit    int    `envconfig:"RETRIEVAL_LIMIT" yaml:"limit"`
	Provider string `envconfig:"GENERATION_EMBEDDING_PROVIDER" yaml:"provider"`
}

// CacheConfig holds the embedding cache settings. An empty RedisURL disables the cache.
type CacheConfig struct {
	RedisURL string        `envconfig:"REDIS_URL" yaml:"redis_url"`
	TTL      time.Duration `envconfig:"EMBEDDING_CACHE_TTL" yaml:"ttl"`
}

// EvaluationConfig holds batch evaluation settings.
type EvaluationConfig struct {
	Workers       int           `envconfig:"EVAL_WORKERS" yaml:"workers"`
	MaxWait       time.Duration `envconfig:"EVAL_MAX_WAIT" yaml:"max_wait"`
	RatePerSecond float64       `envconfig:"EVAL_RATE_PER_SECOND" yaml:"rate_per_second"`
	TestsetLimit  int           `envconfig:"EVAL_TESTSET_LIMIT" yaml:"testset_limit"`

	// Encoder selects the semantic similarity encoder: "local" runs EncoderModel in
	// process, "hf" reuses the hf embedding backend.
	Encoder      string `envconfig:"EVAL_ENCODER" yaml:"encoder"`
	EncoderModel string `envconfig:"EVAL_ENCODER_MODEL" yaml:"encoder_model"`
	ModelsDir    string `envconfig:"EVAL_MODELS_DIR" yaml:"models_dir"`

	// RetrievalLimit is the number of contexts scored per question by the retrieval evaluation.
	RetrievalLimit int `envconfig:"EVAL_RETRIEVAL_LIMIT" yaml:"retrieval_limit"`
}

// SupportConfig fills the escalation block of the answer prompt.
type SupportConfig struct {
	CompanyName string `envconfig:"COMPANY_NAME" yaml:"company_name"`
	Email       string `envconfig:"SUPPORT_EMAIL" yaml:"email"`
	Phone       string `envconfig:"SUPPORT_PHONE" yaml:"phone"`
	Hours       string `envconfig:"SUPPORT_HOURS" yaml:"hours"`
}

// IngestConfig holds crawler and extraction settings.
type IngestConfig struct {
	StateFile       string        `envconfig:"INGEST_STATE_FILE" yaml:"state_file"`
	Extractor       string        `envconfig:"INGEST_EXTRACTOR" yaml:"extractor"`
	MinConfidence   float64       `envconfig:"INGEST_MIN_CONFIDENCE" yaml:"min_confidence"`
	MaxChunkSize    int           `envconfig:"INGEST_MAX_CHUNK_SIZE" yaml:"max_chunk_size"`
	PagesPerSecond  float64       `envconfig:"INGEST_PAGES_PER_SECOND" yaml:"pages_per_second"`
	RefreshInterval time.Duration `envconfig:"INGEST_REFRESH_INTERVAL" yaml:"refresh_interval"`
	GitPrivateKey   string        `envconfig:"INGEST_GIT_PRIVATE_KEY" yaml:"git_private_key"`
}

// Load loads configuration: defaults, then the YAML file at configPath (if any),
// then .env, then the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			InlineEvaluation: true,
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o",
			EmbeddingModel: "text-embedding-ada-002",
			JudgeModel:     "o3-mini",
		},
		HuggingFace: HuggingFaceConfig{
			URL: "https://api-inference.huggingface.co/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2",
		},
		Store: StoreConfig{
			Engine:            EngineMongo,
			MongoDatabase:     "manual",
			MongoCollection:   "faqs_regex",
			IndexOpenAI:       "faqOpenAISemanticSeachRegex",
			IndexHF:           "faqSemanticSearch",
			NumCandidates:     100,
			PostgresTable:     "faqs",
			ChromemPath:       "faqs-db",
			ChromemCollection: "faqs",
			QdrantHost:        "localhost",
			QdrantPort:        6334,
			QdrantCollection:  "faqs",
			DimsOpenAI:        1536,
			DimsHF:            384,
		},
		Retrieval: RetrievalConfig{
			Limit:    3,
			Provider: string(types.ProviderOpenAI),
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Evaluation: EvaluationConfig{
			Workers:       4,
			MaxWait:       180 * time.Second,
			RatePerSecond:  2,
			Encoder:        EncoderLocal,
			EncoderModel:   "sentence-transformers/all-MiniLM-L6-v2",
			ModelsDir:      "models",
			RetrievalLimit: 5,
		},
		Support: SupportConfig{
			CompanyName: "our company",
			Email:       "help@example.com",
			Phone:       "+1 555 0100",
			Hours:       "Monday-Friday 09:00-17:00",
		},
		Ingest: IngestConfig{
			StateFile:       "ingest-state.json",
			Extractor:       "regex",
			MinConfidence:   0.7,
			MaxChunkSize:    4000,
			PagesPerSecond:  2,
			RefreshInterval: 24 * time.Hour,
		},
		RequestTimeout: 60 * time.Second,
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT out of range: %d", c.API.Port))
	}

	switch c.Store.Engine {
	case EngineMongo, EnginePostgres, EngineChromem, EngineQdrant:
	default:
		errs = append(errs, fmt.Sprintf("unknown STORE_ENGINE %q", c.Store.Engine))
	}

	if c.Store.NumCandidates <= 0 {
		errs = append(errs, "MONGODB_VECTOR_NUM_CANDIDATES must be positive")
	}
	if c.Retrieval.Limit <= 0 {
		errs = append(errs, "RETRIEVAL_LIMIT must be positive")
	}
	if _, err := types.ParseProvider(c.Retrieval.Provider); err != nil {
		errs = append(errs, fmt.Sprintf("GENERATION_EMBEDDING_PROVIDER: %v", err))
	}
	if c.Evaluation.Workers <= 0 {
		errs = append(errs, "EVAL_WORKERS must be positive")
	}
	switch c.Evaluation.Encoder {
	case EncoderLocal, EncoderHF:
	default:
		errs = append(errs, fmt.Sprintf("unknown EVAL_ENCODER %q", c.Evaluation.Encoder))
	}
	if c.Evaluation.RetrievalLimit <= 0 {
		errs = append(errs, "EVAL_RETRIEVAL_LIMIT must be positive")
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// GenerationProvider returns the parsed embedding provider used for answer generation.
func (c *Config) GenerationProvider() types.Provider {
	p, err := types.ParseProvider(c.Retrieval.Provider)
	if err != nil {
		return types.ProviderOpenAI
	}
	return p
}
