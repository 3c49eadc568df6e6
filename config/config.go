package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Redis für den Job-Broker (asynq)
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// Semantic Scholar Graph API
	SemanticScholarBaseURL string `envconfig:"SEMANTIC_SCHOLAR_BASE_URL" default:"https://api.semanticscholar.org/graph/v1"`
	SemanticScholarAPIKey  string `envconfig:"SEMANTIC_SCHOLAR_API_KEY"`

	// Unpaywall-API für freie Volltexte fallback
	UnpaywallBaseURL string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail   string `envconfig:"UNPAYWALL_EMAIL" required:"true"`

	// OpenAI für Embeddings und Figure-Captioning
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" required:"true"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	CaptionModel   string `envconfig:"CAPTION_MODEL" default:"gpt-4o-mini"`

	// Qdrant Vektor-Store
	QdrantHost string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort int    `envconfig:"QDRANT_PORT" default:"6334"`

	// pdffigures2-Sidecar für Figure-Detection
	PDFFiguresBaseURL string `envconfig:"PDFFIGURES_BASE_URL" default:"http://localhost:8080"`
	// Detection-Strategie: "pdffigures" oder "vision"
	FigureDetection string `envconfig:"FIGURE_DETECTION" default:"pdffigures"`
	FiguresEnabled  bool   `envconfig:"FIGURES_ENABLED" default:"true"`

	// S3 für Roh-PDFs
	S3Key    string `envconfig:"S3_KEY" required:"true"`
	S3Secret string `envconfig:"S3_SECRET" required:"true"`
	S3URL    string `envconfig:"S3_URL" required:"true"`
	S3Region string `envconfig:"S3_REGION" required:"true"`
	S3Bucket string `envconfig:"S3_BUCKET" required:"true"`

	// Checkpoints für Evaluations-Läufe
	CheckpointDir string `envconfig:"CHECKPOINT_DIR" default:"./checkpoints"`

	// Reconciliation-Sweep für hängengebliebene Downloads
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"*/30 * * * *"`

	// Graph-Expansion Limits
	MaxPapersPerNode int `envconfig:"MAX_PAPERS_PER_NODE" default:"10"`
	PreviewCap       int `envconfig:"PREVIEW_CAP" default:"200"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
