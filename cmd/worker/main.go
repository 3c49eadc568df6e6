package main

import (
	"context"
	"log"

	"paper-atlas/config"
	"paper-atlas/providers/openai"
	"paper-atlas/providers/pdffigures"
	"paper-atlas/providers/unpaywall"
	"paper-atlas/queue"
	"paper-atlas/services"
	"paper-atlas/storage"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Worker-Prozess der Ingestion-Pipeline. Konsumiert die drei Queues des
// Brokers; die Concurrency pro Queue verwaltet der Broker, keine globale
// Ordnung zwischen Papers.
func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}

	blobs, err := storage.NewPDFStore(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	vectors, err := storage.NewVectorStore(cfg)
	if err != nil {
		logging.Fatal("Qdrant connection failed", zap.Error(err))
	}
	if err := vectors.EnsureCollection(context.Background()); err != nil {
		logging.Fatal("Qdrant collection setup failed", zap.Error(err))
	}

	broker := queue.NewBroker(cfg)
	defer broker.Close()

	embedder := openai.NewEmbedder(cfg, logging)
	extractor := services.NewExtractor(logging)
	figurePipeline := &services.FigurePipeline{
		DB:        db,
		Sidecar:   pdffigures.NewClient(cfg, logging),
		Vision:    openai.NewVisionDetector(cfg, logging),
		Analyzer:  openai.NewCaptioner(cfg, logging),
		Embedder:  embedder,
		Store:     vectors,
		Extractor: extractor,
		Strategy:  cfg.FigureDetection,
		Logger:    logging,
	}
	pipeline := &services.Pipeline{
		DB:             db,
		Broker:         broker,
		Blobs:          blobs,
		Vectors:        vectors,
		Unpaywall:      unpaywall.NewFetcher(cfg, logging),
		Embedder:       embedder,
		Extractor:      extractor,
		Figures:        figurePipeline,
		FiguresEnabled: cfg.FiguresEnabled,
		Logger:         logging,
	}

	srv := asynq.NewServer(queue.RedisOpt(cfg), asynq.Config{
		Concurrency: 6,
		// Downloads zuerst, damit die Folge-Stufen Nachschub bekommen.
		Queues: map[string]int{
			queue.QueueDownload:       3,
			queue.QueueIndexing:       2,
			queue.QueueFigureAnalysis: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDownload, pipeline.HandleDownload)
	mux.HandleFunc(queue.TypeIndexing, pipeline.HandleIndexing)
	mux.HandleFunc(queue.TypeFigureAnalysis, pipeline.HandleFigureAnalysis)

	logging.Info("Starting worker",
		zap.String("redis", cfg.RedisAddr),
		zap.String("figureDetection", cfg.FigureDetection))
	if err := srv.Run(mux); err != nil {
		logging.Fatal("Worker stopped", zap.Error(err))
	}
}
