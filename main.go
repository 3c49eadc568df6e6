package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/providers/openai"
	"paper-atlas/providers/semanticscholar"
	"paper-atlas/providers/unpaywall"
	"paper-atlas/queue"
	"paper-atlas/services"
	"paper-atlas/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

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

	// Setup Database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.Paper{}, &models.Collection{}, &models.CollectionPaper{}, &models.Figure{})

	// Setup Storage
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

	// Setup Broker & Providers
	broker := queue.NewBroker(cfg)
	defer broker.Close()
	metadata := semanticscholar.NewClient(cfg, logging)
	unpaywallFetcher := unpaywall.NewFetcher(cfg, logging)
	embedder := openai.NewEmbedder(cfg, logging)

	// Setup Services
	extractor := services.NewExtractor(logging)
	pipeline := &services.Pipeline{
		DB:             db,
		Broker:         broker,
		Blobs:          blobs,
		Vectors:        vectors,
		Unpaywall:      unpaywallFetcher,
		Embedder:       embedder,
		Extractor:      extractor,
		FiguresEnabled: cfg.FiguresEnabled,
		Logger:         logging,
	}
	engine := services.NewExpansionEngine(db, metadata, embedder, pipeline, cfg, logging)
	analyzer := services.NewSimilarityAnalyzer(logging)
	checkpoints, err := services.NewCheckpointManager(cfg.CheckpointDir, logging)
	if err != nil {
		logging.Fatal("Checkpoint dir setup failed", zap.Error(err))
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupCollectionRoutes(router, db, pipeline, logging)
	setupPaperRoutes(router, db, pipeline, metadata, logging)
	setupExpandRoutes(router, db, engine, logging)
	setupSimilarityRoutes(router, analyzer, embedder, logging)
	setupRetrievalRoutes(router, vectors, embedder, logging)
	setupCheckpointRoutes(router, checkpoints, logging)
	setupJobRoutes(router, broker, logging)

	// Setup Cron: Reconciliation-Sweep für hängengebliebene Downloads
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		requeued, err := pipeline.RequeueStuckDownloads(context.Background())
		if err != nil {
			logging.Error("Reconciliation sweep failed", zap.Error(err))
		} else if requeued > 0 {
			logging.Info("Reconciliation sweep completed", zap.Int("requeued", requeued))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func setupCollectionRoutes(router *gin.Engine, db *gorm.DB, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/collections")

	rg.POST("/", func(c *gin.Context) {
		var col models.Collection
		if err := c.ShouldBindJSON(&col); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if col.UserID == 0 || col.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and name are required"})
			return
		}
		if err := db.Create(&col).Error; err != nil {
			log.Error("Failed to create collection", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create collection"})
			return
		}
		c.JSON(http.StatusCreated, col)
	})

	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.Collection{})
		if userID := c.Query("user_id"); userID != "" {
			query = query.Where("user_id = ?", userID)
		}
		var cols []models.Collection
		if err := query.Order("created_at desc").Find(&cols).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, cols)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var col models.Collection
		if err := db.First(&col, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, col)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := pipeline.RemoveCollection(c.Request.Context(), id); err != nil {
			log.Error("Failed to remove collection", zap.Uint("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove collection"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "collection removed"})
	})

	// Status-Report: Papers der Collection samt abgeleitetem Gesamtstatus
	// und Zählern pro Status.
	rg.GET("/:id/status", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		papers, links, err := loadCollectionPapers(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		type paperStatus struct {
			PaperID       string               `json:"paper_id"`
			Title         string               `json:"title"`
			TextStatus    models.VectorStatus  `json:"text_vector_status"`
			ImageStatus   models.VectorStatus  `json:"image_vector_status"`
			OverallStatus models.OverallStatus `json:"overall_status"`
			Ready         bool                 `json:"ready_for_retrieval"`
		}
		counts := map[models.OverallStatus]int{}
		statuses := make([]paperStatus, 0, len(papers))
		for _, p := range papers {
			overall := p.OverallStatus()
			counts[overall]++
			statuses = append(statuses, paperStatus{
				PaperID:       p.PaperID,
				Title:         p.Title,
				TextStatus:    p.TextVectorStatus,
				ImageStatus:   p.ImageVectorStatus,
				OverallStatus: overall,
				Ready:         models.IsReadyForRetrieval(p.TextVectorStatus),
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"total":  len(links),
			"counts": counts,
			"papers": statuses,
		})
	})

	rg.GET("/:id/graph", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		papers, links, err := loadCollectionPapers(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, models.BuildCollectionGraph(papers, links))
	})
}

// loadCollectionPapers lädt Links und zugehörige Paper-Zeilen einer Collection.
func loadCollectionPapers(db *gorm.DB, collectionID uint) ([]models.Paper, []models.CollectionPaper, error) {
	var links []models.CollectionPaper
	if err := db.Where("collection_id = ?", collectionID).Find(&links).Error; err != nil {
		return nil, nil, err
	}
	if len(links) == 0 {
		return nil, links, nil
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.PaperID
	}
	var papers []models.Paper
	if err := db.Where("paper_id IN ?", ids).Find(&papers).Error; err != nil {
		return nil, nil, err
	}
	return papers, links, nil
}

func setupPaperRoutes(router *gin.Engine, db *gorm.DB, pipeline *services.Pipeline, metadata providers.MetadataProvider, log *zap.Logger) {
	router.GET("/search", func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		papers, err := metadata.SearchPapers(c.Request.Context(), query, limit)
		if err != nil {
			log.Error("Paper search failed", zap.String("query", query), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "metadata service error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"papers": papers, "count": len(papers)})
	})

	rg := router.Group("/collections/:id/papers")

	// Seed-Papers aus der Suche in die Collection übernehmen (Degree 0).
	rg.POST("/", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Papers []models.Paper `json:"papers" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		added, queued := 0, 0
		for i := range req.Papers {
			paper := &req.Papers[i]
			if paper.PaperID == "" {
				continue
			}
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "paper_id"}},
				DoNothing: true,
			}).Create(paper).Error; err != nil {
				log.Error("Failed to upsert paper", zap.String("paperId", paper.PaperID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			link := models.CollectionPaper{
				CollectionID:     id,
				PaperID:          paper.PaperID,
				RelationshipType: models.RelationSearch,
				Degree:           0,
			}
			tx := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
			if tx.Error != nil {
				log.Error("Failed to link paper", zap.String("paperId", paper.PaperID), zap.Error(tx.Error))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			if tx.RowsAffected == 0 {
				continue
			}
			added++

			if paper.HasDownloadSource() {
				jobID, err := pipeline.EnqueueDownload(c.Request.Context(), paper, id)
				if err != nil {
					log.Warn("Download enqueue failed", zap.String("paperId", paper.PaperID), zap.Error(err))
					continue
				}
				if jobID != "" {
					queued++
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"added_count": added, "queued_downloads": queued})
	})

	// Batch-Entfernung: Teilerfolg ist ein eigener, berichtbarer Ausgang
	// mit eigenem Status-Code.
	rg.DELETE("/", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			PaperIDs []string `json:"paper_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || len(req.PaperIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paper_ids is required"})
			return
		}

		results := pipeline.RemovePapers(c.Request.Context(), id, req.PaperIDs)
		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		status := http.StatusOK
		if succeeded == 0 {
			status = http.StatusBadRequest
		} else if succeeded < len(results) {
			status = http.StatusMultiStatus
		}
		c.JSON(status, gin.H{
			"succeeded": succeeded,
			"failed":    len(results) - succeeded,
			"results":   results,
		})
	})

	rg.DELETE("/:paperId", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := pipeline.RemovePaper(c.Request.Context(), id, c.Param("paperId")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "paper removed"})
	})

	rg.POST("/:paperId/reindex", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		jobID, err := pipeline.Reindex(c.Request.Context(), c.Param("paperId"), id)
		if err != nil {
			log.Error("Reindex failed", zap.String("paperId", c.Param("paperId")), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	})

	// Manueller Upload: die PDF liegt schon im Blob-Store, nur noch
	// indexieren.
	rg.POST("/:paperId/upload", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			StorageKey string `json:"storage_key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storage_key is required"})
			return
		}
		paperID := c.Param("paperId")
		if err := db.Model(&models.Paper{}).Where("paper_id = ?", paperID).
			Update("storage_path", req.StorageKey).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		jobID, err := pipeline.EnqueueIndexing(c.Request.Context(), paperID, id, req.StorageKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue indexing"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
	})
}

func setupExpandRoutes(router *gin.Engine, db *gorm.DB, engine *services.ExpansionEngine, log *zap.Logger) {
	// collectionQuery löst die Forschungsfrage einer Collection auf; leer,
	// wenn keine gesetzt ist.
	collectionQuery := func(collectionID uint) string {
		if collectionID == 0 {
			return ""
		}
		var col models.Collection
		if err := db.First(&col, collectionID).Error; err != nil {
			return ""
		}
		return col.ResearchQuestion
	}

	rg := router.Group("/expand")

	rg.POST("/preview", func(c *gin.Context) {
		var req struct {
			SourcePaperID   string `json:"source_paper_id" binding:"required"`
			CollectionID    uint   `json:"collection_id"`
			Direction       string `json:"direction"`
			InfluentialOnly bool   `json:"influential_only"`
			MaxPapers       int    `json:"max_papers"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Direction == "" {
			req.Direction = string(services.DirectionBoth)
		}

		result, err := engine.Preview(c.Request.Context(), services.PreviewRequest{
			SourcePaperID:   req.SourcePaperID,
			CollectionID:    req.CollectionID,
			Direction:       services.Direction(req.Direction),
			InfluentialOnly: req.InfluentialOnly,
			MaxPapers:       req.MaxPapers,
			Query:           collectionQuery(req.CollectionID),
		})
		if err != nil {
			log.Error("Expansion preview failed", zap.String("source", req.SourcePaperID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/deep", func(c *gin.Context) {
		var req struct {
			CollectionID    uint     `json:"collection_id" binding:"required"`
			SeedPaperIDs    []string `json:"seed_paper_ids" binding:"required"`
			Depth           int      `json:"depth"`
			Direction       string   `json:"direction"`
			InfluentialOnly bool     `json:"influential_only"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Direction == "" {
			req.Direction = string(services.DirectionBoth)
		}

		result, err := engine.ExpandToDepth(c.Request.Context(), services.ExpandRequest{
			CollectionID:    req.CollectionID,
			SeedPaperIDs:    req.SeedPaperIDs,
			Depth:           req.Depth,
			Direction:       services.Direction(req.Direction),
			InfluentialOnly: req.InfluentialOnly,
			Query:           collectionQuery(req.CollectionID),
		})
		if err != nil {
			log.Error("Deep expansion failed", zap.Uint("collectionId", req.CollectionID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/collections/:id/expand/accept", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Selections []*services.ExpandCandidate `json:"selections" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		result, err := engine.Accept(c.Request.Context(), id, req.Selections)
		if err != nil {
			log.Error("Expansion accept failed", zap.Uint("collectionId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept candidates"})
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func setupSimilarityRoutes(router *gin.Engine, analyzer *services.SimilarityAnalyzer, embedder services.QueryEmbedder, log *zap.Logger) {
	router.POST("/similarity/analyze", func(c *gin.Context) {
		var req struct {
			QueryText      string               `json:"query_text"`
			QueryEmbedding []float32            `json:"query_embedding"`
			Candidates     map[string][]float32 `json:"candidates" binding:"required"`
			BucketCount    int                  `json:"bucket_count"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		queryVec := req.QueryEmbedding
		if len(queryVec) == 0 {
			if req.QueryText == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "query_text or query_embedding is required"})
				return
			}
			var err error
			queryVec, err = embedder.EmbedQuery(c.Request.Context(), req.QueryText)
			if err != nil {
				log.Error("Query embedding failed", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "embedding service error"})
				return
			}
		}

		result, err := analyzer.Analyze(queryVec, req.Candidates, req.BucketCount)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func setupRetrievalRoutes(router *gin.Engine, vectors *storage.VectorStore, embedder services.QueryEmbedder, log *zap.Logger) {
	router.POST("/collections/:id/query", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			Question string `json:"question" binding:"required"`
			Limit    int    `json:"limit"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
			return
		}
		if req.Limit <= 0 {
			req.Limit = 10
		}

		queryVec, err := embedder.EmbedQuery(c.Request.Context(), req.Question)
		if err != nil {
			log.Error("Query embedding failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "embedding service error"})
			return
		}
		chunks, err := vectors.SearchChunks(c.Request.Context(), queryVec, id, req.Limit)
		if err != nil {
			log.Error("Chunk search failed", zap.Uint("collectionId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "vector store error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"chunks": chunks})
	})
}

func setupCheckpointRoutes(router *gin.Engine, checkpoints *services.CheckpointManager, log *zap.Logger) {
	rg := router.Group("/collections/:id/checkpoint")

	rg.GET("/", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		cp, err := checkpoints.Load(id)
		if err != nil {
			log.Error("Checkpoint load failed", zap.Uint("collectionId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkpoint load failed"})
			return
		}
		if cp == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no checkpoint"})
			return
		}
		c.JSON(http.StatusOK, cp)
	})

	rg.POST("/", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req struct {
			LastPaperID    string               `json:"last_paper_id"`
			LastQuestionID string               `json:"last_question_id"`
			Results        []services.EvalResult `json:"results"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := checkpoints.Save(id, req.LastPaperID, req.LastQuestionID, req.Results); err != nil {
			log.Error("Checkpoint save failed", zap.Uint("collectionId", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkpoint save failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "checkpoint saved", "completed_questions": len(req.Results)})
	})

	rg.DELETE("/", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := checkpoints.Delete(id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkpoint delete failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "checkpoint deleted"})
	})
}

func setupJobRoutes(router *gin.Engine, broker *queue.Broker, log *zap.Logger) {
	rg := router.Group("/jobs")

	rg.GET("/queues", func(c *gin.Context) {
		counts, err := broker.AllCounts()
		if err != nil {
			log.Error("Queue introspection failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "broker error"})
			return
		}
		c.JSON(http.StatusOK, counts)
	})

	rg.GET("/queues/:name", func(c *gin.Context) {
		counts, err := broker.QueueCounts(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown queue"})
			return
		}
		c.JSON(http.StatusOK, counts)
	})
}
