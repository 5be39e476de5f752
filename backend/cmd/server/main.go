package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"scopegraph/backend/internal/adapter"
	"scopegraph/backend/internal/document"
	"scopegraph/backend/internal/extraction"
	"scopegraph/backend/internal/graph"
	"scopegraph/backend/internal/profile"
	"scopegraph/backend/internal/traits"
	"scopegraph/backend/pkg/config"
	"scopegraph/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting knowledge graph server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Failed reads only degrade to empty results in development, and only
	// when explicitly asked for
	repoOpts := []graph.Option{}
	if cfg.DegradeReads && cfg.IsDevelopment() {
		log.Warn("Graph reads will degrade to empty results on failure")
		repoOpts = append(repoOpts, graph.WithFailureMode(graph.DegradeToEmpty))
	}
	repo := graph.NewRepository(driver, repoOpts...)

	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to ensure graph indexes", zap.Error(err))
	}

	// Initialize Postgres profile store
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("Failed to create Postgres pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("Failed to verify Postgres connectivity", zap.Error(err))
	}

	profileStore := profile.NewStore(pool)
	if err := profileStore.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure profile schema", zap.Error(err))
	}

	// Wire the extraction pipeline
	mergeEngine := traits.NewMergeEngine(profileStore,
		traits.WithMinConfidence(cfg.MinTraitConfidence),
	)

	llm := adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID)
	pipeline := extraction.NewPipeline(
		repo,
		adapter.NewEntityExtractor(llm),
		adapter.NewTraitExtractor(llm),
		mergeEngine,
		extraction.Config{
			MinEntityConfidence:       cfg.MinEntityConfidence,
			MinRelationshipConfidence: cfg.MinRelationshipConfidence,
			MinTraitConfidence:        cfg.MinTraitConfidence,
			MaxEntitiesPerChunk:       cfg.MaxEntitiesPerChunk,
			MaxRelationshipsTotal:     cfg.MaxRelationshipsTotal,
			ChunkWorkers:              cfg.ChunkWorkers,
			MaterializeGraph:          cfg.MaterializeGraph,
			MergeTraits:               cfg.MergeTraits,
		},
	)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Ingest a chat message
		api.POST("/ingest/message", func(c *gin.Context) {
			var req struct {
				Text              string `json:"text" binding:"required"`
				UserID            string `json:"user_id" binding:"required"`
				Scope             string `json:"scope"`
				MessageID         string `json:"message_id"`
				ConversationTitle string `json:"conversation_title"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			scope, ownerID, err := resolveIngestScope(req.Scope, req.UserID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			// Chat messages are inherently one user's content; global scope
			// would strip the owner the trait merge needs
			if scope == graph.ScopeGlobal {
				c.JSON(http.StatusBadRequest, gin.H{"error": "messages must be user or twin scoped"})
				return
			}

			result, err := pipeline.ExtractFromContent(c.Request.Context(), extraction.Content{
				Text: req.Text,
				Source: extraction.SourceMetadata{
					Kind:              extraction.SourceKindChatMessage,
					MessageID:         req.MessageID,
					ConversationTitle: req.ConversationTitle,
				},
				Scope:   scope,
				OwnerID: ownerID,
			})
			if err != nil {
				log.Error("Message ingestion failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest message"})
				return
			}

			c.JSON(http.StatusOK, result)
		})

		// Ingest a document (HTML or plain text body)
		api.POST("/ingest/document", func(c *gin.Context) {
			var req struct {
				Content  string `json:"content" binding:"required"`
				Filename string `json:"filename" binding:"required"`
				UserID   string `json:"user_id"`
				Scope    string `json:"scope"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			scope, ownerID, err := resolveIngestScope(req.Scope, req.UserID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			loaded, err := document.Load(strings.NewReader(req.Content), req.Filename)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := pipeline.ExtractFromContent(c.Request.Context(),
				loaded.ToContent(req.Filename, scope, ownerID))
			if err != nil {
				log.Error("Document ingestion failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest document"})
				return
			}

			c.JSON(http.StatusOK, result)
		})

		// Search relationship facts
		api.GET("/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
				return
			}
			scope, ownerID, limit, at, ok := searchParams(c)
			if !ok {
				return
			}

			var results []graph.FactResult
			var err error
			if at != nil {
				results, err = repo.SearchAt(c.Request.Context(), query, scope, ownerID, *at, limit)
			} else {
				results, err = repo.Search(c.Request.Context(), query, scope, ownerID, limit)
			}
			if err != nil {
				log.Error("Search failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
		})

		// Search entities
		api.GET("/entities/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
				return
			}
			scope, ownerID, limit, _, ok := searchParams(c)
			if !ok {
				return
			}

			results, err := repo.NodeSearch(c.Request.Context(), query, scope, ownerID, limit)
			if err != nil {
				log.Error("Entity search failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
		})

		// Read a user's trait profile
		api.GET("/profile/:userID", func(c *gin.Context) {
			p, err := profileStore.GetProfile(c.Request.Context(), c.Param("userID"))
			if err != nil {
				log.Error("Failed to read profile", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read profile"})
				return
			}

			c.JSON(http.StatusOK, p)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// resolveIngestScope validates the requested scope and decides the graph
// owner for an ingest call. Global content must carry no owner, so a caller's
// user id is dropped rather than violating the ownership invariant on every
// write; non-global content requires one.
func resolveIngestScope(rawScope, userID string) (graph.Scope, string, error) {
	scope := graph.Scope(rawScope)
	if rawScope == "" {
		scope = graph.ScopeUser
	}
	if !scope.IsValid() {
		return "", "", fmt.Errorf("invalid scope: %s", rawScope)
	}
	if scope == graph.ScopeGlobal {
		return scope, "", nil
	}
	if userID == "" {
		return "", "", fmt.Errorf("user_id is required for %s scope", scope)
	}
	return scope, userID, nil
}

// searchParams reads the shared scope/owner/limit/at query parameters,
// writing the error response itself when they are malformed
func searchParams(c *gin.Context) (graph.Scope, string, int, *time.Time, bool) {
	scope := graph.Scope(c.Query("scope"))
	if scope != "" && !scope.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid scope: %s", scope)})
		return "", "", 0, nil, false
	}

	ownerID := c.Query("owner_id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return "", "", 0, nil, false
		}
		limit = parsed
	}

	var at *time.Time
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
			return "", "", 0, nil, false
		}
		at = &parsed
	}

	return scope, ownerID, limit, at, true
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
