package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fyerfyer/fyer-drive-sub000/config"
	"github.com/fyerfyer/fyer-drive-sub000/jobs"
	"github.com/fyerfyer/fyer-drive-sub000/routes"
	"github.com/fyerfyer/fyer-drive-sub000/services"
	"github.com/fyerfyer/fyer-drive-sub000/store"
)

func main() {
	loadEnvFile()

	config.LoadConfig()
	cfg := config.AppConfig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Printf("Failed to disconnect MongoDB: %v", err)
		}
	}()

	if err = mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB successfully")

	db := mongoClient.Database(cfg.DatabaseName)

	mongoStore := store.NewMongoStore(db)
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	b2Service, err := services.NewB2Service(cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName)
	if err != nil {
		log.Fatalf("Failed to initialize B2 service: %v", err)
	}

	notificationService := services.NewNotificationService(db, cfg.MailgunAPIKey, cfg.MailgunDomain, cfg.FromEmail)

	permissionService := services.NewPermissionService(mongoStore)
	folderService := services.NewFolderService(mongoStore, permissionService)
	shareService := services.NewShareService(mongoStore, permissionService, notificationService)
	batchService := services.NewBatchService(mongoStore, folderService, b2Service)

	router := gin.Default()
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	api := router.Group("/api")
	routes.SetupRoutes(api, &routes.ServiceContainer{
		JWTSecret:           cfg.JWTSecret,
		PermissionService:   permissionService,
		FolderService:       folderService,
		ShareService:        shareService,
		BatchService:        batchService,
		NotificationService: notificationService,
		DownloadSigner:      b2Service,
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	if cfg.TrashCleanupInterval > 0 {
		cleaner := jobs.NewTrashCleaner(batchService, cfg.TrashCleanupInterval)
		go cleaner.Start(context.Background())
		log.Printf("Started trash cleanup job running every %v", cfg.TrashCleanupInterval)
	}

	log.Printf("Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadEnvFile tries the working directory first, then the executable's
// directory, so the binary behaves the same under go run and deployed.
func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		return
	}

	if exe, err := os.Executable(); err == nil {
		envPath := filepath.Join(filepath.Dir(exe), ".env")
		if err := godotenv.Load(envPath); err == nil {
			return
		}
	}

	log.Println("No .env file found, using environment variables")
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
