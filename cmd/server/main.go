package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/codebuildervaibhav/meeting-transcriber/internal/cache"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/config"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/handlers"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/lifecycle"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/queue"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/recovery"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/scheduler"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/speakers"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/storage"
	"github.com/codebuildervaibhav/meeting-transcriber/internal/transcription"
)

const startupSweepTimeout = 5 * time.Minute

func main() {
	// Custom logger setup
	logBuffer := NewLogBuffer()
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure directories exist
	if err := scheduler.EnsureDirExists(cfg.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := scheduler.EnsureDirExists(cfg.Storage.OutputDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	log.Println("Initializing components...")

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Transcription provider
	if cfg.Provider.APIKey == "" {
		log.Println("WARNING: ASSEMBLYAI_API_KEY not set - submissions will be rejected")
	}
	provider := transcription.NewAssemblyAIClient(transcription.AssemblyAIConfig{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		Language:       cfg.Provider.Language,
		RequestTimeout: cfg.ProviderTimeout(),
		MaxAttempts:    cfg.Provider.MaxAttempts,
		RetryDelay:     cfg.ProviderRetryDelay(),
	})
	audio := transcription.NewAudioLoader(cfg.Provider.NormalizeAudio, cfg.Storage.TempDir)

	// Transcript sinks
	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)
	sinks := []lifecycle.TranscriptSink{localStorage}

	var (
		driveAuth  *storage.DriveAuth
		authorizer handlers.Authorizer
	)
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
		driveAuth, err = storage.NewDriveAuth(cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenDir, cfg.GoogleDrive.RedirectURL)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			driveAuth = nil
		}
	} else {
		log.Println("Google Drive credentials not found - transcripts are exported locally only")
	}
	driveClient := storage.NewDriveClient(driveAuth, cfg.GoogleDrive.FolderName)
	if driveAuth != nil {
		authorizer = driveAuth
		sinks = append(sinks, driveClient)
		log.Printf("Google Drive integration enabled (tokens in %s)", cfg.GoogleDrive.TokenDir)
	}

	// Lifecycle
	ctrl := lifecycle.NewController(db, db, provider, audio, sinks...)
	registry := speakers.NewRegistry(db, ctrl)
	sweeper := recovery.NewSweeper(db, ctrl, cfg.StaleAfter(), cfg.Sweep.Parallelism)

	// Re-drive jobs left behind by the previous process
	startupCtx, cancel := context.WithTimeout(context.Background(), startupSweepTimeout)
	if _, err := sweeper.Startup(startupCtx); err != nil {
		log.Printf("Startup sweep incomplete: %v", err)
	}
	cancel()

	// Watcher pool
	watcher := queue.NewWorkerPool(queue.Config{
		Workers:     cfg.Watcher.Workers,
		Interval:    cfg.WatchInterval(),
		MaxAttempts: cfg.Watcher.MaxAttempts,
	}, ctrl)
	watcher.Start()
	defer watcher.Stop()

	// Periodic tasks
	states := cache.NewTTLCache[string, string](cfg.StateMaxAge())
	tasks := scheduler.New(
		scheduler.Task{
			Name:     "recovery-sweep",
			Interval: cfg.SweepInterval(),
			Run: func(ctx context.Context) {
				if _, err := sweeper.Scheduled(ctx); err != nil {
					log.Printf("Scheduled sweep failed: %v", err)
				}
			},
		},
		scheduler.Task{
			Name:       "upload-janitor",
			Interval:   cfg.CleanupInterval(),
			RunOnStart: true,
			Run: func(ctx context.Context) {
				scheduler.CleanOldFiles(cfg.Storage.TempDir, cfg.CleanupMaxAge(), time.Now())
			},
		},
		scheduler.Task{
			Name:     "oauth-state-purge",
			Interval: cfg.StateMaxAge(),
			Run: func(ctx context.Context) {
				if n := states.Purge(time.Now()); n > 0 {
					log.Printf("Purged %d expired OAuth states", n)
				}
			},
		},
	)
	tasks.Start()
	defer tasks.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, " + handlers.UserHeader + ", " + handlers.AdminHeader,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "healthy",
			"version":         "1.0.0",
			"watched_jobs":    watcher.Active(),
			"gdrive_enabled":  driveAuth != nil,
			"pending_oauth":   states.Len(),
			"provider_config": cfg.Provider.APIKey != "",
		})
	})

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	routes := &handlers.Routes{
		Upload:     handlers.NewUploadHandler(ctrl, watcher, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB),
		GDrive:     handlers.NewGDriveHandler(ctrl, watcher, driveClient, cfg.Storage.TempDir),
		Jobs:       handlers.NewJobsHandler(ctrl, sweeper),
		Speakers:   handlers.NewSpeakersHandler(registry),
		Admin:      handlers.NewAdminHandler(ctrl, sweeper),
		OAuth:      handlers.NewOAuthHandler(authorizer, states),
		Stream:     handlers.NewStreamHandler(ctrl, watcher, cfg.Storage.TempDir, 2*time.Second),
		AdminToken: cfg.Admin.Token,
	}
	routes.Mount(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST   /jobs                       - Upload audio file")
	log.Println("   POST   /jobs/gdrive                - Import a Google Drive link")
	log.Println("   GET    /jobs                       - List your jobs")
	log.Println("   GET    /jobs/:id                   - Job status and transcript")
	log.Println("   DELETE /jobs/:id                   - Delete a job")
	log.Println("   POST   /jobs/:id/reformat          - Rebuild transcript text")
	log.Println("   GET    /jobs/:id/speakers          - Speaker names")
	log.Println("   PUT    /jobs/:id/speakers          - Rename speakers")
	log.Println("   DELETE /jobs/:id/speakers/:label   - Remove a speaker name")
	log.Println("   GET    /admin/jobs?status=         - Jobs by status (admin)")
	log.Println("   POST   /admin/jobs/:id/force       - Force completed/error (admin)")
	log.Println("   POST   /admin/sweep                - Run the recovery sweep (admin)")
	log.Println("   GET    /integrations/gdrive/connect - Connect Google Drive")
	log.Println("   GET    /ws/stream                  - WebSocket recording upload")
	log.Println("   GET    /ws/jobs/:id                - WebSocket job status")
	log.Println("   GET    /logs                       - View server logs")
	log.Println("   GET    /health                     - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Printf("Server failed: %v", err)
	}
}
