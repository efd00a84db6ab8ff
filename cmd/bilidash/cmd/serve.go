package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MicroDaWay/bilidash/internal/database"
	"github.com/MicroDaWay/bilidash/internal/ffmpeg"
	internalhttp "github.com/MicroDaWay/bilidash/internal/http"
	"github.com/MicroDaWay/bilidash/internal/http/handlers"
	"github.com/MicroDaWay/bilidash/internal/httpclient"
	"github.com/MicroDaWay/bilidash/internal/importer"
	"github.com/MicroDaWay/bilidash/internal/ingest"
	"github.com/MicroDaWay/bilidash/internal/platform"
	"github.com/MicroDaWay/bilidash/internal/recorder"
	"github.com/MicroDaWay/bilidash/internal/repository"
	"github.com/MicroDaWay/bilidash/internal/service"
	"github.com/MicroDaWay/bilidash/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bilidash server",
	Long: `Start the bilidash HTTP server and API.

The server provides:
- REST API for the live-capture recorder and creator dashboard
- Scheduled platform data syncs
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("recordings-dir", "", "Directory for capture output")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("recordings-dir") {
		cfg.Storage.RecordingsDir, _ = cmd.Flags().GetString("recordings-dir")
	}

	initLogging(cfg)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Database
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories
	manuscriptRepo := repository.NewManuscriptRepository(db.DB)
	disqualificationRepo := repository.NewDisqualificationRepository(db.DB)
	rewardRepo := repository.NewRewardRepository(db.DB)
	withdrawalRepo := repository.NewWithdrawalRepository(db.DB)
	outcomeRepo := repository.NewOutcomeRepository(db.DB)
	salaryRepo := repository.NewSalaryRepository(db.DB)
	recordingRepo := repository.NewRecordingRepository(db.DB)

	// FFmpeg and post-processing
	ffmpegClient, err := ffmpeg.NewClient(cfg.FFmpeg.BinaryPath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg: %w", err)
	}
	post := recorder.NewPostProcessor(ffmpegClient, logger)

	// Convert any raw segments a previous run left behind before the
	// recorder starts producing new ones.
	recovered, err := recorder.RecoverOrphans(ctx, cfg.Storage.RecordingsDir, post, logger)
	if err != nil {
		logger.Warn("orphan recovery incomplete", slog.String("error", err.Error()))
	} else if len(recovered) > 0 {
		logger.Info("recovered orphaned segments", slog.Int("count", len(recovered)))
	}

	// Platform client
	httpClient := httpclient.New(httpclient.Config{
		Timeout:       cfg.Platform.Timeout,
		RetryAttempts: cfg.Platform.RetryAttempts,
		RetryDelay:    cfg.Platform.RetryDelay,
		UserAgent:     cfg.Platform.UserAgent,
		Logger:        logger,
	})
	platformClient := platform.New(platform.Config{
		APIBaseURL:     cfg.Platform.APIBaseURL,
		LiveBaseURL:    cfg.Platform.LiveBaseURL,
		PayBaseURL:     cfg.Platform.PayBaseURL,
		MemberBaseURL:  cfg.Platform.MemberBaseURL,
		MessageBaseURL: cfg.Platform.MessageBaseURL,
		Cookie:         cfg.Platform.Cookie,
		UserAgent:      cfg.Platform.UserAgent,
		Quality:        cfg.Recorder.Quality,
		PageSize:       cfg.Sync.PageSize,
	}, httpClient, logger)

	// Recorder
	rec := recorder.New(platformClient, ffmpegClient, post, recorder.Options{
		Dir:                cfg.Storage.RecordingsDir,
		SettleDelay:        cfg.Recorder.SettleDelay,
		RestartBackoff:     cfg.Recorder.RestartBackoff,
		MaxRestartAttempts: cfg.Recorder.MaxRestartAttempts,
		StopTimeout:        cfg.Recorder.StopTimeout,
		WatchInterval:      cfg.Recorder.WatchInterval,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx)
	}()

	// Platform sync
	syncer := ingest.NewSyncer(platformClient, manuscriptRepo, rewardRepo, withdrawalRepo, disqualificationRepo, ingest.Options{
		PageDelay: cfg.Sync.PageDelay,
		Logger:    logger,
	})
	scheduler := ingest.NewScheduler(syncer, cfg.Sync.Cron, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting sync scheduler: %w", err)
	}
	defer scheduler.Stop()

	// Services
	dashboard := service.NewDashboard(manuscriptRepo, disqualificationRepo, rewardRepo, withdrawalRepo, outcomeRepo, salaryRepo)
	history := service.NewHistory(recordingRepo, logger)
	sheetImporter := importer.New(outcomeRepo, salaryRepo, logger)

	// HTTP server and handlers
	server := internalhttp.NewServer(cfg.Server, logger, version.Short())

	handlers.NewHealthHandler(version.Short()).
		WithDB(db).
		WithRecorder(rec).
		Register(server.API())
	handlers.NewRecorderHandler(rec, post, history).Register(server.API())
	handlers.NewDashboardHandler(dashboard, platformClient).Register(server.API())
	handlers.NewSyncHandler(syncer, logger).Register(server.API())
	handlers.NewImportHandler(sheetImporter).RegisterRoutes(server.Router())

	logger.Info("starting bilidash server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Short()),
	)

	serveErr := server.ListenAndServe(ctx)

	// The recorder drains and finalizes on context cancellation; wait for
	// it before closing the database.
	cancel()
	wg.Wait()

	return serveErr
}
