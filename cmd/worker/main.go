package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"spatelier/internal/collaborators"
	"spatelier/internal/config"
	"spatelier/internal/ledger"
	"spatelier/internal/queue"
	"spatelier/internal/storage"
	"spatelier/internal/usecases"
	"spatelier/internal/worker"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	cfg := config.Load()
	slog.Info("starting worker", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		slog.Error("failed to open ledger", "error", err)
		os.Exit(1)
	}
	defer l.Close()

	adapter, err := buildStorageAdapter(ctx, cfg)
	if err != nil {
		slog.Error("failed to build storage adapter", "error", err)
		os.Exit(1)
	}

	var bus *queue.NotificationBus
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		bus, err = queue.NewNotificationBus(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			slog.Warn("notification bus unavailable, falling back to polling", "error", err)
			bus = nil
		} else {
			defer bus.Close()
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
			defer redisClient.Close()
		}
	}

	jobQueue := queue.New(l, bus)
	var throttle *queue.ThrottleClock
	if redisClient != nil {
		throttle = queue.NewThrottleClock(redisClient)
	}

	svc := &usecases.Services{
		Ledger:           l,
		Storage:          adapter,
		Downloader:       collaborators.NewYtDlpEngine(cfg.YtDlpFormat),
		PlaylistResolver: collaborators.NewYtDlpEngine(cfg.YtDlpFormat),
		Transcriber:      collaborators.NewWhisperEngine(cfg.WhisperModel, cfg.WhisperLang),
		Muxer:            collaborators.NewFFmpegMuxer(),
		SubtitleProbe:    collaborators.NewFFprobeSubtitleProbe(),
		SubtitleMarker:   cfg.SubtitleMark,
		VideoExtensions:  cfg.VideoExtensions,
		DefaultOutputDir: cfg.DefaultOutput,
	}

	registry := worker.NewRegistry()
	registry.Register(ledger.JobDownloadVideo, usecases.DownloadVideoHandler(svc))
	registry.Register(ledger.JobDownloadPlaylist, usecases.DownloadPlaylistHandler(svc))
	registry.Register(ledger.JobTranscribe, usecases.TranscribeVideoHandler(svc))
	registry.Register(ledger.JobEmbedSubtitles, usecases.EmbedSubtitlesHandler(svc))

	stats := worker.NewStats(prometheus.DefaultRegisterer)

	rt := worker.New(jobQueue, l.Jobs, registry, stats, throttle, worker.Config{
		Mode:                worker.Mode(cfg.WorkerMode),
		MinTimeBetweenJobs:  cfg.MinTimeBetweenJobs,
		AdditionalSleepTime: cfg.AdditionalSleepTime,
		PollInterval:        cfg.PollInterval,
		StuckJobTimeout:     cfg.StuckJobTimeout,
		ProgressGrace:       cfg.ProgressGrace,
		SweepInterval:       cfg.SweepInterval,
		VideoExtensions:     cfg.VideoExtensions,
	})

	sweeper, err := worker.NewRetentionSweeper(l, fmt.Sprintf("@every %s", cfg.SweepInterval), cfg.JobRetention)
	if err != nil {
		slog.Error("failed to build retention sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	go func() {
		sig := <-sigChan
		slog.Info("received signal, shutting down gracefully", "signal", sig)
		rt.Stop()
		cancel()
	}()

	slog.Info("worker runtime started")
	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		slog.Error("worker runtime exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func buildStorageAdapter(ctx context.Context, cfg *config.Config) (storage.Adapter, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3RemoteStorage(ctx, storage.S3Config{
			Region:      cfg.S3.Region,
			Bucket:      cfg.S3.Bucket,
			AccessKey:   cfg.S3.AccessKey,
			SecretKey:   cfg.S3.SecretKey,
			EndpointURL: cfg.S3.EndpointURL,
			PublicRead:  cfg.S3.PublicRead,
		}, cfg.TempDir)
	case "gdrive":
		return storage.NewGDriveRemoteStorage(ctx, storage.GDriveConfig{
			RootFolderID: cfg.GoogleDriveRoot,
		}, cfg.TempDir)
	default:
		classifier := storage.NewSubstringClassifier(cfg.NetworkMounts)
		return storage.NewLocalStorage(cfg.TempDir, classifier), nil
	}
}
