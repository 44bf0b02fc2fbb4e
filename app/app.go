// Package app assembles and runs the job server: config, logger, every C1-C7
// collaborator, the HTTP router, and the optional grpc/etcd/kafka/mysql
// integrations, then blocks for SIGINT/SIGTERM. Grounded on the teacher's
// app.Run bootstrap shape, with its pkg/manager dependency-injection
// framework replaced by explicit constructor wiring (spec.md §9's Design
// Note on avoiding ambient global configuration applies equally to ambient
// DI magic).
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	clipforgehttp "clipforge/ddd/adapter/http"
	"clipforge/ddd/domain/gateway"
	"clipforge/ddd/domain/service"
	"clipforge/ddd/domain/vo"
	"clipforge/ddd/infrastructure/downloader"
	"clipforge/ddd/infrastructure/durablestore"
	"clipforge/ddd/infrastructure/events"
	"clipforge/ddd/infrastructure/executor"
	"clipforge/ddd/infrastructure/fetcher"
	"clipforge/ddd/infrastructure/llm"
	"clipforge/ddd/infrastructure/llmcache"
	"clipforge/ddd/infrastructure/registry"
	"clipforge/ddd/infrastructure/renderer"
	"clipforge/ddd/infrastructure/storage"
	"clipforge/ddd/infrastructure/transcriber"
	"clipforge/ddd/infrastructure/uploader"
	"clipforge/ddd/infrastructure/worker"
	"clipforge/pkg/config"
	"clipforge/pkg/kafka"
	pkgregistry "clipforge/pkg/registry"
	"clipforge/pkg/logger"
	"clipforge/pkg/redisclient"
	"clipforge/pkg/task"
)

// Version/Commit are overridden at build time via -ldflags; "dev"/"none"
// are the values a local `go run` reports.
var (
	Version = "dev"
	Commit  = "none"
)

func Run() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("[ERROR] failed to load config (%s): %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level)
	logger.Infof("clipforge starting version=%s config=%s", Version, cfgPath)

	if _, err := exec.LookPath(cfg.FFmpeg.BinaryPath); err != nil {
		logger.Errorf("ffmpeg binary not found, binary=%s err=%v", cfg.FFmpeg.BinaryPath, err)
		os.Exit(1)
	}

	storageGW, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		logger.Errorf("failed to connect to storage: %v", err)
		os.Exit(1)
	}

	llmGateway, err := buildLLMGateway(cfg)
	if err != nil {
		logger.Errorf("failed to build llm gateway: %v", err)
		os.Exit(1)
	}
	runner := executor.New()

	fetcherSvc := fetcher.New(storageGW, downloader.New(cfg.Downloader.BinaryPath), cfg.FFmpeg.FFprobePath)
	transcriberSvc := transcriber.New(cfg.FFmpeg.BinaryPath, cfg.Whisper.BinaryPath, cfg.Whisper.ModelDir, runner, cfg.Job.TranscribeTimeout)
	selectorSvc := service.NewSelector(llmGateway)
	rendererSvc := renderer.New(cfg.FFmpeg.BinaryPath, runner)
	uploaderSvc := uploader.New(storageGW)

	jobRegistry := registry.New(cfg.Job.MaxQueueDepth)

	var eventPublisher worker.EventPublisher
	var kafkaClient *kafka.Client
	if cfg.Kafka.Enabled {
		kafkaClient = kafka.New(cfg.Kafka)
		eventPublisher = events.New(kafkaClient, cfg.Kafka.Topic)
	}

	var durableMirror worker.DurableMirror
	var store *durablestore.Store
	if cfg.Database.Enabled {
		store, err = durablestore.Open(cfg.Database)
		if err != nil {
			logger.Errorf("failed to open durable store: %v", err)
			os.Exit(1)
		}
		durableMirror = store
	}

	orchestrator := worker.NewOrchestrator(worker.Dependencies{
		Fetcher:      fetcherSvc,
		Transcriber:  transcriberSvc,
		Selector:     selectorSvc,
		Renderer:     rendererSvc,
		Uploader:     uploaderSvc,
		FFprobePath:  cfg.FFmpeg.FFprobePath,
		TmpDir:       cfg.Job.TmpDir,
		JobTimeout:   cfg.Job.JobTimeout,
		DefaultStyle: vo.SubtitleStyle{FontFamily: cfg.Render.Subtitle.FontFamily, FontSize: cfg.Render.Subtitle.FontSize, OutlineColor: cfg.Render.Subtitle.OutlineColor, FillColor: cfg.Render.Subtitle.FillColor},
		Events:       eventPublisher,
		Mirror:       durableMirror,
	})
	pool := worker.NewPool(jobRegistry, orchestrator, cfg.Job.MaxConcurrentJobs)
	task.Register(pool)

	var serviceRegistry *pkgregistry.ServiceRegistry
	if cfg.ServiceRegistry.Enabled {
		serviceRegistry, err = pkgregistry.NewServiceRegistry(
			pkgregistry.RegistryConfig{Endpoints: cfg.ServiceRegistry.Endpoints, DialTimeout: cfg.ServiceRegistry.DialTimeout},
			pkgregistry.ServiceConfig{ServiceName: cfg.ServiceRegistry.ServiceName, ServiceID: cfg.ServiceRegistry.ServiceID, TTL: cfg.ServiceRegistry.TTL, RefreshInterval: cfg.ServiceRegistry.RefreshInterval},
			fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		)
		if err != nil {
			logger.Errorf("failed to build service registry client: %v", err)
			os.Exit(1)
		}
		if err := serviceRegistry.Register(); err != nil {
			logger.Errorf("failed to register service: %v", err)
			os.Exit(1)
		}
	}

	defaults := vo.Defaults{
		TargetCount: cfg.Selector.DefaultTargetCount,
		MinSec:      cfg.Selector.DefaultMinSec,
		MaxSec:      cfg.Selector.DefaultMaxSec,
		Language:    cfg.Selector.DefaultLanguage,
		WhisperModel: vo.WhisperModel(cfg.Selector.DefaultWhisperMode),
		SubtitleStyle: vo.SubtitleStyle{
			FontFamily:   cfg.Render.Subtitle.FontFamily,
			FontSize:     cfg.Render.Subtitle.FontSize,
			OutlineColor: cfg.Render.Subtitle.OutlineColor,
			FillColor:    cfg.Render.Subtitle.FillColor,
		},
	}
	jobController := clipforgehttp.NewJobController(jobRegistry, cfg.Job.MaxQueueDepth, defaults, Version, Commit)
	router := clipforgehttp.NewRouter(jobController, cfg.Auth.APIKey)

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if cfg.GRPCServer.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPCServer.Host, cfg.GRPCServer.Port)
		grpcListener, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			logger.Errorf("failed to listen on grpc port address=%s err=%v", grpcAddr, err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthSrv := health.NewServer()
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthSrv)

		go func() {
			logger.Infof("grpc health server started address=%s", grpcAddr)
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Errorf("grpc server error: %v", err)
			}
		}()
	}

	if err := task.StartAll(context.Background()); err != nil {
		logger.Errorf("failed to start background tasks: %v", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("http server started address=%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutdown signal received")

	task.StopAll()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if serviceRegistry != nil {
		if err := serviceRegistry.Deregister(); err != nil {
			logger.Warnf("failed to deregister service: %v", err)
		}
	}
	if kafkaClient != nil {
		kafkaClient.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close durable store: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http server forced to close: %v", err)
	}
	logger.Infof("clipforge exited safely")
}

// buildLLMGateway wraps the HTTP-backed gateway.LLMGateway in the redis
// response cache when one is configured; callers never need to know which.
func buildLLMGateway(cfg *config.Config) (gateway.LLMGateway, error) {
	base := llm.New(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	if !cfg.Redis.Enabled {
		return base, nil
	}
	redisCli, err := redisclient.New(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return llmcache.New(base, redisCli, cfg.Redis.TTL), nil
}

func resolveConfigPath() string {
	if v := os.Getenv("CLIPFORGE_CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}
