// @title Vision API
// @version 1.0
// @description Image classification (ResNet18) and captioning (BLIP) over ONNX Runtime.
// @BasePath /
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Brownie44l1/vision-api/docs"
	"github.com/Brownie44l1/vision-api/internal/cache"
	"github.com/Brownie44l1/vision-api/internal/captioner"
	"github.com/Brownie44l1/vision-api/internal/classifier"
	"github.com/Brownie44l1/vision-api/internal/config"
	"github.com/Brownie44l1/vision-api/internal/handlers"
	"github.com/Brownie44l1/vision-api/internal/labels"
	"github.com/Brownie44l1/vision-api/internal/model"
	"github.com/Brownie44l1/vision-api/internal/service"
	"github.com/Brownie44l1/vision-api/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.Default()

	if err := model.InitRuntime(cfg.Runtime.LibraryPath); err != nil {
		logger.Fatalf("Failed to initialize ONNX Runtime: %v", err)
	}
	defer model.DestroyRuntime()

	loader := labels.NewLoader(logger, cfg.Labels.Path, cfg.Labels.URL, cfg.Labels.FetchTimeout)
	if cfg.CacheEnable {
		redisCache := cache.NewRedisCache(
			cfg.RedisConfig.Addr,
			cfg.RedisConfig.Password,
			cfg.RedisConfig.DB,
			cfg.RedisConfig.TTL,
		)
		defer redisCache.Close()
		loader.SetCacheClient(redisCache)
		logger.Println("set redis as label cache")
	}

	vocab, err := loader.Load(ctx)
	if err != nil {
		logger.Fatalf("Failed to load labels: %v", err)
	}
	logger.Printf("Labels loaded: %d classes", vocab.Len())

	logger.Printf("Loading classifier from: %s", cfg.Classifier.ModelPath)
	session, err := model.NewSession(cfg.Classifier.ModelPath, cfg.Classifier.MetadataPath)
	if err != nil {
		logger.Fatalf("Failed to load classifier: %v", err)
	}
	defer session.Close()

	classifierEngine, err := classifier.NewEngine(session, vocab)
	if err != nil {
		logger.Fatalf("Classifier does not match labels: %v", err)
	}

	logger.Printf("Loading captioner from: %s", cfg.Captioner.ModelDir)
	captionCfg, err := captioner.LoadModelConfig(cfg.Captioner.ModelDir)
	if err != nil {
		logger.Fatalf("Failed to read captioner config: %v", err)
	}
	captionCfg.MaxNewTokens = cfg.Captioner.MaxNewTokens
	captionCfg.Image.MaxPixels = cfg.Server.MaxImagePixels

	captionModel, err := captioner.LoadONNXModel(cfg.Captioner.ModelDir)
	if err != nil {
		logger.Fatalf("Failed to load captioner: %v", err)
	}
	defer captionModel.Close()

	tokenizer, err := captioner.LoadTokenizer(cfg.Captioner.TokenizerRepo, cfg.Captioner.TokenizerDir, cfg.Captioner.HFToken)
	if err != nil {
		logger.Fatalf("Failed to load tokenizer: %v", err)
	}
	captionEngine := captioner.NewEngine(captionModel, tokenizer, captionCfg, cfg.Captioner.Prompt)

	pool := worker.NewPool(logger, cfg.Inference.Workers, cfg.Inference.QueueSize)
	defer pool.Stop()

	visionService := service.NewVisionService(logger, pool, classifierEngine, captionEngine)
	visionService.SetMaxImagePixels(cfg.Server.MaxImagePixels)
	h := handlers.NewHandler(logger, visionService, cfg.Server.MaxUploadBytes)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handlers.NewRouter(h),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		logger.Printf("server started :%s\n", cfg.Server.Port)
		for _, e := range service.Endpoints {
			logger.Printf("  %s - %s", e.Route, e.Description)
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server forced to shutdown: %v", err)
	}
	logger.Println("server stopped")
}
