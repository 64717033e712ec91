package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"docpilot/internal/api"
	"docpilot/internal/config"
	"docpilot/internal/service"
	"docpilot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Provider API keys live in the environment; a local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("RagService")
	appLogger.Info("Starting document QA service...")

	svc, err := service.New(context.Background(), cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize service: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	api.RegisterRoutes(router, api.NewAPI(svc, logger.New("API")))

	appLogger.Info(fmt.Sprintf("HTTP server listening at %s", cfg.Server.Address))
	if err := router.Run(cfg.Server.Address); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}
