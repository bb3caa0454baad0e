package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"radiation-risk-eval/backend/internal/api"
)

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		logrus.Fatalf("determine working directory: %v", err)
	}

	dataDir := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}

	cfg := api.Config{
		DBPath: filepath.Join(dataDir, "radiation-risk.db"),
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
	}

	if override := strings.TrimSpace(os.Getenv("RADIATION_DB_PATH")); override != "" {
		cfg.DBPath = override
	}
	if origins := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_WORKERS")); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			cfg.Workers = workers
		}
	}
	if v := strings.TrimSpace(os.Getenv("BATCH_CHUNK_SIZE")); v != "" {
		if chunk, err := strconv.Atoi(v); err == nil && chunk > 0 {
			cfg.ChunkSize = chunk
		}
	}
	cfg.SilentDB = strings.EqualFold(strings.TrimSpace(os.Getenv("SILENT_DB")), "true")

	server, err := api.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "2000"
	}

	logrus.Infof("starting radiation-risk-eval backend on :%s", port)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
