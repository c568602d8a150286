package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VoxDub/cache"
	"VoxDub/config"
	"VoxDub/core/media"
	"VoxDub/core/pipeline"
	"VoxDub/core/tts"
	"VoxDub/db"
	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/repository"
	"VoxDub/status"
	"VoxDub/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()
	logger.InitLogger(logger.DefaultConfig())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	var store pipeline.Store
	if cfg.MinioEnabled {
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
		s, err := storage.NewMinioStore(cfg.MinioBucket)
		if err != nil {
			log.Fatalf("Failed to create MinIO store: %v", err)
		}
		store = s
	}

	// Redis 状态缓存是尽力而为的，连不上只降级不退出
	if err := cache.ConnectRedis(cfg); err != nil {
		log.Printf("Redis unavailable, status cache disabled: %v", err)
	} else {
		defer cache.CloseRedis()
		log.Println("Successfully connected to Redis")
	}

	// MySQL 任务历史同样是可选的
	var history repository.HistoryRepository
	if cfg.DBEnabled {
		if err := db.ConnectGormDB(cfg); err != nil {
			log.Printf("MySQL unavailable, job history disabled: %v", err)
		} else {
			defer db.CloseGormDB()
			if err := db.AutoMigrateModels(&model.JobRecord{}); err != nil {
				log.Printf("Job history migration failed: %v", err)
			} else {
				history = repository.NewGormHistoryRepository()
			}
		}
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.RunDir)
	ensureDirExists(cfg.LineDir)
	ensureDirExists(cfg.BlanksDir)
	ensureDirExists(cfg.ScriptDir)
	ensureDirExists(cfg.VideoDir)
	ensureDirExists(cfg.OutputDir)
	ensureDirExists(cfg.JobsDir)

	ops := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.BlankSource, cfg.RunDir)
	synth := tts.NewClient(cfg.TTSBaseURL, cfg.TTSAuthToken)
	statusRepo := repository.NewFileStatusRepository()
	pipe := pipeline.New(cfg, ops, synth, store, statusRepo, history)
	statusSvc := status.NewService(cfg, statusRepo)

	apiHandler := NewAPIHandler(cfg, pipe, statusSvc, statusRepo)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 配音任务相关的API端点
	router.HandleFunc("/api/dub", apiHandler.CreateDubHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/dub/{job_id}/status", apiHandler.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/dub/{job_id}/events", apiHandler.JobEventsHandler).Methods(http.MethodGet)

	// 已发布产物直接从 MinIO 转流
	router.PathPrefix("/" + cfg.OutputPrefix + "/").HandlerFunc(apiHandler.ServeObjectHandler)
	router.PathPrefix("/" + cfg.TrackPrefix + "/").HandlerFunc(apiHandler.ServeObjectHandler)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("VoxDub worker %s starting on :%s...", cfg.Host, cfg.Port)
		log.Println("Submit dubbing jobs via POST to /api/dub")
		log.Println("Query job status via GET /api/dub/{job_id}/status")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}
