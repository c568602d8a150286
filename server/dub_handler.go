package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"VoxDub/config"
	"VoxDub/core/address"
	"VoxDub/core/pipeline"
	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/repository"
	"VoxDub/status"
	"VoxDub/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// APIHandler 汇聚HTTP层的依赖
type APIHandler struct {
	cfg        *config.Config
	pipe       *pipeline.Pipeline
	statusSvc  *status.Service
	statusRepo repository.StatusRepository
}

// NewAPIHandler 创建API处理器
func NewAPIHandler(cfg *config.Config, pipe *pipeline.Pipeline, statusSvc *status.Service, statusRepo repository.StatusRepository) *APIHandler {
	return &APIHandler{
		cfg:        cfg,
		pipe:       pipe,
		statusSvc:  statusSvc,
		statusRepo: statusRepo,
	}
}

// DubRequest 任务提交请求体
type DubRequest struct {
	ID string `json:"id,omitempty"` // 调用方不传则自动生成
	model.JobTemplate
}

func writeJSON(w http.ResponseWriter, httpCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

// CreateDubHandler 接收新的配音任务
func (h *APIHandler) CreateDubHandler(w http.ResponseWriter, r *http.Request) {
	var req DubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Dub] 解析请求体失败", logger.ErrorField(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	job, err := address.NewJob(req.ID, req.JobTemplate, h.cfg)
	if err != nil {
		// 构造错误属于调用方问题，不进入流水线
		if errors.Is(err, address.ErrEmptyScript) {
			http.Error(w, "Job template must contain a non-empty script", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info("接收配音任务",
		logger.String("jobId", job.ID),
		logger.String("video", job.Video),
		logger.Int("lines", len(job.Tracks)))

	resp := h.pipe.Accept(job)
	writeJSON(w, resp.Code, resp)
}

// StatusHandler 查询任务状态，必要时代理到归属主机
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["job_id"]

	host := r.URL.Query().Get("host")
	kind := model.JobKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = model.KindVideo
	}

	resp := h.statusSvc.Get(r.Context(), jobID, kind, host)
	writeJSON(w, resp.Code, resp)
}

// ServeObjectHandler 把已发布的产物从 MinIO 转流给调用方
func (h *APIHandler) ServeObjectHandler(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/")
	client := storage.GetMinioClient()
	if client == nil {
		http.Error(w, "MinIO client not available", http.StatusInternalServerError)
		return
	}

	store, err := storage.NewMinioStore(h.cfg.MinioBucket)
	if err != nil {
		http.Error(w, "MinIO client not available", http.StatusInternalServerError)
		return
	}

	object, err := store.GetObject(r.Context(), objectPath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	var contentType string
	switch {
	case strings.HasSuffix(objectPath, ".mp4"):
		contentType = "video/mp4"
	case strings.HasSuffix(objectPath, ".mp3"):
		contentType = "audio/mpeg"
	default:
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 产物不可变，可以缓存一年

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("Error serving file from MinIO", logger.ErrorField(err))
	}
}
