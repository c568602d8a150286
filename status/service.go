package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"VoxDub/cache"
	"VoxDub/config"
	"VoxDub/core/address"
	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/repository"
)

// Service answers job-status queries: locally when this worker owns the job,
// otherwise by proxying to the owning host, bounded by the configured
// response timeout.
type Service struct {
	cfg        *config.Config
	repo       repository.StatusRepository
	httpClient *http.Client
}

// NewService 创建状态查询服务
func NewService(cfg *config.Config, repo repository.StatusRepository) *Service {
	return &Service{
		cfg:  cfg,
		repo: repo,
		httpClient: &http.Client{
			// 总超时交给每次请求的 context 控制
			Timeout: 0,
		},
	}
}

// Get 查询任务状态。requestHost 是任务归属的主机。
func (s *Service) Get(ctx context.Context, jobID string, kind model.JobKind, requestHost string) *model.StatusResponse {
	if requestHost == "" || requestHost == s.cfg.Host {
		return s.local(jobID, kind)
	}

	// 跨机查询先碰一下共享缓存，命中就省一次代理
	if rec, _ := cache.GetStatusCache(jobID); rec != nil {
		return mapRecord(rec)
	}

	return s.proxy(ctx, jobID, kind, requestHost)
}

// local 读取本机的状态记录文件
func (s *Service) local(jobID string, kind model.JobKind) *model.StatusResponse {
	path := filepath.Join(s.cfg.JobsDir, address.StatusFileName(jobID, kind))
	rec, err := s.repo.Read(path)
	if err != nil {
		detail := "读取状态记录失败"
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			detail = fmt.Sprintf("任务 %s 不存在", jobID)
		case errors.Is(err, repository.ErrMalformedRecord):
			detail = fmt.Sprintf("任务 %s 的状态记录损坏", jobID)
		}
		return &model.StatusResponse{
			Code: model.StatusFailed,
			Data: map[string]interface{}{"detail": detail},
		}
	}
	return mapRecord(rec)
}

// mapRecord 把持久记录映射成对外响应
func mapRecord(rec *model.JobStatusRecord) *model.StatusResponse {
	switch rec.LastStatus.Code {
	case model.StatusComplete:
		return &model.StatusResponse{
			Code: model.StatusComplete,
			Data: map[string]interface{}{
				"output": rec.ResultURL,
				"md5":    rec.ResultMD5,
			},
		}
	case model.StatusProcessing:
		return &model.StatusResponse{
			Code: model.StatusProcessing,
			Data: map[string]interface{}{
				"jobId": rec.JobID,
				"host":  rec.Host,
			},
		}
	default:
		return &model.StatusResponse{
			Code: model.StatusFailed,
			Data: map[string]interface{}{
				"step": rec.LastStatus.Step,
				"msg":  rec.Detail,
			},
		}
	}
}

// proxy 把查询转发给归属主机，超时返回504
func (s *Service) proxy(ctx context.Context, jobID string, kind model.JobKind, host string) *model.StatusResponse {
	target := host
	if !strings.Contains(target, ":") {
		target += ":" + s.cfg.Port
	}
	u := url.URL{
		Scheme:   "http",
		Host:     target,
		Path:     "/api/dub/" + jobID + "/status",
		RawQuery: url.Values{"host": {host}, "kind": {string(kind)}}.Encode(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProxyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &model.StatusResponse{
			Code: model.StatusFailed,
			Data: map[string]interface{}{"detail": err.Error()},
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &model.StatusResponse{
				Code: model.StatusTimeout,
				Data: map[string]interface{}{
					"detail": fmt.Sprintf("代理到 %s 的状态查询在 %s 内没有响应", host, s.cfg.ProxyTimeout),
				},
			}
		}
		return &model.StatusResponse{
			Code: model.StatusFailed,
			Data: map[string]interface{}{"detail": err.Error()},
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("状态代理返回异常",
			logger.String("jobId", jobID),
			logger.String("host", host),
			logger.Int("status", resp.StatusCode))
		return &model.StatusResponse{
			Code: resp.StatusCode,
			Data: map[string]interface{}{"detail": string(body)},
		}
	}

	return parseProxied(body)
}

// parseProxied 解析被代理主机的响应体
func parseProxied(body []byte) *model.StatusResponse {
	var out model.StatusResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Code == 0 {
		return &model.StatusResponse{
			Code: model.StatusFailed,
			Data: map[string]interface{}{"detail": "代理响应无法解析: " + string(body)},
		}
	}
	return &out
}
