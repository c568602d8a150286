package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"VoxDub/model"
)

// ErrMalformedRecord 状态文件缺少 lastStatus 或状态码
var ErrMalformedRecord = errors.New("状态记录格式不完整")

// ErrRecordNotFound 状态文件不存在
var ErrRecordNotFound = errors.New("状态记录不存在")

// StatusRepository persists the durable per-job status record. One worker
// owns one job, so plain overwrite is enough (no locking, no journal).
type StatusRepository interface {
	Read(path string) (*model.JobStatusRecord, error)
	Write(path string, rec *model.JobStatusRecord) error
}

type fileStatusRepository struct{}

// NewFileStatusRepository creates the JSON-file-backed implementation.
func NewFileStatusRepository() StatusRepository {
	return &fileStatusRepository{}
}

// Read 读取并校验状态记录
func (r *fileStatusRepository) Read(path string) (*model.JobStatusRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("读取状态记录失败: %w", err)
	}

	var rec model.JobStatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.LastStatus == nil || rec.LastStatus.Code == 0 {
		return nil, ErrMalformedRecord
	}
	return &rec, nil
}

// Write 整体覆盖写入状态记录
func (r *fileStatusRepository) Write(path string, rec *model.JobStatusRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}

	rec.LastUpdateTime = time.Now()
	if rec.CreateTime.IsZero() {
		rec.CreateTime = rec.LastUpdateTime
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化状态记录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入状态记录失败: %w", err)
	}
	return nil
}
