package repository

import (
	"fmt"

	"VoxDub/db"
	"VoxDub/model"

	"gorm.io/gorm"
)

// HistoryRepository archives one row per job intake. Writes are best-effort:
// the pipeline logs failures and keeps going when the database is down.
type HistoryRepository interface {
	Create(rec *model.JobRecord) error
	MarkFinal(jobID string, code int, step, resultURL, resultMD5 string, elapsedMs int64, detail string) error
	GetByJobID(jobID string) (*model.JobRecord, error)
}

type gormHistoryRepository struct {
	DB *gorm.DB
}

// NewGormHistoryRepository creates the GORM-backed implementation.
func NewGormHistoryRepository() HistoryRepository {
	return &gormHistoryRepository{DB: db.GormDB}
}

// Create 新建一条任务历史
func (r *gormHistoryRepository) Create(rec *model.JobRecord) error {
	if r.DB == nil {
		return fmt.Errorf("GORM 数据库未初始化")
	}
	if err := r.DB.Create(rec).Error; err != nil {
		return fmt.Errorf("写入任务历史失败: %w", err)
	}
	return nil
}

// MarkFinal 记录任务的最终状态
func (r *gormHistoryRepository) MarkFinal(jobID string, code int, step, resultURL, resultMD5 string, elapsedMs int64, detail string) error {
	if r.DB == nil {
		return fmt.Errorf("GORM 数据库未初始化")
	}
	updates := map[string]interface{}{
		"status_code": code,
		"step":        step,
		"result_url":  resultURL,
		"result_md5":  resultMD5,
		"elapsed_ms":  elapsedMs,
		"detail":      detail,
	}
	err := r.DB.Model(&model.JobRecord{}).Where("job_id = ?", jobID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("更新任务历史失败: %w", err)
	}
	return nil
}

// GetByJobID 按任务ID查询最近一条历史
func (r *gormHistoryRepository) GetByJobID(jobID string) (*model.JobRecord, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("GORM 数据库未初始化")
	}
	var rec model.JobRecord
	err := r.DB.Where("job_id = ?", jobID).Order("id DESC").First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询任务历史失败: %w", err)
	}
	return &rec, nil
}
