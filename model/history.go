package model

import "time"

// JobRecord 任务历史表，按次记录任务的最终状态
// 与文件态的 JobStatusRecord 不同，这里只做归档查询用，写入是尽力而为的。
type JobRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	JobID      string `gorm:"size:64;index" json:"jobId"`
	Kind       string `gorm:"size:16" json:"kind"`
	Video      string `gorm:"size:255" json:"video"`
	ScriptHash string `gorm:"size:32" json:"scriptHash"`
	OutputHash string `gorm:"size:32" json:"outputHash"`
	StatusCode int    `json:"statusCode"`
	Step       string `gorm:"size:64" json:"step"`
	ResultURL  string `gorm:"size:512" json:"resultUrl"`
	ResultMD5  string `gorm:"size:32" json:"resultMd5"`
	ElapsedMs  int64  `json:"elapsedMs"`
	Detail     string `gorm:"size:1024" json:"detail"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (JobRecord) TableName() string {
	return "job_records"
}
