package model

import "time"

// Status codes used both in the durable record and in API responses.
const (
	StatusComplete   = 201 // complete, with output URL and md5
	StatusProcessing = 202 // accepted/processing, with jobId and owning host
	StatusFailed     = 500 // stage failure, with failing step and message
	StatusTimeout    = 504 // cross-host status query timed out
)

// LastStatus 最近一次状态变更：状态码 + 所处阶段
type LastStatus struct {
	Code int    `json:"code"`
	Step string `json:"step"`
}

// JobStatusRecord is the durable, file-backed job state. It is overwritten
// by the owning worker after every stage transition and read by the status
// layer; the pipeline never deletes it.
type JobStatusRecord struct {
	JobID          string      `json:"jobId"`
	Kind           JobKind     `json:"kind,omitempty"`
	Host           string      `json:"host,omitempty"`
	CreateTime     time.Time   `json:"createTime"`
	LastUpdateTime time.Time   `json:"lastUpdateTime"`
	LastStatus     *LastStatus `json:"lastStatus"`
	ResultFile     string      `json:"resultFile,omitempty"`
	ResultURL      string      `json:"resultUrl,omitempty"`
	ResultMD5      string      `json:"resultMd5,omitempty"`
	Detail         string      `json:"detail,omitempty"`
}

// StatusResponse 状态查询的统一响应体
type StatusResponse struct {
	Code int                    `json:"code"`
	Data map[string]interface{} `json:"data"`
}
