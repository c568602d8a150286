package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"VoxDub/logger"
	"VoxDub/model"
)

// 状态缓存：jobId -> 最近一次状态记录（含归属主机）。
// 写入是尽力而为的：Redis 不可用时流水线照常工作，只是跨机查询退化为代理。

func statusKey(jobID string) string {
	return "dub:status:" + jobID
}

// SetStatusCache 缓存任务的最近状态记录
func SetStatusCache(rec *model.JobStatusRecord, expiration time.Duration) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		logger.Error("序列化状态缓存失败",
			logger.String("jobId", rec.JobID),
			logger.ErrorField(err))
		return
	}

	if err := RedisClient.Set(ctx, statusKey(rec.JobID), data, expiration).Err(); err != nil {
		logger.Warn("写入状态缓存失败",
			logger.String("jobId", rec.JobID),
			logger.ErrorField(err))
		return
	}

	logger.Debug("状态缓存写入成功",
		logger.String("jobId", rec.JobID),
		logger.Int("code", rec.LastStatus.Code))
}

// decodeStatusRecord 解析并校验缓存里的状态记录。缓存值可能被外部写坏，
// 缺少 lastStatus 的记录和解析失败同等对待，调用方按未命中处理。
func decodeStatusRecord(data []byte) (*model.JobStatusRecord, error) {
	var rec model.JobStatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.LastStatus == nil || rec.LastStatus.Code == 0 {
		return nil, errors.New("状态缓存缺少 lastStatus")
	}
	return &rec, nil
}

// GetStatusCache 查询任务状态缓存，未命中返回 nil, nil
func GetStatusCache(jobID string) (*model.JobStatusRecord, error) {
	if RedisClient == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(ctx, statusKey(jobID)).Bytes()
	if err != nil {
		// 键不存在按未命中处理，其他错误也不阻塞调用方
		if err.Error() == "redis: nil" {
			return nil, nil
		}
		logger.Warn("读取状态缓存失败",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		return nil, nil
	}

	rec, err := decodeStatusRecord(data)
	if err != nil {
		logger.Warn("解析状态缓存失败",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		return nil, nil
	}
	return rec, nil
}

// DeleteStatusCache 删除任务状态缓存
func DeleteStatusCache(jobID string) {
	if RedisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Del(ctx, statusKey(jobID)).Err(); err != nil {
		logger.Warn("删除状态缓存失败",
			logger.String("jobId", jobID),
			logger.ErrorField(err))
	}
}
