package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/storage"
)

// Accept 接收一个新任务。先对最终产物做一次限时的远端存在性检查：
// 超时前命中则直接返回 201 和已发布的地址；否则立即返回 202 并在
// 后台跑完整条流水线。迟到的"已存在"结果依然生效——它会记录完成
// 状态并取消后台运行。
func (p *Pipeline) Accept(job *model.Job) *model.StatusResponse {
	headCh := p.headCheck(job)

	select {
	case info := <-headCh:
		if info != nil {
			// 产物早已发布，整条流水线都不用跑
			job.MD5 = strings.Trim(info.ETag, `"`)
			p.markComplete(job)
			return &model.StatusResponse{
				Code: model.StatusComplete,
				Data: map[string]interface{}{
					"output": job.OutputURL,
					"md5":    job.MD5,
				},
			}
		}
		// 明确不存在，不用再等迟到结果
		headCh = nil
	case <-time.After(p.cfg.HeadCheckWait):
		// 检查还没回来，先应答再续跑；检查结果迟到也要兑现
	}

	// 202 必须先于后台运行落盘，否则瞬间完成的运行会被它覆盖
	p.writeStatus(job, model.StatusProcessing, StageGetSourceVideo, "")
	p.archiveIntake(job)
	p.startAsync(job, headCh)
	return &model.StatusResponse{
		Code: model.StatusProcessing,
		Data: map[string]interface{}{
			"jobId": job.ID,
			"host":  p.cfg.Host,
		},
	}
}

// headCheck 后台查询远端是否已有最终产物；不存在或出错都送回 nil
func (p *Pipeline) headCheck(job *model.Job) chan *storage.ObjectInfo {
	ch := make(chan *storage.ObjectInfo, 1)
	if p.skipUpload(job) {
		ch <- nil
		return ch
	}
	go func() {
		info, err := p.store.StatObject(context.Background(), job.OutputObject)
		if err != nil {
			if !errors.Is(err, storage.ErrNotExist) {
				logger.Warn("远端存在性检查失败",
					logger.String("jobId", job.ID),
					logger.ErrorField(err))
			}
			ch <- nil
			return
		}
		ch <- info
	}()
	return ch
}

// startAsync 在后台运行流水线；lateCh 非空时继续等待迟到的检查结果
func (p *Pipeline) startAsync(job *model.Job, lateCh chan *storage.ObjectInfo) {
	ctx, cancel := context.WithCancel(context.Background())

	if lateCh != nil {
		go func() {
			info := <-lateCh
			if info == nil {
				return
			}
			// 迟到的"已存在"：记录完成并掐掉后台运行
			logger.Info("远端检查迟到命中，短路后台流水线",
				logger.String("jobId", job.ID))
			job.MD5 = strings.Trim(info.ETag, `"`)
			p.markComplete(job)
			cancel()
		}()
	}

	go func() {
		defer cancel()
		err := p.Run(ctx, job)
		switch {
		case err == nil:
			logger.Info("任务完成",
				logger.String("jobId", job.ID),
				logger.String("output", job.OutputURL))
		case errors.Is(err, context.Canceled):
			logger.Info("后台流水线被短路取消", logger.String("jobId", job.ID))
		default:
			logger.Error("任务失败",
				logger.String("jobId", job.ID),
				logger.ErrorField(err))
		}
	}()
}

// archiveIntake 接单时先落一条历史，失败只记日志
func (p *Pipeline) archiveIntake(job *model.Job) {
	if p.history == nil {
		return
	}
	err := p.history.Create(&model.JobRecord{
		JobID:      job.ID,
		Kind:       string(job.Kind),
		Video:      job.Video,
		ScriptHash: job.ScriptHash,
		OutputHash: job.OutputHash,
		StatusCode: model.StatusProcessing,
		Step:       StageGetSourceVideo,
	})
	if err != nil {
		logger.Warn("写入任务历史失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
}
