package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"VoxDub/cache"
	"VoxDub/config"
	"VoxDub/core/assembly"
	"VoxDub/core/media"
	"VoxDub/core/tts"
	"VoxDub/core/utils"
	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/repository"
	"VoxDub/storage"
)

// 阶段名，按执行顺序排列
const (
	StageGetSourceVideo     = "getSourceVideo"
	StageConvertLines       = "convertLinesToMP3"
	StageCollectMetadata    = "collectLinesMetadata"
	StageGetVideoLength     = "getVideoLength"
	StageConvertScript      = "convertScriptToMP3"
	StageApplyScriptToVideo = "applyScriptToVideo"
	StageUploadToStorage    = "uploadToStorage"
)

// StageError 标记失败的阶段，一旦出现后续阶段不再执行
type StageError struct {
	Stage string
	Msg   string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

// Store 流水线消费的对象存储契约，storage.ObjectStore 直接满足它
type Store interface {
	StatObject(ctx context.Context, key string) (*storage.ObjectInfo, error)
	FPutObject(ctx context.Context, key, filePath, contentType, acl string) error
	FGetObject(ctx context.Context, key, filePath string) error
}

// Pipeline drives one job through the stage sequence. Lower layers never
// touch the status record; this is the single place that translates stage
// outcomes into status updates.
type Pipeline struct {
	cfg        *config.Config
	ops        media.Ops
	assembler  *assembly.Assembler
	tts        tts.Synthesizer
	store      Store // nil 表示对象存储未启用
	statusRepo repository.StatusRepository
	history    repository.HistoryRepository // nil 表示历史归档未启用
	probeCache *cache.TTLCache
}

// New wires the pipeline's collaborators together.
func New(cfg *config.Config, ops media.Ops, synth tts.Synthesizer, store Store,
	statusRepo repository.StatusRepository, history repository.HistoryRepository) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		ops:        ops,
		assembler:  assembly.NewAssembler(ops),
		tts:        synth,
		store:      store,
		statusRepo: statusRepo,
		history:    history,
		probeCache: cache.NewTTLCache(30*time.Minute, time.Minute),
	}
}

type stage struct {
	name string
	skip func(job *model.Job) bool
	run  func(ctx context.Context, job *model.Job) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StageGetSourceVideo, p.skipGetSourceVideo, p.runGetSourceVideo},
		{StageConvertLines, p.skipConvertLines, p.runConvertLines},
		{StageCollectMetadata, p.skipCollectMetadata, p.runCollectMetadata},
		{StageGetVideoLength, p.skipGetVideoLength, p.runGetVideoLength},
		{StageConvertScript, p.skipConvertScript, p.runConvertScript},
		{StageApplyScriptToVideo, p.skipApplyScript, p.runApplyScript},
		{StageUploadToStorage, p.skipUpload, p.runUpload},
	}
}

// Run executes the stage sequence strictly in order. If the final output
// already exists at entry the whole run is skipped and the job is marked
// complete immediately.
func (p *Pipeline) Run(ctx context.Context, job *model.Job) error {
	if utils.FileExists(job.OutputPath) && !p.uploadPending(job) {
		logger.Info("最终产物已存在，整条流水线跳过",
			logger.String("jobId", job.ID),
			logger.String("output", job.OutputPath))
		p.markComplete(job)
		return nil
	}

	for _, st := range p.stages() {
		// 迟到的"远端已存在"结果会取消上下文，阶段之间检查一次即可
		if err := ctx.Err(); err != nil {
			return err
		}

		if st.skip != nil && st.skip(job) {
			logger.Debug("阶段产物已存在，跳过",
				logger.String("jobId", job.ID),
				logger.String("stage", st.name))
			continue
		}

		job.StartStage(st.name)
		p.writeStatus(job, model.StatusProcessing, st.name, "")

		if err := st.run(ctx, job); err != nil {
			if ctx.Err() != nil {
				// 短路取消不算失败，完成状态已由取消方写入
				return ctx.Err()
			}
			p.writeStatus(job, model.StatusFailed, st.name, err.Error())
			p.archiveFinal(job, model.StatusFailed, st.name, err.Error())
			return &StageError{Stage: st.name, Msg: err.Error()}
		}
		job.EndStage(st.name)

		logger.Info("阶段完成",
			logger.String("jobId", job.ID),
			logger.String("stage", st.name),
			logger.Duration("elapsed", job.Timings[st.name].Elapsed()))
	}

	p.markComplete(job)
	return nil
}

// uploadPending 本地产物存在但还没发布到远端时，上传阶段仍需执行
func (p *Pipeline) uploadPending(job *model.Job) bool {
	if p.skipUpload(job) {
		return false
	}
	_, err := p.store.StatObject(context.Background(), job.OutputObject)
	return errors.Is(err, storage.ErrNotExist)
}

// markComplete 写入 201 终态并归档
func (p *Pipeline) markComplete(job *model.Job) {
	if job.MD5 == "" && utils.FileExists(job.OutputPath) {
		if sum, err := utils.FileMD5(job.OutputPath); err == nil {
			job.MD5 = sum
		}
	}
	rec := p.record(job, model.StatusComplete, "complete", "")
	rec.ResultFile = job.OutputPath
	rec.ResultURL = job.OutputURL
	rec.ResultMD5 = job.MD5
	p.persist(job, rec)
	p.archiveFinal(job, model.StatusComplete, "complete", "")
}

// writeStatus 每次阶段变迁后刷新持久状态记录
func (p *Pipeline) writeStatus(job *model.Job, code int, step, detail string) {
	rec := p.record(job, code, step, detail)
	if code == model.StatusComplete {
		rec.ResultFile = job.OutputPath
		rec.ResultURL = job.OutputURL
		rec.ResultMD5 = job.MD5
	}
	p.persist(job, rec)
}

func (p *Pipeline) record(job *model.Job, code int, step, detail string) *model.JobStatusRecord {
	return &model.JobStatusRecord{
		JobID:      job.ID,
		Kind:       job.Kind,
		Host:       p.cfg.Host,
		LastStatus: &model.LastStatus{Code: code, Step: step},
		Detail:     detail,
	}
}

func (p *Pipeline) persist(job *model.Job, rec *model.JobStatusRecord) {
	// 保留首次创建时间
	if old, err := p.statusRepo.Read(job.StatusPath); err == nil {
		rec.CreateTime = old.CreateTime
	}
	if err := p.statusRepo.Write(job.StatusPath, rec); err != nil {
		logger.Error("写入状态记录失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
		return
	}
	cache.SetStatusCache(rec, p.cfg.StatusCacheTTL)
}

// archiveFinal 任务历史归档，失败只记日志
func (p *Pipeline) archiveFinal(job *model.Job, code int, step, detail string) {
	if p.history == nil {
		return
	}
	var elapsed int64
	for _, t := range job.Timings {
		elapsed += t.Elapsed().Milliseconds()
	}
	err := p.history.MarkFinal(job.ID, code, step, job.OutputURL, job.MD5, elapsed, detail)
	if err != nil {
		logger.Warn("任务历史归档失败",
			logger.String("jobId", job.ID),
			logger.ErrorField(err))
	}
}

// ---- getSourceVideo ----

func (p *Pipeline) skipGetSourceVideo(job *model.Job) bool {
	return utils.FileExists(job.SourceVideoPath)
}

func (p *Pipeline) runGetSourceVideo(ctx context.Context, job *model.Job) error {
	if p.store == nil {
		return fmt.Errorf("源视频 %s 不在本地且对象存储未启用", job.Video)
	}
	if err := os.MkdirAll(p.cfg.VideoDir, 0755); err != nil {
		return fmt.Errorf("创建视频缓存目录失败: %w", err)
	}
	if err := p.store.FGetObject(ctx, job.SourceObject, job.SourceVideoPath); err != nil {
		return fmt.Errorf("拉取源视频失败: %w", err)
	}
	return nil
}

// ---- convertLinesToMP3 ----

func (p *Pipeline) skipConvertLines(job *model.Job) bool {
	for _, t := range job.Tracks {
		if !utils.FileExists(t.AudioPath) {
			return false
		}
	}
	return true
}

func (p *Pipeline) runConvertLines(ctx context.Context, job *model.Job) error {
	for _, t := range job.Tracks {
		if utils.FileExists(t.AudioPath) {
			continue
		}
		if err := p.synthesizeLine(ctx, job, t); err != nil {
			// 单句永久失败即中止整个阶段，后面的台词不再尝试
			return err
		}
	}
	return nil
}

// synthesizeLine 每句台词失败后恰好重试一次；每次失败都先记日志再决定重试
func (p *Pipeline) synthesizeLine(ctx context.Context, job *model.Job, t *model.Track) error {
	req := tts.Request{
		Text:        t.Text,
		Voice:       p.cfg.TTSVoice,
		Effect:      p.cfg.TTSEffect,
		EffectLevel: p.cfg.TTSEffectLevel,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		warnings, err := p.tts.Synthesize(ctx, req, t.AudioPath)
		if err == nil {
			if warnings != "" {
				logger.Warn("语音合成返回告警",
					logger.String("jobId", job.ID),
					logger.String("line", t.Hash),
					logger.String("warnings", warnings))
			}
			return nil
		}
		lastErr = err
		logger.Error("台词合成失败",
			logger.String("jobId", job.ID),
			logger.String("line", t.Hash),
			logger.Int("attempt", attempt+1),
			logger.ErrorField(err))
	}
	return fmt.Errorf("台词 %s 合成失败: %v", t.Hash, lastErr)
}

// ---- collectLinesMetadata ----

// trackMeta 台词音频的元数据缓存文件内容
type trackMeta struct {
	Duration float64 `json:"duration"`
}

// skipCollectMetadata 所有元数据文件都在时不再探测，但仍要把时长装回内存
func (p *Pipeline) skipCollectMetadata(job *model.Job) bool {
	for _, t := range job.Tracks {
		if t.Duration > 0 {
			continue
		}
		d, ok := p.loadTrackMeta(t)
		if !ok {
			return false
		}
		t.Duration = d
	}
	return true
}

func (p *Pipeline) loadTrackMeta(t *model.Track) (float64, bool) {
	if v, ok := p.probeCache.Get(t.Hash); ok {
		if d, ok := v.(float64); ok {
			return d, true
		}
	}
	data, err := os.ReadFile(t.MetaPath)
	if err != nil {
		return 0, false
	}
	var meta trackMeta
	if err := json.Unmarshal(data, &meta); err != nil || meta.Duration <= 0 {
		return 0, false
	}
	return meta.Duration, true
}

func (p *Pipeline) runCollectMetadata(ctx context.Context, job *model.Job) error {
	for _, t := range job.Tracks {
		if t.Duration > 0 {
			continue
		}
		if d, ok := p.loadTrackMeta(t); ok {
			t.Duration = d
			continue
		}

		result, err := p.ops.Probe(ctx, t.AudioPath)
		if err != nil {
			return fmt.Errorf("探测台词音频 %s 失败: %w", t.Hash, err)
		}
		d, ok := result.Duration()
		if !ok {
			// 退出码正常但没有时长字段，同样算阶段失败
			return fmt.Errorf("台词音频 %s 的探测结果缺少时长", t.Hash)
		}
		t.Duration = d
		p.probeCache.Set(t.Hash, d)

		// 元数据缓存文件是尽力而为的，写失败不影响阶段
		if data, err := json.Marshal(trackMeta{Duration: d}); err == nil {
			if err := os.WriteFile(t.MetaPath, data, 0644); err != nil {
				logger.Warn("写入台词元数据缓存失败",
					logger.String("line", t.Hash),
					logger.ErrorField(err))
			}
		}
	}
	return nil
}

// ---- getVideoLength ----

func (p *Pipeline) videoMetaPath(job *model.Job) string {
	return job.SourceVideoPath + ".json"
}

func (p *Pipeline) skipGetVideoLength(job *model.Job) bool {
	if job.VideoDuration > 0 {
		return true
	}
	data, err := os.ReadFile(p.videoMetaPath(job))
	if err != nil {
		return false
	}
	var meta trackMeta
	if err := json.Unmarshal(data, &meta); err != nil || meta.Duration <= 0 {
		return false
	}
	job.VideoDuration = meta.Duration
	return true
}

func (p *Pipeline) runGetVideoLength(ctx context.Context, job *model.Job) error {
	result, err := p.ops.Probe(ctx, job.SourceVideoPath)
	if err != nil {
		return fmt.Errorf("探测源视频失败: %w", err)
	}
	d, ok := result.Duration()
	if !ok {
		return fmt.Errorf("源视频 %s 的探测结果缺少时长", job.Video)
	}
	job.VideoDuration = d

	if data, err := json.Marshal(trackMeta{Duration: d}); err == nil {
		if err := os.WriteFile(p.videoMetaPath(job), data, 0644); err != nil {
			logger.Warn("写入视频元数据缓存失败",
				logger.String("video", job.Video),
				logger.ErrorField(err))
		}
	}
	return nil
}

// ---- convertScriptToMP3 ----

func (p *Pipeline) skipConvertScript(job *model.Job) bool {
	return utils.FileExists(job.ScriptAudioPath)
}

func (p *Pipeline) runConvertScript(ctx context.Context, job *model.Job) error {
	playList := make([]assembly.Entry, 0, len(job.Tracks))
	for _, t := range job.Tracks {
		playList = append(playList, assembly.Entry{TS: t.TS, Src: t.AudioPath})
	}

	tpl := &assembly.Template{
		Duration:  job.VideoDuration,
		PlayList:  playList,
		Bitrate:   p.cfg.AudioBitrate,
		Frequency: p.cfg.AudioFrequency,
		Workspace: p.cfg.RunDir,
		Output:    job.ScriptAudioPath,
	}
	if err := os.MkdirAll(p.cfg.ScriptDir, 0755); err != nil {
		return fmt.Errorf("创建脚本音轨目录失败: %w", err)
	}
	return p.assembler.Assemble(ctx, tpl)
}

// ---- applyScriptToVideo ----

func (p *Pipeline) skipApplyScript(job *model.Job) bool {
	return utils.FileExists(job.OutputPath)
}

func (p *Pipeline) runApplyScript(ctx context.Context, job *model.Job) error {
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	opts := &media.MergeOptions{SampleRate: p.cfg.AudioFrequency}
	return p.ops.MergeAudioToVideo(ctx, job.SourceVideoPath, job.ScriptAudioPath, job.OutputPath, opts)
}

// ---- uploadToStorage ----

// skipUpload 输出类型不是远端存储、或存储未启用时整个上传阶段是空操作
func (p *Pipeline) skipUpload(job *model.Job) bool {
	return p.cfg.OutputType != "minio" || !p.cfg.MinioEnabled || p.store == nil
}

func (p *Pipeline) runUpload(ctx context.Context, job *model.Job) error {
	md5sum, err := utils.FileMD5(job.OutputPath)
	if err != nil {
		return fmt.Errorf("计算输出文件摘要失败: %w", err)
	}
	job.MD5 = md5sum

	info, err := p.store.StatObject(ctx, job.OutputObject)
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return fmt.Errorf("查询远端对象失败: %w", err)
	}
	if info != nil && strings.Trim(info.ETag, `"`) == md5sum {
		// 内容寻址去重：同样的产物绝不重复上传
		logger.Info("远端已存在相同内容，跳过上传",
			logger.String("jobId", job.ID),
			logger.String("etag", info.ETag))
		return nil
	}

	err = p.store.FPutObject(ctx, job.OutputObject, job.OutputPath, p.cfg.OutputMimeType, p.cfg.OutputACL)
	if err != nil {
		return fmt.Errorf("上传输出文件失败: %w", err)
	}
	logger.Info("输出文件上传完成",
		logger.String("jobId", job.ID),
		logger.String("object", job.OutputObject),
		logger.String("md5", md5sum))
	return nil
}
