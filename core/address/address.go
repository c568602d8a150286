package address

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"VoxDub/config"
	"VoxDub/core/utils"
	"VoxDub/model"
)

// ErrEmptyScript 任务模板里没有台词脚本，属于致命的构造错误，不可重试
var ErrEmptyScript = errors.New("任务模板缺少台词脚本")

// NewJob derives a Job from its semantic inputs. Pure construction: no I/O.
// All artifact paths are functions of (job id, script content, video name);
// identical content always maps to identical filenames, which is what makes
// stage-skip idempotency safe across separate job invocations.
func NewJob(id string, tpl model.JobTemplate, cfg *config.Config) (*model.Job, error) {
	if len(tpl.Script) == 0 {
		return nil, ErrEmptyScript
	}
	if id == "" {
		return nil, errors.New("任务缺少标识")
	}

	kind := tpl.Kind
	if kind == "" {
		kind = model.KindVideo
	}

	videoName := filepath.Base(tpl.Video)
	ext := filepath.Ext(videoName)
	base := strings.TrimSuffix(videoName, ext)

	// 整段脚本文本的内容哈希，决定合成音轨的文件名
	var sb strings.Builder
	for _, line := range tpl.Script {
		sb.WriteString(line.Line)
	}
	scriptHash := utils.HashText(sb.String())
	outputHash := utils.HashText(videoName)

	tracks := make([]*model.Track, 0, len(tpl.Script))
	for _, line := range tpl.Script {
		h := utils.HashText(line.Line)
		tracks = append(tracks, &model.Track{
			Text:      line.Line,
			TS:        line.TS,
			Hash:      h,
			AudioPath: filepath.Join(cfg.LineDir, h+".mp3"),
			MetaPath:  filepath.Join(cfg.LineDir, h+".json"),
		})
	}

	outputName := fmt.Sprintf("%s_%s%s", base, outputHash, ext)
	job := &model.Job{
		ID:         id,
		Kind:       kind,
		Video:      videoName,
		Tracks:     tracks,
		ScriptHash: scriptHash,
		OutputHash: outputHash,

		SourceVideoPath: filepath.Join(cfg.VideoDir, videoName),
		ScriptAudioPath: filepath.Join(cfg.ScriptDir, fmt.Sprintf("%s_%s.mp3", base, scriptHash)),
		OutputPath:      filepath.Join(cfg.OutputDir, outputName),
		StatusPath:      filepath.Join(cfg.JobsDir, StatusFileName(id, kind)),
		SourceObject:    cfg.SourcePrefix + "/" + videoName,

		Timings: make(map[string]*model.StageTiming),
	}

	// 轨道转换任务与整片配音任务使用各自的命名空间
	prefix := cfg.OutputPrefix
	if kind == model.KindTrack {
		prefix = cfg.TrackPrefix
	}
	job.OutputObject = prefix + "/" + outputName
	job.OutputURL = strings.TrimSuffix(cfg.PublicURLBase, "/") + "/" + job.OutputObject

	return job, nil
}

// StatusFileName 状态记录文件名；轨道任务使用独立前缀
func StatusFileName(id string, kind model.JobKind) string {
	if kind == model.KindTrack {
		return fmt.Sprintf("track_%s.json", id)
	}
	return fmt.Sprintf("job_%s.json", id)
}
