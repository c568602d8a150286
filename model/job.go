package model

import "time"

// JobKind distinguishes a full video-dub job from a track-only conversion.
// Track jobs use a separate status-file and URL namespace.
type JobKind string

const (
	KindVideo JobKind = "video"
	KindTrack JobKind = "track"
)

// ScriptLine 脚本中的一句台词及其时间戳（秒，可为小数）
type ScriptLine struct {
	TS   float64 `json:"ts"`
	Line string  `json:"line"`
}

// JobTemplate is the caller-supplied description of a dubbing job.
type JobTemplate struct {
	Video  string       `json:"video"` // source video filename, e.g. "intro.mp4"
	Script []ScriptLine `json:"script"`
	Kind   JobKind      `json:"kind,omitempty"` // defaults to KindVideo
}

// Track is one script line's synthesized-audio unit of work.
// Its MP3 is written by TTS synthesis and its metadata by probing that MP3;
// neither file is mutated once both exist.
type Track struct {
	Text      string  `json:"text"`
	TS        float64 `json:"ts"`
	Hash      string  `json:"hash"`      // content hash of Text
	AudioPath string  `json:"audioPath"` // <lineDir>/<hash>.mp3
	MetaPath  string  `json:"metaPath"`  // <lineDir>/<hash>.json
	Duration  float64 `json:"duration"`  // seconds, populated after probing
}

// StageTiming 记录单个阶段的起止时间
type StageTiming struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Elapsed returns the stage's wall time, zero if the stage never finished.
func (t StageTiming) Elapsed() time.Duration {
	if t.Start.IsZero() || t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// Job is the unit of work. Every artifact path is a pure function of
// (job id, script content, video filename): two jobs with identical script
// text and video name resolve to identical paths, which is what makes the
// pipeline's stage skips safe across separate invocations.
type Job struct {
	ID    string  `json:"id"`
	Kind  JobKind `json:"kind"`
	Video string  `json:"video"`

	Tracks     []*Track `json:"tracks"`
	ScriptHash string   `json:"scriptHash"` // hash of the full concatenated script text
	OutputHash string   `json:"outputHash"` // hash of the source video filename

	SourceVideoPath string `json:"sourceVideoPath"` // local cached source video
	ScriptAudioPath string `json:"scriptAudioPath"` // merged script-audio MP3
	OutputPath      string `json:"outputPath"`      // final local output
	StatusPath      string `json:"statusPath"`      // job status record file
	SourceObject    string `json:"sourceObject"`    // bucket key of the source video
	OutputObject    string `json:"outputObject"`    // bucket key of the published output
	OutputURL       string `json:"outputUrl"`       // public URL of the published output

	VideoDuration float64 `json:"videoDuration"` // seconds, populated by getVideoLength
	MD5           string  `json:"md5"`           // hex digest of the final artifact, set before upload

	Timings map[string]*StageTiming `json:"timings"`
}

// StartStage 记录阶段开始时间
func (j *Job) StartStage(name string) {
	if j.Timings == nil {
		j.Timings = make(map[string]*StageTiming)
	}
	j.Timings[name] = &StageTiming{Start: time.Now()}
}

// EndStage 记录阶段结束时间
func (j *Job) EndStage(name string) {
	if t, ok := j.Timings[name]; ok {
		t.End = time.Now()
	}
}
