package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"VoxDub/logger"
)

// MaxSilenceSeconds 静音片段的时长上限，超过即为硬错误
// 空白源素材本身只有这么长，裁剪不可能超出它。
const MaxSilenceSeconds = 300.0

// MergeOptions tunes MergeAudioToVideo.
type MergeOptions struct {
	SampleRate int // output audio sample rate, 0 keeps the default
}

// SilenceOptions tunes MakeSilentMP3. When both fields are zero the blank
// source is stream-copied instead of re-encoded.
type SilenceOptions struct {
	Bitrate    string // e.g. "128k"
	SampleRate int
}

// Ops is the contract the assembly engine and the pipeline consume, so that
// tests can substitute the external binary.
type Ops interface {
	Probe(ctx context.Context, file string) (*ProbeResult, error)
	Concat(ctx context.Context, files []string, output string) error
	MergeAudioToVideo(ctx context.Context, video, audio, output string, opts *MergeOptions) error
	MakeSilentMP3(ctx context.Context, output string, seconds float64, opts *SilenceOptions) error
}

// FFmpeg implements Ops by shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	blankSource string // 固定的空白音频源，用于裁剪静音片段
	runDir      string // concat 列表脚本等临时文件的存放目录
}

// NewFFmpeg creates a new FFmpeg subprocess wrapper.
func NewFFmpeg(ffmpegPath, ffprobePath, blankSource, runDir string) *FFmpeg {
	if ffprobePath == "" {
		ffprobePath = strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		blankSource: blankSource,
		runDir:      runDir,
	}
}

// classifyOutcome 统一的结果分类：
// 非零退出 + 非空 stderr => 硬错误（带 stderr）；
// 非零退出 + 空 stderr   => 硬错误（带进程错误信息）；
// 零退出   + 非空 stderr => 软告警，操作仍视为成功。
func classifyOutcome(op string, runErr error, stderr string) (warning string, err error) {
	stderr = strings.TrimSpace(stderr)
	if runErr != nil {
		return "", &OpError{Op: op, Kind: KindExec, Stderr: stderr, Err: runErr}
	}
	return stderr, nil
}

// run executes the binary and classifies the outcome. The returned warning is
// non-empty when the process succeeded but wrote to stderr.
func (f *FFmpeg) run(ctx context.Context, op, bin string, args []string) (stdout, warning string, err error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	var errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	logger.Debug("执行媒体子进程",
		logger.String("op", op),
		logger.String("bin", bin),
		logger.String("args", strings.Join(args, " ")))

	runErr := cmd.Run()
	warning, err = classifyOutcome(op, runErr, errBuf.String())
	if err != nil {
		return "", "", err
	}
	if warning != "" {
		logger.Warn("媒体子进程产生告警输出",
			logger.String("op", op),
			logger.String("stderr", warning))
	}
	return out.String(), warning, nil
}

// ProbeResult holds the flattened ffprobe format section. Values that parse
// as numbers are coerced to float64.
type ProbeResult struct {
	Fields  map[string]interface{}
	Warning string // soft warning surfaced for logging
}

// Duration returns the probed duration in seconds.
func (r *ProbeResult) Duration() (float64, bool) {
	v, ok := r.Fields["duration"]
	if !ok {
		return 0, false
	}
	d, ok := v.(float64)
	return d, ok
}

// coerce 把能按数字解析的字符串转成 float64，其余原样保留
func coerce(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// Probe extracts the container metadata of a media file.
func (f *FFmpeg) Probe(ctx context.Context, file string) (*ProbeResult, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, preconditionErr("probe", "输入文件不存在: %s", file)
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format",
		"-of", "json",
		file,
	}

	stdout, warning, err := f.run(ctx, "probe", f.ffprobePath, args)
	if err != nil {
		return nil, err
	}

	var probeData struct {
		Format map[string]interface{} `json:"format"`
	}
	if err := json.Unmarshal([]byte(stdout), &probeData); err != nil || probeData.Format == nil {
		return nil, &OpError{
			Op:   "probe",
			Kind: KindUnexpectedOutput,
			Err:  fmt.Errorf("ffprobe 输出不符合预期: %q", stdout),
		}
	}

	fields := make(map[string]interface{}, len(probeData.Format))
	for k, v := range probeData.Format {
		fields[k] = coerce(v)
	}
	return &ProbeResult{Fields: fields, Warning: warning}, nil
}

// Concat losslessly joins at least two MP3 files into output using the
// concat demuxer with stream copy. The output path must not already exist.
func (f *FFmpeg) Concat(ctx context.Context, files []string, output string) error {
	if len(files) < 2 {
		return preconditionErr("concat", "拼接至少需要2个输入文件，当前 %d 个", len(files))
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			return preconditionErr("concat", "输入文件不存在: %s", file)
		}
	}
	if _, err := os.Stat(output); err == nil {
		return preconditionErr("concat", "输出文件已存在: %s", output)
	}

	listPath, err := f.writeConcatList(files, output)
	if err != nil {
		return &OpError{Op: "concat", Kind: KindPrecondition, Err: err}
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}

	if _, _, err := f.run(ctx, "concat", f.ffmpegPath, args); err != nil {
		os.Remove(output) // 失败时清掉半成品
		return err
	}
	return nil
}

// writeConcatList 生成 concat demuxer 需要的文件列表脚本
func (f *FFmpeg) writeConcatList(files []string, output string) (string, error) {
	dir := f.runDir
	if dir == "" {
		dir = filepath.Dir(output)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建临时目录失败: %w", err)
	}

	var b strings.Builder
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", fmt.Errorf("解析输入文件路径失败: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}

	listPath := filepath.Join(dir, filepath.Base(output)+".concat.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("写入拼接列表失败: %w", err)
	}
	return listPath, nil
}

// MergeAudioToVideo overlays an audio stream onto a video container. The
// shorter audio stream is padded, the video codec is copied unchanged.
func (f *FFmpeg) MergeAudioToVideo(ctx context.Context, video, audio, output string, opts *MergeOptions) error {
	if _, err := os.Stat(video); err != nil {
		return preconditionErr("merge", "视频文件不存在: %s", video)
	}
	if _, err := os.Stat(audio); err != nil {
		return preconditionErr("merge", "音频文件不存在: %s", audio)
	}

	args := []string{
		"-i", video,
		"-i", audio,
		"-filter_complex", "[1:a]apad[pad];[0:a][pad]amerge=inputs=2[aout]",
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-shortest",
	}
	if opts != nil && opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	args = append(args, output)

	if _, _, err := f.run(ctx, "merge", f.ffmpegPath, args); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

// MakeSilentMP3 produces an MP3 of the requested duration by trimming the
// fixed blank source asset. Durations above MaxSilenceSeconds are rejected.
func (f *FFmpeg) MakeSilentMP3(ctx context.Context, output string, seconds float64, opts *SilenceOptions) error {
	if seconds > MaxSilenceSeconds {
		return preconditionErr("silence", "静音时长 %.2f 秒超过上限 %.0f 秒", seconds, MaxSilenceSeconds)
	}
	if _, err := os.Stat(output); err == nil {
		return preconditionErr("silence", "输出文件已存在: %s", output)
	}
	if _, err := os.Stat(f.blankSource); err != nil {
		return preconditionErr("silence", "空白音频源不存在: %s", f.blankSource)
	}

	args := []string{
		"-i", f.blankSource,
		"-t", strconv.FormatFloat(seconds, 'f', 2, 64),
	}
	if opts != nil && (opts.Bitrate != "" || opts.SampleRate > 0) {
		if opts.Bitrate != "" {
			args = append(args, "-b:a", opts.Bitrate)
		}
		if opts.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
		}
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, output)

	if _, _, err := f.run(ctx, "silence", f.ffmpegPath, args); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}
