package assembly

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"VoxDub/core/media"
	"VoxDub/logger"
)

// Entry 播放列表中的一个定时片段
type Entry struct {
	TS  float64 // 该片段在最终时间轴上的起始秒数
	Src string  // 片段音频文件路径
}

// Slot is one position in the final concat order: an optional leading
// silence followed by an optional source clip. The trailing slot carries
// only silence.
type Slot struct {
	Src       string
	GapBefore float64 // rounded to 2 decimals; 0 means no silence file
}

// Template describes one assembly invocation. The temp silence clips are
// private to the invocation and are removed afterwards unless Preserve is set.
type Template struct {
	Duration  float64 // total target duration in seconds
	PlayList  []Entry
	Bitrate   string
	Frequency int
	Workspace string // directory for temp silence clips
	Output    string // final concatenated track
	Preserve  bool   // keep temp silence clips, for debugging
}

// Assembler 把离散的定时片段重建成一条无缝的音轨
type Assembler struct {
	ops media.Ops
}

// NewAssembler creates an Assembler on top of the given subprocess layer.
func NewAssembler(ops media.Ops) *Assembler {
	return &Assembler{ops: ops}
}

// round2 四舍五入到小数点后两位，避免浮点误差进入命令行
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildTimeline computes the gap before every playlist entry plus a trailing
// gap up to the total duration. durations must parallel entries. The first
// entry's gap equals its own ts; each later gap is ts minus the previous
// entry's end; all gaps are rounded to 2 decimals.
func BuildTimeline(entries []Entry, durations []float64, total float64) ([]Slot, error) {
	if len(durations) != len(entries) {
		return nil, fmt.Errorf("时间轴计算需要 %d 个时长，实际 %d 个", len(entries), len(durations))
	}

	slots := make([]Slot, 0, len(entries)+1)
	prevEnd := 0.0
	for i, e := range entries {
		gap := round2(e.TS - prevEnd)
		if gap < 0 {
			return nil, fmt.Errorf("片段 %s 与前一片段重叠 %.2f 秒", e.Src, -gap)
		}
		slots = append(slots, Slot{Src: e.Src, GapBefore: gap})
		prevEnd = e.TS + durations[i]
	}

	// 末尾补一个只有静音的槽位，把音轨填满到总时长
	trailing := round2(total - prevEnd)
	if trailing < 0 {
		return nil, fmt.Errorf("片段总长超出目标时长 %.2f 秒", -trailing)
	}
	slots = append(slots, Slot{GapBefore: trailing})
	return slots, nil
}

// Assemble probes every playlist entry, fills the gaps between them with
// synthesized silence and concatenates the whole sequence into tpl.Output.
func (a *Assembler) Assemble(ctx context.Context, tpl *Template) error {
	var silences []string
	cleanup := func() {
		if tpl.Preserve {
			return
		}
		for _, s := range silences {
			if err := os.Remove(s); err != nil && !os.IsNotExist(err) {
				logger.Warn("清理静音临时文件失败",
					logger.String("file", s),
					logger.ErrorField(err))
			}
		}
	}
	defer cleanup()

	// 逐个探测片段时长，失败直接中止
	durations := make([]float64, len(tpl.PlayList))
	for i, e := range tpl.PlayList {
		result, err := a.ops.Probe(ctx, e.Src)
		if err != nil {
			return fmt.Errorf("探测片段 %s 失败: %w", e.Src, err)
		}
		d, ok := result.Duration()
		if !ok {
			return fmt.Errorf("片段 %s 的探测结果缺少时长", e.Src)
		}
		durations[i] = d
	}

	slots, err := BuildTimeline(tpl.PlayList, durations, tpl.Duration)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(tpl.Workspace, 0755); err != nil {
		return fmt.Errorf("创建工作目录失败: %w", err)
	}

	// 按槽位顺序展开：每个非零间隙合成一个静音片段，插在对应片段之前
	var sequence []string
	silenceOpts := &media.SilenceOptions{Bitrate: tpl.Bitrate, SampleRate: tpl.Frequency}
	for _, slot := range slots {
		if slot.GapBefore > 0 {
			silencePath := filepath.Join(tpl.Workspace, fmt.Sprintf("silence_%s.mp3", uuid.NewString()))
			if err := a.ops.MakeSilentMP3(ctx, silencePath, slot.GapBefore, silenceOpts); err != nil {
				return fmt.Errorf("合成 %.2f 秒静音失败: %w", slot.GapBefore, err)
			}
			silences = append(silences, silencePath)
			sequence = append(sequence, silencePath)
		}
		if slot.Src != "" {
			sequence = append(sequence, slot.Src)
		}
	}

	logger.Info("开始拼接音轨",
		logger.String("output", tpl.Output),
		logger.Int("clips", len(tpl.PlayList)),
		logger.Int("silences", len(silences)),
		logger.Float64("duration", tpl.Duration))

	if err := a.ops.Concat(ctx, sequence, tpl.Output); err != nil {
		return fmt.Errorf("拼接音轨失败: %w", err)
	}
	return nil
}
