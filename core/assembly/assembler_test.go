package assembly

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"VoxDub/core/media"
)

// stubOps 记录调用并用普通文件代替真正的子进程产物
type stubOps struct {
	durations map[string]float64
	probes    []string
	silences  []float64
	concatIn  []string
	concatOut string
}

func (s *stubOps) Probe(ctx context.Context, file string) (*media.ProbeResult, error) {
	s.probes = append(s.probes, file)
	d, ok := s.durations[file]
	if !ok {
		return &media.ProbeResult{Fields: map[string]interface{}{}}, nil
	}
	return &media.ProbeResult{Fields: map[string]interface{}{"duration": d}}, nil
}

func (s *stubOps) Concat(ctx context.Context, files []string, output string) error {
	s.concatIn = append([]string{}, files...)
	s.concatOut = output
	return os.WriteFile(output, []byte("concat"), 0644)
}

func (s *stubOps) MergeAudioToVideo(ctx context.Context, video, audio, output string, opts *media.MergeOptions) error {
	return os.WriteFile(output, []byte("merge"), 0644)
}

func (s *stubOps) MakeSilentMP3(ctx context.Context, output string, seconds float64, opts *media.SilenceOptions) error {
	s.silences = append(s.silences, seconds)
	return os.WriteFile(output, []byte("silence"), 0644)
}

func TestBuildTimelineGaps(t *testing.T) {
	entries := []Entry{
		{TS: 2, Src: "a.mp3"},
		{TS: 8, Src: "b.mp3"},
		{TS: 13, Src: "c.mp3"},
	}
	durations := []float64{3.335333, 3.764, 2.286}

	slots, err := BuildTimeline(entries, durations, 16.5)
	if err != nil {
		t.Fatalf("BuildTimeline: %v", err)
	}

	// 间隙 = ts − 上一片段的结束时刻，四舍五入到2位：
	// 2 − 0 = 2.0；8 − 5.335333 = 2.66；13 − 11.764 = 1.24；末尾 16.5 − 15.286 = 1.21
	wantGaps := []float64{2.0, 2.66, 1.24, 1.21}
	if len(slots) != len(wantGaps) {
		t.Fatalf("got %d slots, want %d", len(slots), len(wantGaps))
	}
	for i, want := range wantGaps {
		if slots[i].GapBefore != want {
			t.Errorf("slot %d gap = %v, want %v", i, slots[i].GapBefore, want)
		}
	}
	// 末尾槽位只有静音
	if slots[3].Src != "" {
		t.Errorf("trailing slot should carry no clip, got %s", slots[3].Src)
	}
}

func TestBuildTimelineZeroGap(t *testing.T) {
	entries := []Entry{
		{TS: 0, Src: "a.mp3"},
		{TS: 2, Src: "b.mp3"},
	}
	slots, err := BuildTimeline(entries, []float64{2.0, 1.0}, 3.0)
	if err != nil {
		t.Fatalf("BuildTimeline: %v", err)
	}
	for i, slot := range slots {
		if slot.GapBefore != 0 {
			t.Errorf("slot %d gap = %v, want 0", i, slot.GapBefore)
		}
	}
}

func TestBuildTimelineRejectsOverlap(t *testing.T) {
	entries := []Entry{
		{TS: 0, Src: "a.mp3"},
		{TS: 1, Src: "b.mp3"},
	}
	if _, err := BuildTimeline(entries, []float64{2.0, 1.0}, 10); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestBuildTimelineRejectsOverrun(t *testing.T) {
	entries := []Entry{{TS: 0, Src: "a.mp3"}}
	if _, err := BuildTimeline(entries, []float64{5.0}, 3.0); err == nil {
		t.Fatal("expected overrun error")
	}
}

func TestBuildTimelineDurationCountMismatch(t *testing.T) {
	entries := []Entry{{TS: 0, Src: "a.mp3"}}
	if _, err := BuildTimeline(entries, nil, 3.0); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestAssembleBuildsSequenceAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")
	b := filepath.Join(dir, "b.mp3")

	ops := &stubOps{durations: map[string]float64{a: 3.0, b: 2.0}}
	asm := NewAssembler(ops)

	tpl := &Template{
		Duration:  10,
		PlayList:  []Entry{{TS: 1, Src: a}, {TS: 5, Src: b}},
		Workspace: filepath.Join(dir, "run"),
		Output:    filepath.Join(dir, "out.mp3"),
	}
	if err := asm.Assemble(context.Background(), tpl); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// 每个片段都被探测过一次
	if len(ops.probes) != 2 {
		t.Errorf("probes = %d, want 2", len(ops.probes))
	}
	// 间隙 1, 1, 尾部 3 => 3 个静音片段
	want := []float64{1, 1, 3}
	if len(ops.silences) != len(want) {
		t.Fatalf("silences = %v, want %v", ops.silences, want)
	}
	for i := range want {
		if ops.silences[i] != want[i] {
			t.Errorf("silence %d = %v, want %v", i, ops.silences[i], want[i])
		}
	}

	// 拼接顺序：静音、片段交替，尾部是静音
	if len(ops.concatIn) != 5 {
		t.Fatalf("concat input = %v, want 5 entries", ops.concatIn)
	}
	if ops.concatIn[1] != a || ops.concatIn[3] != b {
		t.Errorf("clips out of order: %v", ops.concatIn)
	}
	for _, i := range []int{0, 2, 4} {
		if !strings.Contains(filepath.Base(ops.concatIn[i]), "silence_") {
			t.Errorf("entry %d should be a silence clip: %s", i, ops.concatIn[i])
		}
	}

	// 临时静音全部清理，最终产物保留
	for _, i := range []int{0, 2, 4} {
		if _, err := os.Stat(ops.concatIn[i]); !os.IsNotExist(err) {
			t.Errorf("silence clip %s should be removed", ops.concatIn[i])
		}
	}
	if _, err := os.Stat(tpl.Output); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestAssembleSkipsZeroGaps(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")

	ops := &stubOps{durations: map[string]float64{a: 5.0}}
	asm := NewAssembler(ops)

	tpl := &Template{
		Duration:  5,
		PlayList:  []Entry{{TS: 0, Src: a}},
		Workspace: filepath.Join(dir, "run"),
		Output:    filepath.Join(dir, "out.mp3"),
	}
	if err := asm.Assemble(context.Background(), tpl); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(ops.silences) != 0 {
		t.Errorf("no silence should be generated, got %v", ops.silences)
	}
	if len(ops.concatIn) != 1 || ops.concatIn[0] != a {
		t.Errorf("concat input = %v, want just the clip", ops.concatIn)
	}
}

func TestAssembleFailsOnMissingDuration(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")

	ops := &stubOps{durations: map[string]float64{}} // 探测结果没有时长字段
	asm := NewAssembler(ops)

	tpl := &Template{
		Duration:  5,
		PlayList:  []Entry{{TS: 0, Src: a}},
		Workspace: filepath.Join(dir, "run"),
		Output:    filepath.Join(dir, "out.mp3"),
	}
	if err := asm.Assemble(context.Background(), tpl); err == nil {
		t.Fatal("expected error for missing duration")
	}
}

func TestAssemblePreserveKeepsSilence(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")

	ops := &stubOps{durations: map[string]float64{a: 2.0}}
	asm := NewAssembler(ops)

	tpl := &Template{
		Duration:  4,
		PlayList:  []Entry{{TS: 1, Src: a}},
		Workspace: filepath.Join(dir, "run"),
		Output:    filepath.Join(dir, "out.mp3"),
		Preserve:  true,
	}
	if err := asm.Assemble(context.Background(), tpl); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, f := range ops.concatIn {
		if f == a {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			t.Errorf("preserved silence clip missing: %s", f)
		}
	}
}
