package address

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"VoxDub/config"
	"VoxDub/model"
)

func testConfig() *config.Config {
	return &config.Config{
		LineDir:       filepath.Join("cache", "line"),
		ScriptDir:     filepath.Join("cache", "script"),
		VideoDir:      filepath.Join("cache", "video"),
		OutputDir:     filepath.Join("cache", "output"),
		JobsDir:       filepath.Join("cache", "jobs"),
		SourcePrefix:  "sources",
		OutputPrefix:  "outputs",
		TrackPrefix:   "tracks",
		PublicURLBase: "http://workerA:8080",
	}
}

func sampleTemplate() model.JobTemplate {
	return model.JobTemplate{
		Video: "intro.mp4",
		Script: []model.ScriptLine{
			{TS: 2, Line: "第一句"},
			{TS: 8, Line: "第二句"},
		},
	}
}

func TestNewJobRejectsEmptyScript(t *testing.T) {
	_, err := NewJob("j1", model.JobTemplate{Video: "intro.mp4"}, testConfig())
	if !errors.Is(err, ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestNewJobRejectsEmptyID(t *testing.T) {
	if _, err := NewJob("", sampleTemplate(), testConfig()); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestHashesAreDeterministicAcrossJobIDs(t *testing.T) {
	cfg := testConfig()
	a, err := NewJob("job-a", sampleTemplate(), cfg)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	b, err := NewJob("job-b", sampleTemplate(), cfg)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	if a.ScriptHash != b.ScriptHash {
		t.Errorf("scriptHash differs across job ids: %s vs %s", a.ScriptHash, b.ScriptHash)
	}
	if a.OutputHash != b.OutputHash {
		t.Errorf("outputHash differs across job ids: %s vs %s", a.OutputHash, b.OutputHash)
	}
	if a.OutputPath != b.OutputPath {
		t.Errorf("output path differs across job ids: %s vs %s", a.OutputPath, b.OutputPath)
	}
	if a.ScriptAudioPath != b.ScriptAudioPath {
		t.Errorf("script audio path differs across job ids")
	}
	for i := range a.Tracks {
		if a.Tracks[i].AudioPath != b.Tracks[i].AudioPath {
			t.Errorf("track %d audio path differs across job ids", i)
		}
	}

	// 状态记录按任务ID区分
	if a.StatusPath == b.StatusPath {
		t.Error("status paths should differ per job id")
	}
}

func TestScriptHashChangesWithContent(t *testing.T) {
	cfg := testConfig()
	a, _ := NewJob("j1", sampleTemplate(), cfg)

	tpl := sampleTemplate()
	tpl.Script[1].Line = "改了一句"
	b, _ := NewJob("j1", tpl, cfg)

	if a.ScriptHash == b.ScriptHash {
		t.Error("scriptHash should change when script text changes")
	}
	// 视频名没变，最终产物命名不受脚本影响
	if a.OutputHash != b.OutputHash {
		t.Error("outputHash should not depend on script text")
	}
}

func TestArtifactNaming(t *testing.T) {
	job, err := NewJob("j1", sampleTemplate(), testConfig())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	wantScript := "intro_" + job.ScriptHash + ".mp3"
	if got := filepath.Base(job.ScriptAudioPath); got != wantScript {
		t.Errorf("script artifact name = %s, want %s", got, wantScript)
	}

	wantOutput := "intro_" + job.OutputHash + ".mp4"
	if got := filepath.Base(job.OutputPath); got != wantOutput {
		t.Errorf("output artifact name = %s, want %s", got, wantOutput)
	}

	for _, tr := range job.Tracks {
		if got := filepath.Base(tr.AudioPath); got != tr.Hash+".mp3" {
			t.Errorf("line artifact name = %s, want %s.mp3", got, tr.Hash)
		}
		if got := filepath.Base(tr.MetaPath); got != tr.Hash+".json" {
			t.Errorf("line metadata name = %s, want %s.json", got, tr.Hash)
		}
	}

	if got := filepath.Base(job.StatusPath); got != "job_j1.json" {
		t.Errorf("status file name = %s, want job_j1.json", got)
	}
	if !strings.HasPrefix(job.OutputObject, "outputs/") {
		t.Errorf("output object %s should live under outputs/", job.OutputObject)
	}
	if !strings.HasPrefix(job.OutputURL, "http://workerA:8080/outputs/") {
		t.Errorf("unexpected output URL %s", job.OutputURL)
	}
}

func TestTrackVariantUsesOwnNamespace(t *testing.T) {
	tpl := sampleTemplate()
	tpl.Kind = model.KindTrack
	job, err := NewJob("j1", tpl, testConfig())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	if got := filepath.Base(job.StatusPath); got != "track_j1.json" {
		t.Errorf("status file name = %s, want track_j1.json", got)
	}
	if !strings.HasPrefix(job.OutputObject, "tracks/") {
		t.Errorf("track output object %s should live under tracks/", job.OutputObject)
	}
}
