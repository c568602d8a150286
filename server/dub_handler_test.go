package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"VoxDub/config"
	"VoxDub/core/media"
	"VoxDub/core/pipeline"
	"VoxDub/core/tts"
	"VoxDub/core/utils"
	"VoxDub/model"
	"VoxDub/repository"
	"VoxDub/status"
)

type nopOps struct{}

func (nopOps) Probe(ctx context.Context, file string) (*media.ProbeResult, error) {
	return &media.ProbeResult{Fields: map[string]interface{}{"duration": 1.0}}, nil
}
func (nopOps) Concat(ctx context.Context, files []string, output string) error {
	return os.WriteFile(output, []byte("concat"), 0644)
}
func (nopOps) MergeAudioToVideo(ctx context.Context, video, audio, output string, opts *media.MergeOptions) error {
	return os.WriteFile(output, []byte("merge"), 0644)
}
func (nopOps) MakeSilentMP3(ctx context.Context, output string, seconds float64, opts *media.SilenceOptions) error {
	return os.WriteFile(output, []byte("silence"), 0644)
}

type nopSynth struct{}

func (nopSynth) Synthesize(ctx context.Context, req tts.Request, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	return "", os.WriteFile(dest, []byte("audio"), 0644)
}

func testHandler(t *testing.T) (*APIHandler, *config.Config) {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		CacheDir:  base,
		RunDir:    filepath.Join(base, "run"),
		LineDir:   filepath.Join(base, "line"),
		ScriptDir: filepath.Join(base, "script"),
		VideoDir:  filepath.Join(base, "video"),
		OutputDir: filepath.Join(base, "output"),
		JobsDir:   filepath.Join(base, "jobs"),

		SourcePrefix:  "sources",
		OutputPrefix:  "outputs",
		TrackPrefix:   "tracks",
		OutputType:    "local", // 不经对象存储，接单后直接 202
		PublicURLBase: "http://workerA:8080",

		Host:          "workerA",
		Port:          "8080",
		HeadCheckWait: 100 * time.Millisecond,
		ProxyTimeout:  time.Second,
	}
	repo := repository.NewFileStatusRepository()
	pipe := pipeline.New(cfg, nopOps{}, nopSynth{}, nil, repo, nil)
	statusSvc := status.NewService(cfg, repo)
	return NewAPIHandler(cfg, pipe, statusSvc, repo), cfg
}

func postDub(t *testing.T, h *APIHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/dub", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.CreateDubHandler(w, req)
	return w
}

func TestCreateDubRejectsBadBody(t *testing.T) {
	h, _ := testHandler(t)
	if w := postDub(t, h, "{not json"); w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestCreateDubRejectsEmptyScript(t *testing.T) {
	h, _ := testHandler(t)
	if w := postDub(t, h, `{"video":"intro.mp4","script":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestCreateDubAccepts(t *testing.T) {
	h, cfg := testHandler(t)

	// 源视频已在本地，后台流水线无需对象存储
	if err := os.MkdirAll(cfg.VideoDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.VideoDir, "intro.mp4"), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	// nopOps 把所有媒体时长都报成 1 秒，台词从 0 开始正好铺满
	w := postDub(t, h, `{"id":"j1","video":"intro.mp4","script":[{"ts":0,"line":"第一句"}]}`)
	if w.Code != model.StatusProcessing {
		t.Fatalf("code = %d, want %d: %s", w.Code, model.StatusProcessing, w.Body.String())
	}

	var resp model.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data["jobId"] != "j1" || resp.Data["host"] != "workerA" {
		t.Errorf("202 payload = %v", resp.Data)
	}

	// 等后台流水线收尾，避免临时目录清理和它赛跑
	statusPath := filepath.Join(cfg.JobsDir, "job_j1.json")
	deadline := time.After(3 * time.Second)
	for {
		rec, err := repository.NewFileStatusRepository().Read(statusPath)
		if err == nil && rec.LastStatus.Code != model.StatusProcessing {
			if rec.LastStatus.Code != model.StatusComplete {
				t.Fatalf("background run ended with %d/%s: %s", rec.LastStatus.Code, rec.LastStatus.Step, rec.Detail)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("background pipeline never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !utils.FileExists(filepath.Join(cfg.OutputDir, "intro_"+utils.HashText("intro.mp4")+".mp4")) {
		t.Error("final output missing")
	}
}

func TestStatusHandlerRoutesKindAndHost(t *testing.T) {
	h, cfg := testHandler(t)

	err := repository.NewFileStatusRepository().Write(
		filepath.Join(cfg.JobsDir, "track_t1.json"),
		&model.JobStatusRecord{
			JobID:      "t1",
			Kind:       model.KindTrack,
			Host:       "workerA",
			LastStatus: &model.LastStatus{Code: model.StatusProcessing, Step: "convertLinesToMP3"},
		})
	if err != nil {
		t.Fatal(err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/dub/{job_id}/status", h.StatusHandler).Methods("GET")

	req := httptest.NewRequest(http.MethodGet, "/api/dub/t1/status?kind=track&host=workerA", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != model.StatusProcessing {
		t.Fatalf("code = %d, want %d: %s", w.Code, model.StatusProcessing, w.Body.String())
	}
	var resp model.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data["jobId"] != "t1" {
		t.Errorf("payload = %v", resp.Data)
	}
}
