package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"VoxDub/model"
)

func TestStatusRepositoryRoundTrip(t *testing.T) {
	repo := NewFileStatusRepository()
	path := filepath.Join(t.TempDir(), "jobs", "job_j1.json")

	rec := &model.JobStatusRecord{
		JobID:      "j1",
		Kind:       model.KindVideo,
		Host:       "workerA",
		LastStatus: &model.LastStatus{Code: model.StatusProcessing, Step: "getSourceVideo"},
	}
	if err := repo.Write(path, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := repo.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.JobID != "j1" || got.Host != "workerA" {
		t.Errorf("record = %+v", got)
	}
	if got.LastStatus.Code != model.StatusProcessing || got.LastStatus.Step != "getSourceVideo" {
		t.Errorf("lastStatus = %+v", got.LastStatus)
	}
	if got.CreateTime.IsZero() || got.LastUpdateTime.IsZero() {
		t.Error("timestamps should be populated on write")
	}
}

func TestStatusRepositoryPreservesCreateTime(t *testing.T) {
	repo := NewFileStatusRepository()
	path := filepath.Join(t.TempDir(), "job_j1.json")

	first := &model.JobStatusRecord{
		JobID:      "j1",
		LastStatus: &model.LastStatus{Code: model.StatusProcessing, Step: "getSourceVideo"},
	}
	if err := repo.Write(path, first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	created := first.CreateTime

	time.Sleep(5 * time.Millisecond)
	second := &model.JobStatusRecord{
		JobID:      "j1",
		CreateTime: created, // 调用方负责带上首次创建时间
		LastStatus: &model.LastStatus{Code: model.StatusComplete, Step: "complete"},
	}
	if err := repo.Write(path, second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := repo.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.CreateTime.Equal(created) {
		t.Errorf("createTime = %s, want %s", got.CreateTime, created)
	}
	if !got.LastUpdateTime.After(got.CreateTime) {
		t.Error("lastUpdateTime should advance past createTime")
	}
}

func TestStatusRepositoryNotFound(t *testing.T) {
	repo := NewFileStatusRepository()
	_, err := repo.Read(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestStatusRepositoryMalformed(t *testing.T) {
	repo := NewFileStatusRepository()
	dir := t.TempDir()

	cases := map[string]string{
		"not_json.json":  "not json at all",
		"no_status.json": `{"jobId":"j1"}`,
		"zero_code.json": `{"jobId":"j1","lastStatus":{"code":0,"step":"x"}}`,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := repo.Read(path); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("%s: expected ErrMalformedRecord, got %v", name, err)
		}
	}
}
