package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	if FileExists(filepath.Join(dir, "nope")) {
		t.Error("missing file reported as existing")
	}
	// 目录不算文件
	if FileExists(dir) {
		t.Error("directory reported as existing file")
	}

	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("existing file not detected")
	}
}

func TestHashText(t *testing.T) {
	// 固定输入必须得到固定摘要
	if got := HashText(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("HashText(\"\") = %s", got)
	}
	if HashText("第一句") == HashText("第二句") {
		t.Error("different texts must not collide")
	}
	if HashText("abc") != HashText("abc") {
		t.Error("hash must be deterministic")
	}
}

func TestFileMD5MatchesHashText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte("dubbed video"), 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := FileMD5(path)
	if err != nil {
		t.Fatalf("FileMD5: %v", err)
	}
	if sum != HashText("dubbed video") {
		t.Errorf("file digest %s differs from text digest", sum)
	}

	if _, err := FileMD5(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing file")
	}
}
