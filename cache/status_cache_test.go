package cache

import (
	"testing"

	"VoxDub/model"
)

func TestDecodeStatusRecord(t *testing.T) {
	rec, err := decodeStatusRecord([]byte(`{"jobId":"j1","host":"workerA","lastStatus":{"code":202,"step":"convertLinesToMP3"}}`))
	if err != nil {
		t.Fatalf("decodeStatusRecord: %v", err)
	}
	if rec.JobID != "j1" || rec.LastStatus.Code != model.StatusProcessing {
		t.Errorf("record = %+v", rec)
	}
}

// 缓存值可能被截断或被别的进程写坏，缺少 lastStatus 的记录不能流出
func TestDecodeStatusRecordRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     "garbage",
		"no status":    `{"jobId":"j1"}`,
		"null status":  `{"jobId":"j1","lastStatus":null}`,
		"zero code":    `{"jobId":"j1","lastStatus":{"code":0,"step":"x"}}`,
		"empty object": `{}`,
	}
	for name, data := range cases {
		if rec, err := decodeStatusRecord([]byte(data)); err == nil {
			t.Errorf("%s: expected error, got record %+v", name, rec)
		}
	}
}

func TestGetStatusCacheNilClient(t *testing.T) {
	if RedisClient != nil {
		t.Skip("redis client unexpectedly initialized")
	}
	rec, err := GetStatusCache("j1")
	if rec != nil || err != nil {
		t.Errorf("nil client should behave as a miss, got %v, %v", rec, err)
	}
}
