package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Request 一次语音合成请求
type Request struct {
	Text        string `json:"text"`
	Voice       string `json:"voice"`
	Effect      string `json:"effect,omitempty"`
	EffectLevel int    `json:"effectLevel,omitempty"`
}

// Synthesizer is the contract the pipeline consumes; tests substitute it.
// Synthesize writes the synthesized MP3 to dest and returns any vendor
// warnings that accompanied a successful response.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request, dest string) (warnings string, err error)
}

// Client 语音合成服务的HTTP客户端
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient 创建新的TTS客户端
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// SetTimeout 设置请求超时时间
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// Synthesize 调用合成接口并把返回的音频写入 dest
func (c *Client) Synthesize(ctx context.Context, req Request, dest string) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("序列化合成请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("构造合成请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("合成请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("合成服务返回 %d: %s", resp.StatusCode, string(detail))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest) // 写了一半的文件不能留下
		return "", fmt.Errorf("写入合成音频失败: %w", err)
	}

	return resp.Header.Get("X-Tts-Warning"), nil
}
