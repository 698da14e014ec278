package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// TokenMetadata 是发币前需要上传的描述信息。
type TokenMetadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Uploader 将代币元数据发布到外部存储并返回可引用的 URI。
type Uploader interface {
	Upload(ctx context.Context, meta TokenMetadata) (string, error)
}

// HTTPUploader 通过 HTTP 协作方上传元数据。
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPUploader 创建 HTTPUploader。
func NewHTTPUploader(baseURL string) (*HTTPUploader, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("未配置元数据存储地址")
	}
	return &HTTPUploader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type uploadResponse struct {
	URI string `json:"uri"`
}

// Upload 实现 Uploader 接口。
func (u *HTTPUploader) Upload(ctx context.Context, meta TokenMetadata) (string, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化元数据失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.baseURL+"/api/storage/web3", bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "构建上传请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "上传元数据失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "读取上传响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return "", xerrors.New(xerrors.CodeSubmissionFailed,
			fmt.Sprintf("元数据存储返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded uploadResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "解析上传响应失败")
	}
	if decoded.URI == "" {
		return "", xerrors.New(xerrors.CodeSubmissionFailed, "上传响应缺少 URI")
	}
	return decoded.URI, nil
}

// MemoryUploader 在内存中记录上传的元数据，用于测试。
type MemoryUploader struct {
	mu      sync.Mutex
	counter int
	Records []TokenMetadata
}

// NewMemoryUploader 创建 MemoryUploader。
func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{}
}

// Upload 返回一个确定性的伪 URI。
func (m *MemoryUploader) Upload(_ context.Context, meta TokenMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	m.Records = append(m.Records, meta)
	return fmt.Sprintf("memory://metadata/%d", m.counter), nil
}

var (
	_ Uploader = (*HTTPUploader)(nil)
	_ Uploader = (*MemoryUploader)(nil)
)
