package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"LaunchMCP-Chain/internal/chainops"
	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/pkg/logger"
)

// Config 描述群组创建协作方的调用方式。
type Config struct {
	BaseURL       string
	BotToken      string
	AdminUsername string
}

// Client 通过外部协作方创建 Telegram 群组并发布合约地址公告。
// 群组服务本身不在本系统边界内。
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建 Client。
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("未配置群组服务地址")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type createGroupRequest struct {
	GroupName        string `json:"groupName"`
	GroupDescription string `json:"groupDescription"`
	AdminUsername    string `json:"adminUsername"`
	ImageURL         string `json:"imageUrl,omitempty"`
	Message          string `json:"message"`
}

type createGroupResponse struct {
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	InviteLink string `json:"inviteLink"`
	Error      string `json:"error"`
}

// AnnouncementMessage 构造包含合约地址的公告文本。
func AnnouncementMessage(tokenAddress string) string {
	return "🚀 CA: " + tokenAddress
}

// CreateGroup 实现 chainops.SocialAnnouncer。
func (c *Client) CreateGroup(ctx context.Context, params chainops.GroupParams) (chainops.GroupResult, error) {
	payload, err := json.Marshal(createGroupRequest{
		GroupName:        params.GroupName,
		GroupDescription: params.Description,
		AdminUsername:    c.cfg.AdminUsername,
		ImageURL:         params.ImageURL,
		Message:          AnnouncementMessage(params.TokenAddress),
	})
	if err != nil {
		return chainops.GroupResult{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化群组请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/telegram/create-group", bytes.NewReader(payload))
	if err != nil {
		return chainops.GroupResult{}, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "构建群组请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.BotToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BotToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chainops.GroupResult{}, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "调用群组服务失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return chainops.GroupResult{}, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "读取群组响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return chainops.GroupResult{}, xerrors.New(xerrors.CodeSubmissionFailed,
			fmt.Sprintf("群组服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded createGroupResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return chainops.GroupResult{}, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "解析群组响应失败")
	}
	if decoded.Error != "" {
		return chainops.GroupResult{}, xerrors.New(xerrors.CodeSubmissionFailed,
			fmt.Sprintf("群组服务报错: %s", decoded.Error))
	}
	if decoded.InviteLink == "" {
		return chainops.GroupResult{}, xerrors.New(xerrors.CodeSubmissionFailed, "群组响应缺少邀请链接")
	}

	logger.Named("telegram").Info("群组创建成功",
		"group_id", decoded.GroupID, "invite_link", decoded.InviteLink)
	return chainops.GroupResult{
		GroupID:    decoded.GroupID,
		GroupName:  decoded.GroupName,
		InviteLink: decoded.InviteLink,
	}, nil
}

var _ chainops.SocialAnnouncer = (*Client)(nil)
