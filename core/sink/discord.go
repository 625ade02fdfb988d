package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Discord 限制 Webhook 用户名最多 80 个字符
const maxUsernameRunes = 80

// WebhookFactory 通过机器人令牌在频道上查找或创建 Webhook
type WebhookFactory struct {
	apiURL     string
	botToken   string
	name       string
	httpClient *http.Client
}

// NewWebhookFactory 创建工厂，name 是机器人管理的 Webhook 名称
func NewWebhookFactory(apiURL, botToken, name string) *WebhookFactory {
	return &WebhookFactory{
		apiURL:   apiURL,
		botToken: botToken,
		name:     name,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Create 优先复用频道上同名的 Webhook，没有时新建
func (f *WebhookFactory) Create(ctx context.Context, channelID string) (Sink, error) {
	if f.botToken == "" {
		return nil, fmt.Errorf("discord bot token not configured")
	}
	endpoint := fmt.Sprintf("%s/channels/%s/webhooks", f.apiURL, url.PathEscape(channelID))

	var existing []webhookResponse
	if err := f.do(ctx, http.MethodGet, endpoint, nil, &existing); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	for _, wh := range existing {
		if wh.Name == f.name && wh.Token != "" {
			return f.webhook(wh), nil
		}
	}

	var created webhookResponse
	if err := f.do(ctx, http.MethodPost, endpoint, map[string]string{"name": f.name}, &created); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return f.webhook(created), nil
}

func (f *WebhookFactory) webhook(wh webhookResponse) *Webhook {
	return &Webhook{
		url:        fmt.Sprintf("%s/webhooks/%s/%s", f.apiURL, wh.ID, wh.Token),
		httpClient: f.httpClient,
	}
}

func (f *WebhookFactory) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+f.botToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Webhook 一个频道 Webhook，可以用任意用户名和头像发消息
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook 直接使用完整的 Webhook 地址
func NewWebhook(webhookURL string) *Webhook {
	return &Webhook{
		url:        webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookMessage struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Send 发送一条消息
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	_, err := w.post(ctx, w.url, msg, false)
	return err
}

// ShowSearching 发送提示消息并返回删除函数
func (w *Webhook) ShowSearching(ctx context.Context, msg Message) (func(context.Context) error, error) {
	id, err := w.post(ctx, w.url+"?wait=true", msg, true)
	if err != nil {
		return nil, err
	}
	remove := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, w.url+"/messages/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		resp, err := w.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("delete message returned %d", resp.StatusCode)
		}
		return nil
	}
	return remove, nil
}

func (w *Webhook) post(ctx context.Context, endpoint string, msg Message, wantID bool) (string, error) {
	data, err := json.Marshal(webhookMessage{
		Content:   msg.Text,
		Username:  truncateRunes(msg.Username, maxUsernameRunes),
		AvatarURL: msg.AvatarURL,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized:
		return "", ErrInvalidSink
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	if !wantID {
		return "", nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode webhook message: %w", err)
	}
	return created.ID, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
