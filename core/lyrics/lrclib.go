package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"GuildFM/logger"
)

// LRCLibClient 带时间轴的歌词服务（lrclib.net）
type LRCLibClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLRCLibClient 创建客户端，timeout 为整次请求的上限
func NewLRCLibClient(baseURL string, timeout time.Duration) *LRCLibClient {
	return &LRCLibClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name 服务名
func (c *LRCLibClient) Name() string { return "lrclib" }

type lrclibResponse struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// Lookup 按 (歌名, 歌手, 时长秒) 查询同步歌词。没有结果时返回 nil, nil。
func (c *LRCLibClient) Lookup(ctx context.Context, title, artist string, durationMs int64) ([]Line, error) {
	params := url.Values{}
	params.Set("track_name", title)
	params.Set("artist_name", artist)
	params.Set("duration", strconv.FormatInt(durationMs/1000, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/get?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request lrclib: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("lrclib returned non-200", logger.Int("status", resp.StatusCode), logger.Track(title))
		return nil, nil
	}

	var result lrclibResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode lrclib response: %w", err)
	}
	if result.SyncedLyrics == "" {
		logger.Debug("no synced lyrics on lrclib", logger.Track(title))
		return nil, nil
	}

	lines := ParseLRC(result.SyncedLyrics)
	if len(lines) == 0 {
		return nil, nil
	}
	return lines, nil
}
