package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// 时长相差超过该值的搜索结果视为另一个版本
const neteaseDurationTolerance = 3 * time.Second

// NetEaseClient 网易云音乐 API（NeteaseCloudMusicApi 自建服务），返回 LRC 歌词
type NetEaseClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNetEaseClient baseURL 为空时该来源被跳过
func NewNetEaseClient(baseURL string, timeout time.Duration) *NetEaseClient {
	return &NetEaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name 服务名
func (c *NetEaseClient) Name() string { return "netease" }

type neteaseSearchResponse struct {
	Code   int `json:"code"`
	Result struct {
		Songs []struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			Duration int64  `json:"duration"` // 毫秒
			Artists  []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

type neteaseLyricResponse struct {
	Code int `json:"code"`
	Lrc  struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Lookup 先搜索歌曲，再取 LRC 歌词。没有结果时返回 nil, nil。
func (c *NetEaseClient) Lookup(ctx context.Context, title, artist string, durationMs int64) ([]Line, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: netease api url", ErrMissingCredential)
	}

	id, err := c.search(ctx, title, artist, durationMs)
	if err != nil || id == 0 {
		return nil, err
	}

	var lyric neteaseLyricResponse
	if err := c.get(ctx, "/lyric?id="+strconv.FormatInt(id, 10), &lyric); err != nil {
		return nil, err
	}
	if lyric.Code != http.StatusOK || strings.TrimSpace(lyric.Lrc.Lyric) == "" {
		return nil, nil
	}
	return ParseLRC(lyric.Lrc.Lyric), nil
}

// search 返回最匹配的歌曲 ID：歌手匹配优先，其次时长接近，最后取第一个结果
func (c *NetEaseClient) search(ctx context.Context, title, artist string, durationMs int64) (int64, error) {
	params := url.Values{}
	params.Set("keywords", strings.TrimSpace(title+" "+artist))
	params.Set("limit", "5")
	params.Set("type", "1")

	var result neteaseSearchResponse
	if err := c.get(ctx, "/search?"+params.Encode(), &result); err != nil {
		return 0, err
	}
	if result.Code != http.StatusOK {
		return 0, nil
	}

	wantArtist := strings.ToLower(artist)
	var byDuration, first int64
	for _, song := range result.Result.Songs {
		if first == 0 {
			first = song.ID
		}
		if wantArtist != "" {
			for _, a := range song.Artists {
				if a.Name != "" && strings.Contains(wantArtist, strings.ToLower(a.Name)) {
					return song.ID, nil
				}
			}
		}
		if byDuration == 0 && durationMs > 0 {
			diff := time.Duration(song.Duration-durationMs) * time.Millisecond
			if diff < 0 {
				diff = -diff
			}
			if diff <= neteaseDurationTolerance {
				byDuration = song.ID
			}
		}
	}
	if byDuration != 0 {
		return byDuration, nil
	}
	return first, nil
}

func (c *NetEaseClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// 返回正常码率和完整字段
	req.AddCookie(&http.Cookie{Name: "os", Value: "pc"})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request netease: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("netease returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode netease response: %w", err)
	}
	return nil
}
