package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrMissingCredential 歌词来源缺少 API key 或服务地址
var ErrMissingCredential = errors.New("lyrics source credential not configured")

// GeniusClient 纯文本歌词服务：先用 API 搜索，再抓取歌曲页面
type GeniusClient struct {
	apiURL     string
	webURL     string
	apiKey     string
	httpClient *http.Client
}

// NewGeniusClient 创建客户端
func NewGeniusClient(apiURL, webURL, apiKey string, timeout time.Duration) *GeniusClient {
	return &GeniusClient{
		apiURL: apiURL,
		webURL: webURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name 服务名
func (c *GeniusClient) Name() string { return "genius" }

type geniusSearchResponse struct {
	Meta struct {
		Status int `json:"status"`
	} `json:"meta"`
	Response struct {
		Hits []struct {
			Type   string `json:"type"`
			Result struct {
				ID            int64  `json:"id"`
				Title         string `json:"title"`
				URL           string `json:"url"`
				Path          string `json:"path"`
				LyricsState   string `json:"lyrics_state"`
				PrimaryArtist struct {
					Name string `json:"name"`
				} `json:"primary_artist"`
			} `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

// Lookup 查询歌词文本并按时长估算时间戳。没有结果时返回 nil, nil。
func (c *GeniusClient) Lookup(ctx context.Context, title, artist string, durationMs int64) ([]Line, error) {
	text, err := c.FetchText(ctx, title, artist)
	if err != nil || text == "" {
		return nil, err
	}
	return EstimateTimestamps(text, durationMs), nil
}

// FetchText 返回去掉分段标记的歌词全文
func (c *GeniusClient) FetchText(ctx context.Context, title, artist string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	pageURL, err := c.search(ctx, title, artist)
	if err != nil || pageURL == "" {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request genius page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	text, err := extractLyrics(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse genius page: %w", err)
	}
	return strings.TrimSpace(StripSectionHeaders(text)), nil
}

// search 返回最匹配的歌曲页面地址，只接受类型为 song 的结果
func (c *GeniusClient) search(ctx context.Context, title, artist string) (string, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(title+" "+artist))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request genius search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var result geniusSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode genius search: %w", err)
	}

	wantArtist := strings.ToLower(artist)
	fallback := ""
	for _, hit := range result.Response.Hits {
		if hit.Type != "song" {
			continue
		}
		page := hit.Result.URL
		if page == "" && hit.Result.Path != "" {
			page = c.webURL + hit.Result.Path
		}
		if page == "" {
			continue
		}
		if wantArtist != "" && strings.Contains(strings.ToLower(hit.Result.PrimaryArtist.Name), wantArtist) {
			return page, nil
		}
		if fallback == "" {
			fallback = page
		}
	}
	return fallback, nil
}

// extractLyrics 收集所有 data-lyrics-container="true" 容器中的文本，<br> 视为换行
func extractLyrics(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && attr(n, "data-lyrics-container") == "true" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			collect(n)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return b.String(), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
