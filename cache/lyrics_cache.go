package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"GuildFM/core/lyrics"
)

const (
	lyricsKey        = "lyrics:%s:%s:%d" // String: 歌词行 JSON
	defaultLyricsTTL = 24 * time.Hour
)

// LyricsCache 缓存歌词查询结果，实现 lyrics.Cache
type LyricsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLyricsCache 使用全局客户端创建歌词缓存
func NewLyricsCache(ttl time.Duration) *LyricsCache {
	if ttl <= 0 {
		ttl = defaultLyricsTTL
	}
	return &LyricsCache{client: RedisClient, ttl: ttl}
}

// lyricsCacheKey 歌名和歌手统一小写，避免大小写不同导致重复查询
func lyricsCacheKey(title, artist string, durationSec int64) string {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ":", "_")
	}
	return fmt.Sprintf(lyricsKey, norm(title), norm(artist), durationSec)
}

// GetLyrics 读取缓存，未命中时 ok 为 false
func (c *LyricsCache) GetLyrics(ctx context.Context, title, artist string, durationSec int64) ([]lyrics.Line, bool, error) {
	if c.client == nil {
		return nil, false, errNotInitialized
	}

	data, err := c.client.Get(ctx, lyricsCacheKey(title, artist, durationSec)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var lines []lyrics.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal lyrics: %w", err)
	}
	return lines, true, nil
}

// SetLyrics 写入缓存
func (c *LyricsCache) SetLyrics(ctx context.Context, title, artist string, durationSec int64, lines []lyrics.Line) error {
	if c.client == nil {
		return errNotInitialized
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal lyrics: %w", err)
	}
	return c.client.Set(ctx, lyricsCacheKey(title, artist, durationSec), data, c.ttl).Err()
}
