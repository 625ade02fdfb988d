package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	guildSettingsKey = "guild:%s:settings" // Hash: 会话偏好

	fieldLyricsEnabled = "lyrics_enabled"
	fieldLyricsChannel = "lyrics_channel"
)

// GuildSettings 会话偏好，会话关闭后依然保留
type GuildSettings struct {
	client *redis.Client
}

// NewGuildSettings 使用全局客户端
func NewGuildSettings() *GuildSettings {
	return &GuildSettings{client: RedisClient}
}

// LyricsChannel 返回歌词推送频道及是否开启
func (c *GuildSettings) LyricsChannel(ctx context.Context, guildID string) (string, bool, error) {
	if c.client == nil {
		return "", false, errNotInitialized
	}

	vals, err := c.client.HMGet(ctx, fmt.Sprintf(guildSettingsKey, guildID), fieldLyricsEnabled, fieldLyricsChannel).Result()
	if err != nil {
		return "", false, err
	}

	enabled, _ := vals[0].(string)
	channel, _ := vals[1].(string)
	return channel, enabled == "1" && channel != "", nil
}

// SetLyrics 保存歌词开关和频道
func (c *GuildSettings) SetLyrics(ctx context.Context, guildID string, enabled bool, channelID string) error {
	if c.client == nil {
		return errNotInitialized
	}

	flag := "0"
	if enabled {
		flag = "1"
	}
	return c.client.HSet(ctx, fmt.Sprintf(guildSettingsKey, guildID),
		fieldLyricsEnabled, flag,
		fieldLyricsChannel, channelID,
	).Err()
}
