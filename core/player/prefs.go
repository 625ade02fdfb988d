package player

import (
	"context"
	"sync"
)

// Preferences 会话偏好的持久化，会话关闭后仍然保留
type Preferences interface {
	LyricsChannel(ctx context.Context, guildID string) (channelID string, enabled bool, err error)
	SetLyrics(ctx context.Context, guildID string, enabled bool, channelID string) error
}

type lyricsPref struct {
	enabled bool
	channel string
}

// MemoryPreferences 进程内的偏好存储，没有 Redis 时使用
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]lyricsPref
}

// NewMemoryPreferences 创建空存储
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]lyricsPref)}
}

func (m *MemoryPreferences) LyricsChannel(ctx context.Context, guildID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.prefs[guildID]
	return p.channel, p.enabled && p.channel != "", nil
}

func (m *MemoryPreferences) SetLyrics(ctx context.Context, guildID string, enabled bool, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[guildID] = lyricsPref{enabled: enabled, channel: channelID}
	return nil
}
