package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType 广播事件类型
type EventType string

const (
	EventTrackStart           EventType = "track_start"
	EventQueueEmptyDisconnect EventType = "queue_empty_disconnect"
	EventMusicStopped         EventType = "music_stopped"
	EventMusicControl         EventType = "music_control"
	EventPlaybackError        EventType = "playback_error"
	EventLyricsSearching      EventType = "lyrics_searching"
	EventLyricsLoaded         EventType = "lyrics_loaded"
	EventLyricsUnavailable    EventType = "lyrics_unavailable"
	EventLyricsLine           EventType = "lyrics_line"
)

// Event 推送给面板等观察者的通知
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	GuildID   string      `json:"guildId"`
	Track     *Track      `json:"track,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(typ EventType, guildID string, track *Track, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		GuildID:   guildID,
		Track:     track,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}
