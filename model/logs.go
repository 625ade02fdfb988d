package model

import "time"

// PlayHistory 播放记录
type PlayHistory struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GuildID       string    `json:"guildId" gorm:"size:32;index;not null"`
	Title         string    `json:"title" gorm:"size:255;not null"`
	Author        string    `json:"author" gorm:"size:255"`
	URI           string    `json:"uri" gorm:"size:767"`
	DurationMs    int64     `json:"durationMs"`
	RequesterID   string    `json:"requesterId" gorm:"size:32"`
	RequesterName string    `json:"requesterName" gorm:"size:100"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (PlayHistory) TableName() string {
	return "play_history"
}

// RowID implements retention.Row.
func (h *PlayHistory) RowID() int64 { return h.ID }

// CreatedTime implements retention.Row.
func (h *PlayHistory) CreatedTime() time.Time { return h.CreatedAt }

// NewPlayHistory 根据歌曲构造播放记录
func NewPlayHistory(guildID string, t *Track) *PlayHistory {
	h := &PlayHistory{
		GuildID:    guildID,
		Title:      t.Title,
		Author:     t.Author,
		URI:        t.URI,
		DurationMs: t.DurationMs,
	}
	if t.Requester != nil {
		h.RequesterID = t.Requester.ID
		h.RequesterName = t.Requester.Name
	}
	return h
}

// LyricsLog 歌词推送记录
type LyricsLog struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	GuildID      string    `json:"guildId" gorm:"size:32;index;not null"`
	Text         string    `json:"text" gorm:"type:text"`
	TimestampSec float64   `json:"timestampSec"`
	TrackTitle   string    `json:"trackTitle" gorm:"size:255"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (LyricsLog) TableName() string {
	return "lyrics_logs"
}

// RowID implements retention.Row.
func (l *LyricsLog) RowID() int64 { return l.ID }

// CreatedTime implements retention.Row.
func (l *LyricsLog) CreatedTime() time.Time { return l.CreatedAt }

// NewLyricsLog 构造歌词推送记录
func NewLyricsLog(guildID string, t *Track, text string, timestampSec float64) *LyricsLog {
	l := &LyricsLog{
		GuildID:      guildID,
		Text:         text,
		TimestampSec: timestampSec,
	}
	if t != nil {
		l.TrackTitle = t.Title
	}
	return l
}
