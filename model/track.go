package model

import "time"

// Requester 点歌人信息
type Requester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track 队列中的一首歌曲，创建后不可修改
type Track struct {
	Encoded    string     `json:"encoded"`              // 播放引擎的不透明标识
	Identifier string     `json:"identifier,omitempty"` // 来源平台上的ID
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	DurationMs int64      `json:"durationMs"`
	URI        string     `json:"uri"`
	SourceName string     `json:"sourceName,omitempty"`
	ArtworkURL *string    `json:"artworkUrl,omitempty"`
	Requester  *Requester `json:"requester,omitempty"`
}

// Duration 返回歌曲时长
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Artwork 返回封面地址，没有封面时返回空串
func (t *Track) Artwork() string {
	if t == nil || t.ArtworkURL == nil {
		return ""
	}
	return *t.ArtworkURL
}

// WithRequester 返回带有点歌人信息的副本
func (t *Track) WithRequester(id, name string) *Track {
	cp := *t
	cp.Requester = &Requester{ID: id, Name: name}
	return &cp
}

// Source 关键词搜索使用的平台
type Source string

const (
	SourceYouTube      Source = "youtube"
	SourceYouTubeMusic Source = "youtubemusic"
	SourceSoundCloud   Source = "soundcloud"
)

// ParseSource 解析请求中的来源，空字符串为 YouTube
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case "", SourceYouTube:
		return SourceYouTube, true
	case SourceYouTubeMusic, SourceSoundCloud:
		return Source(s), true
	default:
		return "", false
	}
}

// SearchPrefix 播放引擎的搜索前缀
func (s Source) SearchPrefix() string {
	switch s {
	case SourceYouTubeMusic:
		return "ytmsearch:"
	case SourceSoundCloud:
		return "scsearch:"
	default:
		return "ytsearch:"
	}
}

// SearchResult 引擎的加载结果。Playlist 不为空时 Tracks 是整张歌单，否则是按相关度排序的候选。
type SearchResult struct {
	Playlist string   `json:"playlist,omitempty"`
	Tracks   []*Track `json:"tracks"`
}

// LoopMode 循环模式
type LoopMode int

const (
	LoopOff   LoopMode = iota // 顺序播放一次
	LoopTrack                 // 单曲循环
	LoopQueue                 // 列表循环
)

// String returns the wire name of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "off"
	}
}

// ParseLoopMode converts a wire name to a LoopMode. ok is false for unknown names.
func ParseLoopMode(s string) (mode LoopMode, ok bool) {
	switch s {
	case "off", "none", "":
		return LoopOff, true
	case "track":
		return LoopTrack, true
	case "queue":
		return LoopQueue, true
	default:
		return LoopOff, false
	}
}

// QueueSnapshot 队列状态快照（供面板展示）
type QueueSnapshot struct {
	GuildID  string   `json:"guildId"`
	State    string   `json:"state"`
	LoopMode string   `json:"loopMode"`
	Current  *Track   `json:"current,omitempty"`
	Pending  []*Track `json:"pending"`
	History  []*Track `json:"history"`
	Lyrics   bool     `json:"lyrics"`
}
