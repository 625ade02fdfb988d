package lavalink

import (
	"encoding/json"

	"GuildFM/model"
)

// Op 引擎推送消息类型
type Op string

const (
	OpReady        Op = "ready"
	OpPlayerUpdate Op = "playerUpdate"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
)

// EventType 播放事件类型
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// message 所有推送消息的公共字段，其余字段按 op 解析
type message struct {
	Op        Op              `json:"op"`
	Type      EventType       `json:"type,omitempty"`
	GuildID   string          `json:"guildId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Resumed   bool            `json:"resumed,omitempty"`
	State     *playerState    `json:"state,omitempty"`
	Track     *trackPayload   `json:"track,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Code      int             `json:"code,omitempty"`
	ByRemote  bool            `json:"byRemote,omitempty"`
	Exception json.RawMessage `json:"exception,omitempty"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

type trackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        string  `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	ISRC       *string `json:"isrc"`
	SourceName string  `json:"sourceName"`
}

type trackPayload struct {
	Encoded string    `json:"encoded"`
	Info    trackInfo `json:"info"`
}

func (t *trackPayload) toModel() *model.Track {
	return &model.Track{
		Encoded:    t.Encoded,
		Identifier: t.Info.Identifier,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		DurationMs: t.Info.Length,
		URI:        t.Info.URI,
		SourceName: t.Info.SourceName,
		ArtworkURL: t.Info.ArtworkURL,
	}
}

type exceptionPayload struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// LoadType loadtracks 返回类型
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

type loadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Tracks []trackPayload `json:"tracks"`
}

// voicePayload 转发给引擎的语音连接信息
type voicePayload struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// encodedTrack Encoded 为 nil 时引擎停止当前歌曲
type encodedTrack struct {
	Encoded *string `json:"encoded"`
}

type updatePlayer struct {
	Track    *encodedTrack `json:"track,omitempty"`
	Position *int64        `json:"position,omitempty"`
	Paused   *bool         `json:"paused,omitempty"`
	Voice    *voicePayload `json:"voice,omitempty"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}
