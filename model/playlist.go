package model

import "time"

// Playlist 服务器内保存的歌单
type Playlist struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	GuildID     string          `json:"guildId" gorm:"size:32;not null;uniqueIndex:idx_playlist_guild_name"`
	Name        string          `json:"name" gorm:"size:100;not null;uniqueIndex:idx_playlist_guild_name"`
	Description string          `json:"description,omitempty" gorm:"size:500"`
	CreatorID   string          `json:"creatorId" gorm:"size:32"`
	CreatorName string          `json:"creatorName" gorm:"size:100"`
	IsPublic    bool            `json:"isPublic"`
	TrackCount  int             `json:"trackCount" gorm:"-"`
	Tracks      []PlaylistTrack `json:"tracks,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName 指定表名
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistTrack 歌单中的一首歌，Position 从 0 开始连续编号
type PlaylistTrack struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	PlaylistID int64     `json:"playlistId" gorm:"index;not null"`
	Position   int       `json:"position"`
	Encoded    string    `json:"encoded" gorm:"type:text"`
	Title      string    `json:"title" gorm:"size:255;not null"`
	Author     string    `json:"author" gorm:"size:255"`
	URI        string    `json:"uri" gorm:"size:767"`
	DurationMs int64     `json:"durationMs"`
	ArtworkURL string    `json:"artworkUrl,omitempty" gorm:"size:767"`
	AddedBy    string    `json:"addedBy" gorm:"size:100"`
	AddedByID  string    `json:"addedById" gorm:"size:32"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定表名
func (PlaylistTrack) TableName() string {
	return "playlist_tracks"
}

// NewPlaylistTrack 从队列中的歌曲构造歌单条目
func NewPlaylistTrack(t *Track, addedByID, addedBy string) *PlaylistTrack {
	return &PlaylistTrack{
		Encoded:    t.Encoded,
		Title:      t.Title,
		Author:     t.Author,
		URI:        t.URI,
		DurationMs: t.DurationMs,
		ArtworkURL: t.Artwork(),
		AddedBy:    addedBy,
		AddedByID:  addedByID,
	}
}

// Track 还原为可以交给播放引擎的歌曲。没有保存引擎标识时返回 nil，需要按 URI 重新加载。
func (p *PlaylistTrack) Track() *Track {
	if p.Encoded == "" {
		return nil
	}
	t := &Track{
		Encoded:    p.Encoded,
		Title:      p.Title,
		Author:     p.Author,
		URI:        p.URI,
		DurationMs: p.DurationMs,
	}
	if p.ArtworkURL != "" {
		art := p.ArtworkURL
		t.ArtworkURL = &art
	}
	return t
}
