package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"GuildFM/core/player"
	"GuildFM/logger"
	"GuildFM/model"
	"GuildFM/repository"
)

// PlaylistRequest 创建歌单
type PlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    *bool  `json:"isPublic,omitempty"`
	CreatorID   string `json:"creatorId,omitempty"`
	CreatorName string `json:"creatorName,omitempty"`
}

// PlaylistPlayResponse 播放歌单的结果
type PlaylistPlayResponse struct {
	player.PlayResult
	Playlist string `json:"playlist"`
	Skipped  int    `json:"skipped"`
}

const maxPlaylistName = 100

func playlistID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["playlistId"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid playlist ID")
		return 0, false
	}
	return id, true
}

func (s *Server) playlistsAvailable(w http.ResponseWriter) bool {
	if s.playlists == nil {
		writeError(w, http.StatusServiceUnavailable, "Playlists are not available")
		return false
	}
	return true
}

// PlaylistsHandler GET 列出服务器歌单，POST 创建歌单
func (s *Server) PlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.playlistsAvailable(w) {
		return
	}
	gid := guildID(r)

	switch r.Method {
	case http.MethodGet:
		lists, err := s.playlists.List(r.Context(), gid)
		if err != nil {
			writePlaylistError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": lists})

	case http.MethodPost:
		var req PlaylistRequest
		if !decode(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || len(req.Name) > maxPlaylistName {
			writeError(w, http.StatusBadRequest, "Name is required and must be at most 100 characters")
			return
		}
		if req.CreatorName == "" {
			req.CreatorName = UsernameFromContext(r.Context())
		}
		p := &model.Playlist{
			GuildID:     gid,
			Name:        req.Name,
			Description: req.Description,
			CreatorID:   req.CreatorID,
			CreatorName: req.CreatorName,
			IsPublic:    req.IsPublic == nil || *req.IsPublic,
		}
		if err := s.playlists.Create(r.Context(), p); err != nil {
			writePlaylistError(w, err)
			return
		}
		logger.Info("playlist created", logger.Guild(gid), logger.String("name", p.Name))
		writeJSON(w, http.StatusCreated, p)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// PlaylistHandler GET 歌单详情，DELETE 删除歌单，PUT ?shuffle=true 打乱顺序
func (s *Server) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if !s.playlistsAvailable(w) {
		return
	}
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	gid := guildID(r)
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		p, err := s.playlists.Get(ctx, gid, id)
		if err != nil {
			writePlaylistError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := s.playlists.Delete(ctx, gid, id); err != nil {
			writePlaylistError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodPut:
		if r.URL.Query().Get("shuffle") != "true" {
			writeError(w, http.StatusBadRequest, "Unsupported update")
			return
		}
		if err := s.playlists.Shuffle(ctx, gid, id); err != nil {
			writePlaylistError(w, err)
			return
		}
		p, err := s.playlists.Get(ctx, gid, id)
		if err != nil {
			writePlaylistError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// PlaylistTracksHandler 搜索后加入歌单。链接是歌单时整张加入，否则加入第一个结果。
func (s *Server) PlaylistTracksHandler(w http.ResponseWriter, r *http.Request) {
	if !s.playlistsAvailable(w) {
		return
	}
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req PlayRequest
	if !decode(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	source, ok := model.ParseSource(strings.ToLower(req.Source))
	if !ok {
		writeError(w, http.StatusBadRequest, "Source must be youtube, youtubemusic or soundcloud")
		return
	}

	gid := guildID(r)
	// 先确认歌单存在，避免无谓的搜索
	if _, err := s.playlists.Get(r.Context(), gid, id); err != nil {
		writePlaylistError(w, err)
		return
	}
	result, err := s.controller.Search(r.Context(), req.Query, source)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	tracks := result.Tracks[:1]
	if result.Playlist != "" {
		tracks = result.Tracks
	}

	addedBy := req.RequesterName
	if addedBy == "" {
		addedBy = UsernameFromContext(r.Context())
	}
	entries := make([]*model.PlaylistTrack, len(tracks))
	for i, t := range tracks {
		entries[i] = model.NewPlaylistTrack(t, req.RequesterID, addedBy)
	}
	total, err := s.playlists.AddTracks(r.Context(), gid, id, entries)
	if err != nil {
		writePlaylistError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"added":      entries,
		"trackCount": total,
	})
}

// PlaylistTrackHandler 从歌单删除一首歌
func (s *Server) PlaylistTrackHandler(w http.ResponseWriter, r *http.Request) {
	if !s.playlistsAvailable(w) {
		return
	}
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	trackID, err := strconv.ParseInt(mux.Vars(r)["trackId"], 10, 64)
	if err != nil || trackID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}
	if err := s.playlists.RemoveTrack(r.Context(), guildID(r), id, trackID); err != nil {
		writePlaylistError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayPlaylistHandler 按顺序把歌单交给控制器。没有保存引擎标识的歌曲按链接重新加载，加载失败的跳过。
func (s *Server) PlayPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if !s.playlistsAvailable(w) {
		return
	}
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	gid := guildID(r)
	ctx := r.Context()

	p, err := s.playlists.Get(ctx, gid, id)
	if err != nil {
		writePlaylistError(w, err)
		return
	}
	if len(p.Tracks) == 0 {
		writeError(w, http.StatusConflict, "Playlist is empty")
		return
	}

	tracks := make([]*model.Track, 0, len(p.Tracks))
	skipped := 0
	for i := range p.Tracks {
		t := p.Tracks[i].Track()
		if t == nil {
			t = s.reload(r, &p.Tracks[i])
		}
		if t == nil {
			skipped++
			continue
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "No playable tracks in playlist")
		return
	}
	tracks = withRequester(r, tracks, "", "")

	res, err := s.controller.PlayTracks(ctx, gid, tracks)
	if err != nil {
		logger.Warn("play playlist failed", logger.Guild(gid), logger.String("playlist", p.Name), logger.ErrorField(err))
		writePlayerError(w, err)
		return
	}
	logger.Info("playlist queued",
		logger.Guild(gid),
		logger.String("playlist", p.Name),
		logger.Int("tracks", res.Added),
		logger.Int("skipped", skipped))
	writeJSON(w, http.StatusOK, PlaylistPlayResponse{PlayResult: res, Playlist: p.Name, Skipped: skipped})
}

// reload 按保存的链接重新加载一首歌
func (s *Server) reload(r *http.Request, pt *model.PlaylistTrack) *model.Track {
	if pt.URI == "" {
		return nil
	}
	res, err := s.controller.Search(r.Context(), pt.URI, model.SourceYouTube)
	if err != nil {
		logger.Debug("playlist track could not be loaded", logger.Track(pt.Title), logger.ErrorField(err))
		return nil
	}
	return res.Tracks[0]
}

// writePlaylistError 把歌单仓库错误映射为 HTTP 状态码
func writePlaylistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, "Playlist not found")
	case errors.Is(err, repository.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "Track not found in playlist")
	case errors.Is(err, repository.ErrPlaylistExists):
		writeError(w, http.StatusConflict, "A playlist with this name already exists")
	case errors.Is(err, repository.ErrPlaylistFull):
		writeError(w, http.StatusConflict, "Playlist is full")
	default:
		logger.Error("playlist request failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
