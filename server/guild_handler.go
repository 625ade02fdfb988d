package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"GuildFM/core/player"
	"GuildFM/logger"
	"GuildFM/model"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// PlayRequest 点歌请求。Source 只影响关键词搜索：youtube（默认）| youtubemusic | soundcloud
type PlayRequest struct {
	Query         string `json:"query"`
	Source        string `json:"source,omitempty"`
	RequesterID   string `json:"requesterId,omitempty"`
	RequesterName string `json:"requesterName,omitempty"`
}

// PlayResponse 点歌结果，加载的是歌单时带上歌单名
type PlayResponse struct {
	player.PlayResult
	Playlist string `json:"playlist,omitempty"`
}

// ControlRequest 播放控制
type ControlRequest struct {
	Action     string `json:"action"` // pause | resume | skip | stop | seek
	PositionMs int64  `json:"positionMs,omitempty"`
}

// LoopRequest 循环模式
type LoopRequest struct {
	Mode string `json:"mode"`
}

// LyricsRequest 歌词推送开关
type LyricsRequest struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channelId"`
}

func guildID(r *http.Request) string {
	return mux.Vars(r)["guildId"]
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// QueueHandler 当前队列
func (s *Server) QueueHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.controller.Snapshot(r.Context(), guildID(r))
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HistoryHandler 最近播放记录，?limit= 默认 20
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "History is not available")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := s.history.Recent(r.Context(), guildID(r), limit)
	if err != nil {
		logger.Error("failed to load play history", logger.Guild(guildID(r)), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// PlayHandler 搜索并播放第一个结果，正在播放时加入队列。链接是歌单时整张加入。
func (s *Server) PlayHandler(w http.ResponseWriter, r *http.Request) {
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

	id := guildID(r)
	result, err := s.controller.Search(r.Context(), req.Query, source)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	tracks := result.Tracks[:1]
	if result.Playlist != "" {
		tracks = result.Tracks
	}
	tracks = withRequester(r, tracks, req.RequesterID, req.RequesterName)

	res, err := s.controller.PlayTracks(r.Context(), id, tracks)
	if err != nil {
		logger.Warn("play request failed", logger.Guild(id), logger.String("query", req.Query), logger.ErrorField(err))
		writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlayResponse{PlayResult: res, Playlist: result.Playlist})
}

// withRequester 标记点歌人，请求里没有时使用登录用户名
func withRequester(r *http.Request, tracks []*model.Track, id, name string) []*model.Track {
	if id == "" && name == "" {
		name = UsernameFromContext(r.Context())
	}
	if id == "" && name == "" {
		return tracks
	}
	out := make([]*model.Track, len(tracks))
	for i, t := range tracks {
		out[i] = t.WithRequester(id, name)
	}
	return out
}

// ControlHandler 暂停、继续、跳过、停止、跳转
func (s *Server) ControlHandler(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if !decode(w, r, &req) {
		return
	}

	id := guildID(r)
	ctx := r.Context()
	var err error
	switch strings.ToLower(req.Action) {
	case "pause":
		err = s.controller.Pause(ctx, id)
	case "resume":
		err = s.controller.Resume(ctx, id)
	case "skip":
		err = s.controller.Skip(ctx, id)
	case "stop":
		err = s.controller.Stop(ctx, id)
	case "seek":
		err = s.controller.Seek(ctx, id, req.PositionMs)
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
		return
	}
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "action": req.Action})
}

// LoopHandler 设置循环模式
func (s *Server) LoopHandler(w http.ResponseWriter, r *http.Request) {
	var req LoopRequest
	if !decode(w, r, &req) {
		return
	}
	mode, ok := model.ParseLoopMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "Mode must be off, track or queue")
		return
	}
	if err := s.controller.SetLoopMode(r.Context(), guildID(r), mode); err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": mode.String()})
}

// LyricsHandler 开关歌词推送
func (s *Server) LyricsHandler(w http.ResponseWriter, r *http.Request) {
	var req LyricsRequest
	if !decode(w, r, &req) {
		return
	}

	id := guildID(r)
	var err error
	if req.Enabled {
		if req.ChannelID == "" {
			writeError(w, http.StatusBadRequest, "channelId is required")
			return
		}
		err = s.controller.EnableLyrics(r.Context(), id, req.ChannelID)
	} else {
		err = s.controller.DisableLyrics(r.Context(), id)
	}
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// VoiceHandler 网关转发的语音连接信息
func (s *Server) VoiceHandler(w http.ResponseWriter, r *http.Request) {
	var req model.VoiceState
	if !decode(w, r, &req) {
		return
	}
	if !req.Complete() {
		writeError(w, http.StatusBadRequest, "sessionId, token and endpoint are required")
		return
	}
	s.controller.UpdateVoice(guildID(r), req)
	w.WriteHeader(http.StatusNoContent)
}
