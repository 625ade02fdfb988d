package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"GuildFM/logger"
	"GuildFM/model"
)

// IsURL 判断查询是否可以直接交给引擎加载
func IsURL(query string) bool {
	u, err := url.Parse(query)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Search 搜索歌曲。链接直接加载，其他内容按 source 选择搜索平台。
func (n *Node) Search(ctx context.Context, query string, source model.Source) (model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.SearchResult{}, nil
	}
	identifier := query
	if !IsURL(query) {
		identifier = source.SearchPrefix() + query
	}
	return n.LoadTracks(ctx, identifier)
}

// LoadTracks 调用 /v4/loadtracks
func (n *Node) LoadTracks(ctx context.Context, identifier string) (model.SearchResult, error) {
	var result loadResult
	endpoint := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return model.SearchResult{}, err
	}

	switch result.LoadType {
	case LoadTrack:
		var t trackPayload
		if err := json.Unmarshal(result.Data, &t); err != nil {
			return model.SearchResult{}, fmt.Errorf("decode track: %w", err)
		}
		return model.SearchResult{Tracks: []*model.Track{t.toModel()}}, nil

	case LoadSearch:
		var ts []trackPayload
		if err := json.Unmarshal(result.Data, &ts); err != nil {
			return model.SearchResult{}, fmt.Errorf("decode search result: %w", err)
		}
		return model.SearchResult{Tracks: toModels(ts)}, nil

	case LoadPlaylist:
		var pl playlistData
		if err := json.Unmarshal(result.Data, &pl); err != nil {
			return model.SearchResult{}, fmt.Errorf("decode playlist: %w", err)
		}
		name := pl.Info.Name
		if name == "" {
			name = identifier
		}
		return model.SearchResult{Playlist: name, Tracks: toModels(pl.Tracks)}, nil

	case LoadError:
		var ex exceptionPayload
		if err := json.Unmarshal(result.Data, &ex); err != nil {
			logger.Debug("undecodable load exception",
				logger.String("identifier", identifier),
				logger.ErrorField(err))
		}
		if ex.Message == "" {
			ex.Message = "unknown error"
		}
		return model.SearchResult{}, fmt.Errorf("load failed: %s", ex.Message)

	default:
		return model.SearchResult{}, nil
	}
}

func toModels(ts []trackPayload) []*model.Track {
	out := make([]*model.Track, len(ts))
	for i := range ts {
		out[i] = ts[i].toModel()
	}
	return out
}

// Connect 把语音连接信息交给引擎，创建播放器
func (n *Node) Connect(ctx context.Context, guildID string, voice model.VoiceState) error {
	err := n.updatePlayer(ctx, guildID, updatePlayer{
		Voice: &voicePayload{
			Token:     voice.Token,
			Endpoint:  voice.Endpoint,
			SessionID: voice.SessionID,
		},
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.playerLocked(guildID)
	n.mu.Unlock()
	return nil
}

// Play 开始播放，替换当前歌曲
func (n *Node) Play(ctx context.Context, guildID string, track *model.Track) error {
	paused := false
	encoded := track.Encoded
	err := n.updatePlayer(ctx, guildID, updatePlayer{
		Track:  &encodedTrack{Encoded: &encoded},
		Paused: &paused,
	})
	if err != nil {
		return err
	}

	// TrackStartEvent 到达前先视为在播放
	n.mu.Lock()
	p := n.playerLocked(guildID)
	p.state.Playing = true
	p.state.Paused = false
	p.state.PositionMs = 0
	p.updatedAt = n.now()
	n.mu.Unlock()
	return nil
}

// Stop 停止当前歌曲，引擎会发送 reason 为 stopped 的 TrackEndEvent
func (n *Node) Stop(ctx context.Context, guildID string) error {
	return n.updatePlayer(ctx, guildID, updatePlayer{
		Track: &encodedTrack{Encoded: nil},
	})
}

// Pause 暂停或继续
func (n *Node) Pause(ctx context.Context, guildID string, paused bool) error {
	if err := n.updatePlayer(ctx, guildID, updatePlayer{Paused: &paused}); err != nil {
		return err
	}

	n.mu.Lock()
	p := n.playerLocked(guildID)
	if paused && p.state.Active() {
		// 把推算的位置固定下来
		p.state.PositionMs += n.now().Sub(p.updatedAt).Milliseconds()
	}
	p.state.Paused = paused
	p.updatedAt = n.now()
	n.mu.Unlock()
	return nil
}

// Seek 跳转到指定位置
func (n *Node) Seek(ctx context.Context, guildID string, positionMs int64) error {
	if positionMs < 0 {
		positionMs = 0
	}
	if err := n.updatePlayer(ctx, guildID, updatePlayer{Position: &positionMs}); err != nil {
		return err
	}

	n.mu.Lock()
	p := n.playerLocked(guildID)
	p.state.PositionMs = positionMs
	p.updatedAt = n.now()
	n.mu.Unlock()
	return nil
}

// Disconnect 销毁播放器，离开语音频道
func (n *Node) Disconnect(ctx context.Context, guildID string) error {
	sid := n.SessionID()
	if sid == "" {
		return ErrNotReady
	}

	n.mu.Lock()
	delete(n.players, guildID)
	n.mu.Unlock()

	endpoint := fmt.Sprintf("/v4/sessions/%s/players/%s", url.PathEscape(sid), url.PathEscape(guildID))
	err := n.do(ctx, http.MethodDelete, endpoint, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (n *Node) updatePlayer(ctx context.Context, guildID string, body updatePlayer) error {
	sid := n.SessionID()
	if sid == "" {
		return ErrNotReady
	}
	endpoint := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=false", url.PathEscape(sid), url.PathEscape(guildID))
	return n.do(ctx, http.MethodPatch, endpoint, body, nil)
}

// APIError 引擎返回的错误
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lavalink returned %d: %s", e.Status, e.Message)
}

func (n *Node) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lavalink request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			msg = er.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
